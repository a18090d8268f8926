package llm

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/joseph-ayodele/survey-extractor/constants"
)

type reply struct {
	completion *Completion
	err        error
	block      bool // wait for the context instead of answering
}

// fakeCompleter answers requests from a script and records them.
type fakeCompleter struct {
	mu       sync.Mutex
	replies  []reply
	requests []CompletionRequest
}

func (f *fakeCompleter) Model() string { return "fake-model" }

func (f *fakeCompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	f.mu.Lock()
	i := len(f.requests)
	f.requests = append(f.requests, req)
	var r reply
	if i < len(f.replies) {
		r = f.replies[i]
	} else if len(f.replies) > 0 {
		r = f.replies[len(f.replies)-1]
	}
	f.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.completion, r.err
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func text(content string) reply {
	return reply{completion: &Completion{Content: content, Finish: FinishStop}}
}

// response builds a complete response document with every metadata field
// null unless set in meta.
func response(meta map[string]any, points ...map[string]any) string {
	m := map[string]any{}
	for _, name := range constants.MetadataFieldNames() {
		m[name] = nil
	}
	for k, v := range meta {
		m[k] = v
	}
	pts := make([]any, 0, len(points))
	for _, p := range points {
		full := map[string]any{KeyConfidence: nil}
		for _, c := range constants.PointColumns {
			full[c] = nil
		}
		for k, v := range p {
			full[k] = v
		}
		pts = append(pts, full)
	}
	m[KeySurveyPoints] = pts
	if _, ok := m[KeyConfidence]; !ok {
		m[KeyConfidence] = nil
	}
	b, _ := json.Marshal(m)
	return string(b)
}
