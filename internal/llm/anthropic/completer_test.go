package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/llm"
)

const messageBody = `{
	"id": "msg_1",
	"type": "message",
	"role": "assistant",
	"model": "claude-sonnet-4-5",
	"content": [{"type": "text", "text": "{\"uwi\":\"42-1\"}"}],
	"stop_reason": "end_turn",
	"stop_sequence": null,
	"usage": {"input_tokens": 50, "output_tokens": 9}
}`

func TestCompleter_Complete(t *testing.T) {
	var body map[string]any
	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(messageBody))
	}))
	defer srv.Close()

	c, err := NewCompleter(srv.URL, "claude-sonnet-4-5", WithToken("key"), WithClient(srv.Client()))
	require.NoError(t, err)

	temp := 0.0
	resp, err := c.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{
			llm.SystemMessage("extract"),
			llm.UserMessage("MD | INC"),
			llm.AssistantMessage("oops"),
			llm.UserMessage("again"),
		},
		Schema:      &llm.Schema{Name: llm.SchemaName, Schema: map[string]any{"type": "object"}},
		Temperature: &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"uwi":"42-1"}`, resp.Content)
	assert.Equal(t, llm.FinishStop, resp.Finish)
	assert.Equal(t, int64(50), resp.InputTokens)

	assert.Equal(t, "key", header.Get("X-Api-Key"))
	assert.Equal(t, float64(defaultMaxTokens), body["max_tokens"])
	system := body["system"].([]any)
	assert.Equal(t, "extract", system[0].(map[string]any)["text"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "assistant", msgs[1].(map[string]any)["role"])
}

func TestCompleter_OverloadedIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer srv.Close()

	c, err := NewCompleter(srv.URL, "claude-sonnet-4-5", WithClient(srv.Client()))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{llm.UserMessage("x")}})
	require.Error(t, err)
	assert.True(t, common.IsRetryable(err))
}

func TestToFinishReason(t *testing.T) {
	assert.Equal(t, llm.FinishLength, toFinishReason("max_tokens"))
	assert.Equal(t, llm.FinishStop, toFinishReason("end_turn"))
	assert.Equal(t, llm.FinishOther, toFinishReason("tool_use"))
}
