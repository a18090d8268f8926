package llm

import (
	"context"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Schema is a JSON Schema the response must conform to.
type Schema struct {
	Name        string
	Description string
	Strict      bool
	Schema      map[string]any
}

type CompletionRequest struct {
	Messages    []Message
	Schema      *Schema
	Temperature *float64
	Seed        *int64
	MaxTokens   int64
}

// System joins the system messages of the request.
func (r CompletionRequest) System() string {
	var parts []string
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

type FinishReason string

const (
	FinishStop    FinishReason = "stop"
	FinishLength  FinishReason = "length"
	FinishRefusal FinishReason = "refusal"
	FinishOther   FinishReason = "other"
)

type Completion struct {
	ID      string
	Model   string
	Content string
	Refusal string
	Finish  FinishReason

	InputTokens  int64
	OutputTokens int64
}

// Completer is the LLM boundary. Implementations make exactly one call per
// Complete and return a typed failure; retries belong to the caller.
// Errors that are worth retrying satisfy common.IsRetryable.
type Completer interface {
	Model() string
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
