package provider

import (
	"context"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
)

// Completer is implemented by anything that can serve a chat completion
// request as a stream of events. The returned channel is closed once the
// final Response or Error event has been delivered.
type Completer interface {
	Complete(context.Context, CompletionParams) (<-chan StreamEvent, error)
}

// Role of a chat message in the completion request.
type Role string

const (
	System    Role = "system"
	User      Role = "user"
	Assistant Role = "assistant"
	Function  Role = "function"
)

// FunctionCall is an assistant's selection of a function with JSON-encoded
// arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry of the role-ordered message list sent upstream.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// Name carries the function name on Function-role messages.
	Name string `json:"name,omitempty"`

	// FunctionCall is set on Assistant messages that select a function
	// instead of producing content.
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// FunctionDef describes a callable function offered to the model.
type FunctionDef struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// CompletionParams encapsulates one completion request after block
// translation. Sampling parameters left nil fall back to upstream defaults.
type CompletionParams struct {
	// RunID correlates stream events with the plugin invocation.
	RunID uuid.UUID

	Model    string
	Messages []Message

	// N is the number of choices to sample. Each choice streams into its
	// own pre-allocated output block.
	N int64

	MaxTokens        *int64
	Temperature      *float64
	TopP             *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
	Stop             []string

	Functions []FunctionDef

	// Stream requests incremental delivery. When false a single Response
	// event arrives.
	Stream bool

	// Prevents unkeyed literals
	_ struct{}
}

// Usage carries the token accounting of a finished completion.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Choice is one completed sample of a Response event.
type Choice struct {
	Index        int64         `json:"index"`
	Content      string        `json:"content,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
}
