package plugin

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
)

// CallOptions are transient per-call overrides supplied by the caller. They
// are never persisted; a fresh set arrives with every request.
type CallOptions struct {
	// Model overrides the configured model for this call.
	Model string `json:"model,omitempty"`

	// N overrides the number of completions to sample.
	N *int64 `json:"n,omitempty"`

	MaxTokens        *int64   `json:"max_tokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`

	// Stop accepts either a single string or a list of strings on the wire.
	Stop StopSequences `json:"stop,omitempty"`

	// Functions are the callable function schemas offered to the model.
	Functions []FunctionSpec `json:"functions,omitempty"`

	// Environment is rejected whenever present: provider credentials are
	// fixed at plugin construction and may not be overridden per call.
	Environment *string `json:"environment,omitempty"`
}

// Samples returns the effective sampling count, falling back to def when the
// caller did not override it.
func (o CallOptions) Samples(def int64) int64 {
	if o.N == nil || *o.N < 1 {
		return def
	}
	return *o.N
}

// StopSequences is a string-or-list union as it appears on the wire.
type StopSequences []string

func (s StopSequences) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]string(s))
}

func (s *StopSequences) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}
	jv := gjson.ParseBytes(data)
	switch {
	case jv.Type == gjson.Null:
		*s = nil
	case jv.IsArray():
		values := jv.Array()
		out := make([]string, 0, len(values))
		for _, v := range values {
			out = append(out, v.String())
		}
		*s = out
	case jv.Type == gjson.String:
		*s = []string{jv.String()}
	default:
		return fmt.Errorf("stop must be a string or a list of strings, got: %s", data)
	}
	return nil
}

// FunctionSpec describes one callable function offered to the model. The
// parameters are a JSON schema object.
type FunctionSpec struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}
