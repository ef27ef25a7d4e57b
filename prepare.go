package relay

import (
	"strings"

	"github.com/dockhand/relay/blocks"
	"github.com/dockhand/relay/provider"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// PrepareMessages translates tagged blocks into the role-ordered message
// list sent upstream. Blocks without a recognizable role tag are dropped.
// When a default system prompt is configured and the conversation does not
// open with a system message, one is prepended.
func (g *Generator) PrepareMessages(bs []blocks.Block) []provider.Message {
	messages := make([]provider.Message, 0, len(bs)+1)

	for _, b := range bs {
		role, ok := blocks.RoleOf(b)
		if !ok {
			g.log.Debug().Str("block_id", b.ID).Msg("dropping block without a known role")
			continue
		}

		switch role {
		case blocks.RoleFunction:
			name, _ := blocks.FunctionNameOf(b)
			messages = append(messages, provider.Message{
				Role:    provider.Function,
				Name:    name,
				Content: b.Text,
			})
		case blocks.RoleAssistant:
			if blocks.IsFunctionCall(b) {
				if fc := parseFunctionCall(b.Text); fc != nil {
					messages = append(messages, provider.Message{
						Role:         provider.Assistant,
						FunctionCall: fc,
					})
					continue
				}
			}
			messages = append(messages, provider.Message{
				Role:    provider.Assistant,
				Content: b.Text,
			})
		case blocks.RoleSystem:
			messages = append(messages, provider.Message{
				Role:    provider.System,
				Content: b.Text,
			})
		default:
			messages = append(messages, provider.Message{
				Role:    provider.User,
				Content: b.Text,
			})
		}
	}

	if g.defaultSystemPrompt != "" && !opensWithSystem(messages) {
		messages = append([]provider.Message{{
			Role:    provider.System,
			Content: g.defaultSystemPrompt,
		}}, messages...)
	}
	return messages
}

func opensWithSystem(messages []provider.Message) bool {
	return len(messages) > 0 && messages[0].Role == provider.System
}

// parseFunctionCall extracts a function selection from an assistant block's
// text. Accepts both the wrapped form {"function_call": {...}} and a bare
// {"name": ..., "arguments": ...} object. Arguments given as an object are
// kept as their raw JSON encoding.
func parseFunctionCall(text string) *provider.FunctionCall {
	if !gjson.Valid(text) {
		return nil
	}
	jv := gjson.Parse(text)
	if wrapped := jv.Get("function_call"); wrapped.IsObject() {
		jv = wrapped
	}

	name := jv.Get("name").String()
	if name == "" {
		return nil
	}

	args := jv.Get("arguments")
	var arguments string
	switch {
	case args.IsObject() || args.IsArray():
		arguments = args.Raw
	case args.Exists():
		arguments = args.String()
	}
	return &provider.FunctionCall{Name: name, Arguments: arguments}
}

// functionCallText renders a function selection back into block text, in the
// same wrapped form parseFunctionCall accepts.
func functionCallText(fc *provider.FunctionCall) (string, error) {
	payload := struct {
		FunctionCall *provider.FunctionCall `json:"function_call"`
	}{FunctionCall: fc}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// joinContents flattens message contents for moderation screening.
func joinContents(messages []provider.Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
