package blocks

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Tag kinds understood by the plugin. Anything else is carried through
// untouched but ignored during role resolution.
const (
	KindRole              = "role"
	KindChat              = "chat"
	KindName              = "name"
	KindFunctionSelection = "function-selection"
)

// ValueStringKey is the key under which chat-style tags store their scalar
// payload inside the tag value object.
const ValueStringKey = "string-value"

// Tag attaches metadata to a block. Kind and Name classify the tag, Value is
// an arbitrary JSON object whose interpretation depends on the kind.
type Tag struct {
	Kind  string         `json:"kind"`
	Name  string         `json:"name,omitempty"`
	Value map[string]any `json:"value,omitempty"`
}

// StringValue returns the "string-value" entry of the tag value, if present.
func (t Tag) StringValue() (string, bool) {
	if t.Value == nil {
		return "", false
	}
	v, ok := t.Value[ValueStringKey]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// UnmarshalJSON tolerates tag values that are not objects. Older writers
// stored scalar values directly; those are folded under ValueStringKey so
// downstream code only ever sees the object form.
func (t *Tag) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}
	jv := gjson.ParseBytes(data)
	t.Kind = jv.Get("kind").String()
	t.Name = jv.Get("name").String()
	t.Value = nil

	value := jv.Get("value")
	if !value.Exists() || value.Type == gjson.Null {
		return nil
	}
	if value.IsObject() {
		var m map[string]any
		if err := json.Unmarshal([]byte(value.Raw), &m); err != nil {
			return fmt.Errorf("invalid tag value: %w", err)
		}
		t.Value = m
		return nil
	}
	t.Value = map[string]any{ValueStringKey: value.String()}
	return nil
}

// NewRoleTag builds a role tag in the plain style.
func NewRoleTag(role Role) Tag {
	return Tag{Kind: KindRole, Name: string(role)}
}

// NewChatRoleTag builds a role tag in the chat style, with the role stored in
// the tag value.
func NewChatRoleTag(role Role) Tag {
	return Tag{
		Kind:  KindChat,
		Name:  KindRole,
		Value: map[string]any{ValueStringKey: string(role)},
	}
}

// NewFunctionTag builds a function-role tag carrying the function name.
func NewFunctionTag(name string) Tag {
	return Tag{
		Kind:  KindRole,
		Name:  string(RoleFunction),
		Value: map[string]any{ValueStringKey: name},
	}
}

// NewFunctionSelectionTag marks an assistant block as a function call.
func NewFunctionSelectionTag(name string) Tag {
	return Tag{Kind: KindFunctionSelection, Name: name}
}
