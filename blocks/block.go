package blocks

// Role identifies the conversational author of a block.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// Known returns whether the role is one the completion request can carry.
func (r Role) Known() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleFunction:
		return true
	}
	return false
}

// MIME types the plugin produces. Completions are always text.
const (
	MimeText = "text/plain"
	MimePNG  = "image/png"
)

// Stream states of a pre-allocated output block.
const (
	StreamStateStarted  = "started"
	StreamStateComplete = "complete"
	StreamStateAborted  = "aborted"
)

// Block is a host-owned unit of conversational content. The plugin reads
// input blocks and appends to pre-allocated output blocks; it never deletes.
type Block struct {
	ID          string `json:"id,omitempty"`
	FileID      string `json:"fileId,omitempty"`
	Text        string `json:"text,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Tags        []Tag  `json:"tags,omitempty"`
	StreamState string `json:"streamState,omitempty"`
}

// RoleOf resolves the block's role from its tags, accepting both tagging
// styles. The second return is false when no role tag is present or the role
// is not one of the known values.
func RoleOf(b Block) (Role, bool) {
	for _, tag := range b.Tags {
		switch tag.Kind {
		case KindRole:
			if r := Role(tag.Name); r.Known() {
				return r, true
			}
		case KindChat:
			if tag.Name != KindRole {
				continue
			}
			if s, ok := tag.StringValue(); ok {
				if r := Role(s); r.Known() {
					return r, true
				}
			}
		}
	}
	// Chat-style tags written with the role constant as the kind.
	for _, tag := range b.Tags {
		if tag.Kind == KindRole {
			continue
		}
		if Role(tag.Kind).Known() && tag.Name == KindRole {
			if s, ok := tag.StringValue(); ok {
				if r := Role(s); r.Known() {
					return r, true
				}
			}
		}
	}
	return "", false
}

// FunctionNameOf resolves the function a block is associated with: either a
// dedicated "name" tag, a "function-selection" tag, or the string value of a
// function-role tag.
func FunctionNameOf(b Block) (string, bool) {
	for _, tag := range b.Tags {
		switch tag.Kind {
		case KindName:
			if tag.Name != "" {
				return tag.Name, true
			}
		case KindFunctionSelection:
			if tag.Name != "" {
				return tag.Name, true
			}
		}
	}
	// Function-role tags carry the function name as their string value.
	for _, tag := range b.Tags {
		if tag.Kind != KindRole || tag.Name != string(RoleFunction) {
			continue
		}
		if s, ok := tag.StringValue(); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// IsFunctionCall reports whether an assistant block represents a function
// selection rather than plain content.
func IsFunctionCall(b Block) bool {
	for _, tag := range b.Tags {
		if tag.Kind == KindFunctionSelection {
			return true
		}
	}
	return false
}

// TextBlock builds a plain text block with the given role.
func TextBlock(role Role, text string) Block {
	return Block{
		Text:     text,
		MimeType: MimeText,
		Tags:     []Tag{NewRoleTag(role)},
	}
}
