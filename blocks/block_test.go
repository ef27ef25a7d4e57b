package blocks

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleOf(t *testing.T) {
	tests := []struct {
		name   string
		block  Block
		want   Role
		wantOK bool
	}{
		{
			name:   "plain role tag",
			block:  TextBlock(RoleSystem, "you are helpful"),
			want:   RoleSystem,
			wantOK: true,
		},
		{
			name: "chat style role tag",
			block: Block{
				Text: "hello",
				Tags: []Tag{NewChatRoleTag(RoleUser)},
			},
			want:   RoleUser,
			wantOK: true,
		},
		{
			name: "function role with name value",
			block: Block{
				Text: "Paloma Jiménez",
				Tags: []Tag{NewFunctionTag("Search")},
			},
			want:   RoleFunction,
			wantOK: true,
		},
		{
			name: "unknown role dropped",
			block: Block{
				Text: "will be filtered out",
				Tags: []Tag{NewChatRoleTag(Role("agent"))},
			},
			wantOK: false,
		},
		{
			name:   "no tags",
			block:  Block{Text: "yo"},
			wantOK: false,
		},
		{
			name: "unrelated tags only",
			block: Block{
				Text: "yo",
				Tags: []Tag{{Kind: "timestamp", Name: "2024"}},
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, ok := RoleOf(tt.block)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, role)
			}
		})
	}
}

func TestFunctionNameOf(t *testing.T) {
	name, ok := FunctionNameOf(Block{
		Text: "Paloma Jiménez",
		Tags: []Tag{NewRoleTag(RoleFunction), {Kind: KindName, Name: "Search"}},
	})
	require.True(t, ok)
	assert.Equal(t, "Search", name)

	name, ok = FunctionNameOf(Block{
		Text: "c2f6818c-233d-4426-9dc5-f3c28fa33068",
		Tags: []Tag{NewFunctionTag("generate_image")},
	})
	require.True(t, ok)
	assert.Equal(t, "generate_image", name)

	_, ok = FunctionNameOf(TextBlock(RoleUser, "hello"))
	assert.False(t, ok)

	// A user-role tag carrying a string value is not a function association.
	_, ok = FunctionNameOf(Block{
		Text: "hello",
		Tags: []Tag{{
			Kind:  KindRole,
			Name:  string(RoleUser),
			Value: map[string]any{ValueStringKey: "not-a-function"},
		}},
	})
	assert.False(t, ok)

	// Nor is a non-role tag that happens to be named "function".
	_, ok = FunctionNameOf(Block{
		Text: "hello",
		Tags: []Tag{{
			Kind:  "provenance",
			Name:  string(RoleFunction),
			Value: map[string]any{ValueStringKey: "not-a-function"},
		}},
	})
	assert.False(t, ok)
}

func TestIsFunctionCall(t *testing.T) {
	block := Block{
		Text: `{"name":"SearchTool","arguments":"{}"}`,
		Tags: []Tag{NewRoleTag(RoleAssistant), NewFunctionSelectionTag("SearchTool")},
	}
	assert.True(t, IsFunctionCall(block))
	assert.False(t, IsFunctionCall(TextBlock(RoleAssistant, "plain answer")))
}

func TestTagUnmarshal(t *testing.T) {
	t.Run("object value", func(t *testing.T) {
		var tag Tag
		input := `{"kind":"chat","name":"role","value":{"string-value":"user"}}`
		require.NoError(t, json.Unmarshal([]byte(input), &tag))
		assert.Equal(t, KindChat, tag.Kind)
		s, ok := tag.StringValue()
		require.True(t, ok)
		assert.Equal(t, "user", s)
	})

	t.Run("scalar value folded", func(t *testing.T) {
		var tag Tag
		input := `{"kind":"role","name":"function","value":"Search"}`
		require.NoError(t, json.Unmarshal([]byte(input), &tag))
		s, ok := tag.StringValue()
		require.True(t, ok)
		assert.Equal(t, "Search", s)
	})

	t.Run("missing value", func(t *testing.T) {
		var tag Tag
		require.NoError(t, json.Unmarshal([]byte(`{"kind":"role","name":"user"}`), &tag))
		assert.Nil(t, tag.Value)
	})

	t.Run("invalid json", func(t *testing.T) {
		var tag Tag
		assert.Error(t, json.Unmarshal([]byte(`{"kind":`), &tag))
	})
}

func TestBlockRoundTrip(t *testing.T) {
	block := Block{
		ID:          "b1",
		FileID:      "f1",
		Text:        "1 2 3 4",
		MimeType:    MimeText,
		Tags:        []Tag{NewRoleTag(RoleUser)},
		StreamState: StreamStateStarted,
	}

	data, err := json.Marshal(block)
	require.NoError(t, err)

	var got Block
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, block, got)
}
