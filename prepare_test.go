package relay

import (
	"testing"

	"github.com/dockhand/relay/blocks"
	"github.com/dockhand/relay/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareMessages_Roles(t *testing.T) {
	g, err := New()
	require.NoError(t, err)

	messages := g.PrepareMessages([]blocks.Block{
		blocks.TextBlock(blocks.RoleSystem, "be terse"),
		blocks.TextBlock(blocks.RoleUser, "hi"),
		blocks.TextBlock(blocks.RoleAssistant, "hello"),
		{Text: "chat style", Tags: []blocks.Tag{blocks.NewChatRoleTag(blocks.RoleUser)}},
	})

	require.Len(t, messages, 4)
	assert.Equal(t, provider.System, messages[0].Role)
	assert.Equal(t, "be terse", messages[0].Content)
	assert.Equal(t, provider.User, messages[1].Role)
	assert.Equal(t, provider.Assistant, messages[2].Role)
	assert.Equal(t, provider.User, messages[3].Role)
	assert.Equal(t, "chat style", messages[3].Content)
}

func TestPrepareMessages_DropsUnknownRoles(t *testing.T) {
	g, err := New()
	require.NoError(t, err)

	messages := g.PrepareMessages([]blocks.Block{
		{Text: "mystery", Tags: []blocks.Tag{{Kind: blocks.KindRole, Name: "agent"}}},
		{Text: "untagged"},
		blocks.TextBlock(blocks.RoleUser, "hi"),
	})

	require.Len(t, messages, 1)
	assert.Equal(t, provider.User, messages[0].Role)
	assert.Equal(t, "hi", messages[0].Content)
}

func TestPrepareMessages_DefaultSystemPrompt(t *testing.T) {
	g, err := New(WithDefaultSystemPrompt("you are helpful"))
	require.NoError(t, err)

	messages := g.PrepareMessages([]blocks.Block{
		blocks.TextBlock(blocks.RoleUser, "hi"),
	})
	require.Len(t, messages, 2)
	assert.Equal(t, provider.System, messages[0].Role)
	assert.Equal(t, "you are helpful", messages[0].Content)

	// An explicit opening system message wins.
	messages = g.PrepareMessages([]blocks.Block{
		blocks.TextBlock(blocks.RoleSystem, "be terse"),
		blocks.TextBlock(blocks.RoleUser, "hi"),
	})
	require.Len(t, messages, 2)
	assert.Equal(t, "be terse", messages[0].Content)
}

func TestPrepareMessages_FunctionMessages(t *testing.T) {
	g, err := New()
	require.NoError(t, err)

	messages := g.PrepareMessages([]blocks.Block{
		blocks.TextBlock(blocks.RoleUser, "what's the weather in oslo?"),
		{
			Text: `{"function_call": {"name": "get_weather", "arguments": "{\"city\": \"oslo\"}"}}`,
			Tags: []blocks.Tag{
				blocks.NewRoleTag(blocks.RoleAssistant),
				blocks.NewFunctionSelectionTag("get_weather"),
			},
		},
		{
			Text: `{"temperature": 12}`,
			Tags: []blocks.Tag{blocks.NewFunctionTag("get_weather")},
		},
	})

	require.Len(t, messages, 3)

	assistant := messages[1]
	assert.Equal(t, provider.Assistant, assistant.Role)
	require.NotNil(t, assistant.FunctionCall)
	assert.Equal(t, "get_weather", assistant.FunctionCall.Name)
	assert.JSONEq(t, `{"city": "oslo"}`, assistant.FunctionCall.Arguments)

	result := messages[2]
	assert.Equal(t, provider.Function, result.Role)
	assert.Equal(t, "get_weather", result.Name)
	assert.Equal(t, `{"temperature": 12}`, result.Content)
}

func TestParseFunctionCall(t *testing.T) {
	fc := parseFunctionCall(`{"name": "lookup", "arguments": {"q": "go"}}`)
	require.NotNil(t, fc)
	assert.Equal(t, "lookup", fc.Name)
	assert.JSONEq(t, `{"q": "go"}`, fc.Arguments)

	assert.Nil(t, parseFunctionCall("not json"))
	assert.Nil(t, parseFunctionCall(`{"arguments": "{}"}`))
}

func TestFunctionCallText_RoundTrip(t *testing.T) {
	text, err := functionCallText(&provider.FunctionCall{
		Name:      "get_weather",
		Arguments: `{"city": "oslo"}`,
	})
	require.NoError(t, err)

	fc := parseFunctionCall(text)
	require.NotNil(t, fc)
	assert.Equal(t, "get_weather", fc.Name)
	assert.JSONEq(t, `{"city": "oslo"}`, fc.Arguments)
}
