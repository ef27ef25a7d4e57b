package provider

import (
	"errors"
	"testing"
	"time"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelimJSON(t *testing.T) {
	runID := uuid.New()
	event := Delim{RunID: runID, Delim: "start"}

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"delim","run_id":"`+runID.String()+`","delim":"start"}`, string(data))

	var got Delim
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, event, got)
}

func TestDelimJSON_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "invalid json", input: `{"type":`},
		{name: "wrong type", input: `{"type":"chunk","run_id":"` + uuid.NewString() + `","delim":"start"}`},
		{name: "missing run_id", input: `{"type":"delim","delim":"start"}`},
		{name: "bad run_id", input: `{"type":"delim","run_id":"nope","delim":"start"}`},
		{name: "missing delim", input: `{"type":"delim","run_id":"` + uuid.NewString() + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Delim
			assert.Error(t, json.Unmarshal([]byte(tt.input), &d))
		})
	}
}

func TestChunkJSON(t *testing.T) {
	runID := uuid.New()
	ts := strfmt.DateTime(time.Now().UTC().Truncate(time.Millisecond))

	t.Run("content chunk", func(t *testing.T) {
		event := Chunk{RunID: runID, Index: 1, Content: "5 6", Timestamp: ts}

		data, err := json.Marshal(event)
		require.NoError(t, err)

		var got Chunk
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, event.RunID, got.RunID)
		assert.EqualValues(t, 1, got.Index)
		assert.Equal(t, "5 6", got.Content)
		assert.Equal(t, ts.String(), got.Timestamp.String())
	})

	t.Run("function call chunk", func(t *testing.T) {
		event := Chunk{
			RunID:        runID,
			FunctionCall: &FunctionCall{Name: "Search", Arguments: `{"query":"weather"}`},
		}

		data, err := json.Marshal(event)
		require.NoError(t, err)

		var got Chunk
		require.NoError(t, json.Unmarshal(data, &got))
		require.NotNil(t, got.FunctionCall)
		assert.Equal(t, "Search", got.FunctionCall.Name)
		assert.Equal(t, `{"query":"weather"}`, got.FunctionCall.Arguments)
	})
}

func TestResponseJSON(t *testing.T) {
	runID := uuid.New()
	event := Response{
		RunID: runID,
		ID:    "chatcmpl-123",
		Model: "gpt-4o-mini",
		Choices: []Choice{
			{Index: 0, Content: "5 6 7 8", FinishReason: "stop"},
			{Index: 1, FunctionCall: &FunctionCall{Name: "Search", Arguments: "{}"}, FinishReason: "function_call"},
		},
		Usage: Usage{PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28},
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var got Response
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, event.RunID, got.RunID)
	assert.Equal(t, "chatcmpl-123", got.ID)
	require.Len(t, got.Choices, 2)
	assert.Equal(t, "5 6 7 8", got.Choices[0].Content)
	require.NotNil(t, got.Choices[1].FunctionCall)
	assert.Equal(t, "Search", got.Choices[1].FunctionCall.Name)
	assert.EqualValues(t, 28, got.Usage.TotalTokens)
}

func TestResponseJSON_MissingChoices(t *testing.T) {
	var got Response
	input := `{"type":"response","run_id":"` + uuid.NewString() + `"}`
	assert.Error(t, json.Unmarshal([]byte(input), &got))
}

func TestErrorJSON(t *testing.T) {
	runID := uuid.New()
	event := Error{RunID: runID, Err: errors.New("rate limited")}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var got Error
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, runID, got.RunID)
	require.NotNil(t, got.Err)
	assert.Equal(t, "rate limited", got.Err.Error())
	assert.Contains(t, got.Error(), "rate limited")
}

func TestStreamEventSealed(t *testing.T) {
	events := []StreamEvent{Delim{}, Chunk{}, Response{}, Error{}}
	assert.Len(t, events, 4)
}
