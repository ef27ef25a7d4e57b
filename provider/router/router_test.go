package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dockhand/relay/plugin"
	"github.com/dockhand/relay/provider"
	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRouter(t *testing.T, handler http.HandlerFunc, options ...opts.Option[Router]) (*Router, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	routerOpts := []opts.Option[Router]{
		WithRequestOptions(
			option.WithBaseURL(server.URL),
			option.WithHTTPClient(server.Client()),
			option.WithMaxRetries(0),
		),
	}
	routerOpts = append(routerOpts, options...)

	r, err := New(routerOpts...)
	require.NoError(t, err)
	return r, server
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name           string
		env            Environment
		fallback       Environment
		model          string
		wantProvider   string
		wantSelfBilled bool
		wantErrCode    string
	}{
		{
			name:           "configured key wins",
			env:            Environment{"OPENAI_API_KEY": "sk-own"},
			fallback:       Environment{"OPENAI_API_KEY": "sk-plugin"},
			model:          "gpt-4-32k",
			wantProvider:   "openai",
			wantSelfBilled: false,
		},
		{
			name:           "fallback for billable model",
			fallback:       Environment{"OPENAI_API_KEY": "sk-plugin"},
			model:          "gpt-4o-mini",
			wantProvider:   "openai",
			wantSelfBilled: true,
		},
		{
			name:           "configured env without provider key attempts anyway",
			env:            Environment{"OPENAI_API_KEY": "sk-own"},
			fallback:       Environment{"REPLICATE_API_KEY": "r8-plugin"},
			model:          "replicate/llama-2-70b-chat:tag",
			wantProvider:   "replicate",
			wantSelfBilled: false,
		},
		{
			name:        "unbilled model without credentials",
			fallback:    Environment{"OPENAI_API_KEY": "sk-plugin"},
			model:       "replicate/llama-2-70b-chat:tag",
			wantErrCode: plugin.CodeUnsupported,
		},
		{
			name:        "unknown provider",
			model:       "acme/some-model",
			wantErrCode: plugin.CodeUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(WithEnvironment(tt.env), WithFallback(tt.fallback))
			require.NoError(t, err)

			res, err := r.Resolve(tt.model)
			if tt.wantErrCode != "" {
				require.Error(t, err)
				var pe *plugin.Error
				require.True(t, errors.As(err, &pe))
				assert.Equal(t, tt.wantErrCode, pe.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, res.Provider)
			assert.Equal(t, tt.wantSelfBilled, res.SelfBilled)
		})
	}
}

func TestBuildRequest(t *testing.T) {
	maxTokens := int64(256)
	temperature := 0.4

	properties := orderedmap.New[string, *jsonschema.Schema]()
	properties.Set("query", &jsonschema.Schema{Type: "string"})

	params := provider.CompletionParams{
		RunID: uuid.New(),
		Model: "gpt-4o-mini",
		Messages: []provider.Message{
			{Role: provider.System, Content: "count"},
			{Role: provider.User, Content: "1 2 3 4"},
			{Role: provider.Assistant, FunctionCall: &provider.FunctionCall{Name: "Search", Arguments: `{"query":"x"}`}},
			{Role: provider.Function, Name: "Search", Content: "found it"},
			{Role: provider.Assistant, Content: "the answer"},
		},
		N:           2,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		Stop:        []string{"6"},
		Functions: []provider.FunctionDef{
			{
				Name:        "Search",
				Description: "look things up",
				Parameters:  &jsonschema.Schema{Type: "object", Properties: properties},
			},
		},
	}

	chatParams, err := buildRequest("gpt-4o-mini", &params)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", string(chatParams.Model.Value))
	assert.EqualValues(t, 2, chatParams.N.Value)
	assert.EqualValues(t, 256, chatParams.MaxTokens.Value)
	assert.Equal(t, 0.4, chatParams.Temperature.Value)

	stop, ok := chatParams.Stop.Value.(openai.ChatCompletionNewParamsStopArray)
	require.True(t, ok)
	assert.Equal(t, openai.ChatCompletionNewParamsStopArray{"6"}, stop)

	require.Len(t, chatParams.Messages.Value, 5)

	tools := chatParams.Tools.Value
	require.Len(t, tools, 1)
	assert.Equal(t, "Search", tools[0].Function.Value.Name.Value)
	assert.Equal(t, "look things up", tools[0].Function.Value.Description.Value)
	assert.Contains(t, tools[0].Function.Value.Parameters.Value, "properties")
}

func TestBuildRequest_UnnamedFunction(t *testing.T) {
	params := provider.CompletionParams{
		RunID:     uuid.New(),
		Model:     "gpt-4o-mini",
		Messages:  []provider.Message{{Role: provider.User, Content: "hi"}},
		Functions: []provider.FunctionDef{{Description: "nameless"}},
	}
	_, err := buildRequest("gpt-4o-mini", &params)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no name")
}

func TestComplete_NonStream(t *testing.T) {
	r, _ := newTestRouter(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/chat/completions", req.URL.Path)
		assert.Equal(t, "Bearer sk-plugin", req.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": "5 6 7 8"},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]any{"prompt_tokens": 20, "completion_tokens": 8, "total_tokens": 28},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}, WithFallback(Environment{"OPENAI_API_KEY": "sk-plugin"}))

	events, err := r.Complete(context.Background(), provider.CompletionParams{
		RunID:    uuid.New(),
		Model:    "gpt-4o-mini",
		Messages: []provider.Message{{Role: provider.User, Content: "1 2 3 4"}},
		N:        1,
	})
	require.NoError(t, err)

	final := collectFinal(t, events)
	require.Len(t, final.Choices, 1)
	assert.Equal(t, "5 6 7 8", final.Choices[0].Content)
	assert.EqualValues(t, 28, final.Usage.TotalTokens)
	assert.Equal(t, "chatcmpl-1", final.ID)
}

func TestComplete_Stream(t *testing.T) {
	r, _ := newTestRouter(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)

		writeChunk := func(content string) {
			chunk := map[string]any{
				"id":      "chatcmpl-2",
				"object":  "chat.completion.chunk",
				"model":   "gpt-4o-mini",
				"created": time.Now().Unix(),
				"choices": []map[string]any{
					{"index": 0, "delta": map[string]any{"content": content}},
				},
			}
			data, err := json.Marshal(chunk)
			require.NoError(t, err)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}

		writeChunk("5 ")
		writeChunk("6 7 8")

		finish := map[string]any{
			"id":      "chatcmpl-2",
			"object":  "chat.completion.chunk",
			"model":   "gpt-4o-mini",
			"created": time.Now().Unix(),
			"choices": []map[string]any{
				{"index": 0, "delta": map[string]any{}, "finish_reason": "stop"},
			},
			"usage": map[string]any{"prompt_tokens": 20, "completion_tokens": 5, "total_tokens": 25},
		}
		data, err := json.Marshal(finish)
		require.NoError(t, err)
		fmt.Fprintf(w, "data: %s\n\n", data)
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}, WithFallback(Environment{"OPENAI_API_KEY": "sk-plugin"}))

	events, err := r.Complete(context.Background(), provider.CompletionParams{
		RunID:    uuid.New(),
		Model:    "gpt-4o-mini",
		Messages: []provider.Message{{Role: provider.User, Content: "1 2 3 4"}},
		N:        1,
		Stream:   true,
	})
	require.NoError(t, err)

	var delims []string
	var text string
	var final *provider.Response
	for event := range events {
		switch e := event.(type) {
		case provider.Delim:
			delims = append(delims, e.Delim)
		case provider.Chunk:
			text += e.Content
		case provider.Response:
			final = &e
		case provider.Error:
			t.Fatalf("unexpected error event: %v", e)
		}
	}

	assert.Equal(t, []string{"start", "end"}, delims)
	assert.Equal(t, "5 6 7 8", text)
	require.NotNil(t, final)
	assert.EqualValues(t, 25, final.Usage.TotalTokens)
}

func TestComplete_FunctionCall(t *testing.T) {
	r, _ := newTestRouter(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":     "chatcmpl-3",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{
				{
					"index": 0,
					"message": map[string]any{
						"role": "assistant",
						"tool_calls": []map[string]any{
							{
								"id":   "call_Search",
								"type": "function",
								"function": map[string]any{
									"name":      "Search",
									"arguments": `{"query":"weather in Berlin"}`,
								},
							},
						},
					},
					"finish_reason": "tool_calls",
				},
			},
			"usage": map[string]any{"prompt_tokens": 30, "completion_tokens": 12, "total_tokens": 42},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}, WithFallback(Environment{"OPENAI_API_KEY": "sk-plugin"}))

	events, err := r.Complete(context.Background(), provider.CompletionParams{
		RunID:    uuid.New(),
		Model:    "gpt-4o-mini",
		Messages: []provider.Message{{Role: provider.User, Content: "weather?"}},
		N:        1,
	})
	require.NoError(t, err)

	final := collectFinal(t, events)
	require.Len(t, final.Choices, 1)
	require.NotNil(t, final.Choices[0].FunctionCall)
	assert.Equal(t, "Search", final.Choices[0].FunctionCall.Name)
	assert.Contains(t, final.Choices[0].FunctionCall.Arguments, "Berlin")
}

func TestComplete_UpstreamAuthError(t *testing.T) {
	r, _ := newTestRouter(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}, WithFallback(Environment{"OPENAI_API_KEY": "sk-bad"}))

	events, err := r.Complete(context.Background(), provider.CompletionParams{
		RunID:    uuid.New(),
		Model:    "gpt-4o-mini",
		Messages: []provider.Message{{Role: provider.User, Content: "hi"}},
		N:        1,
	})
	require.NoError(t, err)

	var errEvent *provider.Error
	for event := range events {
		if e, ok := event.(provider.Error); ok {
			errEvent = &e
		}
	}
	require.NotNil(t, errEvent)

	var apiErr *openai.Error
	require.True(t, errors.As(errEvent.Err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func collectFinal(t *testing.T, events <-chan provider.StreamEvent) provider.Response {
	t.Helper()
	var final *provider.Response
	for event := range events {
		switch e := event.(type) {
		case provider.Response:
			final = &e
		case provider.Error:
			t.Fatalf("unexpected error event: %v", e)
		}
	}
	require.NotNil(t, final)
	return *final
}
