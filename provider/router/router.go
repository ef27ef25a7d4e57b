// Package router routes chat-completion requests across upstream providers.
//
// Model names carry the provider as a prefix ("replicate/llama-2-70b-chat");
// names without a prefix go to openai. Credentials come from a configured
// Environment, with the router's fallback credentials serving allow-listed
// models when the environment has no key for the resolved provider.
package router

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/dockhand/relay/pkg/jsonx"
	"github.com/dockhand/relay/plugin"
	"github.com/dockhand/relay/provider"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"
)

// Router implements provider.Completer over per-provider SDK clients,
// one per resolved credential set.
type Router struct {
	env      Environment
	fallback Environment
	reqOpts  []option.RequestOption
	clients  *haxmap.Map[string, *openai.Client]
	log      zerolog.Logger
}

var _ provider.Completer = (*Router)(nil)

// WithEnvironment sets the configured credential overrides. When the
// environment holds a key for the resolved provider, the call is served on
// it and no usage is billed.
func WithEnvironment(env Environment) opts.Option[Router] {
	return opts.Type[Router](func(r *Router) error {
		r.env = env
		return nil
	})
}

// WithFallback sets the router's own billing credentials, used only for
// allow-listed models.
func WithFallback(env Environment) opts.Option[Router] {
	return opts.Type[Router](func(r *Router) error {
		r.fallback = env
		return nil
	})
}

// WithRequestOptions appends SDK request options to every client the router
// builds. Tests use this to point at a fake upstream.
func WithRequestOptions(reqOpts ...option.RequestOption) opts.Option[Router] {
	return opts.Type[Router](func(r *Router) error {
		r.reqOpts = append(r.reqOpts, reqOpts...)
		return nil
	})
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) opts.Option[Router] {
	return opts.Type[Router](func(r *Router) error {
		r.log = log
		return nil
	})
}

// New builds a router.
func New(options ...opts.Option[Router]) (*Router, error) {
	r := &Router{
		clients: haxmap.New[string, *openai.Client](),
		log:     zerolog.Nop(),
	}
	if err := opts.Apply(r, options); err != nil {
		return nil, err
	}
	return r, nil
}

// FallbackFromProcessEnv collects credential variables with the allowed
// suffixes from the process environment. Used to seed the router's own
// billing credentials on the hosting side.
func FallbackFromProcessEnv() Environment {
	env := make(Environment)
	for _, kv := range os.Environ() {
		key, value, found := strings.Cut(kv, "=")
		if !found || value == "" {
			continue
		}
		if validEnvKey(key) {
			env[key] = value
		}
	}
	if len(env) == 0 {
		return nil
	}
	return env
}

// Resolution is the outcome of matching a model against the routing table
// and the available credentials.
type Resolution struct {
	// Provider is the routing-table key that will serve the call.
	Provider string

	// Model is the upstream model name, provider prefix stripped.
	Model string

	// SelfBilled is true when the router's fallback credentials serve the
	// call; exactly then is usage reported to the host.
	SelfBilled bool

	creds Environment
	route route
}

// Resolve picks the upstream and credentials for a model.
//
// The configured environment wins whenever it has the provider's key. Without
// one, fallback credentials are permitted only for allow-listed models: a
// configured environment lacking the key attempts the call anyway and lets
// the upstream reject it, an empty configuration is an error.
func (r *Router) Resolve(model string) (Resolution, error) {
	providerName, name, err := splitModel(model)
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{
		Provider: providerName,
		Model:    name,
		route:    routes[providerName],
	}

	if _, ok := r.env.APIKey(res.route.EnvPrefix); ok {
		res.creds = r.env
		return res, nil
	}

	if Billable(name) {
		res.creds = r.fallback
		res.SelfBilled = true
		return res, nil
	}

	if len(r.env) > 0 {
		// The caller took over billing but configured no key for this
		// provider. Let the upstream reject the call so its
		// authentication error reaches them unwrapped.
		res.creds = r.env
		return res, nil
	}

	return Resolution{}, plugin.Errorf(plugin.CodeUnsupported,
		"model %q is not billable through this plugin and no credentials were configured for it", model)
}

// Complete implements provider.Completer.
func (r *Router) Complete(ctx context.Context, params provider.CompletionParams) (<-chan provider.StreamEvent, error) {
	res, err := r.Resolve(params.Model)
	if err != nil {
		return nil, err
	}

	chatParams, err := buildRequest(res.Model, &params)
	if err != nil {
		return nil, err
	}

	client := r.clientFor(res)
	r.log.Debug().
		Str("provider", res.Provider).
		Str("model", res.Model).
		Bool("self_billed", res.SelfBilled).
		Msg("dispatching completion")

	events := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(events)
		if params.Stream {
			r.runStream(ctx, client, chatParams, &params, events)
		} else {
			r.runOnce(ctx, client, chatParams, &params, events)
		}
	}()
	return events, nil
}

func (r *Router) clientFor(res Resolution) *openai.Client {
	apiKey, _ := res.creds.APIKey(res.route.EnvPrefix)
	base, hasBase := res.creds.APIBase(res.route.EnvPrefix)
	if !hasBase {
		base = res.route.BaseURL
	}
	version, _ := res.creds.APIVersion(res.route.EnvPrefix)

	cacheKey := res.Provider + "|" + apiKey + "|" + base + "|" + version
	client, _ := r.clients.GetOrCompute(cacheKey, func() *openai.Client {
		clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
		if base != "" {
			clientOpts = append(clientOpts, option.WithBaseURL(base))
		}
		if version != "" {
			clientOpts = append(clientOpts, option.WithQuery("api-version", version))
		}
		clientOpts = append(clientOpts, r.reqOpts...)
		return openai.NewClient(clientOpts...)
	})
	return client
}

func (r *Router) runStream(ctx context.Context, client *openai.Client, chatParams openai.ChatCompletionNewParams, params *provider.CompletionParams, events chan<- provider.StreamEvent) {
	chatParams.StreamOptions = openai.F(openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	})

	strm := client.Chat.Completions.NewStreaming(ctx, chatParams)

	if strm.Err() != nil {
		events <- provider.Error{
			Err:       strm.Err(),
			RunID:     params.RunID,
			Timestamp: strfmt.DateTime(time.Now()),
		}
		strm.Close()
		return
	}

	defer func() {
		strm.Close()
		if err := ctx.Err(); err != nil {
			events <- provider.Error{
				Err:       err,
				RunID:     params.RunID,
				Timestamp: strfmt.DateTime(time.Now()),
			}
		}
	}()

	var notFirst bool
	var acc openai.ChatCompletionAccumulator

	for strm.Next() {
		if err := ctx.Err(); err != nil {
			return
		}

		if !notFirst {
			notFirst = true
			events <- provider.Delim{RunID: params.RunID, Delim: "start"}
		}

		chunk := strm.Current()
		if strm.Err() != nil {
			events <- provider.Error{
				Err:       strm.Err(),
				RunID:     params.RunID,
				Timestamp: strfmt.DateTime(time.Now()),
			}
			return
		}

		acc.AddChunk(chunk)
		for _, event := range chunkToEvents(&chunk, params) {
			events <- event
		}
	}

	if strm.Err() != nil {
		events <- provider.Error{
			Err:       strm.Err(),
			RunID:     params.RunID,
			Timestamp: strfmt.DateTime(time.Now()),
		}
		return
	}

	if notFirst && ctx.Err() == nil {
		events <- provider.Delim{RunID: params.RunID, Delim: "end"}
		events <- completionToEvent(&acc.ChatCompletion, params)
	}
}

func (r *Router) runOnce(ctx context.Context, client *openai.Client, chatParams openai.ChatCompletionNewParams, params *provider.CompletionParams, events chan<- provider.StreamEvent) {
	chat, err := client.Chat.Completions.New(ctx, chatParams)
	if err != nil {
		events <- provider.Error{
			Err:       err,
			RunID:     params.RunID,
			Timestamp: strfmt.DateTime(time.Now()),
		}
		return
	}

	events <- completionToEvent(chat, params)
}

// callID derives a deterministic tool-call ID for legacy function messages,
// which carry only the function name.
func callID(name string) string {
	return "call_" + name
}

func buildRequest(model string, params *provider.CompletionParams) (openai.ChatCompletionNewParams, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(params.Messages))
	for _, m := range params.Messages {
		switch m.Role {
		case provider.System:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case provider.User:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case provider.Assistant:
			if m.FunctionCall == nil {
				msgs = append(msgs, openai.AssistantMessage(m.Content))
				continue
			}
			tcd := []openai.ChatCompletionMessageToolCallParam{
				{
					ID:   openai.String(callID(m.FunctionCall.Name)),
					Type: openai.F(openai.ChatCompletionMessageToolCallTypeFunction),
					Function: openai.F(openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      openai.String(m.FunctionCall.Name),
						Arguments: openai.String(m.FunctionCall.Arguments),
					}),
				},
			}
			msgs = append(msgs, openai.ChatCompletionMessageParam{
				Role:      openai.F(openai.ChatCompletionMessageParamRoleAssistant),
				ToolCalls: openai.F[any](tcd),
			})
		case provider.Function:
			msgs = append(msgs, openai.ToolMessage(callID(m.Name), m.Content))
		}
	}

	tools := make([]openai.ChatCompletionToolParam, len(params.Functions))
	for i, fn := range params.Functions {
		if fn.Name == "" {
			return openai.ChatCompletionNewParams{}, fmt.Errorf("function at index %d has no name", i)
		}

		def := openai.FunctionDefinitionParam{
			Name: openai.String(fn.Name),
		}
		if strings.TrimSpace(fn.Description) != "" {
			def.Description = openai.String(fn.Description)
		}
		if fn.Parameters != nil {
			jv, err := jsonx.ToDynamicJSON(fn.Parameters)
			if err != nil {
				return openai.ChatCompletionNewParams{}, fmt.Errorf("failed to convert parameters of function %s: %w", fn.Name, err)
			}
			def.Parameters = openai.F(shared.FunctionParameters(jv))
		}

		tools[i] = openai.ChatCompletionToolParam{
			Type:     openai.F(openai.ChatCompletionToolTypeFunction),
			Function: openai.F(def),
		}
	}

	n := params.N
	if n < 1 {
		n = 1
	}

	oaiParams := openai.ChatCompletionNewParams{
		Messages: openai.F(msgs),
		Model:    openai.F(model),
		N:        openai.Int(n),
	}
	if params.MaxTokens != nil {
		oaiParams.MaxTokens = openai.Int(*params.MaxTokens)
	}
	if params.Temperature != nil {
		oaiParams.Temperature = openai.Float(*params.Temperature)
	}
	if params.TopP != nil {
		oaiParams.TopP = openai.Float(*params.TopP)
	}
	if params.PresencePenalty != nil {
		oaiParams.PresencePenalty = openai.Float(*params.PresencePenalty)
	}
	if params.FrequencyPenalty != nil {
		oaiParams.FrequencyPenalty = openai.Float(*params.FrequencyPenalty)
	}
	if len(params.Stop) > 0 {
		oaiParams.Stop = openai.F[openai.ChatCompletionNewParamsStopUnion](
			openai.ChatCompletionNewParamsStopArray(params.Stop),
		)
	}
	if len(tools) > 0 {
		oaiParams.Tools = openai.F(tools)
	}

	return oaiParams, nil
}

func chunkToEvents(chunk *openai.ChatCompletionChunk, params *provider.CompletionParams) []provider.StreamEvent {
	if len(chunk.Choices) == 0 {
		return nil
	}

	events := make([]provider.StreamEvent, 0, len(chunk.Choices))
	for _, choice := range chunk.Choices {
		delta := choice.Delta
		if len(delta.ToolCalls) > 0 {
			tc := delta.ToolCalls[0]
			events = append(events, provider.Chunk{
				RunID: params.RunID,
				Index: choice.Index,
				FunctionCall: &provider.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
				Timestamp: strfmt.DateTime(time.Now()),
			})
			continue
		}
		if delta.Content == "" {
			continue
		}
		events = append(events, provider.Chunk{
			RunID:     params.RunID,
			Index:     choice.Index,
			Content:   delta.Content,
			Timestamp: strfmt.DateTime(time.Now()),
		})
	}
	return events
}

func completionToEvent(chat *openai.ChatCompletion, params *provider.CompletionParams) provider.StreamEvent {
	if len(chat.Choices) == 0 {
		return provider.Delim{RunID: params.RunID, Delim: "empty"}
	}

	choices := make([]provider.Choice, len(chat.Choices))
	for i, choice := range chat.Choices {
		out := provider.Choice{
			Index:        choice.Index,
			Content:      choice.Message.Content,
			FinishReason: string(choice.FinishReason),
		}
		if len(choice.Message.ToolCalls) > 0 {
			tc := choice.Message.ToolCalls[0]
			out.Content = ""
			out.FunctionCall = &provider.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
		}
		choices[i] = out
	}

	return provider.Response{
		RunID:   params.RunID,
		ID:      chat.ID,
		Model:   chat.Model,
		Choices: choices,
		Usage: provider.Usage{
			PromptTokens:     chat.Usage.PromptTokens,
			CompletionTokens: chat.Usage.CompletionTokens,
			TotalTokens:      chat.Usage.TotalTokens,
		},
		Timestamp: strfmt.DateTime(time.Now()),
	}
}
