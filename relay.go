package relay

import (
	"github.com/dockhand/relay/blocks"
	"github.com/dockhand/relay/moderation"
	"github.com/dockhand/relay/platform"
	"github.com/dockhand/relay/plugin"
	"github.com/dockhand/relay/provider"
	"github.com/dockhand/relay/provider/router"
	"github.com/fogfish/opts"
	"github.com/go-openapi/swag"
	"github.com/rs/zerolog"
)

// Resolver reports how a model call will be credentialed before it is made.
// *router.Router satisfies this.
type Resolver interface {
	Resolve(model string) (router.Resolution, error)
}

// Generator is the chat-completion plugin. Construct one with New; the
// zero value is not usable.
type Generator struct {
	model   string
	samples int64

	maxTokens        *int64
	temperature      *float64
	topP             *float64
	presencePenalty  *float64
	frequencyPenalty *float64

	defaultSystemPrompt string
	moderateOutput      bool

	env       router.Environment
	completer provider.Completer
	resolver  Resolver
	moderator moderation.Screener
	storage   *platform.Client
	log       zerolog.Logger
}

// WithModel sets the default model. Callers can override it per request.
func WithModel(model string) opts.Option[Generator] {
	return opts.Type[Generator](func(g *Generator) error {
		g.model = model
		return nil
	})
}

// WithSamples sets the default number of completions to sample per call.
func WithSamples(n int64) opts.Option[Generator] {
	return opts.Type[Generator](func(g *Generator) error {
		g.samples = n
		return nil
	})
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int64) opts.Option[Generator] {
	return opts.Type[Generator](func(g *Generator) error {
		g.maxTokens = swag.Int64(n)
		return nil
	})
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) opts.Option[Generator] {
	return opts.Type[Generator](func(g *Generator) error {
		g.temperature = swag.Float64(t)
		return nil
	})
}

// WithTopP sets nucleus sampling.
func WithTopP(p float64) opts.Option[Generator] {
	return opts.Type[Generator](func(g *Generator) error {
		g.topP = swag.Float64(p)
		return nil
	})
}

// WithPenalties sets the presence and frequency penalties.
func WithPenalties(presence, frequency float64) opts.Option[Generator] {
	return opts.Type[Generator](func(g *Generator) error {
		g.presencePenalty = swag.Float64(presence)
		g.frequencyPenalty = swag.Float64(frequency)
		return nil
	})
}

// WithDefaultSystemPrompt prepends a system message whenever the
// conversation does not open with one.
func WithDefaultSystemPrompt(prompt string) opts.Option[Generator] {
	return opts.Type[Generator](func(g *Generator) error {
		g.defaultSystemPrompt = prompt
		return nil
	})
}

// WithModerateOutput toggles screening of generated content, on by default.
// Flagged output aborts the streamed blocks.
func WithModerateOutput(enabled bool) opts.Option[Generator] {
	return opts.Type[Generator](func(g *Generator) error {
		g.moderateOutput = enabled
		return nil
	})
}

// WithEnvironment parses and pins the credential overrides. Invalid keys
// fail construction; the environment cannot change per call afterwards.
func WithEnvironment(env string) opts.Option[Generator] {
	return opts.Type[Generator](func(g *Generator) error {
		parsed, err := router.ParseEnvironment(env)
		if err != nil {
			return err
		}
		g.env = parsed
		return nil
	})
}

// WithStorage attaches the host block storage client.
func WithStorage(client *platform.Client) opts.Option[Generator] {
	return opts.Type[Generator](func(g *Generator) error {
		g.storage = client
		return nil
	})
}

// WithCompleter overrides the completion backend. Without it the generator
// builds a router over the configured environment and process-env fallback.
func WithCompleter(c provider.Completer) opts.Option[Generator] {
	return opts.Type[Generator](func(g *Generator) error {
		g.completer = c
		return nil
	})
}

// WithResolver overrides the billing resolver.
func WithResolver(r Resolver) opts.Option[Generator] {
	return opts.Type[Generator](func(g *Generator) error {
		g.resolver = r
		return nil
	})
}

// WithModerator attaches a content screener. Without one, input is not
// moderated.
func WithModerator(m moderation.Screener) opts.Option[Generator] {
	return opts.Type[Generator](func(g *Generator) error {
		g.moderator = m
		return nil
	})
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) opts.Option[Generator] {
	return opts.Type[Generator](func(g *Generator) error {
		g.log = log
		return nil
	})
}

// New builds a Generator.
func New(options ...opts.Option[Generator]) (*Generator, error) {
	g := &Generator{
		model:          router.DefaultModel,
		samples:        1,
		moderateOutput: true,
		log:            zerolog.Nop(),
	}
	if err := opts.Apply(g, options); err != nil {
		return nil, err
	}

	if g.completer == nil {
		rt, err := router.New(
			router.WithEnvironment(g.env),
			router.WithFallback(router.FallbackFromProcessEnv()),
			router.WithLogger(g.log),
		)
		if err != nil {
			return nil, err
		}
		g.completer = rt
	}
	if g.resolver == nil {
		if r, ok := g.completer.(Resolver); ok {
			g.resolver = r
		}
	}
	return g, nil
}

// DetermineOutputBlockTypes declares the MIME types of the blocks the host
// must pre-allocate before Run: one text block per sampled completion.
func (g *Generator) DetermineOutputBlockTypes(req plugin.Request[plugin.RawBlockAndTagInput]) (plugin.Response[plugin.BlockTypeOutput], error) {
	if err := validateOptions(req.Data.Options); err != nil {
		return plugin.Response[plugin.BlockTypeOutput]{}, err
	}

	n := req.Data.Options.Samples(g.samples)
	types := make([]string, n)
	for i := range types {
		types[i] = blocks.MimeText
	}
	return plugin.Response[plugin.BlockTypeOutput]{
		Data: plugin.BlockTypeOutput{BlockTypesToCreate: types},
	}, nil
}

// validateOptions rejects per-call settings that would change construction
// state.
func validateOptions(o plugin.CallOptions) error {
	if o.Environment != nil {
		return plugin.NewError(plugin.CodeInvalidRequest,
			"Configured environment may not be overridden in options")
	}
	return nil
}
