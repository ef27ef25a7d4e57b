package relay

import (
	"context"
	"strings"

	"github.com/dockhand/relay/blocks"
	"github.com/dockhand/relay/plugin"
	"github.com/dockhand/relay/provider"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Run executes one completion call. The conversation arrives as tagged
// blocks; the sampled choices stream into the pre-allocated output blocks,
// and the response envelope carries usage only when the call was billed on
// the plugin's own credentials.
func (g *Generator) Run(ctx context.Context, req plugin.Request[plugin.RawBlockAndTagInputWithBlocks]) (plugin.Response[plugin.RawBlockAndTagOutput], error) {
	var none plugin.Response[plugin.RawBlockAndTagOutput]

	if err := validateOptions(req.Data.Options); err != nil {
		// Blocks were allocated before the request reached us.
		if g.storage != nil {
			g.abortBlocks(ctx, req.Data.OutputBlocks)
		}
		return none, err
	}
	if g.storage == nil {
		return none, plugin.NewError(plugin.CodeConfiguration, "no block storage client configured")
	}

	o := req.Data.Options
	model := o.Model
	if model == "" {
		model = g.model
	}
	n := o.Samples(g.samples)

	outputs := req.Data.OutputBlocks
	if int64(len(outputs)) < n {
		g.abortBlocks(ctx, outputs)
		return none, plugin.Errorf(plugin.CodeInvalidRequest,
			"expected %d pre-allocated output blocks, got %d", n, len(outputs))
	}
	outputs = outputs[:n]

	messages := g.PrepareMessages(req.Data.Blocks)
	if len(messages) == 0 {
		g.abortBlocks(ctx, outputs)
		return none, plugin.NewError(plugin.CodeInvalidRequest,
			"conversation contains no usable prompt blocks")
	}

	if g.moderator != nil {
		if err := g.screen(ctx, joinContents(messages), "input"); err != nil {
			g.abortBlocks(ctx, outputs)
			return none, err
		}
	}

	selfBilled := false
	if g.resolver != nil {
		res, err := g.resolver.Resolve(model)
		if err != nil {
			g.abortBlocks(ctx, outputs)
			return none, err
		}
		selfBilled = res.SelfBilled
	}

	runID := uuid.New()
	params := provider.CompletionParams{
		RunID:            runID,
		Model:            model,
		Messages:         messages,
		N:                n,
		MaxTokens:        coalesce(o.MaxTokens, g.maxTokens),
		Temperature:      coalesce(o.Temperature, g.temperature),
		TopP:             coalesce(o.TopP, g.topP),
		PresencePenalty:  coalesce(o.PresencePenalty, g.presencePenalty),
		FrequencyPenalty: coalesce(o.FrequencyPenalty, g.frequencyPenalty),
		Stop:             []string(o.Stop),
		Functions:        toFunctionDefs(o.Functions),
		Stream:           true,
	}

	events, err := g.completer.Complete(ctx, params)
	if err != nil {
		g.abortBlocks(ctx, outputs)
		return none, err
	}

	final, texts, err := g.consume(ctx, events, outputs)
	if err != nil {
		g.abortBlocks(ctx, outputs)
		return none, err
	}

	if g.moderateOutput && g.moderator != nil {
		if err := g.screen(ctx, strings.Join(texts, "\n\n"), "generated"); err != nil {
			g.abortBlocks(ctx, outputs)
			return none, err
		}
	}

	if err := g.finishBlocks(ctx, outputs); err != nil {
		// A block that failed to finish must not stay in the started
		// state. Aborting blocks that already completed fails harmlessly.
		g.abortBlocks(ctx, outputs)
		return none, err
	}

	out := plugin.RawBlockAndTagOutput{}
	if selfBilled {
		out.Usage = []plugin.UsageReport{
			plugin.RunUnits(final.Usage.TotalTokens, runID.String()),
		}
	}
	g.log.Info().
		Str("run_id", runID.String()).
		Str("model", model).
		Int64("total_tokens", final.Usage.TotalTokens).
		Bool("self_billed", selfBilled).
		Msg("completion finished")
	return plugin.Response[plugin.RawBlockAndTagOutput]{Data: out}, nil
}

// consume drains the event stream, appending content chunks to their output
// blocks as they arrive. It returns the final response and the full text of
// each choice. The channel is always drained so the producer can exit.
func (g *Generator) consume(ctx context.Context, events <-chan provider.StreamEvent, outputs []blocks.Block) (*provider.Response, []string, error) {
	builders := make([]strings.Builder, len(outputs))
	var final *provider.Response
	var runErr error

	for ev := range events {
		if runErr != nil {
			continue
		}
		switch e := ev.(type) {
		case provider.Chunk:
			if e.Content == "" || e.Index < 0 || int(e.Index) >= len(outputs) {
				continue
			}
			builders[e.Index].WriteString(e.Content)
			if err := g.storage.AppendStream(ctx, outputs[e.Index].ID, e.Content); err != nil {
				runErr = err
			}
		case provider.Response:
			final = &e
		case provider.Error:
			runErr = e.Err
		}
	}
	if runErr != nil {
		return nil, nil, runErr
	}
	if final == nil {
		return nil, nil, plugin.NewError(plugin.CodeUpstream,
			"provider closed the stream without a final response")
	}

	// Non-streamed remainders: function selections are delivered whole at
	// the end, and a backend that answered in one piece never sent chunks.
	for _, choice := range final.Choices {
		if choice.Index < 0 || int(choice.Index) >= len(outputs) {
			continue
		}
		var text string
		switch {
		case choice.FunctionCall != nil:
			rendered, err := functionCallText(choice.FunctionCall)
			if err != nil {
				return nil, nil, plugin.AsError(plugin.CodeUpstream, err)
			}
			text = rendered
		case builders[choice.Index].Len() == 0 && choice.Content != "":
			text = choice.Content
		default:
			continue
		}
		builders[choice.Index].WriteString(text)
		if err := g.storage.AppendStream(ctx, outputs[choice.Index].ID, text); err != nil {
			return nil, nil, err
		}
	}

	texts := make([]string, len(builders))
	for i := range builders {
		texts[i] = builders[i].String()
	}
	return final, texts, nil
}

// screen runs text through the moderator and converts a flagged verdict into
// the moderation error the host surfaces to the caller.
func (g *Generator) screen(ctx context.Context, text, subject string) error {
	result, err := g.moderator.Screen(ctx, text)
	if err != nil {
		return plugin.AsError(plugin.CodeUpstream, err)
	}
	if !result.Flagged {
		return nil
	}
	return plugin.Errorf(plugin.CodeModeration,
		"%s content was flagged by the moderation policy: %s",
		subject, strings.Join(result.Categories, ", "))
}

func (g *Generator) finishBlocks(ctx context.Context, outputs []blocks.Block) error {
	var eg errgroup.Group
	for _, b := range outputs {
		eg.Go(func() error {
			return g.storage.FinishStream(ctx, b.ID)
		})
	}
	return eg.Wait()
}

// abortBlocks marks every output block aborted so the host never serves
// partial content. Failures are logged, not returned: the run error that
// caused the abort is the one the caller needs.
func (g *Generator) abortBlocks(ctx context.Context, outputs []blocks.Block) {
	var eg errgroup.Group
	for _, b := range outputs {
		eg.Go(func() error {
			return g.storage.AbortStream(ctx, b.ID)
		})
	}
	if err := eg.Wait(); err != nil {
		g.log.Warn().Err(err).Msg("aborting output blocks")
	}
}

func toFunctionDefs(specs []plugin.FunctionSpec) []provider.FunctionDef {
	if len(specs) == 0 {
		return nil
	}
	defs := make([]provider.FunctionDef, 0, len(specs))
	for _, spec := range specs {
		defs = append(defs, provider.FunctionDef{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Parameters,
		})
	}
	return defs
}

func coalesce[T any](override, def *T) *T {
	if override != nil {
		return override
	}
	return def
}
