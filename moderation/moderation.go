// Package moderation screens text through a content-policy model before and
// after completion calls. It reports a flagged verdict plus the category
// names that tripped, so callers can surface a meaningful rejection.
package moderation

import (
	"context"
	"fmt"
	"sort"

	"github.com/dockhand/relay/pkg/jsonx"
	"github.com/fogfish/opts"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"
)

// Screener yields a moderation verdict for a piece of text.
type Screener interface {
	Screen(ctx context.Context, text string) (Result, error)
}

// Result is a moderation verdict.
type Result struct {
	Flagged    bool
	Categories []string
}

// Client implements Screener over the moderation endpoint.
type Client struct {
	client *openai.Client
	model  string
	log    zerolog.Logger

	reqOpts []option.RequestOption
}

var _ Screener = (*Client)(nil)

// WithModel overrides the moderation model.
func WithModel(model string) opts.Option[Client] {
	return opts.Type[Client](func(c *Client) error {
		c.model = model
		return nil
	})
}

// WithRequestOptions appends SDK request options (credentials, base URL).
func WithRequestOptions(reqOpts ...option.RequestOption) opts.Option[Client] {
	return opts.Type[Client](func(c *Client) error {
		c.reqOpts = append(c.reqOpts, reqOpts...)
		return nil
	})
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) opts.Option[Client] {
	return opts.Type[Client](func(c *Client) error {
		c.log = log
		return nil
	})
}

// New builds a moderation client.
func New(options ...opts.Option[Client]) (*Client, error) {
	c := &Client{log: zerolog.Nop()}
	if err := opts.Apply(c, options); err != nil {
		return nil, err
	}
	c.client = openai.NewClient(c.reqOpts...)
	return c, nil
}

// Screen implements Screener. Empty text is never flagged.
func (c *Client) Screen(ctx context.Context, text string) (Result, error) {
	if text == "" {
		return Result{}, nil
	}

	body := openai.ModerationNewParams{
		Input: openai.F[openai.ModerationNewParamsInputUnion](shared.UnionString(text)),
	}
	if c.model != "" {
		body.Model = openai.F(openai.ModerationModel(c.model))
	}

	resp, err := c.client.Moderations.New(ctx, body)
	if err != nil {
		return Result{}, fmt.Errorf("moderation request failed: %w", err)
	}

	result := Result{}
	for _, mod := range resp.Results {
		if !mod.Flagged {
			continue
		}
		result.Flagged = true
		categories, err := jsonx.ToDynamicJSON(mod.Categories)
		if err != nil {
			continue
		}
		for name, v := range categories {
			if b, ok := v.(bool); ok && b {
				result.Categories = append(result.Categories, name)
			}
		}
	}
	sort.Strings(result.Categories)

	if result.Flagged {
		c.log.Debug().Strs("categories", result.Categories).Msg("moderation flagged input")
	}
	return result, nil
}
