package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dockhand/relay/blocks"
	"github.com/dockhand/relay/plugin"
	"github.com/go-openapi/swag"
)

// CreateBlock allocates a block on a file. With streaming true the block is
// created in the "started" stream state and content is delivered through
// AppendStream until FinishStream or AbortStream is called.
func (c *Client) CreateBlock(ctx context.Context, fileID, mimeType string, streaming bool) (*blocks.Block, error) {
	payload := struct {
		FileID    string  `json:"fileId"`
		MimeType  *string `json:"mimeType,omitempty"`
		Streaming *bool   `json:"streaming,omitempty"`
	}{
		FileID:    fileID,
		MimeType:  swag.String(mimeType),
		Streaming: swag.Bool(streaming),
	}

	var out struct {
		Block blocks.Block `json:"block"`
	}
	if err := c.post(ctx, "/block/create", payload, &out); err != nil {
		return nil, err
	}
	return &out.Block, nil
}

// AppendStream appends partial text to a started streaming block.
func (c *Client) AppendStream(ctx context.Context, blockID, text string) error {
	payload := map[string]any{"id": blockID, "text": text}
	return c.post(ctx, "/block/stream/append", payload, nil)
}

// FinishStream transitions a streaming block to the complete state.
func (c *Client) FinishStream(ctx context.Context, blockID string) error {
	return c.post(ctx, "/block/stream/complete", map[string]any{"id": blockID}, nil)
}

// AbortStream transitions a streaming block to the aborted state. The host
// rejects reads of aborted blocks.
func (c *Client) AbortStream(ctx context.Context, blockID string) error {
	return c.post(ctx, "/block/stream/abort", map[string]any{"id": blockID}, nil)
}

// BlockText fetches the raw streamed content of a block.
func (c *Client) BlockText(ctx context.Context, blockID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/block/"+blockID+"/raw", nil)
	if err != nil {
		return "", fmt.Errorf("platform: build raw request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", plugin.AsError(plugin.CodeStorage, fmt.Errorf("platform: block raw: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", plugin.AsError(plugin.CodeStorage, fmt.Errorf("platform: read block raw: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeError(resp.StatusCode, data)
	}
	return string(data), nil
}
