package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dockhand/relay/blocks"
	"github.com/dockhand/relay/plugin"
	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const maxBodySize = 8 << 20

// Client talks to the host platform's storage API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// WithAPIKey sets the bearer token used for every request.
func WithAPIKey(key string) opts.Option[Client] {
	return opts.Type[Client](func(c *Client) error {
		c.apiKey = key
		return nil
	})
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) opts.Option[Client] {
	return opts.Type[Client](func(c *Client) error {
		if hc != nil {
			c.httpClient = hc
		}
		return nil
	})
}

// WithLogger attaches a logger. Requests are logged at debug level.
func WithLogger(log zerolog.Logger) opts.Option[Client] {
	return opts.Type[Client](func(c *Client) error {
		c.log = log
		return nil
	})
}

// New builds a storage client for the given API base URL.
func New(baseURL string, options ...opts.Option[Client]) (*Client, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("platform: invalid base URL %q", baseURL)
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        zerolog.Nop(),
	}
	if err := opts.Apply(c, options); err != nil {
		return nil, err
	}
	return c, nil
}

// File is a host-owned container of blocks.
type File struct {
	ID     string         `json:"id"`
	Blocks []blocks.Block `json:"blocks,omitempty"`
}

// CreateFile creates a file holding the given blocks.
func (c *Client) CreateFile(ctx context.Context, bs []blocks.Block) (*File, error) {
	var out struct {
		File File `json:"file"`
	}
	payload := map[string]any{"blocks": bs}
	if err := c.post(ctx, "/file/create", payload, &out); err != nil {
		return nil, err
	}
	return &out.File, nil
}

// GetFile fetches a file, including its current blocks.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	var out struct {
		File File `json:"file"`
	}
	if err := c.post(ctx, "/file/get", map[string]any{"fileId": fileID}, &out); err != nil {
		return nil, err
	}
	return &out.File, nil
}

// GetBlock fetches a single block's metadata.
func (c *Client) GetBlock(ctx context.Context, blockID string) (*blocks.Block, error) {
	var out struct {
		Block blocks.Block `json:"block"`
	}
	if err := c.post(ctx, "/block/get", map[string]any{"id": blockID}, &out); err != nil {
		return nil, err
	}
	return &out.Block, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("platform: encode %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("platform: build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.log.Debug().Str("path", path).Msg("platform request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return plugin.AsError(plugin.CodeStorage, fmt.Errorf("platform: %s: %w", path, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return plugin.AsError(plugin.CodeStorage, fmt.Errorf("platform: read %s: %w", path, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return plugin.AsError(plugin.CodeStorage, fmt.Errorf("platform: decode %s: %w", path, err))
	}
	return nil
}

// decodeError turns an API error body into the platform error envelope. The
// body may or may not carry the {"error": {...}} wrapper.
func decodeError(status int, data []byte) *plugin.Error {
	pe := &plugin.Error{Code: plugin.CodeStorage, StatusCode: status}

	ev := gjson.GetBytes(data, "error")
	if !ev.Exists() {
		ev = gjson.ParseBytes(data)
	}
	if code := ev.Get("code"); code.Exists() {
		pe.Code = code.String()
	}
	if msg := ev.Get("message"); msg.Exists() {
		pe.Message = msg.String()
	}
	if pe.Message == "" {
		pe.Message = fmt.Sprintf("storage request failed with status %d", status)
	}
	return pe
}
