// Package stream opens the chat backend's event stream and yields its
// data-bearing records one at a time.
package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/sse"
	"github.com/papercomputeco/chatstream/pkg/utils"
)

const (
	// Path is the backend endpoint serving the chat event stream.
	Path = "/chat_stream"

	errorBodyReadLimit = 4096
	maxErrorBody       = 256
)

// Config configures a Client.
type Config struct {
	// BaseURL is the backend root, e.g. http://localhost:8000.
	BaseURL string

	// HTTPClient overrides the default HTTP client. Streams are long-lived,
	// so the client should not carry a Timeout; use the request context.
	HTTPClient *http.Client

	// Logger defaults to a no-op logger.
	Logger *slog.Logger

	// Tee, when set, receives a verbatim copy of every stream.
	Tee io.Writer
}

// Request is one user turn sent to the backend.
type Request struct {
	Message      string
	CheckpointID string
}

// Client opens chat streams against a single backend.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	tee        io.Writer
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNoBaseURL
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must use http or https", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base URL %q has no host", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		base:       base,
		httpClient: httpClient,
		logger:     log,
		tee:        cfg.Tee,
	}, nil
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// URL returns the full stream URL for req.
func (c *Client) URL(req Request) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + Path

	q := url.Values{}
	q.Set("message", req.Message)
	if req.CheckpointID != "" {
		q.Set("checkpoint_id", req.CheckpointID)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// Open issues the streaming GET for req. The returned Stream must be closed.
// Cancelling ctx aborts both the request and any pending Stream.Next.
func (c *Client) Open(ctx context.Context, req Request) (*Stream, error) {
	target := c.URL(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("opening chat stream",
		"base_url", c.base.String(),
		"has_checkpoint", req.CheckpointID != "",
		"message_len", len(req.Message),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		_ = resp.Body.Close()
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       utils.Truncate(strings.TrimSpace(string(body)), maxErrorBody),
		}
	}

	c.logger.Debug("chat stream opened",
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
	)

	return &Stream{
		body:   resp.Body,
		reader: sse.NewTeeReader(resp.Body, c.tee),
		logger: c.logger,
	}, nil
}
