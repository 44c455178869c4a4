package solar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Version is sent in the User-Agent header; overridden by the CLI.
var Version = "1.0.0"

// MaxBodySize caps a single response body.
const MaxBodySize = 64 << 20

// Client performs the read-only GETs for every adapter.
type Client struct {
	HTTP      *http.Client
	UserAgent string

	// MaxBody caps the body size; zero means MaxBodySize.
	MaxBody int64

	// OnBytes, if set, is called with the size of every body read.
	OnBytes func(n int64)
}

// NewClient returns a client whose requests are bounded by timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		HTTP:      &http.Client{Timeout: timeout},
		UserAgent: "swx-archive/" + Version,
	}
}

// Get fetches url and returns the body. Non-200 answers are *HTTPError.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, URL: url}
	}

	limit := c.MaxBody
	if limit <= 0 {
		limit = MaxBodySize
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrTooLarge, limit)
	}
	if c.OnBytes != nil {
		c.OnBytes(int64(len(body)))
	}
	return body, nil
}
