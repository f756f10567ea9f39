// Package fetch implements the harvester's GET-only, 200-only HTTP client
// with transparent gzip/brotli response decoding (SPEC_FULL.md §6).
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Client fetches pages over HTTP GET, attaching a fixed set of default
// headers (sourced from the label map's optional `headers` block) to every
// request.
type Client struct {
	http           *http.Client
	defaultHeaders map[string]string
}

// New constructs a Client. defaultHeaders is applied to every outgoing
// request and may be nil.
func New(defaultHeaders map[string]string, timeout time.Duration) *Client {
	return &Client{
		http:           &http.Client{Timeout: timeout},
		defaultHeaders: defaultHeaders,
	}
}

// Get fetches url, returning the decoded response body. Any status other
// than 200 is an error, matching the original's bail!("Received status
// code: {}", resp.status()).
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: building request for %s: %w", url, err)
	}
	for name, value := range c.defaultHeaders {
		req.Header.Set(name, value)
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, br")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("Received status code: %d", resp.StatusCode)
	}

	reader, err := decodeBody(resp)
	if err != nil {
		return nil, fmt.Errorf("fetch: decoding response from %s: %w", url, err)
	}
	if closer, ok := reader.(io.Closer); ok {
		defer closer.Close()
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("fetch: reading response body from %s: %w", url, err)
	}
	return body, nil
}

func decodeBody(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}
