package realtime

import (
	"context"
	"io"
	"net/http"
	"time"
)

// ConnectivityChecker decides whether the internet is reachable.
type ConnectivityChecker interface {
	Check(ctx context.Context) bool
}

// ConnectivityFunc adapts a function to ConnectivityChecker.
type ConnectivityFunc func(ctx context.Context) bool

// Check implements ConnectivityChecker.
func (f ConnectivityFunc) Check(ctx context.Context) bool { return f(ctx) }

// HTTPConnectivityChecker fetches a well-known URL and compares the body
// with the expected text.
type HTTPConnectivityChecker struct {
	URL    string
	Body   string
	Client *http.Client
}

// NewHTTPConnectivityChecker creates a checker whose requests time out
// after timeout.
func NewHTTPConnectivityChecker(url, body string, timeout time.Duration) *HTTPConnectivityChecker {
	return &HTTPConnectivityChecker{
		URL:    url,
		Body:   body,
		Client: &http.Client{Timeout: timeout},
	}
}

// Check implements ConnectivityChecker.
func (c *HTTPConnectivityChecker) Check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return false
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	got, err := io.ReadAll(io.LimitReader(resp.Body, int64(len(c.Body))+1))
	if err != nil {
		return false
	}
	return string(got) == c.Body
}
