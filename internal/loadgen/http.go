package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrStatus reports an unexpected HTTP status.
type ErrStatus struct {
	Method string
	URL    string
	Code   int
}

func (e *ErrStatus) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Code)
}

// client wraps http.Client for the campusfeed API.
type client struct {
	http *http.Client
	base string
}

func newClient(base string, timeout time.Duration) *client {
	return &client{http: &http.Client{Timeout: timeout}, base: base}
}

func (c *client) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if out != nil && resp.StatusCode < http.StatusBadRequest {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *client) health(ctx context.Context) error {
	code, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return &ErrStatus{Method: http.MethodGet, URL: c.base + "/healthz", Code: code}
	}
	return nil
}

func (c *client) postChange(ctx context.Context, ch Change) (int, ackResponse, error) {
	var ack ackResponse
	code, err := c.do(ctx, http.MethodPost, "/changes", ch, &ack)
	return code, ack, err
}

func (c *client) feed(ctx context.Context, viewerID string) (int, []FeedPost, error) {
	var posts []FeedPost
	code, err := c.do(ctx, http.MethodGet, "/feed/"+url.PathEscape(viewerID), nil, &posts)
	return code, posts, err
}

func (c *client) explain(ctx context.Context, viewerID, postID string) (int, Explanation, error) {
	var exp Explanation
	path := "/feed/" + url.PathEscape(viewerID) + "/explain/" + url.PathEscape(postID)
	code, err := c.do(ctx, http.MethodGet, path, nil, &exp)
	return code, exp, err
}
