// Package fetch downloads FPL API documents into the snapshot store.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"fpl-squad-mcp/internal/store"
)

type Client struct {
	HTTP         *http.Client
	Store        *store.JSONStore
	BaseURL      string
	UserAgent    string
	Sleep        time.Duration
	PrettyWrite  bool
	UseCache     bool
	DisableWrite bool
	// MaxRetryAfter caps how long a 429 response may make us wait.
	MaxRetryAfter time.Duration
	Log           *zap.Logger
}

func NewClient(st *store.JSONStore) *Client {
	return &Client{
		HTTP:          &http.Client{Timeout: 20 * time.Second},
		Store:         st,
		BaseURL:       "https://fantasy.premierleague.com/api",
		UserAgent:     "fpl-squad-mcp/1.0",
		Sleep:         100 * time.Millisecond,
		PrettyWrite:   true,
		UseCache:      true,
		MaxRetryAfter: time.Minute,
		Log:           zap.NewNop(),
	}
}

// FetchRaw downloads urlPath (like "/bootstrap-static/") and writes it to
// relPath. Returns raw bytes (from cache or network). A 429 is retried once
// after Retry-After.
func (c *Client) FetchRaw(ctx context.Context, urlPath string, relPath string, force bool) ([]byte, error) {
	if !force && c.UseCache && c.Store.Exists(relPath) {
		return c.Store.ReadRaw(relPath)
	}

	if err := c.wait(ctx, c.Sleep); err != nil {
		return nil, err
	}
	status, body, retryAfter, err := c.get(ctx, urlPath)
	if err != nil {
		return nil, err
	}
	if status == http.StatusTooManyRequests {
		c.Log.Warn("rate limited", zap.String("path", urlPath), zap.Duration("retry_after", retryAfter))
		if err := c.wait(ctx, retryAfter); err != nil {
			return nil, err
		}
		if status, body, _, err = c.get(ctx, urlPath); err != nil {
			return nil, err
		}
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("GET %s failed: %d body=%s", urlPath, status, string(body))
	}
	c.Log.Debug("fetched", zap.String("path", urlPath), zap.Int("bytes", len(body)))

	if !c.DisableWrite {
		if err := c.Store.WriteRaw(relPath, body, c.PrettyWrite); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, urlPath string) (int, []byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+urlPath, nil)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, 0, err
	}
	retry := time.Duration(0)
	if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
		retry = time.Duration(s) * time.Second
	}
	if retry > c.MaxRetryAfter {
		retry = c.MaxRetryAfter
	}
	return resp.StatusCode, body, retry, nil
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
