// Package fetch is the outbound HTTP client. Requests are paced by a fixed
// minimum interval shared across all calls made through one Client.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/guokai8/pathwaydb/internal/apperrors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Fetcher opens remote resources. Implemented by *Client; tests substitute
// their own.
type Fetcher interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
	Get(ctx context.Context, url string) ([]byte, error)
}

const (
	DefaultTimeout     = 5 * time.Minute
	DefaultMinInterval = time.Second / 3
	DefaultUserAgent   = "pathwaydb/0.1"
)

// Options configures a Client. Zero values select the defaults.
type Options struct {
	Timeout     time.Duration
	MinInterval time.Duration
	UserAgent   string
	Logger      *zap.Logger
	Transport   http.RoundTripper
}

// Client is a paced HTTP GET client.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	log       *zap.Logger
}

// New builds a Client.
func New(o Options) *Client {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MinInterval <= 0 {
		o.MinInterval = DefaultMinInterval
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Client{
		http:      &http.Client{Timeout: o.Timeout, Transport: o.Transport},
		limiter:   rate.NewLimiter(rate.Every(o.MinInterval), 1),
		userAgent: o.UserAgent,
		log:       o.Logger,
	}
}

// Open issues a GET and returns the response body for streaming. The caller
// must close it.
func (c *Client) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.New("fetch", apperrors.ErrNetwork, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.New("fetch", apperrors.ErrConfiguration, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.New("fetch", apperrors.ErrNetwork, fmt.Errorf("GET %s: %w", url, err))
	}
	c.log.Debug("http get", zap.String("url", url), zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, apperrors.Newf("fetch", apperrors.ErrNotFound, "GET %s: %s", url, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_ = resp.Body.Close()
		return nil, apperrors.Newf("fetch", apperrors.ErrNetwork, "GET %s: %s", url, resp.Status)
	}
	return resp.Body, nil
}

// Get returns the full response body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	body, err := c.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, apperrors.New("fetch", apperrors.ErrNetwork, fmt.Errorf("read %s: %w", url, err))
	}
	return b, nil
}

var _ Fetcher = (*Client)(nil)
