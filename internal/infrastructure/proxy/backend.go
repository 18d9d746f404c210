// Package proxy forwards intercepted requests to the metered backend API
// unchanged and exposes the read path the gateway uses to capture composite
// resources before a cascading delete.
package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/cloudmeter/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Backend proxies requests to the cloud API being metered
type Backend struct {
	target *url.URL
	proxy  *httputil.ReverseProxy
	client *http.Client
	logger *zap.Logger
}

// NewBackend creates a reverse proxy to the backend base URL
func NewBackend(rawURL string, timeout time.Duration, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL %q: %w", rawURL, err)
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	rp := httputil.NewSingleHostReverseProxy(target)
	rp.Transport = &http.Transport{
		ResponseHeaderTimeout: timeout,
	}
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("backend forward failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("backend unavailable"))
	}

	return &Backend{
		target: target,
		proxy:  rp,
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("proxy"),
	}, nil
}

// Handler serves the intercepted request by forwarding it verbatim.
// The enforcement middleware runs before this and reads the response through
// its capture writer.
func (b *Backend) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		b.proxy.ServeHTTP(c.Writer, c.Request)
	}
}

// Fetch reads a backend resource by path, passing the caller's headers
// through so the backend applies the same authorization it would to the
// original request. Used to capture a composite's children before a delete.
func (b *Backend) Fetch(ctx context.Context, path string, header http.Header) ([]byte, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed backend path %q", shared.ErrServiceError, path)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.target.ResolveReference(rel).String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building backend fetch: %v", shared.ErrServiceError, err)
	}
	req.Header = header.Clone()

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: backend fetch failed: %v", shared.ErrServiceError, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: backend resource %s", shared.ErrNotFound, path)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: backend fetch returned %d", shared.ErrServiceError, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
