package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mla-quiz/medref/internal/models"
)

// ErrOffline wraps every transport-level failure reaching the upstream
var ErrOffline = errors.New("upstream unreachable")

// Request is an intercepted page request, detached from the inbound connection
type Request struct {
	Method   string
	URL      string // path plus query, e.g. /api/quiz/Cardiology?x=1
	Header   http.Header
	Body     []byte
	Navigate bool
}

// Key is the request identity used for cache lookups
func (r *Request) Key() string {
	return r.Method + " " + r.URL
}

// Path returns the URL without its query string
func (r *Request) Path() string {
	if i := strings.IndexByte(r.URL, '?'); i >= 0 {
		return r.URL[:i]
	}
	return r.URL
}

// IsNavigation reports whether an inbound request is a page navigation
func IsNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// Network performs upstream requests
type Network interface {
	Fetch(ctx context.Context, req *Request) (*models.CachedResponse, error)
}

// Prober checks upstream reachability
type Prober interface {
	Ping(ctx context.Context) error
}

// UpstreamClient talks to the quiz server the gateway fronts
type UpstreamClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewUpstreamClient creates a new upstream client
func NewUpstreamClient(baseURL string, timeout time.Duration) *UpstreamClient {
	return &UpstreamClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// hop-by-hop headers are not forwarded
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade", "Content-Length",
}

// Fetch forwards the request upstream and buffers the whole response.
// Any transport failure is reported as ErrOffline; HTTP error statuses are not errors.
func (c *UpstreamClient) Fetch(ctx context.Context, req *Request) (*models.CachedResponse, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	for _, h := range hopHeaders {
		httpReq.Header.Del(h)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOffline, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrOffline, err)
	}

	header := resp.Header.Clone()
	for _, h := range hopHeaders {
		header.Del(h)
	}

	return &models.CachedResponse{
		Status: resp.StatusCode,
		Header: header,
		Body:   data,
	}, nil
}

// Ping issues a HEAD request against the upstream root
func (c *UpstreamClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOffline, err)
	}
	resp.Body.Close()
	return nil
}
