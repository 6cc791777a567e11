// Package upstream calls third-party HTTP APIs under an explicit deadline and
// reports failures as typed errors (timeout, HTTP status, malformed body).
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/vitrine/internal/platform/metrics"
	"github.com/louisbranch/vitrine/internal/platform/timeouts"
)

const (
	defaultMaxBody   = 1 << 20
	defaultUserAgent = "vitrine-site/1.0"
)

// Client issues JSON requests to one upstream service.
type Client struct {
	service string
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	maxBody int64
	header  http.Header
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxBody caps how many response bytes are read.
func WithMaxBody(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" && strings.TrimSpace(value) != "" {
			c.header.Set(key, value)
		}
	}
}

// WithBearerToken authenticates every request with token.
func WithBearerToken(token string) Option {
	token = strings.TrimSpace(token)
	if token == "" {
		return func(*Client) {}
	}
	return WithHeader("Authorization", "Bearer "+token)
}

// WithLogger sets the logger used for upstream failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records call outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New builds a client for service rooted at baseURL.
func New(service, baseURL string, opts ...Option) (*Client, error) {
	service = strings.TrimSpace(service)
	if service == "" {
		return nil, fmt.Errorf("upstream service name is required")
	}
	raw := strings.TrimSpace(baseURL)
	if raw == "" {
		return nil, fmt.Errorf("%s base URL is required", service)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%s base URL %q is invalid", service, raw)
	}
	c := &Client{
		service: service,
		baseURL: parsed,
		http:    &http.Client{},
		timeout: timeouts.Upstream,
		maxBody: defaultMaxBody,
		header:  http.Header{},
		logger:  slog.Default(),
		tracer:  otel.Tracer("github.com/louisbranch/vitrine/internal/platform/upstream"),
	}
	c.header.Set("User-Agent", defaultUserAgent)
	c.header.Set("Accept", "application/json")
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Service returns the upstream name used in errors and metrics.
func (c *Client) Service() string {
	return c.service
}

// Request describes one upstream call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	// Body is JSON-encoded when non-nil.
	Body any
}

// Do performs req and decodes a 2xx JSON response into out (when non-nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := c.tracer.Start(ctx, c.service+" "+method, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	err := c.do(callCtx, ctx, method, req, out)
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(
		attribute.String("upstream.service", c.service),
		attribute.String("upstream.outcome", outcome),
	)
	c.metrics.ObserveUpstream(c.service, outcome, time.Since(started))
	return err
}

func (c *Client) do(callCtx, parentCtx context.Context, method string, req Request, out any) error {
	endpoint := c.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		endpoint.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.service, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.service, err)
	}
	for key, values := range c.header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	for key, values := range req.Header {
		httpReq.Header.Del(key)
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return c.classify(callCtx, parentCtx, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return c.classify(callCtx, parentCtx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		upErr := &Error{
			Service:    c.service,
			Kind:       KindHTTP,
			StatusCode: resp.StatusCode,
			Snippet:    snippet(payload),
		}
		c.logger.WarnContext(parentCtx, "upstream returned error status",
			"service", c.service,
			"status", resp.StatusCode,
			"body_snippet", upErr.Snippet,
		)
		return upErr
	}

	if int64(len(payload)) > c.maxBody {
		return c.malformed(parentCtx, fmt.Errorf("response exceeds %d bytes", c.maxBody), nil)
	}
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return c.malformed(parentCtx, errors.New("empty body"), nil)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return c.malformed(parentCtx, err, payload)
	}
	return nil
}

func (c *Client) classify(callCtx, parentCtx context.Context, err error) error {
	kind := KindTransport
	var netErr net.Error
	switch {
	case errors.Is(parentCtx.Err(), context.Canceled):
		kind = KindCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(callCtx.Err(), context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	upErr := &Error{Service: c.service, Kind: kind, Err: err}
	if kind != KindCanceled {
		c.logger.WarnContext(parentCtx, "upstream call failed",
			"service", c.service,
			"kind", string(kind),
			"error", err.Error(),
		)
	}
	return upErr
}

func (c *Client) malformed(ctx context.Context, cause error, body []byte) error {
	upErr := &Error{Service: c.service, Kind: KindMalformed, Snippet: snippet(body), Err: cause}
	c.logger.WarnContext(ctx, "upstream returned malformed body",
		"service", c.service,
		"error", cause.Error(),
		"body_snippet", upErr.Snippet,
	)
	return upErr
}
