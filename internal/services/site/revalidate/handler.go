// Package revalidate serves the webhook the CMS calls after publishing so
// cached listings and posts are rebuilt on the next request.
package revalidate

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/louisbranch/vitrine/internal/platform/metrics"
	"github.com/louisbranch/vitrine/internal/services/site/platform/httpx"
)

// Route is the webhook path.
const Route = "/api/revalidate"

// BlogPath is the listing path invalidated on every accepted request.
const BlogPath = "/blog"

const maxBodyBytes = 64 << 10

// Invalidator marks cached content stale.
type Invalidator interface {
	InvalidateTag(ctx context.Context, tag string) error
	InvalidatePath(ctx context.Context, path string) error
}

// Payload is the webhook body. Both lists are optional.
type Payload struct {
	Slugs []string `json:"slugs,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

type response struct {
	OK bool  `json:"ok"`
	TS int64 `json:"ts,omitempty"`
}

// Handler handles the revalidation webhook.
type Handler struct {
	logger      *slog.Logger
	invalidator Invalidator
	metrics     *metrics.Metrics
	secret      []byte
	now         func() time.Time
}

// New creates a revalidation Handler. An empty secret rejects every request.
func New(invalidator Invalidator, secret string, logger *slog.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		logger:      logger,
		invalidator: invalidator,
		metrics:     m,
		secret:      []byte(strings.TrimSpace(secret)),
		now:         time.Now,
	}
}

// Register registers the webhook route with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post(Route, h.handleRevalidate)
}

func (h *Handler) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("github.com/louisbranch/vitrine/internal/services/site/revalidate").Start(r.Context(), "revalidate")
	defer span.End()
	requestID := httpx.GetRequestID(ctx)

	if len(h.secret) == 0 {
		h.logger.ErrorContext(ctx, "revalidate secret is not configured; rejecting request",
			"request_id", requestID,
		)
		h.metrics.ObserveRevalidate("unauthorized")
		span.SetStatus(codes.Error, "secret not configured")
		httpx.WriteJSON(w, http.StatusUnauthorized, response{OK: false})
		return
	}
	if !h.authorized(r.URL.Query().Get("secret")) {
		h.logger.WarnContext(ctx, "revalidate rejected: bad secret",
			"request_id", requestID,
		)
		h.metrics.ObserveRevalidate("unauthorized")
		span.SetStatus(codes.Error, "unauthorized")
		httpx.WriteJSON(w, http.StatusUnauthorized, response{OK: false})
		return
	}

	var payload Payload
	if err := httpx.DecodeJSON(r, maxBodyBytes, &payload); err != nil {
		payload = Payload{}
	}
	tags := Clean(payload.Tags)
	slugs := Clean(payload.Slugs)
	span.SetAttributes(
		attribute.StringSlice("revalidate.tags", tags),
		attribute.StringSlice("revalidate.slugs", slugs),
	)

	if err := h.apply(ctx, tags, slugs); err != nil {
		h.logger.ErrorContext(ctx, "revalidate failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		h.metrics.ObserveRevalidate("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalidation failed")
		httpx.WriteJSON(w, http.StatusInternalServerError, response{OK: false})
		return
	}

	h.logger.InfoContext(ctx, "revalidated",
		"request_id", requestID,
		"tags", tags,
		"slugs", slugs,
	)
	h.metrics.ObserveRevalidate("ok")
	httpx.WriteJSON(w, http.StatusOK, response{OK: true, TS: h.now().UnixMilli()})
}

func (h *Handler) apply(ctx context.Context, tags, slugs []string) error {
	for _, tag := range tags {
		if err := h.invalidator.InvalidateTag(ctx, tag); err != nil {
			return err
		}
	}
	for _, slug := range slugs {
		if err := h.invalidator.InvalidatePath(ctx, PostPath(slug)); err != nil {
			return err
		}
	}
	return h.invalidator.InvalidatePath(ctx, BlogPath)
}

func (h *Handler) authorized(candidate string) bool {
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), h.secret) == 1
}

// PostPath is the page path of the post with slug.
func PostPath(slug string) string {
	return BlogPath + "/" + strings.Trim(slug, "/")
}

// Clean trims values, drops blanks and duplicates, keeping first-seen order.
func Clean(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
