package reviews

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/louisbranch/vitrine/internal/services/site/platform/errors"
	"github.com/louisbranch/vitrine/internal/services/site/platform/httpx"
)

// Route is the reviews endpoint.
const Route = "/api/reviews"

// Handler serves the reviews widget data.
type Handler struct {
	logger  *slog.Logger
	service *Service
	locale  func(*http.Request) string
}

// New creates a reviews Handler. locale resolves the request language.
func New(service *Service, locale func(*http.Request) string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if locale == nil {
		locale = func(*http.Request) string { return "" }
	}
	return &Handler{logger: logger, service: service, locale: locale}
}

// Register registers the reviews route with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get(Route, h.handleReviews)
}

func (h *Handler) handleReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := h.service.Summary(ctx, h.locale(r))
	if errors.Is(err, ErrNoPlace) {
		httpx.WriteError(w, apperrors.E(apperrors.KindUnavailable, "reviews are not configured"))
		return
	}
	if err != nil {
		h.logger.WarnContext(ctx, "reviews unavailable",
			"request_id", httpx.GetRequestID(ctx),
			"error", err.Error(),
		)
		httpx.WriteError(w, err)
		return
	}
	w.Header().Set("Vary", "Accept-Language, Cookie")
	httpx.WriteJSON(w, http.StatusOK, summary)
}
