package checkout

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/louisbranch/vitrine/internal/services/site/platform/errors"
	"github.com/louisbranch/vitrine/internal/services/site/platform/httpx"
	"github.com/louisbranch/vitrine/internal/services/site/platform/sessioncookie"
)

// Route is the checkout endpoint.
const Route = "/api/checkout"

const maxBodyBytes = 4 << 10

var formationPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

type checkoutRequest struct {
	Formation string `json:"formation"`
	Locale    string `json:"locale,omitempty"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

type enrolledResponse struct {
	AlreadyEnrolled bool `json:"alreadyEnrolled"`
}

// Handler handles checkout session creation.
type Handler struct {
	logger    *slog.Logger
	provider  Provider
	publicURL string
}

// New creates a checkout Handler. publicURL is the site origin the provider
// returns visitors to.
func New(provider Provider, publicURL string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		logger:    logger,
		provider:  provider,
		publicURL: strings.TrimRight(strings.TrimSpace(publicURL), "/"),
	}
}

// Register registers the checkout route with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post(Route, h.handleCheckout)
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := httpx.GetRequestID(ctx)

	var body checkoutRequest
	if err := httpx.DecodeJSON(r, maxBodyBytes, &body); err != nil {
		httpx.WriteError(w, err)
		return
	}
	formation := strings.TrimSpace(body.Formation)
	if !formationPattern.MatchString(formation) {
		httpx.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "formation is invalid"))
		return
	}

	token, _ := sessioncookie.Read(r)
	session, err := h.provider.CreateSession(ctx, SessionRequest{
		Formation:     formation,
		CustomerToken: token,
		SuccessURL:    h.returnURL("success", formation),
		CancelURL:     h.returnURL("cancel", formation),
		Locale:        strings.TrimSpace(body.Locale),
	})
	if errors.Is(err, ErrAlreadyEnrolled) {
		httpx.WriteJSON(w, http.StatusConflict, enrolledResponse{AlreadyEnrolled: true})
		return
	}
	if err != nil {
		h.logger.WarnContext(ctx, "checkout session failed",
			"request_id", requestID,
			"formation", formation,
			"error", err.Error(),
		)
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkoutResponse{URL: session.URL})
}

func (h *Handler) returnURL(outcome, formation string) string {
	query := url.Values{"checkout": {outcome}, "formation": {formation}}
	return h.publicURL + "/?" + query.Encode()
}
