package contact

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/louisbranch/vitrine/internal/services/site/platform/httpx"
)

// Route is the contact form endpoint.
const Route = "/api/contact"

const maxBodyBytes = 32 << 10

type response struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Fallback string `json:"fallback,omitempty"`
}

// Handler handles contact form submissions.
type Handler struct {
	logger  *slog.Logger
	sender  Sender
	address string
}

// New creates a contact Handler. address is the fallback mailbox.
func New(sender Sender, address string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{logger: logger, sender: sender, address: address}
}

// Register registers the contact route with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post(Route, h.handleContact)
}

func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := httpx.GetRequestID(ctx)

	var msg Message
	if err := httpx.DecodeJSON(r, maxBodyBytes, &msg); err != nil {
		httpx.WriteError(w, err)
		return
	}
	msg = msg.Normalize()
	if err := msg.Validate(); err != nil {
		httpx.WriteError(w, err)
		return
	}

	if err := h.sender.Send(ctx, msg); err != nil {
		h.logger.WarnContext(ctx, "contact forward failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		httpx.WriteJSON(w, http.StatusBadGateway, response{
			OK:       false,
			Error:    "site.error.upstream",
			Fallback: MailtoURL(h.address, msg),
		})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response{OK: true})
}
