package authredirect

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/louisbranch/vitrine/internal/platform/upstream"
	apperrors "github.com/louisbranch/vitrine/internal/services/site/platform/errors"
	"github.com/louisbranch/vitrine/internal/services/site/platform/httpx"
	"github.com/louisbranch/vitrine/internal/services/site/platform/requestmeta"
	"github.com/louisbranch/vitrine/internal/services/site/platform/sessioncookie"
)

// Routes served by the handler.
const (
	LoginRoute    = "/auth/login"
	CallbackRoute = "/auth/callback"
	LogoutRoute   = "/auth/logout"
	MeRoute       = "/api/me"
)

// Profile is the signed-in visitor as the auth service describes them.
type Profile struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Enrollments []string `json:"enrollments,omitempty"`
}

// ProfileSource loads the profile behind a session token.
type ProfileSource interface {
	Profile(ctx context.Context, token string) (Profile, error)
}

// Client reads profiles from the auth service.
type Client struct {
	api *upstream.Client
}

// NewClient builds an auth service client.
func NewClient(baseURL string, opts ...upstream.Option) (*Client, error) {
	api, err := upstream.New("auth", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{api: api}, nil
}

// Profile fetches the profile for token. A 401 from the auth service is an
// Unauthorized error.
func (c *Client) Profile(ctx context.Context, token string) (Profile, error) {
	var profile Profile
	err := c.api.Do(ctx, upstream.Request{
		Path:   "/me",
		Header: http.Header{"Authorization": {"Bearer " + token}},
	}, &profile)
	if upstream.StatusCode(err) == http.StatusUnauthorized {
		return Profile{}, apperrors.E(apperrors.KindUnauthorized, "session is no longer valid")
	}
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Handler serves the sign-in redirects and the profile endpoint.
type Handler struct {
	logger    *slog.Logger
	verifier  *Verifier
	profiles  ProfileSource
	loginURL  string
	publicURL string
	policy    requestmeta.SchemePolicy
}

// Config wires a Handler.
type Config struct {
	// LoginURL is the external sign-in page.
	LoginURL string
	// PublicURL is this site's origin, used to build the callback URL.
	PublicURL string
	Policy    requestmeta.SchemePolicy
}

// New creates the auth redirect Handler.
func New(cfg Config, verifier *Verifier, profiles ProfileSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		logger:    logger,
		verifier:  verifier,
		profiles:  profiles,
		loginURL:  strings.TrimSpace(cfg.LoginURL),
		publicURL: strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/"),
		policy:    cfg.Policy,
	}
}

// Register registers the auth routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get(LoginRoute, h.handleLogin)
	r.Get(CallbackRoute, h.handleCallback)
	r.Get(LogoutRoute, h.handleLogout)
	r.Get(MeRoute, h.handleMe)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if h.loginURL == "" {
		httpx.WriteError(w, ErrNotConfigured)
		return
	}
	target, err := url.Parse(h.loginURL)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "auth login URL is invalid", "error", err.Error())
		httpx.WriteError(w, ErrNotConfigured)
		return
	}
	callback := h.origin(r) + CallbackRoute + "?" + url.Values{"next": {SafeNext(r.URL.Query().Get("next"))}}.Encode()
	query := target.Query()
	query.Set("redirect_uri", callback)
	target.RawQuery = query.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			h.logger.ErrorContext(ctx, "auth callback without signing key",
				"request_id", httpx.GetRequestID(ctx),
			)
		} else {
			h.logger.WarnContext(ctx, "auth callback rejected",
				"request_id", httpx.GetRequestID(ctx),
				"error", err.Error(),
			)
		}
		httpx.WriteError(w, err)
		return
	}
	sessioncookie.Write(w, r, strings.TrimSpace(r.URL.Query().Get("token")), claims.ExpiresAt, h.policy)
	http.Redirect(w, r, SafeNext(r.URL.Query().Get("next")), http.StatusFound)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sessioncookie.Clear(w, r, h.policy)
	http.Redirect(w, r, SafeNext(r.URL.Query().Get("next")), http.StatusFound)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, ok := sessioncookie.Read(r)
	if !ok {
		httpx.WriteError(w, apperrors.E(apperrors.KindUnauthorized, "not signed in"))
		return
	}
	if _, err := h.verifier.Verify(token); err != nil {
		if apperrors.KindOf(err) == apperrors.KindUnauthorized {
			sessioncookie.Clear(w, r, h.policy)
		}
		httpx.WriteError(w, err)
		return
	}
	if h.profiles == nil {
		httpx.WriteError(w, ErrNotConfigured)
		return
	}
	profile, err := h.profiles.Profile(ctx, token)
	if err != nil {
		h.logger.WarnContext(ctx, "profile lookup failed",
			"request_id", httpx.GetRequestID(ctx),
			"error", err.Error(),
		)
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) origin(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	return requestmeta.Scheme(r, h.policy) + "://" + r.Host
}

// SafeNext returns raw when it is a local path, otherwise "/".
func SafeNext(raw string) string {
	next := strings.TrimSpace(raw)
	if next == "" || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	parsed, err := url.Parse(next)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" || parsed.User != nil {
		return "/"
	}
	if !strings.HasPrefix(parsed.Path, "/") {
		return "/"
	}
	if parsed.RawQuery != "" {
		return parsed.Path + "?" + parsed.RawQuery
	}
	return parsed.Path
}
