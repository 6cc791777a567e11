// Package site assembles the marketing site: localized pages, the preference
// API and the webhook and integration endpoints, behind one chi router.
package site

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/louisbranch/vitrine/internal/platform/i18n/catalog"
	"github.com/louisbranch/vitrine/internal/platform/metrics"
	"github.com/louisbranch/vitrine/internal/services/site/analytics"
	"github.com/louisbranch/vitrine/internal/services/site/authredirect"
	"github.com/louisbranch/vitrine/internal/services/site/cache"
	"github.com/louisbranch/vitrine/internal/services/site/checkout"
	"github.com/louisbranch/vitrine/internal/services/site/contact"
	"github.com/louisbranch/vitrine/internal/services/site/content"
	"github.com/louisbranch/vitrine/internal/services/site/platform/httpx"
	"github.com/louisbranch/vitrine/internal/services/site/platform/i18nhttp"
	"github.com/louisbranch/vitrine/internal/services/site/platform/requestmeta"
	"github.com/louisbranch/vitrine/internal/services/site/revalidate"
	"github.com/louisbranch/vitrine/internal/services/site/reviews"
)

// Config defines the site's collaborators. Optional integrations left nil
// are not routed.
type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Catalog *catalog.Bundle
	Cache   *cache.Cache
	Content *content.Service
	Reviews *reviews.Service

	RevalidateSecret string
	PublicURL        string
	TagManagerID     string
	Policy           requestmeta.SchemePolicy

	Contact      contact.Sender
	ContactEmail string
	Checkout     checkout.Provider

	AuthLoginURL string
	Verifier     *authredirect.Verifier
	Profiles     authredirect.ProfileSource

	// Health reports backing store readiness for /healthz.
	Health func(context.Context) error
}

type handler struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	resolver *i18nhttp.Resolver
	content  *content.Service
	reviews  *reviews.Service
	verifier *authredirect.Verifier
	scripts  []analytics.Script
	policy   requestmeta.SchemePolicy
	health   func(context.Context) error
}

// NewHandler builds the site's HTTP handler.
func NewHandler(cfg Config) (http.Handler, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("site catalog is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("site cache is required")
	}
	if cfg.Content == nil {
		return nil, fmt.Errorf("site content service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	verifier := cfg.Verifier
	if verifier == nil {
		verifier = authredirect.NewVerifier("")
	}

	h := &handler{
		logger:   logger,
		metrics:  cfg.Metrics,
		resolver: i18nhttp.NewResolver(cfg.Catalog),
		content:  cfg.Content,
		reviews:  cfg.Reviews,
		verifier: verifier,
		policy:   cfg.Policy,
		health:   cfg.Health,
	}
	if cfg.TagManagerID != "" {
		h.scripts = append(h.scripts, analytics.TagManagerScript(cfg.TagManagerID))
	}

	r := chi.NewRouter()
	r.Use(httpx.RequestID)
	r.Use(httpx.Recover(logger))
	r.Use(httpx.AccessLog(logger, cfg.Metrics))

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", cfg.Metrics.Handler())

	// The CMS calls the webhook from its own origin.
	revalidate.New(cfg.Cache, cfg.RevalidateSecret, logger, cfg.Metrics).Register(r)

	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireSameOrigin(cfg.Policy))
		r.Get(consentRoute, h.handleGetConsent)
		r.Post(consentRoute, h.handlePostConsent)
		r.Delete(consentRoute, h.handleDeleteConsent)
		r.Post(themeRoute, h.handleTheme)
		if cfg.Contact != nil {
			contact.New(cfg.Contact, cfg.ContactEmail, logger).Register(r)
		}
		if cfg.Checkout != nil {
			checkout.New(cfg.Checkout, cfg.PublicURL, logger).Register(r)
		}
	})

	if cfg.Reviews != nil {
		reviews.New(cfg.Reviews, h.resolver.Locale, logger).Register(r)
	}
	authredirect.New(authredirect.Config{
		LoginURL:  cfg.AuthLoginURL,
		PublicURL: cfg.PublicURL,
		Policy:    cfg.Policy,
	}, verifier, cfg.Profiles, logger).Register(r)

	r.Get("/", h.handleHome)
	r.Get(revalidate.BlogPath, h.handleBlog)
	r.Get(revalidate.BlogPath+"/{slug}", h.handlePost)
	r.NotFound(h.handleNotFound)
	return r, nil
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", "error", err.Error())
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
