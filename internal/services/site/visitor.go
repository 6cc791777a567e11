package site

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/louisbranch/vitrine/internal/services/site/analytics"
	"github.com/louisbranch/vitrine/internal/services/site/consent"
	"github.com/louisbranch/vitrine/internal/services/site/platform/i18nhttp"
	"github.com/louisbranch/vitrine/internal/services/site/platform/requestmeta"
	"github.com/louisbranch/vitrine/internal/services/site/preferences"
	"github.com/louisbranch/vitrine/internal/services/site/theme"
)

// colorSchemeHint is the client hint carrying the OS colour preference.
const colorSchemeHint = "Sec-CH-Prefers-Color-Scheme"

// visitor is one request's view of the visitor's stored choices. Consent,
// theme and language all read from the same cookie-backed storage and go
// through the same store and resolution functions the browser side uses.
type visitor struct {
	storage  *preferences.CookieStorage
	consent  *consent.Store
	theme    *theme.Controller
	language i18nhttp.Resolution
}

func newVisitor(w http.ResponseWriter, r *http.Request, policy requestmeta.SchemePolicy, resolver *i18nhttp.Resolver, logger *slog.Logger) *visitor {
	storage := preferences.NewCookieStorage(w, r, policy)
	store := consent.NewStore(storage, consent.WithLogger(logger))
	store.Gate(consent.Functional, theme.StorageKey)
	store.Gate(consent.Functional, i18nhttp.StorageKey)

	controller := theme.NewController(store, storage, nil, theme.ColorSchemeFunc(func() bool {
		return prefersDark(r)
	}), theme.WithLogger(logger))
	controller.Init()

	v := &visitor{
		storage:  storage,
		consent:  store,
		theme:    controller,
		language: resolver.Resolve(r, storage),
	}
	if v.language.Source == i18nhttp.SourceQuery {
		v.rememberLanguage(logger)
	}
	return v
}

// rememberLanguage stores an explicitly chosen language while functional
// consent allows it.
func (v *visitor) rememberLanguage(logger *slog.Logger) {
	if !v.consent.IsAllowed(consent.Functional) {
		return
	}
	if err := v.storage.Set(i18nhttp.StorageKey, v.language.Locale()); err != nil {
		logger.Warn("language persist failed", "error", err.Error())
	}
}

// injector decides which third-party scripts this visitor's page may load.
func (v *visitor) injector(scripts []analytics.Script) *analytics.PageInjector {
	record, decided := v.consent.Read()
	return analytics.NewPageInjector(record, decided, scripts...)
}

func (v *visitor) decided() bool {
	_, ok := v.consent.Read()
	return ok
}

func (v *visitor) close() {
	v.theme.Close()
	v.consent.Close()
}

// prefersDark reads the colour scheme client hint. Browsers send the value
// as a quoted string.
func prefersDark(r *http.Request) bool {
	value := strings.Trim(strings.TrimSpace(r.Header.Get(colorSchemeHint)), `"`)
	return strings.EqualFold(value, "dark")
}

// advertiseHints asks the browser for the colour scheme hint on later
// requests and marks responses as varying with it.
func advertiseHints(w http.ResponseWriter) {
	w.Header().Set("Accept-CH", colorSchemeHint)
	w.Header().Add("Vary", colorSchemeHint)
	w.Header().Add("Vary", "Cookie")
	w.Header().Add("Vary", "Accept-Language")
}
