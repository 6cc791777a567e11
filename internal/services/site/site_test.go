package site

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/vitrine/internal/platform/i18n/catalog"
	"github.com/louisbranch/vitrine/internal/platform/logging"
	"github.com/louisbranch/vitrine/internal/services/site/cache"
	"github.com/louisbranch/vitrine/internal/services/site/consent"
	"github.com/louisbranch/vitrine/internal/services/site/content"
	"github.com/louisbranch/vitrine/internal/services/site/theme"
)

const testOrigin = "http://example.com"

type stubSource struct {
	posts map[string][]content.Post
	lists int
}

func (s *stubSource) ListPosts(_ context.Context, locale string) ([]content.Post, error) {
	s.lists++
	return append([]content.Post(nil), s.posts[locale]...), nil
}

func (s *stubSource) GetPost(_ context.Context, locale, slug string) (content.Post, error) {
	for _, post := range s.posts[locale] {
		if post.Slug == slug {
			return post, nil
		}
	}
	return content.Post{}, content.ErrNotFound
}

func newTestSite(t *testing.T, mutate func(*Config)) (http.Handler, *stubSource) {
	t.Helper()
	bundle, err := catalog.LoadEmbedded()
	require.NoError(t, err)
	published := time.Date(2026, 5, 3, 9, 0, 0, 0, time.UTC)
	source := &stubSource{posts: map[string][]content.Post{
		"en-US": {{Slug: "first-steps", Title: "First steps", Body: "<p>Hello <b>world</b></p>", PublishedAt: published}},
		"fr-FR": {{Slug: "first-steps", Title: "Premiers pas", Body: "<p>Bonjour</p>", PublishedAt: published}},
	}}
	c := cache.New(cache.NewMemoryStore(), cache.WithLogger(logging.Discard()))
	cfg := Config{
		Logger:           logging.Discard(),
		Catalog:          bundle,
		Cache:            c,
		Content:          content.NewService(source, c),
		RevalidateSecret: "s3cret",
		PublicURL:        testOrigin,
		TagManagerID:     "GTM-TEST",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	handler, err := NewHandler(cfg)
	require.NoError(t, err)
	return handler, source
}

func serve(handler http.Handler, req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", testOrigin)
	return req
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestNewHandlerRequiresCollaborators(t *testing.T) {
	_, err := NewHandler(Config{})
	require.Error(t, err)
}

func TestHomeWithoutDecisionShowsBannerAndNoScripts(t *testing.T) {
	handler, _ := newTestSite(t, nil)

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `id="consent-banner"`)
	assert.Contains(t, body, `"analytics_storage":"denied"`)
	assert.NotContains(t, body, "googletagmanager.com")
	assert.Contains(t, body, "First steps")
	assert.Contains(t, body, `lang="en-US"`)
	assert.Equal(t, colorSchemeHint, rec.Header().Get("Accept-CH"))
}

func TestThemeFollowsColorSchemeHint(t *testing.T) {
	handler, _ := newTestSite(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(colorSchemeHint, `"dark"`)

	rec := serve(handler, req)

	assert.Contains(t, rec.Body.String(), `data-theme="dark"`)
}

func TestConsentAcceptAllLoadsScripts(t *testing.T) {
	handler, _ := newTestSite(t, nil)

	rec := serve(handler, postJSON(consentRoute, `{"choice":"all"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		OK      bool              `json:"ok"`
		Decided bool              `json:"decided"`
		Consent consent.Record    `json:"consent"`
		Update  []json.RawMessage `json:"update"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.True(t, resp.Decided)
	assert.Equal(t, consent.AllGranted(), resp.Consent)
	require.Len(t, resp.Update, 3)
	assert.JSONEq(t, `"update"`, string(resp.Update[1]))
	assert.Contains(t, string(resp.Update[2]), `"analytics_storage":"granted"`)

	stored := cookieNamed(rec, consent.StorageKey)
	require.NotNil(t, stored)

	page := serve(handler, httptest.NewRequest(http.MethodGet, "/", nil), stored)
	body := page.Body.String()
	assert.NotContains(t, body, `id="consent-banner"`)
	assert.Contains(t, body, "googletagmanager.com/gtm.js?id=GTM-TEST")
}

func TestConsentRejectsUnknownChoice(t *testing.T) {
	handler, _ := newTestSite(t, nil)

	rec := serve(handler, postJSON(consentRoute, `{"choice":"maybe"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConsentRejectsCrossOrigin(t *testing.T) {
	handler, _ := newTestSite(t, nil)
	req := postJSON(consentRoute, `{"choice":"all"}`)
	req.Header.Set("Origin", "https://evil.example")

	rec := serve(handler, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, cookieNamed(rec, consent.StorageKey))
}

func TestConsentFormRedirectsBack(t *testing.T) {
	handler, _ := newTestSite(t, nil)
	form := url.Values{"choice": {"custom"}, "functional": {"on"}}
	req := httptest.NewRequest(http.MethodPost, consentRoute, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", testOrigin+"/blog?lang=fr-FR")

	rec := serve(handler, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/blog?lang=fr-FR", rec.Header().Get("Location"))
	stored := cookieNamed(rec, consent.StorageKey)
	require.NotNil(t, stored)

	get := serve(handler, httptest.NewRequest(http.MethodGet, consentRoute, nil), stored)
	var resp struct {
		Decided bool           `json:"decided"`
		Consent consent.Record `json:"consent"`
	}
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &resp))
	assert.True(t, resp.Decided)
	assert.True(t, resp.Consent.Functional)
	assert.False(t, resp.Consent.Analytics)
}

func TestConsentGetWithoutDecision(t *testing.T) {
	handler, _ := newTestSite(t, nil)

	rec := serve(handler, httptest.NewRequest(http.MethodGet, consentRoute, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"decided":false`)
	assert.NotContains(t, rec.Body.String(), `"consent":`)
}

func TestThemeIsNotPersistedWithoutFunctionalConsent(t *testing.T) {
	handler, _ := newTestSite(t, nil)

	rec := serve(handler, postJSON(themeRoute, `{"theme":"dark"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"theme":"dark","persisted":false}`, rec.Body.String())
	assert.Nil(t, cookieNamed(rec, theme.StorageKey))
}

func TestThemeToggleIsPersistedWithFunctionalConsent(t *testing.T) {
	handler, _ := newTestSite(t, nil)
	granted := cookieNamed(serve(handler, postJSON(consentRoute, `{"choice":"custom","functional":true}`)), consent.StorageKey)
	require.NotNil(t, granted)

	req := httptest.NewRequest(http.MethodPost, themeRoute, nil)
	req.Header.Set("Origin", testOrigin)
	rec := serve(handler, req, granted)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"theme":"dark","persisted":true}`, rec.Body.String())
	stored := cookieNamed(rec, theme.StorageKey)
	require.NotNil(t, stored)

	page := serve(handler, httptest.NewRequest(http.MethodGet, "/", nil), granted, stored)
	assert.Contains(t, page.Body.String(), `data-theme="dark"`)
}

func TestThemeToggleFormRedirectsBack(t *testing.T) {
	handler, _ := newTestSite(t, nil)
	granted := cookieNamed(serve(handler, postJSON(consentRoute, `{"choice":"custom","functional":true}`)), consent.StorageKey)
	require.NotNil(t, granted)

	page := serve(handler, httptest.NewRequest(http.MethodGet, "/blog", nil), granted)
	assert.Contains(t, page.Body.String(), `<form method="post" action="/api/theme"`)

	req := httptest.NewRequest(http.MethodPost, themeRoute, strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", testOrigin+"/blog")
	rec := serve(handler, req, granted)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/blog", rec.Header().Get("Location"))
	stored := cookieNamed(rec, theme.StorageKey)
	require.NotNil(t, stored)

	dark := serve(handler, httptest.NewRequest(http.MethodGet, "/blog", nil), granted, stored)
	assert.Contains(t, dark.Body.String(), `data-theme="dark"`)
}

func TestThemeFormRejectsUnknownTheme(t *testing.T) {
	handler, _ := newTestSite(t, nil)
	form := url.Values{"theme": {"sepia"}}
	req := httptest.NewRequest(http.MethodPost, themeRoute, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := serve(handler, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRevokingFunctionalConsentClearsTheme(t *testing.T) {
	handler, _ := newTestSite(t, nil)
	granted := cookieNamed(serve(handler, postJSON(consentRoute, `{"choice":"all"}`)), consent.StorageKey)
	themed := cookieNamed(serve(handler, postJSON(themeRoute, `{"theme":"dark"}`), granted), theme.StorageKey)
	require.NotNil(t, themed)

	rec := serve(handler, postJSON(consentRoute, `{"choice":"necessary"}`), granted, themed)

	require.Equal(t, http.StatusOK, rec.Code)
	cleared := cookieNamed(rec, theme.StorageKey)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)
}

func TestConsentResetForgetsDecision(t *testing.T) {
	handler, _ := newTestSite(t, nil)
	granted := cookieNamed(serve(handler, postJSON(consentRoute, `{"choice":"all"}`)), consent.StorageKey)
	req := httptest.NewRequest(http.MethodDelete, consentRoute, nil)
	req.Header.Set("Origin", testOrigin)

	rec := serve(handler, req, granted)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"decided":false`)
	cleared := cookieNamed(rec, consent.StorageKey)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)
}

func TestLanguageQueryRendersFrench(t *testing.T) {
	handler, _ := newTestSite(t, nil)

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/blog?lang=fr-FR", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `lang="fr-FR"`)
	assert.Contains(t, body, "Derniers articles")
	assert.Contains(t, body, "Premiers pas")
	assert.Nil(t, cookieNamed(rec, "locale"))
}

func TestBlogPostRendersDate(t *testing.T) {
	handler, _ := newTestSite(t, nil)

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/blog/first-steps", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Published May 3, 2026")
	assert.Contains(t, rec.Body.String(), "<b>world</b>")
}

func TestUnknownPostIsLocalizedNotFound(t *testing.T) {
	handler, _ := newTestSite(t, nil)

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/blog/missing?lang=fr-FR", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Cette page n&#39;existe pas.")
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	handler, _ := newTestSite(t, nil)

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRevalidateWebhookDropsCachedListing(t *testing.T) {
	handler, source := newTestSite(t, nil)
	serve(handler, httptest.NewRequest(http.MethodGet, "/blog", nil))
	serve(handler, httptest.NewRequest(http.MethodGet, "/blog", nil))
	require.Equal(t, 1, source.lists)

	req := httptest.NewRequest(http.MethodPost, "/api/revalidate?secret=s3cret", strings.NewReader(`{"tags":["blog"]}`))
	rec := serve(handler, req)
	require.Equal(t, http.StatusOK, rec.Code)

	serve(handler, httptest.NewRequest(http.MethodGet, "/blog", nil))
	assert.Equal(t, 2, source.lists)
}

func TestHealth(t *testing.T) {
	handler, _ := newTestSite(t, func(cfg *Config) {
		cfg.Health = func(context.Context) error { return errors.New("down") }
	})

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
