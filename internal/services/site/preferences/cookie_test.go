package preferences

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/vitrine/internal/services/site/platform/requestmeta"
)

func TestCookieStorageRoundTripAcrossRequests(t *testing.T) {
	rec := httptest.NewRecorder()
	first := NewCookieStorage(rec, httptest.NewRequest(http.MethodGet, "/", nil), requestmeta.SchemePolicy{})

	payload := `{"necessary":true}`
	require.NoError(t, first.Set("cookie-consent", payload))

	value, ok, err := first.Get("cookie-consent")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload, value)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.NotContains(t, cookies[0].Value, "{")

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookies[0])
	second := NewCookieStorage(httptest.NewRecorder(), next, requestmeta.SchemePolicy{})
	value, ok, err = second.Get("cookie-consent")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload, value)
}

func TestCookieStorageRemove(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "theme", Value: "ZGFyaw"})
	rec := httptest.NewRecorder()
	storage := NewCookieStorage(rec, req, requestmeta.SchemePolicy{})

	value, ok, err := storage.Get("theme")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dark", value)

	require.NoError(t, storage.Remove("theme"))
	_, ok, _ = storage.Get("theme")
	assert.False(t, ok)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestCookieStorageRemoveAbsentWritesNothing(t *testing.T) {
	rec := httptest.NewRecorder()
	storage := NewCookieStorage(rec, httptest.NewRequest(http.MethodGet, "/", nil), requestmeta.SchemePolicy{})
	require.NoError(t, storage.Remove("theme"))
	assert.Empty(t, rec.Result().Cookies())
}

func TestCookieStorageCorruptValueReadsAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "theme", Value: "!!!"})
	storage := NewCookieStorage(nil, req, requestmeta.SchemePolicy{})
	_, ok, err := storage.Get("theme")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCookieStorageFailures(t *testing.T) {
	readOnly := NewCookieStorage(nil, httptest.NewRequest(http.MethodGet, "/", nil), requestmeta.SchemePolicy{})
	assert.ErrorIs(t, readOnly.Set("theme", "dark"), ErrUnavailable)
	assert.ErrorIs(t, readOnly.Remove("theme"), ErrUnavailable)

	storage := NewCookieStorage(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), requestmeta.SchemePolicy{})
	assert.ErrorIs(t, storage.Set("theme", strings.Repeat("x", CookieMaxValueBytes)), ErrQuotaExceeded)
	assert.ErrorIs(t, storage.Set("bad key", "v"), ErrInvalidKey)
	_, _, err := storage.Get("bad;key")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestCookieStorageSecureBehindTLSProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	storage := NewCookieStorage(rec, req, requestmeta.SchemePolicy{TrustForwardedProto: true})
	require.NoError(t, storage.Set("theme", "dark"))
	assert.True(t, rec.Result().Cookies()[0].Secure)
}
