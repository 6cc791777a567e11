package preferences

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/louisbranch/vitrine/internal/services/site/platform/requestmeta"
)

const (
	// CookieMaxValueBytes bounds one encoded value so the whole Set-Cookie
	// header stays under the common 4096-byte browser limit.
	CookieMaxValueBytes = 3800
	cookieMaxAge        = 365 * 24 * time.Hour
)

// CookieStorage is request-scoped Storage backed by cookies: reads come from
// the request, writes become Set-Cookie headers on the response. Writes are
// also visible to later reads in the same request.
type CookieStorage struct {
	r       *http.Request
	w       http.ResponseWriter
	policy  requestmeta.SchemePolicy
	pending map[string]*string
}

// NewCookieStorage binds storage to one request/response pair. A nil writer
// makes the storage read-only: writes fail with ErrUnavailable.
func NewCookieStorage(w http.ResponseWriter, r *http.Request, policy requestmeta.SchemePolicy) *CookieStorage {
	return &CookieStorage{r: r, w: w, policy: policy, pending: map[string]*string{}}
}

// Get returns the decoded cookie value. Cookies that fail to decode read as
// absent.
func (s *CookieStorage) Get(key string) (string, bool, error) {
	if !validKey(key) {
		return "", false, ErrInvalidKey
	}
	if value, ok := s.pending[key]; ok {
		if value == nil {
			return "", false, nil
		}
		return *value, true, nil
	}
	if s.r == nil {
		return "", false, nil
	}
	cookie, err := s.r.Cookie(key)
	if err != nil {
		return "", false, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return "", false, nil
	}
	return string(decoded), true, nil
}

// Set writes value as a long-lived first-party cookie.
func (s *CookieStorage) Set(key, value string) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	if s.w == nil {
		return ErrUnavailable
	}
	encoded := base64.RawURLEncoding.EncodeToString([]byte(value))
	if len(encoded) > CookieMaxValueBytes {
		return ErrQuotaExceeded
	}
	http.SetCookie(s.w, &http.Cookie{
		Name:     key,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		Secure:   requestmeta.IsHTTPS(s.r, s.policy),
		SameSite: http.SameSiteLaxMode,
	})
	s.pending[key] = &value
	return nil
}

// Remove expires the cookie.
func (s *CookieStorage) Remove(key string) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	if s.w == nil {
		return ErrUnavailable
	}
	if _, present, _ := s.Get(key); !present {
		s.pending[key] = nil
		return nil
	}
	http.SetCookie(s.w, &http.Cookie{
		Name:     key,
		Path:     "/",
		MaxAge:   -1,
		Secure:   requestmeta.IsHTTPS(s.r, s.policy),
		SameSite: http.SameSiteLaxMode,
	})
	s.pending[key] = nil
	return nil
}

// validKey accepts cookie-name-safe keys only.
func validKey(key string) bool {
	if key == "" || len(key) > 64 {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
