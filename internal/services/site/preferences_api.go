package site

import (
	"errors"
	"mime"
	"net/http"
	"net/url"

	"github.com/louisbranch/vitrine/internal/services/site/analytics"
	"github.com/louisbranch/vitrine/internal/services/site/authredirect"
	"github.com/louisbranch/vitrine/internal/services/site/consent"
	apperrors "github.com/louisbranch/vitrine/internal/services/site/platform/errors"
	"github.com/louisbranch/vitrine/internal/services/site/platform/httpx"
	"github.com/louisbranch/vitrine/internal/services/site/theme"
)

const (
	consentRoute = "/api/consent"
	themeRoute   = "/api/theme"

	maxPreferenceBodyBytes = 4 << 10
)

// Consent choices posted by the banner.
const (
	choiceAll       = "all"
	choiceNecessary = "necessary"
	choiceCustom    = "custom"
)

type consentRequest struct {
	Choice     string `json:"choice"`
	Functional bool   `json:"functional"`
	Analytics  bool   `json:"analytics"`
	Marketing  bool   `json:"marketing"`
	ThirdParty bool   `json:"thirdParty"`
}

func (req consentRequest) record() (consent.Record, error) {
	switch req.Choice {
	case choiceAll:
		return consent.AllGranted(), nil
	case choiceNecessary:
		return consent.NecessaryOnly(), nil
	case choiceCustom, "":
		return consent.Record{
			Necessary:  true,
			Functional: req.Functional,
			Analytics:  req.Analytics,
			Marketing:  req.Marketing,
			ThirdParty: req.ThirdParty,
		}, nil
	default:
		return consent.Record{}, apperrors.E(apperrors.KindInvalidInput, "unknown consent choice")
	}
}

type consentResponse struct {
	OK      bool              `json:"ok"`
	Decided bool              `json:"decided"`
	Consent *consent.Record   `json:"consent,omitempty"`
	Update  analytics.Command `json:"update"`
}

func newConsentResponse(record consent.Record, decided bool) consentResponse {
	resp := consentResponse{OK: true, Decided: decided, Update: analytics.UpdateFor(record, decided)}
	if decided {
		resp.Consent = &record
	}
	return resp
}

type themeRequest struct {
	Theme string `json:"theme"`
}

type themeResponse struct {
	Theme     theme.Theme `json:"theme"`
	Persisted bool        `json:"persisted"`
}

func (h *handler) handleGetConsent(w http.ResponseWriter, r *http.Request) {
	v := newVisitor(w, r, h.policy, h.resolver, h.logger)
	defer v.close()
	httpx.WriteJSON(w, http.StatusOK, newConsentResponse(v.consent.Read()))
}

func (h *handler) handlePostConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form := isFormPost(r)
	req, err := decodeConsentRequest(w, r, form)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	record, err := req.record()
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	v := newVisitor(w, r, h.policy, h.resolver, h.logger)
	defer v.close()
	v.consent.Write(record)
	h.metrics.ObserveConsentChange("write")
	h.logger.InfoContext(ctx, "consent recorded",
		"request_id", httpx.GetRequestID(ctx),
		"functional", record.Functional,
		"analytics", record.Analytics,
		"marketing", record.Marketing,
		"third_party", record.ThirdParty,
	)

	if form {
		http.Redirect(w, r, refererPath(r), http.StatusSeeOther)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newConsentResponse(v.consent.Read()))
}

func (h *handler) handleDeleteConsent(w http.ResponseWriter, r *http.Request) {
	v := newVisitor(w, r, h.policy, h.resolver, h.logger)
	defer v.close()
	v.consent.Reset()
	h.metrics.ObserveConsentChange("reset")
	httpx.WriteJSON(w, http.StatusOK, newConsentResponse(v.consent.Read()))
}

// handleTheme sets the posted theme, or toggles it when none is given. The
// header's form post redirects back to the page it came from.
func (h *handler) handleTheme(w http.ResponseWriter, r *http.Request) {
	form := isFormPost(r)
	req, err := decodeThemeRequest(w, r, form)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	v := newVisitor(w, r, h.policy, h.resolver, h.logger)
	defer v.close()

	var resp themeResponse
	if req.Theme == "" {
		resp.Theme, resp.Persisted = v.theme.Toggle()
	} else {
		next, ok := theme.Parse(req.Theme)
		if !ok {
			httpx.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "theme must be dark or light"))
			return
		}
		resp.Theme, resp.Persisted = next, v.theme.Set(next)
	}

	if form {
		http.Redirect(w, r, refererPath(r), http.StatusSeeOther)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func decodeThemeRequest(w http.ResponseWriter, r *http.Request, form bool) (themeRequest, error) {
	var req themeRequest
	if !form {
		if err := httpx.DecodeJSON(r, maxPreferenceBodyBytes, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
			return req, err
		}
		return req, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxPreferenceBodyBytes)
	if err := r.ParseForm(); err != nil {
		return req, apperrors.E(apperrors.KindInvalidInput, "invalid theme form")
	}
	req.Theme = r.PostForm.Get("theme")
	return req, nil
}

func decodeConsentRequest(w http.ResponseWriter, r *http.Request, form bool) (consentRequest, error) {
	var req consentRequest
	if !form {
		err := httpx.DecodeJSON(r, maxPreferenceBodyBytes, &req)
		return req, err
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxPreferenceBodyBytes)
	if err := r.ParseForm(); err != nil {
		return req, apperrors.E(apperrors.KindInvalidInput, "invalid consent form")
	}
	req.Choice = r.PostForm.Get("choice")
	req.Functional = r.PostForm.Get("functional") != ""
	req.Analytics = r.PostForm.Get("analytics") != ""
	req.Marketing = r.PostForm.Get("marketing") != ""
	req.ThirdParty = r.PostForm.Get("thirdParty") != ""
	return req, nil
}

func isFormPost(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

// refererPath returns the same-site page a form was posted from.
func refererPath(r *http.Request) string {
	referer, err := url.Parse(r.Referer())
	if err != nil || referer.Path == "" {
		return "/"
	}
	return authredirect.SafeNext(referer.RequestURI())
}
