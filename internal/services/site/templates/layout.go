// Package templates renders the site's pages as templ components.
package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
	"golang.org/x/text/message"

	"github.com/louisbranch/vitrine/internal/services/site/analytics"
	"github.com/louisbranch/vitrine/internal/services/site/platform/i18nhttp"
)

// PageContext carries the per-request values every page needs.
type PageContext struct {
	Lang        string
	Loc         *message.Printer
	Title       string
	Theme       string
	CurrentPath string
	Languages   []i18nhttp.LanguageOption
	SignedIn    bool
	// ShowConsentBanner is set while the visitor has not decided.
	ShowConsentBanner bool
	// Bootstrap is the inline consent-default script body.
	Bootstrap string
	// Scripts are the third-party scripts consent allows on this page.
	Scripts []analytics.Script
}

func (p PageContext) t(key string, args ...any) string {
	if p.Loc == nil {
		return key
	}
	return p.Loc.Sprintf(key, args...)
}

// Layout wraps body in the document shell.
func Layout(page PageContext, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw("<!doctype html><html")
		h.attr("lang", page.Lang)
		h.attr("data-theme", page.Theme)
		h.raw("><head><meta charset=\"utf-8\"><meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">")
		h.raw("<title>")
		if page.Title != "" {
			h.text(page.Title + " · ")
		}
		h.text(page.t("site.title"))
		h.raw("</title>")
		if page.Bootstrap != "" {
			h.raw("<script>")
			h.raw(page.Bootstrap)
			h.raw("</script>")
		}
		for _, script := range page.Scripts {
			h.raw("<script async")
			h.attr("id", script.ID)
			h.attr("src", string(templ.URL(script.Src)))
			h.raw("></script>")
		}
		h.raw("</head><body>")
		writeHeader(h, page)
		h.raw("<main>")
		if h.err != nil {
			return h.err
		}
		if body != nil {
			if err := body.Render(ctx, w); err != nil {
				return err
			}
		}
		h.raw("</main>")
		writeFooter(h, page)
		if page.ShowConsentBanner {
			writeConsentBanner(h, page)
		}
		h.raw("</body></html>")
		return h.err
	})
}

func writeHeader(h *htmlWriter, page PageContext) {
	h.raw("<header><a class=\"brand\"")
	h.href("/")
	h.raw(">")
	h.text(page.t("site.title"))
	h.raw("</a><nav>")
	for _, item := range []struct{ path, key string }{
		{"/", "site.nav.home"},
		{"/blog", "site.nav.blog"},
		{"/#contact", "site.nav.contact"},
	} {
		h.raw("<a")
		h.href(item.path)
		if item.path == page.CurrentPath {
			h.attr("aria-current", "page")
		}
		h.raw(">")
		h.text(page.t(item.key))
		h.raw("</a>")
	}
	h.raw("<a")
	if page.SignedIn {
		h.href("/auth/logout")
		h.raw(">")
		h.text(page.t("site.nav.logout"))
	} else {
		h.href("/auth/login?next=" + page.CurrentPath)
		h.raw(">")
		h.text(page.t("site.nav.login"))
	}
	h.raw("</a></nav>")
	h.raw("<form method=\"post\" action=\"/api/theme\" class=\"theme-toggle\">")
	h.raw("<button type=\"submit\" data-action=\"toggle-theme\">")
	h.text(page.t("site.theme.toggle"))
	h.raw("</button></form>")
	if len(page.Languages) > 1 {
		h.raw("<ul class=\"languages\">")
		for _, option := range page.Languages {
			h.raw("<li><a")
			h.href(option.URL)
			h.attr("hreflang", option.Tag)
			if option.Active {
				h.attr("aria-current", "true")
			}
			h.raw(">")
			h.text(option.Label)
			h.raw("</a></li>")
		}
		h.raw("</ul>")
	}
	h.raw("</header>")
}

func writeFooter(h *htmlWriter, page PageContext) {
	h.raw("<footer><p>")
	h.text(page.t("site.tagline"))
	h.raw("</p><p>")
	h.text(page.t("site.footer.rights"))
	h.raw("</p></footer>")
}

func writeConsentBanner(h *htmlWriter, page PageContext) {
	h.raw("<section id=\"consent-banner\" role=\"dialog\" aria-modal=\"false\"")
	h.attr("aria-label", page.t("consent.title"))
	h.raw("><h2>")
	h.text(page.t("consent.title"))
	h.raw("</h2><p>")
	h.text(page.t("consent.body"))
	h.raw("</p><form method=\"post\" action=\"/api/consent\">")
	h.raw("<label><input type=\"checkbox\" checked disabled> ")
	h.text(page.t("consent.category.necessary"))
	h.raw("</label>")
	for _, c := range []struct{ name, key string }{
		{"functional", "consent.category.functional"},
		{"analytics", "consent.category.analytics"},
		{"marketing", "consent.category.marketing"},
		{"thirdParty", "consent.category.third_party"},
	} {
		h.raw("<label><input type=\"checkbox\"")
		h.attr("name", c.name)
		h.raw("> ")
		h.text(page.t(c.key))
		h.raw("</label>")
	}
	h.raw("<button type=\"submit\" name=\"choice\" value=\"all\">")
	h.text(page.t("consent.accept_all"))
	h.raw("</button><button type=\"submit\" name=\"choice\" value=\"necessary\">")
	h.text(page.t("consent.reject_all"))
	h.raw("</button><button type=\"submit\" name=\"choice\" value=\"custom\">")
	h.text(page.t("consent.save"))
	h.raw("</button></form></section>")
}
