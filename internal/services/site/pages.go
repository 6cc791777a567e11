package site

import (
	"context"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"golang.org/x/text/message"

	"github.com/louisbranch/vitrine/internal/services/site/content"
	apperrors "github.com/louisbranch/vitrine/internal/services/site/platform/errors"
	"github.com/louisbranch/vitrine/internal/services/site/platform/httpx"
	"github.com/louisbranch/vitrine/internal/services/site/platform/sessioncookie"
	"github.com/louisbranch/vitrine/internal/services/site/reviews"
	"github.com/louisbranch/vitrine/internal/services/site/templates"
)

const homeLatestPosts = 3

// pageContext resolves everything the layout needs for the visitor.
func (h *handler) pageContext(r *http.Request, v *visitor, title string) templates.PageContext {
	injector := v.injector(h.scripts)
	page := templates.PageContext{
		Lang:              v.language.Locale(),
		Loc:               h.resolver.Printer(v.language.Tag),
		Title:             title,
		Theme:             string(v.theme.Theme()),
		CurrentPath:       r.URL.Path,
		Languages:         h.resolver.Options(v.language.Tag, r.URL.Path, r.URL.RawQuery),
		SignedIn:          h.signedIn(r),
		ShowConsentBanner: !v.decided(),
		Scripts:           injector.Scripts(),
	}
	if len(h.scripts) > 0 {
		page.Bootstrap = injector.InlineBootstrap()
	}
	return page
}

func (h *handler) signedIn(r *http.Request) bool {
	token, ok := sessioncookie.Read(r)
	if !ok || !h.verifier.Configured() {
		return false
	}
	_, err := h.verifier.Verify(token)
	return err == nil
}

func (h *handler) render(w http.ResponseWriter, r *http.Request, status int, component templ.Component) {
	w.Header().Set("Cache-Control", "private, no-cache")
	templ.Handler(component, templ.WithStatus(status)).ServeHTTP(w, r)
}

func (h *handler) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v := newVisitor(w, r, h.policy, h.resolver, h.logger)
	defer v.close()
	advertiseHints(w)

	locale := v.language.Locale()
	view := templates.HomeView{}
	if posts, err := h.content.Listing(ctx, locale); err != nil {
		h.logger.WarnContext(ctx, "home listing unavailable",
			"request_id", httpx.GetRequestID(ctx),
			"error", err.Error(),
		)
	} else {
		if len(posts) > homeLatestPosts {
			posts = posts[:homeLatestPosts]
		}
		view.Latest = postViews(posts, h.resolver.Printer(v.language.Tag))
	}
	view.Reviews = h.reviewsView(ctx, locale)

	h.render(w, r, http.StatusOK, templates.HomePage(h.pageContext(r, v, ""), view))
}

func (h *handler) handleBlog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v := newVisitor(w, r, h.policy, h.resolver, h.logger)
	defer v.close()
	advertiseHints(w)

	printer := h.resolver.Printer(v.language.Tag)
	page := h.pageContext(r, v, printer.Sprintf("blog.heading"))
	posts, err := h.content.Listing(ctx, v.language.Locale())
	if err != nil {
		h.renderError(w, r, page, err)
		return
	}
	h.render(w, r, http.StatusOK, templates.BlogListPage(page, postViews(posts, printer)))
}

func (h *handler) handlePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v := newVisitor(w, r, h.policy, h.resolver, h.logger)
	defer v.close()
	advertiseHints(w)

	post, err := h.content.Post(ctx, v.language.Locale(), chi.URLParam(r, "slug"))
	if err != nil {
		h.renderError(w, r, h.pageContext(r, v, ""), err)
		return
	}
	view := postView(post, h.resolver.Printer(v.language.Tag))
	h.render(w, r, http.StatusOK, templates.BlogPostPage(h.pageContext(r, v, post.Title), view))
}

func (h *handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	v := newVisitor(w, r, h.policy, h.resolver, h.logger)
	defer v.close()
	h.renderError(w, r, h.pageContext(r, v, ""), apperrors.EK(apperrors.KindNotFound, "site.error.not_found", "page not found"))
}

// renderError renders err as a localized page with its mapped status.
func (h *handler) renderError(w http.ResponseWriter, r *http.Request, page templates.PageContext, err error) {
	status := apperrors.HTTPStatus(err)
	key := apperrors.LocalizationKey(err)
	if key == "" {
		key = "site.error.upstream"
	}
	if status >= http.StatusInternalServerError {
		h.logger.WarnContext(r.Context(), "page render failed",
			"request_id", httpx.GetRequestID(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
	}
	h.render(w, r, status, templates.ErrorPage(page, key))
}

func (h *handler) reviewsView(ctx context.Context, locale string) *templates.ReviewsView {
	if h.reviews == nil {
		return nil
	}
	summary, err := h.reviews.Summary(ctx, locale)
	if err != nil {
		h.logger.WarnContext(ctx, "home reviews unavailable",
			"request_id", httpx.GetRequestID(ctx),
			"error", err.Error(),
		)
		return nil
	}
	return reviewsView(summary)
}

func postViews(posts []content.Post, printer *message.Printer) []templates.PostView {
	views := make([]templates.PostView, 0, len(posts))
	for _, post := range posts {
		views = append(views, postView(post, printer))
	}
	return views
}

func postView(post content.Post, printer *message.Printer) templates.PostView {
	return templates.PostView{
		Slug:      post.Slug,
		Title:     post.Title,
		Summary:   post.Summary(),
		Published: formatDate(post.PublishedAt, printer),
		BodyHTML:  post.Body,
	}
}

func reviewsView(summary reviews.Summary) *templates.ReviewsView {
	view := &templates.ReviewsView{Rating: summary.Rating, Total: summary.Total}
	for _, review := range summary.Reviews {
		view.Reviews = append(view.Reviews, templates.ReviewView{
			Author: review.Author,
			Rating: review.Rating,
			Text:   review.Text,
		})
	}
	return view
}

// formatDate renders a publication date with the locale's date layout.
func formatDate(t time.Time, printer *message.Printer) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(printer.Sprintf("blog.date_layout"))
}
