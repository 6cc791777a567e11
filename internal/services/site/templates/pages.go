package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// PostView is one post prepared for display.
type PostView struct {
	Slug      string
	Title     string
	Summary   string
	Published string
	// BodyHTML is trusted markup from the CMS.
	BodyHTML string
}

// ReviewView is one review prepared for display.
type ReviewView struct {
	Author string
	Rating int
	Text   string
}

// ReviewsView is the home page rating widget.
type ReviewsView struct {
	Rating  float64
	Total   int
	Reviews []ReviewView
}

// HomeView feeds the home page.
type HomeView struct {
	Latest  []PostView
	Reviews *ReviewsView
}

// HomePage renders the landing page.
func HomePage(page PageContext, view HomeView) templ.Component {
	return Layout(page, templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw("<section class=\"hero\"><h1>")
		h.text(page.t("home.heading"))
		h.raw("</h1><p>")
		h.text(page.t("home.lead"))
		h.raw("</p><a class=\"cta\"")
		h.href("/blog")
		h.raw(">")
		h.text(page.t("home.cta"))
		h.raw("</a></section>")
		if len(view.Latest) > 0 {
			writePostList(h, page, view.Latest)
		}
		if view.Reviews != nil && len(view.Reviews.Reviews) > 0 {
			writeReviews(h, page, *view.Reviews)
		}
		return h.err
	}))
}

// BlogListPage renders the article listing.
func BlogListPage(page PageContext, posts []PostView) templ.Component {
	return Layout(page, templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw("<h1>")
		h.text(page.t("blog.heading"))
		h.raw("</h1>")
		if len(posts) == 0 {
			h.raw("<p class=\"empty\">")
			h.text(page.t("blog.empty"))
			h.raw("</p>")
			return h.err
		}
		writePostList(h, page, posts)
		return h.err
	}))
}

// BlogPostPage renders one article.
func BlogPostPage(page PageContext, post PostView) templ.Component {
	return Layout(page, templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw("<article><h1>")
		h.text(post.Title)
		h.raw("</h1>")
		if post.Published != "" {
			h.raw("<p class=\"published\">")
			h.text(page.t("blog.published", post.Published))
			h.raw("</p>")
		}
		h.raw("<div class=\"body\">")
		h.raw(post.BodyHTML)
		h.raw("</div></article><a")
		h.href("/blog")
		h.raw(">")
		h.text(page.t("blog.back"))
		h.raw("</a>")
		return h.err
	}))
}

// ErrorPage renders a localized error message.
func ErrorPage(page PageContext, messageKey string) templ.Component {
	return Layout(page, templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw("<section class=\"error\"><p>")
		h.text(page.t(messageKey))
		h.raw("</p><a")
		h.href("/")
		h.raw(">")
		h.text(page.t("site.nav.home"))
		h.raw("</a></section>")
		return h.err
	}))
}

func writePostList(h *htmlWriter, page PageContext, posts []PostView) {
	h.raw("<ul class=\"posts\">")
	for _, post := range posts {
		h.raw("<li><a")
		h.href("/blog/" + post.Slug)
		h.raw("><h2>")
		h.text(post.Title)
		h.raw("</h2></a>")
		if post.Published != "" {
			h.raw("<p class=\"published\">")
			h.text(page.t("blog.published", post.Published))
			h.raw("</p>")
		}
		if post.Summary != "" {
			h.raw("<p>")
			h.text(post.Summary)
			h.raw("</p>")
		}
		h.raw("</li>")
	}
	h.raw("</ul>")
}

func writeReviews(h *htmlWriter, page PageContext, view ReviewsView) {
	h.raw("<section class=\"reviews\"><h2>")
	h.text(page.t("home.reviews"))
	h.raw("</h2><p class=\"rating\">")
	h.text(fmt.Sprintf("%.1f / 5 (%d)", view.Rating, view.Total))
	h.raw("</p><ul>")
	for _, review := range view.Reviews {
		h.raw("<li><blockquote>")
		h.text(review.Text)
		h.raw("</blockquote><p>")
		h.text(review.Author + " " + strings.Repeat("★", clampStars(review.Rating)))
		h.raw("</p></li>")
	}
	h.raw("</ul></section>")
}

func clampStars(rating int) int {
	switch {
	case rating < 0:
		return 0
	case rating > 5:
		return 5
	default:
		return rating
	}
}
