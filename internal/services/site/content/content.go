// Package content reads blog posts from the headless CMS through the content
// cache.
package content

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a post the CMS does not know.
var ErrNotFound = errors.New("post not found")

// Post is one blog post in one locale.
type Post struct {
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Excerpt     string    `json:"excerpt,omitempty"`
	Body        string    `json:"body,omitempty"`
	Author      string    `json:"author,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Source is where posts come from.
type Source interface {
	ListPosts(ctx context.Context, locale string) ([]Post, error)
	GetPost(ctx context.Context, locale, slug string) (Post, error)
}
