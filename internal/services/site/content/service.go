package content

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/vitrine/internal/services/site/cache"
	apperrors "github.com/louisbranch/vitrine/internal/services/site/platform/errors"
	"github.com/louisbranch/vitrine/internal/services/site/revalidate"
)

// TagBlog is carried by every cached listing and post.
const TagBlog = "blog"

const defaultTTL = time.Hour

// PostTag is the cache tag of one post.
func PostTag(slug string) string {
	return "post:" + slug
}

// Service serves posts from the cache, loading from the source on miss.
type Service struct {
	source Source
	cache  *cache.Cache
	ttl    time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTTL bounds how long a cached listing or post is served without a
// revalidation webhook.
func WithTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewService builds a content service.
func NewService(source Source, c *cache.Cache, opts ...ServiceOption) *Service {
	s := &Service{source: source, cache: c, ttl: defaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Listing returns locale's posts, newest first.
func (s *Service) Listing(ctx context.Context, locale string) ([]Post, error) {
	req := cache.Request{
		Key:  "blog:" + locale,
		Path: revalidate.BlogPath,
		Tags: []string{TagBlog},
		TTL:  s.ttl,
	}
	posts, err := cache.FetchJSON(ctx, s.cache, req, func(ctx context.Context) ([]Post, error) {
		posts, err := s.source.ListPosts(ctx, locale)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(posts, func(i, j int) bool {
			return posts[i].PublishedAt.After(posts[j].PublishedAt)
		})
		return posts, nil
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// Post returns one post. Unknown slugs are NotFound errors.
func (s *Service) Post(ctx context.Context, locale, slug string) (Post, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Post{}, apperrors.EK(apperrors.KindNotFound, "site.error.not_found", "post slug is required")
	}
	req := cache.Request{
		Key:  "post:" + slug + ":" + locale,
		Path: revalidate.PostPath(slug),
		Tags: []string{TagBlog, PostTag(slug)},
		TTL:  s.ttl,
	}
	post, err := cache.FetchJSON(ctx, s.cache, req, func(ctx context.Context) (Post, error) {
		return s.source.GetPost(ctx, locale, slug)
	})
	if errors.Is(err, ErrNotFound) {
		return Post{}, apperrors.EK(apperrors.KindNotFound, "site.error.not_found", err.Error())
	}
	if err != nil {
		return Post{}, err
	}
	return post, nil
}
