package content

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/louisbranch/vitrine/internal/platform/upstream"
)

// Client talks to the CMS delivery API.
type Client struct {
	api *upstream.Client
}

// NewClient builds a CMS client. token is sent as a bearer token when set.
func NewClient(baseURL, token string, opts ...upstream.Option) (*Client, error) {
	if token = strings.TrimSpace(token); token != "" {
		opts = append(opts, upstream.WithBearerToken(token))
	}
	api, err := upstream.New("cms", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{api: api}, nil
}

type listResponse struct {
	Posts []Post `json:"posts"`
}

type postResponse struct {
	Post *Post `json:"post"`
}

// ListPosts returns the published posts for locale.
func (c *Client) ListPosts(ctx context.Context, locale string) ([]Post, error) {
	var resp listResponse
	err := c.api.Do(ctx, upstream.Request{
		Path:  "/posts",
		Query: url.Values{"locale": {locale}},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Posts == nil {
		resp.Posts = []Post{}
	}
	return resp.Posts, nil
}

// GetPost returns one post. A 404 from the CMS or an empty post maps to
// ErrNotFound.
func (c *Client) GetPost(ctx context.Context, locale, slug string) (Post, error) {
	var resp postResponse
	err := c.api.Do(ctx, upstream.Request{
		Path:  "/posts/" + url.PathEscape(slug),
		Query: url.Values{"locale": {locale}},
	}, &resp)
	if upstream.StatusCode(err) == http.StatusNotFound {
		return Post{}, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	if err != nil {
		return Post{}, err
	}
	if resp.Post == nil || resp.Post.Slug == "" {
		return Post{}, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	return *resp.Post, nil
}

var _ Source = (*Client)(nil)
