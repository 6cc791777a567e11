// Package reviews serves the place rating widget from the maps API through
// the content cache.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/vitrine/internal/platform/upstream"
	"github.com/louisbranch/vitrine/internal/services/site/cache"
)

// Tag marks cached review payloads.
const Tag = "reviews"

// TTL is how long a place summary is served before refetching.
const TTL = 6 * time.Hour

const topReviews = 5

// Review is one public review.
type Review struct {
	Author string    `json:"author"`
	Rating int       `json:"rating"`
	Text   string    `json:"text"`
	Time   time.Time `json:"time"`
}

// Summary is a place's rating and its best reviews.
type Summary struct {
	Rating  float64  `json:"rating"`
	Total   int      `json:"total"`
	Reviews []Review `json:"reviews"`
}

// Source fetches a place summary.
type Source interface {
	PlaceDetails(ctx context.Context, placeID, locale string) (Summary, error)
}

// Client talks to the maps place details API.
type Client struct {
	api *upstream.Client
	key string
}

// NewClient builds a maps client using key.
func NewClient(baseURL, key string, opts ...upstream.Option) (*Client, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("maps key is required")
	}
	api, err := upstream.New("maps", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{api: api, key: key}, nil
}

type detailsResponse struct {
	Status string `json:"status"`
	Result struct {
		Rating           float64 `json:"rating"`
		UserRatingsTotal int     `json:"user_ratings_total"`
		Reviews          []struct {
			AuthorName string `json:"author_name"`
			Rating     int    `json:"rating"`
			Text       string `json:"text"`
			Time       int64  `json:"time"`
		} `json:"reviews"`
	} `json:"result"`
}

// PlaceDetails fetches the rating summary of placeID.
func (c *Client) PlaceDetails(ctx context.Context, placeID, locale string) (Summary, error) {
	var resp detailsResponse
	err := c.api.Do(ctx, upstream.Request{
		Path: "/place/details/json",
		Query: url.Values{
			"place_id": {placeID},
			"fields":   {"rating,user_ratings_total,reviews"},
			"language": {locale},
			"key":      {c.key},
		},
	}, &resp)
	if err != nil {
		return Summary{}, err
	}
	if resp.Status != "OK" {
		return Summary{}, &upstream.Error{
			Service: c.api.Service(),
			Kind:    upstream.KindMalformed,
			Err:     fmt.Errorf("status %q", resp.Status),
		}
	}
	summary := Summary{
		Rating:  resp.Result.Rating,
		Total:   resp.Result.UserRatingsTotal,
		Reviews: make([]Review, 0, len(resp.Result.Reviews)),
	}
	for _, r := range resp.Result.Reviews {
		summary.Reviews = append(summary.Reviews, Review{
			Author: r.AuthorName,
			Rating: r.Rating,
			Text:   strings.TrimSpace(r.Text),
			Time:   time.Unix(r.Time, 0).UTC(),
		})
	}
	return summary, nil
}

// Service serves cached summaries for one configured place.
type Service struct {
	source  Source
	cache   *cache.Cache
	placeID string
}

// NewService builds a reviews service for placeID.
func NewService(source Source, c *cache.Cache, placeID string) *Service {
	return &Service{source: source, cache: c, placeID: strings.TrimSpace(placeID)}
}

// ErrNoPlace reports a service without a configured place.
var ErrNoPlace = errors.New("reviews place is not configured")

// Summary returns the place summary for locale, best reviews first.
func (s *Service) Summary(ctx context.Context, locale string) (Summary, error) {
	if s.placeID == "" {
		return Summary{}, ErrNoPlace
	}
	req := cache.Request{
		Key:  "reviews:" + s.placeID + ":" + locale,
		Path: "/",
		Tags: []string{Tag},
		TTL:  TTL,
	}
	return cache.FetchJSON(ctx, s.cache, req, func(ctx context.Context) (Summary, error) {
		summary, err := s.source.PlaceDetails(ctx, s.placeID, locale)
		if err != nil {
			return Summary{}, err
		}
		return Top(summary, topReviews), nil
	})
}

// Top keeps the n best text reviews, highest rating then newest first.
func Top(summary Summary, n int) Summary {
	reviews := make([]Review, 0, len(summary.Reviews))
	for _, r := range summary.Reviews {
		if r.Text != "" {
			reviews = append(reviews, r)
		}
	}
	sort.SliceStable(reviews, func(i, j int) bool {
		if reviews[i].Rating != reviews[j].Rating {
			return reviews[i].Rating > reviews[j].Rating
		}
		return reviews[i].Time.After(reviews[j].Time)
	})
	if len(reviews) > n {
		reviews = reviews[:n]
	}
	summary.Reviews = reviews
	return summary
}
