// Package checkout starts a payment session for a formation and sends the
// visitor to the provider's hosted page.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/louisbranch/vitrine/internal/platform/timeouts"
	"github.com/louisbranch/vitrine/internal/platform/upstream"
)

// ErrAlreadyEnrolled reports a signed-in customer who already bought the
// formation.
var ErrAlreadyEnrolled = errors.New("already enrolled")

// SessionRequest asks the provider for a hosted checkout session.
type SessionRequest struct {
	Formation     string `json:"formation"`
	CustomerToken string `json:"customerToken,omitempty"`
	SuccessURL    string `json:"successUrl"`
	CancelURL     string `json:"cancelUrl"`
	Locale        string `json:"locale,omitempty"`
}

// Session is a created checkout session.
type Session struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url"`
}

// Provider creates checkout sessions.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

// Client talks to the payments provider.
type Client struct {
	api *upstream.Client
}

// NewClient builds a payments client authenticated with key.
func NewClient(baseURL, key string, opts ...upstream.Option) (*Client, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("payments key is required")
	}
	opts = append([]upstream.Option{upstream.WithTimeout(timeouts.UpstreamCheckout)}, opts...)
	opts = append(opts, upstream.WithBearerToken(key))
	api, err := upstream.New("payments", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{api: api}, nil
}

// CreateSession creates a hosted checkout session. A 409 from the provider
// maps to ErrAlreadyEnrolled.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	var session Session
	err := c.api.Do(ctx, upstream.Request{
		Method: http.MethodPost,
		Path:   "/checkout/sessions",
		Body:   req,
	}, &session)
	if upstream.StatusCode(err) == http.StatusConflict {
		return Session{}, ErrAlreadyEnrolled
	}
	if err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(session.URL) == "" {
		return Session{}, &upstream.Error{Service: c.api.Service(), Kind: upstream.KindMalformed, Err: errors.New("session url missing")}
	}
	return session, nil
}

var _ Provider = (*Client)(nil)
