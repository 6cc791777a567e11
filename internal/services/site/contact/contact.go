// Package contact forwards the site's contact form to the automation
// backend, falling back to a prepared mail link when forwarding fails.
package contact

import (
	"context"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/louisbranch/vitrine/internal/platform/upstream"
	apperrors "github.com/louisbranch/vitrine/internal/services/site/platform/errors"
)

const (
	maxNameRunes    = 200
	maxMessageRunes = 5000
)

// Message is one contact form submission.
type Message struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Normalize trims every field.
func (m Message) Normalize() Message {
	return Message{
		Name:    strings.TrimSpace(m.Name),
		Email:   strings.TrimSpace(m.Email),
		Message: strings.TrimSpace(m.Message),
	}
}

// Validate checks a normalized message.
func (m Message) Validate() error {
	switch {
	case m.Name == "":
		return apperrors.E(apperrors.KindInvalidInput, "name is required")
	case utf8.RuneCountInString(m.Name) > maxNameRunes:
		return apperrors.E(apperrors.KindInvalidInput, "name is too long")
	case m.Email == "":
		return apperrors.E(apperrors.KindInvalidInput, "email is required")
	case m.Message == "":
		return apperrors.E(apperrors.KindInvalidInput, "message is required")
	case utf8.RuneCountInString(m.Message) > maxMessageRunes:
		return apperrors.E(apperrors.KindInvalidInput, "message is too long")
	}
	parsed, err := mail.ParseAddress(m.Email)
	if err != nil || parsed.Address != m.Email {
		return apperrors.E(apperrors.KindInvalidInput, "email is invalid")
	}
	return nil
}

// Sender delivers a validated message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Client posts messages to the automation webhook.
type Client struct {
	api *upstream.Client
}

// NewClient builds a webhook client for baseURL.
func NewClient(baseURL string, opts ...upstream.Option) (*Client, error) {
	api, err := upstream.New("contact", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{api: api}, nil
}

// Send posts msg to the webhook.
func (c *Client) Send(ctx context.Context, msg Message) error {
	return c.api.Do(ctx, upstream.Request{Method: http.MethodPost, Body: msg}, nil)
}

// MailtoURL builds a mail link to address prefilled with msg. It returns ""
// without an address.
func MailtoURL(address string, msg Message) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	query := url.Values{}
	if msg.Name != "" {
		query.Set("subject", "Contact: "+msg.Name)
	}
	if msg.Message != "" {
		query.Set("body", msg.Message)
	}
	link := url.URL{Scheme: "mailto", Opaque: address}
	if len(query) > 0 {
		// Mail clients read "+" literally.
		link.RawQuery = strings.ReplaceAll(query.Encode(), "+", "%20")
	}
	return link.String()
}
