package contact

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/vitrine/internal/platform/logging"
	"github.com/louisbranch/vitrine/internal/platform/upstream"
	apperrors "github.com/louisbranch/vitrine/internal/services/site/platform/errors"
)

func TestValidate(t *testing.T) {
	valid := Message{Name: "Ada", Email: "ada@example.com", Message: "Hello"}
	require.NoError(t, valid.Validate())

	for name, msg := range map[string]Message{
		"missing name":    {Email: "ada@example.com", Message: "Hello"},
		"missing email":   {Name: "Ada", Message: "Hello"},
		"bad email":       {Name: "Ada", Email: "ada@", Message: "Hello"},
		"display email":   {Name: "Ada", Email: "Ada <ada@example.com>", Message: "Hello"},
		"missing message": {Name: "Ada", Email: "ada@example.com"},
		"long name":       {Name: strings.Repeat("a", maxNameRunes+1), Email: "ada@example.com", Message: "Hello"},
		"long message":    {Name: "Ada", Email: "ada@example.com", Message: strings.Repeat("a", maxMessageRunes+1)},
	} {
		t.Run(name, func(t *testing.T) {
			err := msg.Validate()
			require.Error(t, err)
			assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
		})
	}
}

func TestNormalizeTrims(t *testing.T) {
	msg := Message{Name: " Ada ", Email: " ada@example.com\n", Message: "\tHi "}.Normalize()
	assert.Equal(t, Message{Name: "Ada", Email: "ada@example.com", Message: "Hi"}, msg)
}

func TestMailtoURL(t *testing.T) {
	assert.Empty(t, MailtoURL("", Message{Name: "Ada"}))

	link := MailtoURL("hello@vitrine.example", Message{Name: "Ada Lovelace", Message: "Hi there & bye"})
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "mailto", parsed.Scheme)
	assert.Equal(t, "hello@vitrine.example", parsed.Opaque)
	assert.NotContains(t, parsed.RawQuery, "+")
	assert.Equal(t, "Contact: Ada Lovelace", parsed.Query().Get("subject"))
	assert.Equal(t, "Hi there & bye", parsed.Query().Get("body"))

	assert.Equal(t, "mailto:hello@vitrine.example", MailtoURL("hello@vitrine.example", Message{}))
}

func TestClientSendPostsJSON(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/hooks/contact", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL+"/hooks/contact", upstream.WithLogger(logging.Discard()))
	require.NoError(t, err)
	require.NoError(t, client.Send(context.Background(), Message{Name: "Ada", Email: "ada@example.com", Message: "Hi"}))
	assert.Equal(t, "Ada", got.Name)
}
