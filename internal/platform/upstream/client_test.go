package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/vitrine/internal/platform/logging"
)

type payload struct {
	Name string `json:"name"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	client, err := New("cms", srv.URL, opts...)
	require.NoError(t, err)
	return client
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New("", "http://example.com")
	require.Error(t, err)
	_, err = New("cms", "")
	require.Error(t, err)
	_, err = New("cms", "not a url")
	require.Error(t, err)
}

func TestDoDecodesJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/posts", r.URL.Path)
		assert.Equal(t, "fr-FR", r.URL.Query().Get("locale"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"name":"hello"}`))
	}, WithBearerToken("secret"))

	var out payload
	err := client.Do(context.Background(), Request{Path: "/v1/posts", Query: map[string][]string{"locale": {"fr-FR"}}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Name)
}

func TestDoSendsJSONBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusNoContent)
	})
	err := client.Do(context.Background(), Request{Method: http.MethodPost, Path: "/submit", Body: payload{Name: "x"}}, nil)
	require.NoError(t, err)
}

func TestDoReportsHTTPStatusWithBoundedSnippet(t *testing.T) {
	body := strings.Repeat("x", 4096)
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(body))
	})

	err := client.Do(context.Background(), Request{Path: "/"}, &payload{})
	require.Error(t, err)
	var upErr *Error
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, KindHTTP, upErr.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, upErr.StatusCode)
	assert.LessOrEqual(t, len(upErr.Snippet), snippetLimit)
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(err))
	assert.NotContains(t, err.Error(), "xxxx")
}

func TestDoTimesOut(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(20*time.Millisecond))
	defer close(release)

	err := client.Do(context.Background(), Request{Path: "/slow"}, &payload{})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(err))
}

func TestDoReportsCanceled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := client.Do(ctx, Request{Path: "/"}, &payload{})
	assert.Equal(t, KindCanceled, KindOf(err))
}

func TestDoRejectsMalformedBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"name":`},
		{name: "empty body", body: ``},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			})
			err := client.Do(context.Background(), Request{Path: "/"}, &payload{})
			assert.Equal(t, KindMalformed, KindOf(err))
			assert.Equal(t, http.StatusBadGateway, HTTPStatus(err))
		})
	}
}

func TestDoRejectsOversizedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name":"` + strings.Repeat("a", 64) + `"}`))
	}, WithMaxBody(16))
	err := client.Do(context.Background(), Request{Path: "/"}, &payload{})
	assert.Equal(t, KindMalformed, KindOf(err))
}

func TestDoReportsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	client, err := New("cms", addr, WithLogger(logging.Discard()))
	require.NoError(t, err)
	err = client.Do(context.Background(), Request{Path: "/"}, nil)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(err))
}

func TestHTTPStatusForPlainErrors(t *testing.T) {
	assert.Equal(t, http.StatusOK, HTTPStatus(nil))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
	assert.False(t, IsTimeout(errors.New("boom")))
	assert.Equal(t, 0, StatusCode(errors.New("boom")))
}

func TestErrorMessageOmitsSnippet(t *testing.T) {
	err := &Error{Service: "reviews", Kind: KindHTTP, StatusCode: 500, Snippet: "internal details"}
	assert.Equal(t, "reviews: upstream returned 500", err.Error())
	assert.NotContains(t, err.Error(), "internal details")
}
