package site

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/vitrine/internal/platform/logging"
	"github.com/louisbranch/vitrine/internal/services/site/cache"
)

func TestNewServerValidates(t *testing.T) {
	_, err := NewServer("", http.NotFoundHandler(), nil, nil)
	require.Error(t, err)

	_, err = NewServer("localhost:0", nil, nil, nil)
	require.Error(t, err)
}

func TestServerServesUntilCanceled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	c := cache.New(cache.NewMemoryStore(), cache.WithLogger(logging.Discard()))
	server, err := NewServer("127.0.0.1:0", handler, c, logging.Discard())
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
