package reviews

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/vitrine/internal/platform/logging"
	"github.com/louisbranch/vitrine/internal/platform/upstream"
	"github.com/louisbranch/vitrine/internal/services/site/cache"
)

const placeJSON = `{"status":"OK","result":{"rating":4.7,"user_ratings_total":128,"reviews":[
{"author_name":"A","rating":4,"text":"good","time":1700000000},
{"author_name":"B","rating":5,"text":"great","time":1690000000},
{"author_name":"C","rating":5,"text":"","time":1710000000},
{"author_name":"D","rating":5,"text":"superb","time":1700000000}]}}`

func newMaps(t *testing.T, handler http.HandlerFunc, opts ...upstream.Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]upstream.Option{upstream.WithLogger(logging.Discard())}, opts...)
	client, err := NewClient(srv.URL, "maps-key", opts...)
	require.NoError(t, err)
	return client
}

func TestPlaceDetails(t *testing.T) {
	client := newMaps(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/place/details/json", r.URL.Path)
		assert.Equal(t, "place-1", r.URL.Query().Get("place_id"))
		assert.Equal(t, "fr-FR", r.URL.Query().Get("language"))
		assert.Equal(t, "maps-key", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(placeJSON))
	})

	summary, err := client.PlaceDetails(context.Background(), "place-1", "fr-FR")
	require.NoError(t, err)
	assert.Equal(t, 4.7, summary.Rating)
	assert.Equal(t, 128, summary.Total)
	require.Len(t, summary.Reviews, 4)
	assert.True(t, summary.Reviews[0].Time.Equal(time.Unix(1700000000, 0)))
}

func TestPlaceDetailsNonOKStatusIsMalformed(t *testing.T) {
	client := newMaps(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED"}`))
	})

	_, err := client.PlaceDetails(context.Background(), "place-1", "en-US")
	assert.Equal(t, upstream.KindMalformed, upstream.KindOf(err))
}

func TestTopOrdersAndDropsEmpty(t *testing.T) {
	summary := Summary{Reviews: []Review{
		{Author: "A", Rating: 4, Text: "good", Time: time.Unix(1700000000, 0)},
		{Author: "B", Rating: 5, Text: "great", Time: time.Unix(1690000000, 0)},
		{Author: "C", Rating: 5, Time: time.Unix(1710000000, 0)},
		{Author: "D", Rating: 5, Text: "superb", Time: time.Unix(1700000000, 0)},
	}}

	top := Top(summary, 2)
	require.Len(t, top.Reviews, 2)
	assert.Equal(t, "D", top.Reviews[0].Author)
	assert.Equal(t, "B", top.Reviews[1].Author)
}

func TestServiceCachesUnderReviewsTag(t *testing.T) {
	calls := 0
	client := newMaps(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(placeJSON))
	})
	c := cache.New(cache.NewMemoryStore(), cache.WithLogger(logging.Discard()))
	svc := NewService(client, c, "place-1")
	ctx := context.Background()

	summary, err := svc.Summary(ctx, "en-US")
	require.NoError(t, err)
	assert.Len(t, summary.Reviews, 3)
	_, err = svc.Summary(ctx, "en-US")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	require.NoError(t, c.InvalidateTag(ctx, Tag))
	_, err = svc.Summary(ctx, "en-US")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestHandlerTimeoutIs504(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	client := newMaps(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, upstream.WithTimeout(20*time.Millisecond))
	svc := NewService(client, cache.New(cache.NewMemoryStore(), cache.WithLogger(logging.Discard())), "place-1")

	r := chi.NewRouter()
	New(svc, func(*http.Request) string { return "en-US" }, logging.Discard()).Register(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, Route, nil))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "site.error.upstream_timeout", resp["error"])
}

func TestHandlerWithoutPlaceIs503(t *testing.T) {
	svc := NewService(nil, cache.New(cache.NewMemoryStore()), " ")
	r := chi.NewRouter()
	New(svc, nil, nil).Register(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, Route, nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandlerServesSummary(t *testing.T) {
	client := newMaps(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(placeJSON))
	})
	svc := NewService(client, cache.New(cache.NewMemoryStore(), cache.WithLogger(logging.Discard())), "place-1")
	r := chi.NewRouter()
	New(svc, nil, logging.Discard()).Register(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, Route, nil))

	require.Equal(t, http.StatusOK, w.Code)
	var summary Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 128, summary.Total)
}
