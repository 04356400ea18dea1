package statushttp

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dort5bot/debot2/internal/cache"
	"github.com/dort5bot/debot2/internal/market"
)

type fakeQueue struct{ depth int }

func (f fakeQueue) QueueDepth() int { return f.depth }

type fakeProcessor struct{ processed, published int64 }

func (f fakeProcessor) Processed() int64 { return f.processed }
func (f fakeProcessor) Published() int64 { return f.published }

type fakeSource struct{ stats market.SourceStats }

func (f fakeSource) Stats() market.SourceStats { return f.stats }

func TestHealthz(t *testing.T) {
	srv := NewServer(ServerConfig{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())
}

func TestStatusSnapshot(t *testing.T) {
	store, err := cache.NewStore(filepath.Join(t.TempDir(), "cache.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Put("ticker", map[string]int{"n": 1}, 60, 10))

	srv := NewServer(ServerConfig{
		Store:     store,
		Queue:     fakeQueue{depth: 3},
		Processor: fakeProcessor{processed: 42, published: 2},
		Source:    fakeSource{stats: market.SourceStats{Reconnects: 1}},
		CacheKeys: []string{"ticker", "funding"},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.EqualValues(t, 3, gjson.Get(body, "queue_depth").Int())
	assert.EqualValues(t, 42, gjson.Get(body, "processed").Int())
	assert.EqualValues(t, 1, gjson.Get(body, "source.reconnects").Int())
	assert.Equal(t, "live", gjson.Get(body, "cache.ticker").String())
	assert.Equal(t, "absent", gjson.Get(body, "cache.funding").String())
}
