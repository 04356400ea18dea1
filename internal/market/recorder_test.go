package market

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dort5bot/debot2/internal/cache"
)

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.NewStore(filepath.Join(t.TempDir(), "cache.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecorderWritesTickerPerSymbol(t *testing.T) {
	store := newTestStore(t)
	r := NewRecorder(store, 20, 180, 10)

	require.NoError(t, r.HandleTicker(&TickerEvent{
		Symbol: "BTCUSDT", LastPrice: 64000, PriceChangePercent: 1.2, QuoteVolume: 5e9,
	}))

	v, ok, err := store.GetLatest("ticker_live:BTCUSDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 64000.0, v.Field("last_price").Float())
	assert.Equal(t, 1.2, v.Field("price_change_percent").Float())
}

func TestRecorderWritesFundingPerSymbol(t *testing.T) {
	store := newTestStore(t)
	r := NewRecorder(store, 20, 180, 10)

	require.NoError(t, r.HandleFunding(&FundingEvent{
		Symbol: "ETHUSDT", MarkPrice: 3000, FundingRate: 0.0001,
	}))

	v, ok, err := store.GetLatest("funding_live:ETHUSDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.0001, v.Field("funding_rate").Float())
}

func TestRecorderRejectsNilEvent(t *testing.T) {
	r := NewRecorder(newTestStore(t), 20, 180, 10)
	assert.Error(t, r.HandleTicker(nil))
	assert.Error(t, r.HandleFunding(nil))
}
