package cache

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "cache.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundtrip(t *testing.T) {
	s := newTestStore(t)

	in := map[string]any{
		"symbol": "BTCUSDT",
		"last":   64250.5,
		"nested": map[string]any{"volume": 123.0},
	}
	require.NoError(t, s.Put("ticker", in, 20, 100))

	v, ok, err := s.GetLatest("ticker")
	require.NoError(t, err)
	require.True(t, ok)

	var out map[string]any
	require.NoError(t, v.Decode(&out))
	assert.Equal(t, "BTCUSDT", out["symbol"])
	assert.Equal(t, 64250.5, out["last"])
	assert.Equal(t, 123.0, v.Field("nested.volume").Float())
}

func TestExpiryWithSimulatedClock(t *testing.T) {
	s := newTestStore(t)

	base := time.Unix(1_700_000_000, 0)
	now := base
	s.SetNowFunc(func() time.Time { return now })

	require.NoError(t, s.Put("funding", map[string]float64{"BTCUSDT": 0.0001}, 30, 100))

	_, ok, err := s.GetLatest("funding")
	require.NoError(t, err)
	assert.True(t, ok)

	now = base.Add(29 * time.Second)
	_, ok, err = s.GetLatest("funding")
	require.NoError(t, err)
	assert.True(t, ok, "entry must stay live until ts+ttl")

	now = base.Add(31 * time.Second)
	_, ok, err = s.GetLatest("funding")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must read as absent")
}

func TestTrimKeepsMostRecentRows(t *testing.T) {
	s := newTestStore(t)

	base := time.Unix(1_700_000_000, 0)
	now := base
	s.SetNowFunc(func() time.Time { return now })

	const maxRows = 5
	for i := 0; i < maxRows+1; i++ {
		now = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Put("ticker", map[string]int{"seq": i}, 3600, maxRows))
	}

	n, err := s.Rows("ticker")
	require.NoError(t, err)
	assert.EqualValues(t, maxRows, n)

	v, ok, err := s.GetLatest("ticker")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, maxRows, v.Field("seq").Int())
}

func TestPurgeExpiredSweepsAllKeys(t *testing.T) {
	s := newTestStore(t)

	base := time.Unix(1_700_000_000, 0)
	now := base
	s.SetNowFunc(func() time.Time { return now })

	require.NoError(t, s.Put("a", 1, 10, 10))
	require.NoError(t, s.Put("b", 2, 10, 10))

	now = base.Add(time.Minute)
	purged, err := s.PurgeExpired()
	require.NoError(t, err)
	assert.EqualValues(t, 2, purged)

	for _, key := range []string{"a", "b"} {
		n, err := s.Rows(key)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
}

func TestConcurrentPutsDistinctKeys(t *testing.T) {
	s := newTestStore(t)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i)
			errs[i] = s.Put(key, map[string]int{"n": i}, 60, 10)
		}(i)
	}
	wg.Wait()

	for i := 0; i < writers; i++ {
		require.NoError(t, errs[i])
		v, ok, err := s.GetLatest(fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
		require.True(t, ok)
		assert.EqualValues(t, i, v.Field("n").Int())
	}
}

func TestNonSerializableValueDegradesToString(t *testing.T) {
	s := newTestStore(t)

	// Channels have no JSON encoding; the write must still land.
	require.NoError(t, s.Put("odd", make(chan int), 60, 10))

	v, ok, err := s.GetLatest("odd")
	require.NoError(t, err)
	require.True(t, ok)
	_, isString := v.Any().(string)
	assert.True(t, isString)
}

func TestErrorShapedValueReadsBack(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Put("ticker", map[string]string{"error": "source unreachable"}, 60, 10))

	v, ok, err := s.GetLatest("ticker")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "source unreachable", v.Field("error").String())
}
