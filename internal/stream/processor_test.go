package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dort5bot/debot2/internal/market"
	"github.com/dort5bot/debot2/internal/signal"
	"github.com/dort5bot/debot2/internal/strategy"
)

type recordingStrategy struct {
	mu     sync.Mutex
	closes []float64
	emit   *strategy.Signal
	block  chan struct{}
}

func (r *recordingStrategy) OnNewClose(close float64) *strategy.Signal {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.closes = append(r.closes, close)
	r.mu.Unlock()
	return r.emit
}

func (r *recordingStrategy) seen() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.closes))
	copy(out, r.closes)
	return out
}

type collectingPublisher struct {
	mu   sync.Mutex
	sigs []signal.Signal
}

func (c *collectingPublisher) Publish(sig signal.Signal) bool {
	c.mu.Lock()
	c.sigs = append(c.sigs, sig)
	c.mu.Unlock()
	return true
}

func (c *collectingPublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sigs)
}

func runProcessor(t *testing.T, p *Processor, queue chan market.KlineEvent, events []market.KlineEvent) {
	t.Helper()
	for _, ev := range events {
		queue <- ev
	}
	close(queue)
	require.NoError(t, p.Run(context.Background(), queue))
}

func TestUnclosedCandlesNeverAdvanceState(t *testing.T) {
	strat := &recordingStrategy{}
	p := NewProcessor(map[string]SymbolStrategy{"BTCUSDT": strat}, &collectingPublisher{})

	queue := make(chan market.KlineEvent, 8)
	runProcessor(t, p, queue, []market.KlineEvent{
		{Symbol: "BTCUSDT", Close: 100, IsClosed: false},
		{Symbol: "BTCUSDT", Close: 101, IsClosed: false},
		{Symbol: "BTCUSDT", Close: 102, IsClosed: true},
	})

	assert.Equal(t, []float64{102}, strat.seen())
	assert.EqualValues(t, 1, p.Processed())
}

func TestUnknownSymbolIsDroppedWithoutError(t *testing.T) {
	strat := &recordingStrategy{}
	p := NewProcessor(map[string]SymbolStrategy{"BTCUSDT": strat}, &collectingPublisher{})

	queue := make(chan market.KlineEvent, 8)
	runProcessor(t, p, queue, []market.KlineEvent{
		{Symbol: "DOGEUSDT", Close: 0.1, IsClosed: true},
		{Symbol: "BTCUSDT", Close: 100, IsClosed: true},
	})

	assert.Equal(t, []float64{100}, strat.seen())
}

func TestSignalsArePublishedWithAttribution(t *testing.T) {
	strat := &recordingStrategy{emit: &strategy.Signal{
		Type: strategy.Buy, Strength: 0.6,
		Payload: strategy.Payload{RSI: 22, MACDHist: 0.3, Price: 100},
	}}
	pub := &collectingPublisher{}
	p := NewProcessor(map[string]SymbolStrategy{"BTCUSDT": strat}, pub)

	queue := make(chan market.KlineEvent, 2)
	runProcessor(t, p, queue, []market.KlineEvent{
		{Symbol: "BTCUSDT", Close: 100, IsClosed: true},
	})

	require.Equal(t, 1, pub.count())
	sig := pub.sigs[0]
	assert.NotEmpty(t, sig.ID)
	assert.Equal(t, "rsi_macd", sig.StrategyID)
	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.Equal(t, strategy.Buy, sig.Type)
	assert.Equal(t, 0.6, sig.Strength)
	assert.EqualValues(t, 1, p.Published())
}

func TestArrivalOrderIsPreservedPerSymbol(t *testing.T) {
	strat := &recordingStrategy{}
	p := NewProcessor(map[string]SymbolStrategy{"BTCUSDT": strat}, &collectingPublisher{})

	const n = 1000
	queue := make(chan market.KlineEvent, n)
	events := make([]market.KlineEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, market.KlineEvent{Symbol: "BTCUSDT", Close: float64(i + 1), IsClosed: true})
	}
	runProcessor(t, p, queue, events)

	seen := strat.seen()
	require.Len(t, seen, n, "no drops within queue capacity")
	for i, c := range seen {
		require.Equal(t, float64(i+1), c, "reordered at index %d", i)
	}
}

func TestCancelFinishesInFlightItemOnly(t *testing.T) {
	release := make(chan struct{})
	strat := &recordingStrategy{block: release}
	p := NewProcessor(map[string]SymbolStrategy{"BTCUSDT": strat}, &collectingPublisher{})

	queue := make(chan market.KlineEvent, 4)
	for i := 0; i < 3; i++ {
		queue <- market.KlineEvent{Symbol: "BTCUSDT", Close: float64(100 + i), IsClosed: true}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, queue) }()

	// Wait for the first item to be in flight, then request shutdown.
	assert.Eventually(t, func() bool { return len(queue) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	release <- struct{}{}
	close(release)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("processor did not stop after cancel")
	}

	assert.Equal(t, []float64{100}, strat.seen(), "in-flight item finishes, the rest is discarded")
}
