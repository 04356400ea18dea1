package stream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dort5bot/debot2/internal/logger"
	"github.com/dort5bot/debot2/internal/market"
	"github.com/dort5bot/debot2/internal/signal"
	"github.com/dort5bot/debot2/internal/strategy"
)

const strategyID = "rsi_macd"

// SymbolStrategy is the per-symbol state machine the processor drives.
type SymbolStrategy interface {
	OnNewClose(close float64) *strategy.Signal
}

// Processor is the single consumer of the kline queue. It drops unclosed
// candles and unknown symbols, advances the owning strategy in strict arrival
// order and publishes any resulting signal.
type Processor struct {
	strategies map[string]SymbolStrategy
	publisher  signal.Publisher

	processed atomic.Int64
	published atomic.Int64
}

func NewProcessor(strategies map[string]SymbolStrategy, publisher signal.Publisher) *Processor {
	return &Processor{strategies: strategies, publisher: publisher}
}

// Processed reports how many closed candles advanced a strategy.
func (p *Processor) Processed() int64 { return p.processed.Load() }

// Published reports how many signals were handed to the publisher.
func (p *Processor) Published() int64 { return p.published.Load() }

// Run drains the queue until ctx is cancelled or the queue closes. The item
// in flight always finishes; items still queued at cancellation are discarded.
func (p *Processor) Run(ctx context.Context, queue <-chan market.KlineEvent) error {
	for {
		select {
		case <-ctx.Done():
			logger.Infof("processor: stopped, %d queued items discarded", len(queue))
			return nil
		default:
		}
		select {
		case <-ctx.Done():
			logger.Infof("processor: stopped, %d queued items discarded", len(queue))
			return nil
		case ev, ok := <-queue:
			if !ok {
				logger.Infof("processor: queue closed")
				return nil
			}
			p.handle(ev)
		}
	}
}

func (p *Processor) handle(ev market.KlineEvent) {
	if !ev.IsClosed {
		return
	}
	if ev.Symbol == "" || ev.Close <= 0 {
		logger.Warnf("processor: malformed kline event, drop")
		return
	}
	strat, ok := p.strategies[ev.Symbol]
	if !ok {
		logger.Debugf("processor: no strategy for %s, drop", ev.Symbol)
		return
	}
	p.processed.Add(1)
	out := strat.OnNewClose(ev.Close)
	if out == nil {
		return
	}
	sig := signal.Signal{
		ID:         uuid.NewString(),
		StrategyID: strategyID,
		Symbol:     ev.Symbol,
		Type:       out.Type,
		Strength:   out.Strength,
		Payload:    out.Payload,
		CreatedAt:  time.Now(),
	}
	if p.publisher != nil && p.publisher.Publish(sig) {
		p.published.Add(1)
	}
}
