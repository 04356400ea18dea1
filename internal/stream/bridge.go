package stream

import (
	"context"

	"github.com/dort5bot/debot2/internal/logger"
	"github.com/dort5bot/debot2/internal/market"
)

// TickerHandler and FundingHandler receive the non-kline half of the feed.
// They run synchronously on the bridge goroutine, so they must be cheap; a
// returned error is logged and swallowed so a misbehaving handler cannot
// stall ingestion.
type (
	TickerHandler  func(ev *market.TickerEvent) error
	FundingHandler func(ev *market.FundingEvent) error
)

// Bridge demultiplexes the tagged exchange feed: klines go into the bounded
// processing queue, everything else is forwarded to the handlers.
type Bridge struct {
	queue     chan market.KlineEvent
	onTicker  TickerHandler
	onFunding FundingHandler
}

func NewBridge(queueCapacity int, onTicker TickerHandler, onFunding FundingHandler) *Bridge {
	if queueCapacity <= 0 {
		queueCapacity = 1024
	}
	return &Bridge{
		queue:     make(chan market.KlineEvent, queueCapacity),
		onTicker:  onTicker,
		onFunding: onFunding,
	}
}

// Queue exposes the kline queue for the processor.
func (b *Bridge) Queue() <-chan market.KlineEvent { return b.queue }

// QueueDepth reports the number of buffered klines.
func (b *Bridge) QueueDepth() int { return len(b.queue) }

// Run routes events until ctx is cancelled or the feed closes, then closes
// the queue so the processor can drain and exit.
func (b *Bridge) Run(ctx context.Context, events <-chan market.Event) error {
	defer close(b.queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				logger.Infof("bridge: event feed closed")
				return nil
			}
			b.route(ev)
		}
	}
}

func (b *Bridge) route(ev market.Event) {
	switch ev.Kind {
	case market.KindKline:
		if ev.Kline == nil {
			logger.Warnf("bridge: kline event without payload, drop")
			return
		}
		select {
		case b.queue <- *ev.Kline:
		default:
			// Dropping beats blocking the feed reader.
			logger.Warnf("bridge: kline queue full, drop %s", ev.Kline.Symbol)
		}
	case market.KindTicker:
		if ev.Ticker == nil {
			logger.Warnf("bridge: ticker event without payload, drop")
			return
		}
		if b.onTicker != nil {
			if err := b.onTicker(ev.Ticker); err != nil {
				logger.Warnf("bridge: ticker handler failed: %v", err)
			}
		}
	case market.KindFunding:
		if ev.Funding == nil {
			logger.Warnf("bridge: funding event without payload, drop")
			return
		}
		if b.onFunding != nil {
			if err := b.onFunding(ev.Funding); err != nil {
				logger.Warnf("bridge: funding handler failed: %v", err)
			}
		}
	default:
		logger.Warnf("bridge: unknown event kind %d, drop", ev.Kind)
	}
}
