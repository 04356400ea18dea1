package market

import "context"

// EventKind tags a stream event exactly once, at the gateway boundary.
// Downstream code switches on the tag instead of probing payload fields.
type EventKind int

const (
	KindKline EventKind = iota
	KindTicker
	KindFunding
)

func (k EventKind) String() string {
	switch k {
	case KindKline:
		return "kline"
	case KindTicker:
		return "ticker"
	case KindFunding:
		return "funding"
	default:
		return "unknown"
	}
}

// KlineEvent is one candle update. Only IsClosed events carry a committed
// close; in-progress updates are informational and dropped by the processor.
type KlineEvent struct {
	Symbol    string
	Interval  string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
	IsClosed  bool
}

// TickerEvent is a 24h rolling ticker update.
type TickerEvent struct {
	Symbol             string
	LastPrice          float64
	PriceChangePercent float64
	QuoteVolume        float64
	EventTime          int64
}

// FundingEvent carries the mark price stream's funding fields.
type FundingEvent struct {
	Symbol          string
	MarkPrice       float64
	FundingRate     float64
	NextFundingTime int64
}

// Event is the tagged variant delivered by a Source subscription. Exactly one
// of the payload pointers matching Kind is non-nil.
type Event struct {
	Kind    EventKind
	Kline   *KlineEvent
	Ticker  *TickerEvent
	Funding *FundingEvent
}

// TickerSnapshot is one row of the REST 24h statistics poll.
type TickerSnapshot struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"last_price"`
	QuoteVolume        float64 `json:"quote_volume"`
	PriceChangePercent float64 `json:"price_change_percent"`
}

type SubscribeOptions struct {
	Buffer       int
	OnConnect    func()
	OnDisconnect func(error)
}

type SourceStats struct {
	Reconnects      int
	SubscribeErrors int
	LastError       string
}

// Source is the exchange-facing collaborator. The core treats it as external:
// snapshot fetches feed the scheduler, Subscribe feeds the ingestion bridge.
type Source interface {
	FetchTickerSnapshot(ctx context.Context, symbols []string) ([]TickerSnapshot, error)

	FetchFundingSnapshot(ctx context.Context, symbols []string) (map[string]float64, error)

	Subscribe(ctx context.Context, symbols []string, interval string, opts SubscribeOptions) (<-chan Event, error)

	Stats() SourceStats

	Close() error
}
