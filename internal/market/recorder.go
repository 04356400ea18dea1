package market

import (
	"fmt"

	"github.com/dort5bot/debot2/internal/cache"
)

// Recorder bridges the live (non-kline) half of the event feed into the
// cache, one key per symbol, so report readers see stream data and polled
// data through the same store.
type Recorder struct {
	store      *cache.Store
	tickerTTL  int
	fundingTTL int
	maxRows    int
}

func NewRecorder(store *cache.Store, tickerTTLSec, fundingTTLSec, maxRows int) *Recorder {
	return &Recorder{
		store:      store,
		tickerTTL:  tickerTTLSec,
		fundingTTL: fundingTTLSec,
		maxRows:    maxRows,
	}
}

func (r *Recorder) HandleTicker(ev *TickerEvent) error {
	if r == nil || r.store == nil || ev == nil {
		return fmt.Errorf("ticker recorder not initialized")
	}
	key := "ticker_live:" + ev.Symbol
	payload := map[string]any{
		"symbol":               ev.Symbol,
		"last_price":           ev.LastPrice,
		"price_change_percent": ev.PriceChangePercent,
		"quote_volume":         ev.QuoteVolume,
		"event_time":           ev.EventTime,
	}
	return r.store.Put(key, payload, r.tickerTTL, r.maxRows)
}

func (r *Recorder) HandleFunding(ev *FundingEvent) error {
	if r == nil || r.store == nil || ev == nil {
		return fmt.Errorf("funding recorder not initialized")
	}
	key := "funding_live:" + ev.Symbol
	payload := map[string]any{
		"symbol":            ev.Symbol,
		"mark_price":        ev.MarkPrice,
		"funding_rate":      ev.FundingRate,
		"next_funding_time": ev.NextFundingTime,
	}
	return r.store.Put(key, payload, r.fundingTTL, r.maxRows)
}
