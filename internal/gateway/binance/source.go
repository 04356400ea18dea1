package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/dort5bot/debot2/internal/logger"
	"github.com/dort5bot/debot2/internal/market"
)

// Source implements market.Source on Binance USD-M futures via the go-binance
// SDK: REST snapshots for the pollers, websocket streams for the live feed.
type Source struct {
	cfg    Config
	client *futures.Client

	mu     sync.Mutex
	cancel context.CancelFunc

	statsMu sync.Mutex
	stats   market.SourceStats
}

func New(cfg Config) *Source {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = strings.TrimSpace(final.RESTBaseURL)
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Source{cfg: final, client: client}
}

// FetchTickerSnapshot returns 24h statistics for the requested symbols.
func (s *Source) FetchTickerSnapshot(ctx context.Context, symbols []string) ([]market.TickerSnapshot, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("binance source not initialized")
	}
	wanted := symbolSet(symbols)
	stats, err := s.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.TickerSnapshot, 0, len(wanted))
	for _, st := range stats {
		if st == nil {
			continue
		}
		sym := strings.ToUpper(st.Symbol)
		if len(wanted) > 0 && !wanted[sym] {
			continue
		}
		out = append(out, market.TickerSnapshot{
			Symbol:             sym,
			LastPrice:          parseFloat(st.LastPrice),
			QuoteVolume:        parseFloat(st.QuoteVolume),
			PriceChangePercent: parseFloat(st.PriceChangePercent),
		})
	}
	return out, nil
}

// FetchFundingSnapshot returns the latest funding rate per symbol.
func (s *Source) FetchFundingSnapshot(ctx context.Context, symbols []string) (map[string]float64, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("binance source not initialized")
	}
	wanted := symbolSet(symbols)
	res, err := s.client.NewPremiumIndexService().Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(wanted))
	for _, entry := range res {
		if entry == nil {
			continue
		}
		sym := strings.ToUpper(entry.Symbol)
		if len(wanted) > 0 && !wanted[sym] {
			continue
		}
		out[sym] = parseFloat(entry.LastFundingRate)
	}
	return out, nil
}

// Subscribe starts the kline, ticker and mark-price streams and merges them
// into a single tagged event channel. The channel closes once all streams
// have shut down after ctx is cancelled.
func (s *Source) Subscribe(ctx context.Context, symbols []string, interval string, opts market.SubscribeOptions) (<-chan market.Event, error) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	mapping := make(map[string][]string)
	wanted := make(map[string]bool)
	for _, sym := range symbols {
		upper := strings.ToUpper(strings.TrimSpace(sym))
		if upper == "" {
			continue
		}
		mapping[upper] = []string{interval}
		wanted[upper] = true
	}
	if len(mapping) == 0 {
		return nil, fmt.Errorf("no valid symbols for subscription")
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 512
	}
	out := make(chan market.Event, buffer)
	subCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.runKlineLoop(subCtx, mapping, out, opts)
	}()
	go func() {
		defer wg.Done()
		s.runTickerLoop(subCtx, wanted, out)
	}()
	go func() {
		defer wg.Done()
		s.runMarkPriceLoop(subCtx, wanted, out)
	}()
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func (s *Source) runKlineLoop(ctx context.Context, mapping map[string][]string, out chan<- market.Event, opts market.SubscribeOptions) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		var errMu sync.Mutex
		var lastErr error
		handler := func(event *futures.WsKlineEvent) {
			ke, ok := convertKlineEvent(event)
			if !ok {
				return
			}
			s.emit(ctx, out, market.Event{Kind: market.KindKline, Kline: &ke})
		}
		errHandler := func(err error) {
			if err == nil {
				return
			}
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
		}
		doneC, stopC, err := futures.WsCombinedKlineServeMultiInterval(mapping, handler, errHandler)
		if err != nil {
			s.recordSubscribeError(err)
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(err)
			}
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		delay = time.Second
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}
		close(stopC)
		errMu.Lock()
		errCopy := lastErr
		errMu.Unlock()
		s.recordReconnect(errCopy)
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(errCopy)
		}
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func (s *Source) runTickerLoop(ctx context.Context, wanted map[string]bool, out chan<- market.Event) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		handler := func(events futures.WsAllMarketTickerEvent) {
			for _, ev := range events {
				te, ok := convertTickerEvent(ev)
				if !ok || !wanted[te.Symbol] {
					continue
				}
				s.emit(ctx, out, market.Event{Kind: market.KindTicker, Ticker: &te})
			}
		}
		doneC, stopC, err := futures.WsAllMarketTickerServe(handler, func(error) {})
		if !s.superviseStream(ctx, doneC, stopC, err, &delay) {
			return
		}
	}
}

func (s *Source) runMarkPriceLoop(ctx context.Context, wanted map[string]bool, out chan<- market.Event) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		handler := func(events futures.WsAllMarkPriceEvent) {
			for _, ev := range events {
				fe, ok := convertMarkPriceEvent(ev)
				if !ok || !wanted[fe.Symbol] {
					continue
				}
				s.emit(ctx, out, market.Event{Kind: market.KindFunding, Funding: &fe})
			}
		}
		doneC, stopC, err := futures.WsAllMarkPriceServe(handler, func(error) {})
		if !s.superviseStream(ctx, doneC, stopC, err, &delay) {
			return
		}
	}
}

// superviseStream waits out one stream session and schedules the reconnect
// backoff. Returns false when the loop should exit.
func (s *Source) superviseStream(ctx context.Context, doneC, stopC chan struct{}, err error, delay *time.Duration) bool {
	if err != nil {
		s.recordSubscribeError(err)
		if !sleepWithContext(ctx, *delay) {
			return false
		}
		*delay = nextDelay(*delay)
		return true
	}
	*delay = time.Second
	select {
	case <-ctx.Done():
		close(stopC)
		<-doneC
		return false
	case <-doneC:
	}
	close(stopC)
	s.recordReconnect(nil)
	if !sleepWithContext(ctx, *delay) {
		return false
	}
	*delay = nextDelay(*delay)
	return true
}

func (s *Source) emit(ctx context.Context, out chan<- market.Event, ev market.Event) {
	select {
	case <-ctx.Done():
	case out <- ev:
	default:
		logger.Warnf("[binance] event channel full, drop %s event", ev.Kind)
	}
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

func (s *Source) recordReconnect(err error) {
	s.statsMu.Lock()
	s.stats.Reconnects++
	if err != nil {
		s.stats.LastError = err.Error()
	}
	s.statsMu.Unlock()
}

func (s *Source) recordSubscribeError(err error) {
	s.statsMu.Lock()
	s.stats.SubscribeErrors++
	if err != nil {
		s.stats.LastError = err.Error()
	}
	s.statsMu.Unlock()
}

func convertKlineEvent(ev *futures.WsKlineEvent) (market.KlineEvent, bool) {
	if ev == nil {
		return market.KlineEvent{}, false
	}
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	interval := strings.ToLower(strings.TrimSpace(ev.Kline.Interval))
	if symbol == "" || interval == "" {
		return market.KlineEvent{}, false
	}
	return market.KlineEvent{
		Symbol:    symbol,
		Interval:  interval,
		Open:      parseFloat(ev.Kline.Open),
		High:      parseFloat(ev.Kline.High),
		Low:       parseFloat(ev.Kline.Low),
		Close:     parseFloat(ev.Kline.Close),
		Volume:    parseFloat(ev.Kline.Volume),
		CloseTime: ev.Kline.EndTime,
		IsClosed:  ev.Kline.IsFinal,
	}, true
}

func convertTickerEvent(ev *futures.WsMarketTickerEvent) (market.TickerEvent, bool) {
	if ev == nil {
		return market.TickerEvent{}, false
	}
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	price := parseFloat(ev.ClosePrice)
	if symbol == "" || price <= 0 {
		return market.TickerEvent{}, false
	}
	return market.TickerEvent{
		Symbol:             symbol,
		LastPrice:          price,
		PriceChangePercent: parseFloat(ev.PriceChangePercent),
		QuoteVolume:        parseFloat(ev.QuoteVolume),
		EventTime:          ev.Time,
	}, true
}

func convertMarkPriceEvent(ev *futures.WsMarkPriceEvent) (market.FundingEvent, bool) {
	if ev == nil {
		return market.FundingEvent{}, false
	}
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if symbol == "" {
		return market.FundingEvent{}, false
	}
	return market.FundingEvent{
		Symbol:          symbol,
		MarkPrice:       parseFloat(ev.MarkPrice),
		FundingRate:     parseFloat(ev.FundingRate),
		NextFundingTime: ev.NextFundingTime,
	}, true
}

func symbolSet(symbols []string) map[string]bool {
	out := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		upper := strings.ToUpper(strings.TrimSpace(sym))
		if upper != "" {
			out[upper] = true
		}
	}
	return out
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(cur time.Duration) time.Duration {
	next := cur * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
