package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dort5bot/debot2/internal/cache"
	"github.com/dort5bot/debot2/internal/config"
	"github.com/dort5bot/debot2/internal/gateway/binance"
	"github.com/dort5bot/debot2/internal/gateway/notifier"
	"github.com/dort5bot/debot2/internal/market"
	"github.com/dort5bot/debot2/internal/scheduler"
	sigpkg "github.com/dort5bot/debot2/internal/signal"
	"github.com/dort5bot/debot2/internal/strategy"
	"github.com/dort5bot/debot2/internal/stream"
	"github.com/dort5bot/debot2/internal/trader"
	statushttp "github.com/dort5bot/debot2/internal/transport/http"
)

// NewApp builds the full object graph from configuration. Everything is
// constructor-injected; no package-level singletons beyond the logger.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if _, ok := scheduler.ParseStreamInterval(cfg.Market.StreamInterval); !ok {
		return nil, fmt.Errorf("invalid market.stream_interval %q", cfg.Market.StreamInterval)
	}

	store, err := cache.NewStore(cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("opening cache store failed: %w", err)
	}

	source := binance.New(binance.Config{
		RESTBaseURL: cfg.Market.RESTBaseURL,
		HTTPTimeout: time.Duration(cfg.Market.HTTPTimeoutSec) * time.Second,
	})

	recorder := market.NewRecorder(store, cfg.Cache.TickerTTL, cfg.Cache.FundingTTL, cfg.Cache.MaxRows)
	bridge := stream.NewBridge(cfg.Market.QueueCapacity, recorder.HandleTicker, recorder.HandleFunding)

	strategies := make(map[string]stream.SymbolStrategy, len(cfg.Market.Symbols))
	for _, sym := range cfg.Market.Symbols {
		strategies[sym] = strategy.NewRSIMACD(sym, cfg.Strategy.Lookback, cfg.Strategy.RSIPeriod)
	}

	var decider sigpkg.Decider
	if cfg.Trading.PaperMode {
		decider = trader.NewPaper(trader.Config{
			EquityUSD:      cfg.Trading.EquityUSD,
			PositionPct:    cfg.Trading.PositionPct,
			MaxPositionUSD: cfg.Trading.MaxPositionUSD,
		})
	} else {
		decider = trader.Disabled{}
	}

	var notify notifier.TextNotifier = notifier.Noop{}
	if cfg.Notify.Telegram.Enabled {
		notify = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}

	evaluator := sigpkg.NewEvaluator(sigpkg.EvaluatorConfig{
		MinStrength:  cfg.Signal.MinStrength,
		Cooldown:     time.Duration(cfg.Signal.CooldownSeconds) * time.Second,
		LoopInterval: time.Duration(cfg.Signal.LoopSeconds) * time.Second,
	}, decider, notify, store)

	processor := stream.NewProcessor(strategies, evaluator)

	poller := scheduler.NewRunner(store, pollTasks(source, cfg)...)

	httpSrv := statushttp.NewServer(statushttp.ServerConfig{
		Addr:      cfg.App.HTTPAddr,
		Store:     store,
		Queue:     bridge,
		Processor: processor,
		Source:    source,
		CacheKeys: []string{"ticker", "funding"},
	})

	return &App{
		cfg:       cfg,
		store:     store,
		source:    source,
		bridge:    bridge,
		processor: processor,
		evaluator: evaluator,
		poller:    poller,
		httpSrv:   httpSrv,
	}, nil
}

// pollTasks declares the scheduled REST polls. Their results reach consumers
// only through the cache.
func pollTasks(source market.Source, cfg *config.Config) []scheduler.Task {
	symbols := cfg.Market.Symbols
	return []scheduler.Task{
		{
			Name:     "ticker",
			Interval: time.Duration(cfg.Poller.TickerIntervalSec) * time.Second,
			TTL:      time.Duration(cfg.Cache.TickerTTL) * time.Second,
			MaxRows:  cfg.Cache.MaxRows,
			Fetch: func(ctx context.Context) (any, error) {
				return source.FetchTickerSnapshot(ctx, symbols)
			},
		},
		{
			Name:     "funding",
			Interval: time.Duration(cfg.Poller.FundingIntervalSec) * time.Second,
			TTL:      time.Duration(cfg.Cache.FundingTTL) * time.Second,
			MaxRows:  cfg.Cache.MaxRows,
			Fetch: func(ctx context.Context) (any, error) {
				return source.FetchFundingSnapshot(ctx, symbols)
			},
		},
	}
}
