package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dort5bot/debot2/internal/cache"
	"github.com/dort5bot/debot2/internal/config"
	"github.com/dort5bot/debot2/internal/logger"
	"github.com/dort5bot/debot2/internal/market"
	"github.com/dort5bot/debot2/internal/scheduler"
	"github.com/dort5bot/debot2/internal/stream"
)

// App owns the wiring and the lifecycle: build everything up front, run the
// concurrent services under one errgroup, release resources on the way out.
type App struct {
	cfg       *config.Config
	store     *cache.Store
	source    market.Source
	bridge    *stream.Bridge
	processor *stream.Processor
	evaluator evaluatorService
	poller    *scheduler.Runner
	httpSrv   httpService
}

type evaluatorService interface {
	Run(ctx context.Context) error
}

type httpService interface {
	Start(ctx context.Context) error
}

// Run starts every service and blocks until ctx is cancelled and all of them
// have acknowledged termination. Remaining queued klines are discarded by the
// processor on its way out.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()

	// Warm the cache once before the periodic loops take over.
	if err := a.poller.RunOnce(ctx); err != nil {
		return fmt.Errorf("initial poll failed: %w", err)
	}

	events, err := a.source.Subscribe(ctx, a.cfg.Market.Symbols, a.cfg.Market.StreamInterval,
		market.SubscribeOptions{
			Buffer:    a.cfg.Market.EventBuffer,
			OnConnect: func() { logger.Infof("app: market stream connected") },
			OnDisconnect: func(err error) {
				logger.Warnf("app: market stream disconnected: %v", err)
			},
		})
	if err != nil {
		return fmt.Errorf("stream subscription failed: %w", err)
	}

	logger.Infof("app: services starting, symbols=%v interval=%s paper=%v",
		a.cfg.Market.Symbols, a.cfg.Market.StreamInterval, a.cfg.Trading.PaperMode)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return a.httpSrv.Start(ctx) })
	group.Go(func() error { return a.poller.RunForever(ctx) })
	group.Go(func() error { return a.evaluator.Run(ctx) })
	group.Go(func() error { return a.bridge.Run(ctx, events) })
	group.Go(func() error { return a.processor.Run(ctx, a.bridge.Queue()) })

	err = group.Wait()
	logger.Infof("app: shutdown complete")
	return err
}

func (a *App) close() {
	done := make(chan struct{})
	go func() {
		if a.source != nil {
			_ = a.source.Close()
		}
		if a.store != nil {
			_ = a.store.Close()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warnf("app: resource teardown timed out")
	}
}
