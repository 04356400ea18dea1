package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dort5bot/debot2/internal/cache"
	"github.com/dort5bot/debot2/internal/gateway/notifier"
	"github.com/dort5bot/debot2/internal/logger"
)

// EvaluatorConfig bounds how eagerly signals reach the decision stage.
type EvaluatorConfig struct {
	MinStrength  float64
	Cooldown     time.Duration
	LoopInterval time.Duration
	Buffer       int
}

func (c EvaluatorConfig) withDefaults() EvaluatorConfig {
	out := c
	if out.MinStrength <= 0 {
		out.MinStrength = 0.5
	}
	if out.Cooldown <= 0 {
		out.Cooldown = 5 * time.Minute
	}
	if out.LoopInterval <= 0 {
		out.LoopInterval = 5 * time.Second
	}
	if out.Buffer <= 0 {
		out.Buffer = 256
	}
	return out
}

// Evaluator sits between the queue processor and the decision collaborator.
// It applies a strength threshold and a per-symbol cooldown, annotates each
// qualifying signal with the latest cached funding rate, and forwards it.
// Collaborator and notifier failures are logged and swallowed.
type Evaluator struct {
	cfg     EvaluatorConfig
	decider Decider
	notify  notifier.TextNotifier
	store   *cache.Store
	ch      chan Signal
	now     func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
	funding  map[string]float64
}

func NewEvaluator(cfg EvaluatorConfig, decider Decider, notify notifier.TextNotifier, store *cache.Store) *Evaluator {
	if notify == nil {
		notify = notifier.Noop{}
	}
	final := cfg.withDefaults()
	return &Evaluator{
		cfg:      final,
		decider:  decider,
		notify:   notify,
		store:    store,
		ch:       make(chan Signal, final.Buffer),
		now:      time.Now,
		lastSent: make(map[string]time.Time),
		funding:  make(map[string]float64),
	}
}

// SetNowFunc overrides the clock. Intended for tests.
func (e *Evaluator) SetNowFunc(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Publish hands a signal to the evaluator without blocking the producer.
func (e *Evaluator) Publish(sig Signal) bool {
	select {
	case e.ch <- sig:
		return true
	default:
		logger.Warnf("evaluator: signal buffer full, drop %s %s", sig.Symbol, sig.Type)
		return false
	}
}

// Run consumes published signals until ctx is cancelled. A periodic tick at
// the configured decision-loop interval refreshes the funding context from
// the cache, so decisions carry the freshest polled data available.
func (e *Evaluator) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.LoopInterval)
	defer ticker.Stop()
	e.refreshFunding()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("evaluator: stopped")
			return nil
		case <-ticker.C:
			e.refreshFunding()
		case sig := <-e.ch:
			e.evaluate(ctx, sig)
		}
	}
}

func (e *Evaluator) evaluate(ctx context.Context, sig Signal) {
	if sig.Strength < e.cfg.MinStrength {
		logger.Debugf("evaluator: %s %s below threshold (%.2f < %.2f)",
			sig.Symbol, sig.Type, sig.Strength, e.cfg.MinStrength)
		return
	}
	now := e.now()
	e.mu.Lock()
	last, seen := e.lastSent[sig.Symbol]
	if seen && now.Sub(last) < e.cfg.Cooldown {
		e.mu.Unlock()
		logger.Debugf("evaluator: %s in cooldown, drop %s", sig.Symbol, sig.Type)
		return
	}
	e.lastSent[sig.Symbol] = now
	funding := e.funding[sig.Symbol]
	e.mu.Unlock()

	outcome, err := e.decide(ctx, sig)
	if err != nil {
		logger.Errorf("evaluator: decision for %s %s failed: %v", sig.Symbol, sig.Type, err)
		return
	}
	logger.Infof("evaluator: %s %s strength=%.2f price=%.4f funding=%.5f accepted=%v order=%s",
		sig.Symbol, sig.Type, sig.Strength, sig.Payload.Price, funding, outcome.Accepted, outcome.OrderID)

	text := fmt.Sprintf("%s %s @ %.4f (rsi=%.1f macd_h=%.4f)",
		sig.Type, sig.Symbol, sig.Payload.Price, sig.Payload.RSI, sig.Payload.MACDHist)
	if err := e.notify.SendText(text); err != nil {
		logger.Warnf("evaluator: notify failed: %v", err)
	}
}

// decide shields the core from a panicking collaborator.
func (e *Evaluator) decide(ctx context.Context, sig Signal) (out Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("decider panicked: %v", rec)
		}
	}()
	if e.decider == nil {
		return Outcome{Reason: "no decider configured"}, nil
	}
	return e.decider.ProcessDecision(ctx, sig)
}

func (e *Evaluator) refreshFunding() {
	if e.store == nil {
		return
	}
	v, ok, err := e.store.GetLatest("funding")
	if err != nil {
		logger.Warnf("evaluator: funding read failed: %v", err)
		return
	}
	if !ok {
		return
	}
	var rates map[string]float64
	if err := v.Decode(&rates); err != nil {
		// Error-shaped or legacy rows are not fatal for the loop.
		logger.Debugf("evaluator: funding payload not decodable: %v", err)
		return
	}
	e.mu.Lock()
	e.funding = rates
	e.mu.Unlock()
}
