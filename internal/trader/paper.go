package trader

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dort5bot/debot2/internal/logger"
	"github.com/dort5bot/debot2/internal/signal"
	"github.com/dort5bot/debot2/internal/strategy"
)

// Config sizes paper positions.
type Config struct {
	EquityUSD      float64
	PositionPct    float64
	MaxPositionUSD float64
}

type position struct {
	qty   decimal.Decimal
	entry decimal.Decimal
}

// Paper is the decision collaborator in paper mode: it fills every accepted
// signal against its own ledger at the signal price. Nothing leaves the
// process.
type Paper struct {
	cfg Config

	mu        sync.Mutex
	equity    decimal.Decimal
	positions map[string]position
	orderSeq  int
}

func NewPaper(cfg Config) *Paper {
	if cfg.EquityUSD <= 0 {
		cfg.EquityUSD = 10_000
	}
	if cfg.PositionPct <= 0 || cfg.PositionPct > 1 {
		cfg.PositionPct = 0.05
	}
	if cfg.MaxPositionUSD <= 0 {
		cfg.MaxPositionUSD = 2_000
	}
	return &Paper{
		cfg:       cfg,
		equity:    decimal.NewFromFloat(cfg.EquityUSD),
		positions: make(map[string]position),
	}
}

// Equity returns current paper equity (starting capital plus realized PnL).
func (p *Paper) Equity() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.equity
}

// OpenPositions returns the number of symbols with a live paper position.
func (p *Paper) OpenPositions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.positions)
}

// ProcessDecision fills a BUY as a long entry and a SELL as a close of any
// long on that symbol. A SELL with no position is rejected rather than
// shorted; the core only logs the outcome either way.
func (p *Paper) ProcessDecision(_ context.Context, sig signal.Signal) (signal.Outcome, error) {
	price := decimal.NewFromFloat(sig.Payload.Price)
	if price.LessThanOrEqual(decimal.Zero) {
		return signal.Outcome{}, fmt.Errorf("signal %s has no usable price", sig.ID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch sig.Type {
	case strategy.Buy:
		if _, open := p.positions[sig.Symbol]; open {
			return signal.Outcome{Reason: "position already open"}, nil
		}
		stake := p.stake()
		qty := stake.Div(price).Round(6)
		if qty.LessThanOrEqual(decimal.Zero) {
			return signal.Outcome{Reason: "stake too small"}, nil
		}
		p.positions[sig.Symbol] = position{qty: qty, entry: price}
		p.orderSeq++
		id := fmt.Sprintf("paper-%d", p.orderSeq)
		logger.Infof("paper: open %s qty=%s entry=%s", sig.Symbol, qty, price)
		return signal.Outcome{Accepted: true, OrderID: id, Reason: "filled"}, nil

	case strategy.Sell:
		pos, open := p.positions[sig.Symbol]
		if !open {
			return signal.Outcome{Reason: "no position to close"}, nil
		}
		pnl := price.Sub(pos.entry).Mul(pos.qty)
		p.equity = p.equity.Add(pnl)
		delete(p.positions, sig.Symbol)
		p.orderSeq++
		id := fmt.Sprintf("paper-%d", p.orderSeq)
		logger.Infof("paper: close %s qty=%s exit=%s pnl=%s equity=%s",
			sig.Symbol, pos.qty, price, pnl, p.equity)
		return signal.Outcome{Accepted: true, OrderID: id, Reason: "closed"}, nil

	default:
		return signal.Outcome{}, fmt.Errorf("unknown signal type %q", sig.Type)
	}
}

func (p *Paper) stake() decimal.Decimal {
	stake := p.equity.Mul(decimal.NewFromFloat(p.cfg.PositionPct))
	maxStake := decimal.NewFromFloat(p.cfg.MaxPositionUSD)
	if stake.GreaterThan(maxStake) {
		return maxStake
	}
	return stake
}

// Disabled rejects everything; it stands in when trading is switched off so
// the evaluator still has a collaborator to talk to.
type Disabled struct{}

func (Disabled) ProcessDecision(context.Context, signal.Signal) (signal.Outcome, error) {
	return signal.Outcome{Reason: "trading disabled"}, nil
}
