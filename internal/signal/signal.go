package signal

import (
	"context"
	"time"

	"github.com/dort5bot/debot2/internal/strategy"
)

// Signal is an immutable, fully attributed strategy emission. It is consumed
// exactly once by the decision collaborator and never persisted.
type Signal struct {
	ID         string              `json:"id"`
	StrategyID string              `json:"strategy_id"`
	Symbol     string              `json:"symbol"`
	Type       strategy.SignalType `json:"type"`
	Strength   float64             `json:"strength"`
	Payload    strategy.Payload    `json:"payload"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Outcome is whatever the decision collaborator reports back. The core logs
// it and nothing else.
type Outcome struct {
	Accepted bool   `json:"accepted"`
	OrderID  string `json:"order_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Decider is the order-routing/risk stage. It is external to the core: a
// returned error is logged at the call site and never unwinds further.
type Decider interface {
	ProcessDecision(ctx context.Context, sig Signal) (Outcome, error)
}

// Publisher accepts produced signals. Publish must not block the caller;
// it reports false when the signal had to be dropped.
type Publisher interface {
	Publish(sig Signal) bool
}
