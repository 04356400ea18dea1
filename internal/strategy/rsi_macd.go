package strategy

import (
	"math"
	"strings"

	"github.com/markcheno/go-talib"
)

type SignalType string

const (
	Buy  SignalType = "BUY"
	Sell SignalType = "SELL"
)

// Payload carries the indicator values that triggered a signal.
type Payload struct {
	RSI      float64 `json:"rsi"`
	MACDHist float64 `json:"macd_h"`
	Price    float64 `json:"price"`
}

// Signal is the strategy's raw output. HOLD is implicit: a nil result means
// no signal, keeping the signal channel sparse.
type Signal struct {
	Type     SignalType `json:"type"`
	Strength float64    `json:"strength"`
	Payload  Payload    `json:"payload"`
}

const (
	defaultLookback  = 500
	defaultRSIPeriod = 14

	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9

	signalStrength = 0.6
)

// RSIMACD keeps a rolling window of closes for one symbol and emits a BUY or
// SELL when RSI and the MACD histogram agree. Pure state machine: no I/O,
// mutated only through OnNewClose by its single owner.
type RSIMACD struct {
	symbol    string
	lookback  int
	rsiPeriod int
	closes    []float64
}

func NewRSIMACD(symbol string, lookback, rsiPeriod int) *RSIMACD {
	if lookback <= 0 {
		lookback = defaultLookback
	}
	if rsiPeriod <= 0 {
		rsiPeriod = defaultRSIPeriod
	}
	if lookback < rsiPeriod+1 {
		lookback = rsiPeriod + 1
	}
	return &RSIMACD{
		symbol:    strings.ToUpper(strings.TrimSpace(symbol)),
		lookback:  lookback,
		rsiPeriod: rsiPeriod,
		closes:    make([]float64, 0, lookback),
	}
}

func (s *RSIMACD) Symbol() string { return s.symbol }

// WindowLen reports the current number of retained closes.
func (s *RSIMACD) WindowLen() int { return len(s.closes) }

// LastClose returns the newest close in the window, or 0 when empty.
func (s *RSIMACD) LastClose() float64 {
	if len(s.closes) == 0 {
		return 0
	}
	return s.closes[len(s.closes)-1]
}

// OnNewClose appends one authoritative close and evaluates the rule set.
// Returns nil during warm-up (< rsiPeriod+1 closes), when an indicator is
// undefined, and on every HOLD step.
func (s *RSIMACD) OnNewClose(close float64) *Signal {
	s.closes = append(s.closes, close)
	if len(s.closes) > s.lookback {
		copy(s.closes, s.closes[1:])
		s.closes = s.closes[:s.lookback]
	}
	if len(s.closes) < s.rsiPeriod+1 {
		return nil
	}

	rsiSeries := talib.Rsi(s.closes, s.rsiPeriod)
	rsi := rsiSeries[len(rsiSeries)-1]
	hist := macdHistogram(s.closes, macdFast, macdSlow, macdSignal)
	if math.IsNaN(rsi) || math.IsInf(rsi, 0) || math.IsNaN(hist) || math.IsInf(hist, 0) {
		return nil
	}

	switch {
	case rsi < 30 && hist > 0:
		return &Signal{Type: Buy, Strength: signalStrength, Payload: Payload{RSI: rsi, MACDHist: hist, Price: close}}
	case rsi > 70 && hist < 0:
		return &Signal{Type: Sell, Strength: signalStrength, Payload: Payload{RSI: rsi, MACDHist: hist, Price: close}}
	default:
		return nil
	}
}

// macdHistogram computes MACD with running EMAs seeded from the first close,
// so a freshly warmed window already yields a defined value. talib's Macd
// leaves the first slow+signal samples zeroed, which would mute the rule for
// the whole warm window.
func macdHistogram(closes []float64, fast, slow, signalPeriod int) float64 {
	fastEMA := ewma(closes, fast)
	slowEMA := ewma(closes, slow)
	macd := make([]float64, len(closes))
	for i := range macd {
		macd[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := ewma(macd, signalPeriod)
	return macd[len(macd)-1] - signalLine[len(signalLine)-1]
}

func ewma(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}
