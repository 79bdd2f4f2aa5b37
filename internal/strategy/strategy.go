package strategy

import "tftrader/models"

type Signal int

const (
	SignalNone Signal = iota
	SignalOpen
	SignalClose
)

func (s Signal) String() string {
	switch s {
	case SignalOpen:
		return "open"
	case SignalClose:
		return "close"
	default:
		return "none"
	}
}

//go:generate mockery --case=snake --name=Source

// Source turns a candlestick series into entry and exit signals. Warmup
// primes the indicators from history so live bars produce signals
// immediately; OnBar consumes one closed bar at a time.
type Source interface {
	Warmup(klines []models.Kline)
	OnBar(k models.Kline) Signal
}

// Config holds the indicator periods and thresholds of the trend-following
// rule.
type Config struct {
	FastPeriod int
	SlowPeriod int
	RSIPeriod  int
	ADXPeriod  int

	ADXStrength   float64
	RSIOverbought float64
	RSIOversold   float64
}

func DefaultConfig() Config {
	return Config{
		FastPeriod:    20,
		SlowPeriod:    50,
		RSIPeriod:     14,
		ADXPeriod:     20,
		ADXStrength:   25,
		RSIOverbought: 70,
		RSIOversold:   30,
	}
}
