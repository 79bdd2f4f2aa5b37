package strategy

import (
	"tftrader/models"

	"github.com/sirupsen/logrus"
)

// TrendFollowing opens on a fast/slow average crossover confirmed by a
// directional trend and an oversold pullback, and closes on the opposite
// crossover once the market is overbought.
type TrendFollowing struct {
	cfg    Config
	logger *logrus.Logger

	fast *EMA
	slow *EMA
	rsi  *RSI
	adx  *ADX

	prevFast float64
	prevSlow float64
	havePrev bool
}

func NewTrendFollowing(cfg Config, logger *logrus.Logger) *TrendFollowing {
	return &TrendFollowing{
		cfg:    cfg,
		logger: logger,
		fast:   NewEMA(cfg.FastPeriod),
		slow:   NewEMA(cfg.SlowPeriod),
		rsi:    NewRSI(cfg.RSIPeriod),
		adx:    NewADX(cfg.ADXPeriod),
	}
}

// Warmup primes the indicators from historical bars without emitting signals.
func (t *TrendFollowing) Warmup(klines []models.Kline) {
	for _, k := range klines {
		if !k.Closed {
			continue
		}
		t.advance(k)
	}

	t.logger.
		WithField("bars", len(klines)).
		Debug("indicators warmed up")
}

func (t *TrendFollowing) OnBar(k models.Kline) Signal {
	if !k.Closed {
		return SignalNone
	}

	fast, slow, rsi, adx, prevFast, prevSlow, ready := t.advance(k)
	if !ready {
		return SignalNone
	}

	crossedAbove := prevFast <= prevSlow && fast > slow
	crossedBelow := prevFast >= prevSlow && fast < slow

	t.logger.
		WithField("symbol", k.Symbol).
		WithField("fast", fast).
		WithField("slow", slow).
		WithField("rsi", rsi).
		WithField("adx", adx).
		Debug("bar evaluated")

	if crossedAbove && rsi < t.cfg.RSIOversold && adx > t.cfg.ADXStrength {
		return SignalOpen
	}
	if crossedBelow && rsi > t.cfg.RSIOverbought {
		return SignalClose
	}

	return SignalNone
}

// advance feeds one bar to every indicator and reports whether all of them,
// plus the previous crossover sample, are ready.
func (t *TrendFollowing) advance(k models.Kline) (fast, slow, rsi, adx, prevFast, prevSlow float64, ready bool) {
	fast, fastOK := t.fast.Update(k.ClosePrice)
	slow, slowOK := t.slow.Update(k.ClosePrice)
	rsi, rsiOK := t.rsi.Update(k.ClosePrice)
	adx, adxOK := t.adx.Update(k.HighPrice, k.LowPrice, k.ClosePrice)

	prevFast, prevSlow = t.prevFast, t.prevSlow
	hadPrev := t.havePrev

	if fastOK && slowOK {
		t.prevFast, t.prevSlow = fast, slow
		t.havePrev = true
	}

	ready = fastOK && slowOK && rsiOK && adxOK && hadPrev
	return fast, slow, rsi, adx, prevFast, prevSlow, ready
}
