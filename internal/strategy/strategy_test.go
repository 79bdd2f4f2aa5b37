package strategy_test

import (
	"testing"

	"tftrader/internal/strategy"
	"tftrader/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMASeedsWithSimpleAverage(t *testing.T) {
	ema := strategy.NewEMA(3)

	_, ok := ema.Update(1)
	assert.False(t, ok)
	_, ok = ema.Update(2)
	assert.False(t, ok)

	v, ok := ema.Update(3)
	require.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-9)

	// alpha = 2/(3+1) = 0.5
	v, _ = ema.Update(4)
	assert.InDelta(t, 3.0, v, 1e-9)
	v, _ = ema.Update(5)
	assert.InDelta(t, 4.0, v, 1e-9)
}

func TestRSISlidingWindow(t *testing.T) {
	rsi := strategy.NewRSI(2)

	_, ok := rsi.Update(1)
	assert.False(t, ok)
	_, ok = rsi.Update(2)
	assert.False(t, ok)

	// two gains, no losses
	v, ok := rsi.Update(3)
	require.True(t, ok)
	assert.InDelta(t, 100.0, v, 1e-9)

	// a 2-point loss slides out a 1-point gain: avgGain 0.5, avgLoss 1
	v, ok = rsi.Update(1)
	require.True(t, ok)
	assert.InDelta(t, 100.0/3.0, v, 1e-6)
}

func TestADXRisesInSteadyTrend(t *testing.T) {
	adx := strategy.NewADX(2)

	var v float64
	var ok bool
	for i := 0; i < 8; i++ {
		base := 100.0 + float64(i)
		v, ok = adx.Update(base+1, base-1, base)
	}

	require.True(t, ok)
	assert.Greater(t, v, 90.0)
}

func bars(closes ...float64) []models.Kline {
	out := make([]models.Kline, 0, len(closes))
	for _, c := range closes {
		out = append(out, models.Kline{
			Symbol:     "BTCUSDT",
			Interval:   "1m",
			ClosePrice: c,
			HighPrice:  c + 1,
			LowPrice:   c - 1,
			Closed:     true,
		})
	}
	return out
}

func testConfig() strategy.Config {
	return strategy.Config{
		FastPeriod:    2,
		SlowPeriod:    3,
		RSIPeriod:     2,
		ADXPeriod:     2,
		ADXStrength:   0,
		RSIOversold:   101, // isolate the crossover condition
		RSIOverbought: -1,
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestTrendFollowingOpensOnCrossAbove(t *testing.T) {
	s := strategy.NewTrendFollowing(testConfig(), quietLogger())

	s.Warmup(bars(100, 99, 98, 97, 96, 95))

	var signals []strategy.Signal
	for _, k := range bars(100, 106, 112) {
		signals = append(signals, s.OnBar(k))
	}

	assert.Contains(t, signals, strategy.SignalOpen)
	assert.NotContains(t, signals, strategy.SignalClose)
}

func TestTrendFollowingClosesOnCrossBelow(t *testing.T) {
	s := strategy.NewTrendFollowing(testConfig(), quietLogger())

	s.Warmup(bars(100, 99, 98, 97, 96, 95, 100, 106, 112))

	var signals []strategy.Signal
	for _, k := range bars(100, 90, 80) {
		signals = append(signals, s.OnBar(k))
	}

	assert.Contains(t, signals, strategy.SignalClose)
}

func TestTrendFollowingIgnoresOpenBars(t *testing.T) {
	s := strategy.NewTrendFollowing(testConfig(), quietLogger())
	s.Warmup(bars(100, 99, 98, 97, 96, 95))

	k := bars(200)[0]
	k.Closed = false

	assert.Equal(t, strategy.SignalNone, s.OnBar(k))
}

func TestSignalString(t *testing.T) {
	assert.Equal(t, "open", strategy.SignalOpen.String())
	assert.Equal(t, "close", strategy.SignalClose.String())
	assert.Equal(t, "none", strategy.SignalNone.String())
}
