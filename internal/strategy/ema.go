package strategy

// EMA is an incremental exponential moving average seeded with the simple
// average of its first period values.
type EMA struct {
	period int
	alpha  float64

	seedSum   float64
	seedCount int

	value float64
	ready bool
}

func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  2.0 / (float64(period) + 1),
	}
}

func (e *EMA) Update(price float64) (float64, bool) {
	if !e.ready {
		e.seedSum += price
		e.seedCount++
		if e.seedCount < e.period {
			return 0, false
		}
		e.value = e.seedSum / float64(e.period)
		e.ready = true
		return e.value, true
	}

	e.value += e.alpha * (price - e.value)
	return e.value, true
}

func (e *EMA) Value() (float64, bool) {
	return e.value, e.ready
}
