package strategy

// RSI is the relative strength index over a sliding window of price deltas.
// The averages slide arithmetically: the leaving delta is replaced by the
// entering one.
type RSI struct {
	period int

	prev    float64
	hasPrev bool

	gains  []float64
	losses []float64
	idx    int
	count  int

	avgGain float64
	avgLoss float64
}

func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		gains:  make([]float64, period),
		losses: make([]float64, period),
	}
}

func (r *RSI) Update(price float64) (float64, bool) {
	if !r.hasPrev {
		r.prev = price
		r.hasPrev = true
		return 0, false
	}

	delta := price - r.prev
	r.prev = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count < r.period {
		r.gains[r.idx] = gain
		r.losses[r.idx] = loss
		r.idx = (r.idx + 1) % r.period
		r.count++

		if r.count < r.period {
			return 0, false
		}

		for i := 0; i < r.period; i++ {
			r.avgGain += r.gains[i]
			r.avgLoss += r.losses[i]
		}
		r.avgGain /= float64(r.period)
		r.avgLoss /= float64(r.period)

		return r.value(), true
	}

	r.avgGain += (gain - r.gains[r.idx]) / float64(r.period)
	r.avgLoss += (loss - r.losses[r.idx]) / float64(r.period)
	r.gains[r.idx] = gain
	r.losses[r.idx] = loss
	r.idx = (r.idx + 1) % r.period

	return r.value(), true
}

func (r *RSI) value() float64 {
	if r.avgLoss == 0 {
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}
