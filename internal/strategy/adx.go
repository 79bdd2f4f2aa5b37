package strategy

import "math"

// ADX is the average directional index with Wilder smoothing: the true range
// and the directional movements are smoothed as s = (s*(p-1) + x) / p after
// an arithmetic seed, and the resulting DX series is smoothed the same way.
type ADX struct {
	period int

	prevHigh  float64
	prevLow   float64
	prevClose float64
	hasPrev   bool

	barCount int
	trSum    float64
	plusSum  float64
	minusSum float64

	sTR    float64
	sPlus  float64
	sMinus float64

	dxCount int
	dxSum   float64
	adx     float64
	ready   bool
}

func NewADX(period int) *ADX {
	return &ADX{period: period}
}

func (a *ADX) Update(high, low, closePrice float64) (float64, bool) {
	if !a.hasPrev {
		a.prevHigh, a.prevLow, a.prevClose = high, low, closePrice
		a.hasPrev = true
		return 0, false
	}

	tr := math.Max(high-low, math.Max(math.Abs(high-a.prevClose), math.Abs(low-a.prevClose)))

	upMove := high - a.prevHigh
	downMove := a.prevLow - low

	plusDM, minusDM := 0.0, 0.0
	if upMove > downMove && upMove > 0 {
		plusDM = upMove
	}
	if downMove > upMove && downMove > 0 {
		minusDM = downMove
	}

	a.prevHigh, a.prevLow, a.prevClose = high, low, closePrice

	p := float64(a.period)

	if a.barCount < a.period {
		a.trSum += tr
		a.plusSum += plusDM
		a.minusSum += minusDM
		a.barCount++

		if a.barCount < a.period {
			return 0, false
		}

		a.sTR = a.trSum / p
		a.sPlus = a.plusSum / p
		a.sMinus = a.minusSum / p
	} else {
		a.sTR = (a.sTR*(p-1) + tr) / p
		a.sPlus = (a.sPlus*(p-1) + plusDM) / p
		a.sMinus = (a.sMinus*(p-1) + minusDM) / p
	}

	if a.sTR == 0 {
		return 0, false
	}

	plusDI := 100 * a.sPlus / a.sTR
	minusDI := 100 * a.sMinus / a.sTR

	sum := plusDI + minusDI
	if sum == 0 {
		return 0, false
	}
	dx := 100 * math.Abs(plusDI-minusDI) / sum

	if !a.ready {
		a.dxSum += dx
		a.dxCount++
		if a.dxCount < a.period {
			return 0, false
		}
		a.adx = a.dxSum / p
		a.ready = true
		return a.adx, true
	}

	a.adx = (a.adx*(p-1) + dx) / p
	return a.adx, true
}
