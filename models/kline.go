package models

import "time"

type Trend string

const (
	TrendUp     Trend = "UP"
	TrendDown   Trend = "DOWN"
	TrendMiddle Trend = "MIDDLE"
)

// Kline is one OHLCV bar. Closed is false for the in-progress bar streamed
// by the exchange; strategies only consume closed bars.
type Kline struct {
	Symbol     string    `db:"symbol"`
	Interval   string    `db:"time_frame"`
	OpenPrice  float64   `db:"open_price"`
	ClosePrice float64   `db:"close_price"`
	HighPrice  float64   `db:"max_price"`
	LowPrice   float64   `db:"min_price"`
	Volume     float64   `db:"volume"`
	OpenTime   time.Time `db:"open_time"`
	CloseTime  time.Time `db:"close_time"`
	Closed     bool      `db:"-"`
}

func (k *Kline) Trend() Trend {
	switch {
	case k.ClosePrice > k.OpenPrice:
		return TrendUp
	case k.ClosePrice < k.OpenPrice:
		return TrendDown
	default:
		return TrendMiddle
	}
}
