package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is derived from confirmed fills only. NetQuantity is signed:
// positive long, negative short.
type Position struct {
	Symbol         string          `json:"symbol"`
	NetQuantity    decimal.Decimal `json:"netQuantity"`
	AvgEntryPrice  decimal.Decimal `json:"avgEntryPrice"`
	LastReconciled time.Time       `json:"lastReconciled"`
}

// ApplyFill folds a confirmed fill into the position. Increasing exposure
// moves the average entry price, reducing it leaves the average untouched.
func (p *Position) ApplyFill(side Side, qty, price decimal.Decimal) {
	if qty.IsZero() {
		return
	}

	signed := qty
	if side == SideSell {
		signed = qty.Neg()
	}

	next := p.NetQuantity.Add(signed)

	switch {
	case p.NetQuantity.IsZero():
		p.AvgEntryPrice = price
	case p.NetQuantity.Sign() == signed.Sign():
		total := p.AvgEntryPrice.Mul(p.NetQuantity.Abs()).Add(price.Mul(qty))
		p.AvgEntryPrice = total.Div(next.Abs())
	case next.IsZero():
		p.AvgEntryPrice = decimal.Zero
	case p.NetQuantity.Sign() != next.Sign():
		// flipped through zero, the remainder opened at the fill price
		p.AvgEntryPrice = price
	}

	p.NetQuantity = next
}

type Balance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// SymbolInfo carries the exchange metadata needed to build valid orders.
type SymbolInfo struct {
	Symbol      string          `json:"symbol"`
	BaseAsset   string          `json:"baseAsset"`
	QuoteAsset  string          `json:"quoteAsset"`
	StepSize    decimal.Decimal `json:"stepSize"`
	TickSize    decimal.Decimal `json:"tickSize"`
	MinNotional decimal.Decimal `json:"minNotional"`
}

type TransportStatus string

const (
	TransportDisconnected TransportStatus = "DISCONNECTED"
	TransportConnecting   TransportStatus = "CONNECTING"
	TransportConnected    TransportStatus = "CONNECTED"
	TransportResyncing    TransportStatus = "RESYNCING"
)

type ConnectionState struct {
	Status            TransportStatus `json:"status"`
	LastHeartbeatAt   time.Time       `json:"lastHeartbeatAt"`
	SubscribedStreams []string        `json:"subscribedStreams"`
	Reconnects        int64           `json:"reconnects"`
}
