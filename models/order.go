package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderType string

const (
	TypeMarket          OrderType = "MARKET"
	TypeLimit           OrderType = "LIMIT"
	TypeLimitMaker      OrderType = "LIMIT_MAKER"
	TypeStopLossLimit   OrderType = "STOP_LOSS_LIMIT"
	TypeTakeProfitLimit OrderType = "TAKE_PROFIT_LIMIT"
)

func (t OrderType) RequiresPrice() bool {
	switch t {
	case TypeLimit, TypeLimitMaker, TypeStopLossLimit, TypeTakeProfitLimit:
		return true
	}
	return false
}

type OrderStatus string

const (
	StatusPendingSubmit   OrderStatus = "PENDING_SUBMIT"
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// statusRank orders the lifecycle; a transition never moves to a lower rank.
var statusRank = map[OrderStatus]int{
	StatusPendingSubmit:   0,
	StatusNew:             1,
	StatusPartiallyFilled: 2,
	StatusFilled:          3,
	StatusCanceled:        3,
	StatusRejected:        3,
	StatusExpired:         3,
}

// CanTransition reports whether moving from s to next keeps the lifecycle
// monotonic. Repeated PARTIALLY_FILLED reports are allowed since the filled
// quantity grows between them.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	if s == next {
		return s == StatusPartiallyFilled
	}
	return statusRank[next] >= statusRank[s]
}

// Order is the locally tracked view of an exchange order. OrderID stays zero
// until the exchange acknowledges the submission; ClientID is generated
// locally and doubles as the idempotency key.
type Order struct {
	ID             int             `db:"id" json:"-"`
	OrderID        int64           `db:"order_id" json:"orderId"`
	ClientID       string          `db:"client_id" json:"clientOrderId"`
	GroupID        string          `db:"group_id" json:"groupId,omitempty"`
	LinkedClientID string          `db:"linked_client_id" json:"linkedClientOrderId,omitempty"`
	Symbol         string          `db:"symbol" json:"symbol"`
	Side           Side            `db:"side" json:"side"`
	Type           OrderType       `db:"type" json:"type"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
	Price          decimal.Decimal `db:"price" json:"price"`
	StopPrice      decimal.Decimal `db:"stop_price" json:"stopPrice"`
	FilledQuantity decimal.Decimal `db:"filled_quantity" json:"filledQuantity"`
	Status         OrderStatus     `db:"status" json:"status"`
	UpdateID       int64           `db:"update_id" json:"-"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}

func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// OrderIntent is what the trader asks for; the connector turns it into a
// signed request and tracks the resulting Order.
type OrderIntent struct {
	Symbol    string
	Side      Side
	Type      OrderType
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	StopPrice decimal.Decimal
	ClientID  string
}
