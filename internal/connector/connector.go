package connector

import (
	"context"

	"tftrader/models"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	// EventResync carries a fresh authoritative snapshot; consumers replace
	// their local state wholesale before trusting further deltas.
	EventResync      EventType = "RESYNC"
	EventOrderUpdate EventType = "ORDER_UPDATE"
	EventBalance     EventType = "BALANCE"
	EventKline       EventType = "KLINE"
)

// Event is a normalized account or market update. UpdateID is monotonic per
// symbol and is compared against the snapshot as-of id to discard stale deltas.
type Event struct {
	Type     EventType
	UpdateID int64
	Symbol   string

	Order     *models.Order
	FillPrice decimal.Decimal
	Balances  []models.Balance
	Kline     *models.Kline

	SnapshotOrders []models.Order
}

//go:generate mockery --case=snake --name=Connector

// Connector is the exchange-agnostic capability interface. One implementation
// exists per exchange; the OCO emulation path in the lifecycle package is only
// exercised when SupportsNativeOCO reports false.
type Connector interface {
	Start(ctx context.Context) error
	Stop()

	SymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error)
	Balances(ctx context.Context) ([]models.Balance, error)
	OpenOrders(ctx context.Context, symbol string) ([]models.Order, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Kline, error)

	PlaceOrder(ctx context.Context, intent models.OrderIntent) (*models.Order, error)
	PlaceOCO(ctx context.Context, primary, sibling models.OrderIntent) ([]models.Order, error)
	CancelOrder(ctx context.Context, symbol, clientID string) error
	QueryOrder(ctx context.Context, symbol, clientID string) (*models.Order, error)

	Subscribe(symbol, interval string) <-chan Event
	SupportsNativeOCO() bool
	State() models.ConnectionState
}
