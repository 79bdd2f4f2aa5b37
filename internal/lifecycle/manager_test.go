package lifecycle_test

import (
	"context"
	"sync"
	"testing"

	"tftrader/internal/connector"
	"tftrader/internal/lifecycle"
	"tftrader/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn scripts order placement outcomes for lifecycle tests.
type fakeConn struct {
	mu        sync.Mutex
	nativeOCO bool

	placed       []models.OrderIntent
	canceled     []string
	failType     models.OrderType
	cancelErr    map[string]error
	queryResults map[string]*models.Order
	nextID       int64
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		cancelErr:    make(map[string]error),
		queryResults: make(map[string]*models.Order),
	}
}

func (c *fakeConn) PlaceOrder(ctx context.Context, intent models.OrderIntent) (*models.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failType != "" && intent.Type == c.failType {
		return nil, &models.ExchangeError{Code: models.CodeOrderRejected, Msg: "rejected"}
	}

	c.placed = append(c.placed, intent)
	c.nextID++

	order := &models.Order{
		OrderID:  c.nextID,
		ClientID: intent.ClientID,
		Symbol:   intent.Symbol,
		Side:     intent.Side,
		Type:     intent.Type,
		Quantity: intent.Quantity,
		Price:    intent.Price,
		Status:   models.StatusNew,
		UpdateID: c.nextID,
	}

	if intent.Type == models.TypeMarket {
		order.Status = models.StatusFilled
		order.FilledQuantity = intent.Quantity
		order.Price = decimal.NewFromInt(100)
	}

	return order, nil
}

func (c *fakeConn) CancelOrder(ctx context.Context, symbol, clientID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err, ok := c.cancelErr[clientID]; ok {
		return err
	}
	c.canceled = append(c.canceled, clientID)
	return nil
}

func (c *fakeConn) QueryOrder(ctx context.Context, symbol, clientID string) (*models.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o, ok := c.queryResults[clientID]; ok {
		return o, nil
	}
	return nil, &models.ExchangeError{Code: models.CodeOrderNotFound, Msg: "not found"}
}

func (c *fakeConn) PlaceOCO(ctx context.Context, primary, sibling models.OrderIntent) ([]models.Order, error) {
	return nil, errors.New("native pairs not scripted")
}

func (c *fakeConn) Start(ctx context.Context) error { return nil }
func (c *fakeConn) Stop()                           {}
func (c *fakeConn) SupportsNativeOCO() bool         { return c.nativeOCO }

func (c *fakeConn) SymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error) {
	return &models.SymbolInfo{Symbol: symbol}, nil
}
func (c *fakeConn) Balances(ctx context.Context) ([]models.Balance, error)  { return nil, nil }
func (c *fakeConn) OpenOrders(context.Context, string) ([]models.Order, error) {
	return nil, nil
}
func (c *fakeConn) Klines(context.Context, string, string, int) ([]models.Kline, error) {
	return nil, nil
}
func (c *fakeConn) Subscribe(symbol, interval string) <-chan connector.Event { return nil }
func (c *fakeConn) State() models.ConnectionState                           { return models.ConnectionState{} }

func (c *fakeConn) canceledIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.canceled...)
}

func newManager(conn *fakeConn) *lifecycle.Manager {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return lifecycle.NewManager(conn, nil, decimal.RequireFromString("0.0001"), logger)
}

func intents() (entry, tp, sl models.OrderIntent) {
	qty := decimal.NewFromInt(1)
	entry = models.OrderIntent{
		Symbol: "BTCUSDT", Side: models.SideBuy, Type: models.TypeMarket,
		Quantity: qty, ClientID: "entry-1",
	}
	tp = models.OrderIntent{
		Symbol: "BTCUSDT", Side: models.SideSell, Type: models.TypeLimitMaker,
		Quantity: qty, Price: decimal.NewFromInt(110), ClientID: "tp-1",
	}
	sl = models.OrderIntent{
		Symbol: "BTCUSDT", Side: models.SideSell, Type: models.TypeStopLossLimit,
		Quantity: qty, Price: decimal.NewFromInt(95), StopPrice: decimal.NewFromInt(96),
		ClientID: "sl-1",
	}
	return entry, tp, sl
}

func TestEnterWithProtectionEmulated(t *testing.T) {
	conn := newFakeConn()
	m := newManager(conn)
	entry, tp, sl := intents()

	order, err := m.EnterWithProtection(context.Background(), entry, tp, sl)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, order.Status)

	require.Len(t, conn.placed, 3)

	pos := m.Position("BTCUSDT")
	assert.Equal(t, "1", pos.NetQuantity.String())
	assert.Equal(t, "100", pos.AvgEntryPrice.String())

	assert.True(t, m.HasProtection("BTCUSDT"))

	tpOrder, ok := m.Order("tp-1")
	require.True(t, ok)
	slOrder, ok := m.Order("sl-1")
	require.True(t, ok)
	assert.Equal(t, tpOrder.GroupID, slOrder.GroupID)
	assert.Equal(t, "sl-1", tpOrder.LinkedClientID)
	assert.Equal(t, "tp-1", slOrder.LinkedClientID)
}

func TestProtectionFailureCancelsLoneLeg(t *testing.T) {
	conn := newFakeConn()
	conn.failType = models.TypeStopLossLimit

	m := newManager(conn)
	entry, tp, sl := intents()

	_, err := m.EnterWithProtection(context.Background(), entry, tp, sl)
	require.Error(t, err)

	// take-profit leg must not survive its sibling's failure
	assert.Contains(t, conn.canceledIDs(), "tp-1")
	assert.False(t, m.HasProtection("BTCUSDT"))

	_, ok := m.Order("tp-1")
	assert.False(t, ok)
}

func TestFilledLegCancelsSibling(t *testing.T) {
	conn := newFakeConn()
	m := newManager(conn)
	entry, tp, sl := intents()

	_, err := m.EnterWithProtection(context.Background(), entry, tp, sl)
	require.NoError(t, err)

	m.Apply(context.Background(), connector.Event{
		Type:   connector.EventOrderUpdate,
		Symbol: "BTCUSDT",
		Order: &models.Order{
			ClientID: "tp-1", Symbol: "BTCUSDT", Side: models.SideSell,
			Type: models.TypeLimitMaker, Quantity: decimal.NewFromInt(1),
			FilledQuantity: decimal.NewFromInt(1), Status: models.StatusFilled,
			UpdateID: 500,
		},
		FillPrice: decimal.NewFromInt(110),
	})

	assert.Contains(t, conn.canceledIDs(), "sl-1")

	// exit fill flattens the position
	pos := m.Position("BTCUSDT")
	assert.True(t, pos.NetQuantity.IsZero())

	m.Apply(context.Background(), connector.Event{
		Type:   connector.EventOrderUpdate,
		Symbol: "BTCUSDT",
		Order: &models.Order{
			ClientID: "sl-1", Symbol: "BTCUSDT", Side: models.SideSell,
			Type: models.TypeStopLossLimit, Quantity: decimal.NewFromInt(1),
			Status: models.StatusCanceled, UpdateID: 501,
		},
	})

	assert.False(t, m.HasProtection("BTCUSDT"))
}

func TestSiblingAlreadyGoneTreatedAsResolved(t *testing.T) {
	conn := newFakeConn()
	m := newManager(conn)
	entry, tp, sl := intents()

	_, err := m.EnterWithProtection(context.Background(), entry, tp, sl)
	require.NoError(t, err)

	conn.cancelErr["sl-1"] = &models.ExchangeError{Code: models.CodeCancelRejected, Msg: "Unknown order sent."}
	conn.queryResults["sl-1"] = &models.Order{
		ClientID: "sl-1", Symbol: "BTCUSDT", Status: models.StatusFilled,
	}

	m.Apply(context.Background(), connector.Event{
		Type:   connector.EventOrderUpdate,
		Symbol: "BTCUSDT",
		Order: &models.Order{
			ClientID: "tp-1", Symbol: "BTCUSDT", Side: models.SideSell,
			Type: models.TypeLimitMaker, Quantity: decimal.NewFromInt(1),
			FilledQuantity: decimal.NewFromInt(1), Status: models.StatusFilled,
			UpdateID: 500,
		},
		FillPrice: decimal.NewFromInt(110),
	})

	// no cancel recorded, no panic; group resolves once the sibling's
	// terminal update arrives
	assert.NotContains(t, conn.canceledIDs(), "sl-1")
}

func TestOutOfOrderTransitionDropped(t *testing.T) {
	conn := newFakeConn()
	m := newManager(conn)

	newOrder := func(status models.OrderStatus, filled string, updateID int64) *models.Order {
		return &models.Order{
			ClientID: "c-1", Symbol: "BTCUSDT", Side: models.SideBuy,
			Type: models.TypeLimit, Quantity: decimal.NewFromInt(1),
			Price:          decimal.NewFromInt(100),
			FilledQuantity: decimal.RequireFromString(filled),
			Status:         status, UpdateID: updateID,
		}
	}

	ctx := context.Background()
	m.Apply(ctx, connector.Event{Type: connector.EventOrderUpdate, Symbol: "BTCUSDT", Order: newOrder(models.StatusNew, "0", 1)})
	m.Apply(ctx, connector.Event{
		Type: connector.EventOrderUpdate, Symbol: "BTCUSDT",
		Order: newOrder(models.StatusFilled, "1", 3), FillPrice: decimal.NewFromInt(100),
	})

	pos := m.Position("BTCUSDT")
	require.Equal(t, "1", pos.NetQuantity.String())

	// late partial fill must not move the position again
	m.Apply(ctx, connector.Event{
		Type: connector.EventOrderUpdate, Symbol: "BTCUSDT",
		Order: newOrder(models.StatusPartiallyFilled, "0.5", 2), FillPrice: decimal.NewFromInt(100),
	})

	pos = m.Position("BTCUSDT")
	assert.Equal(t, "1", pos.NetQuantity.String())

	order, ok := m.Order("c-1")
	require.True(t, ok)
	assert.Equal(t, models.StatusFilled, order.Status)
}

func TestSnapshotRebuildsGroupsAndDegradesLostLeg(t *testing.T) {
	conn := newFakeConn()
	m := newManager(conn)

	qty := decimal.NewFromInt(1)
	snapshot := []models.Order{
		{ClientID: "a-tp", GroupID: "g1", Symbol: "BTCUSDT", Side: models.SideSell, Type: models.TypeLimitMaker, Quantity: qty, Status: models.StatusNew, UpdateID: 10},
		{ClientID: "a-sl", GroupID: "g1", Symbol: "BTCUSDT", Side: models.SideSell, Type: models.TypeStopLossLimit, Quantity: qty, Status: models.StatusNew, UpdateID: 10},
		{ClientID: "b-tp", GroupID: "g2", Symbol: "BTCUSDT", Side: models.SideSell, Type: models.TypeLimitMaker, Quantity: qty, Status: models.StatusNew, UpdateID: 10},
	}

	m.Apply(context.Background(), connector.Event{
		Type:           connector.EventResync,
		Symbol:         "BTCUSDT",
		UpdateID:       10,
		SnapshotOrders: snapshot,
		Balances:       []models.Balance{{Asset: "USDT", Free: decimal.NewFromInt(500)}},
	})

	assert.Len(t, m.OpenOrders("BTCUSDT"), 3)
	assert.True(t, m.HasProtection("BTCUSDT"))

	aTP, ok := m.Order("a-tp")
	require.True(t, ok)
	assert.Equal(t, "a-sl", aTP.LinkedClientID)

	// g2 lost its sibling; the survivor continues unpaired
	bTP, ok := m.Order("b-tp")
	require.True(t, ok)
	assert.Empty(t, bTP.GroupID)
	assert.Empty(t, bTP.LinkedClientID)

	assert.Equal(t, "500", m.Balance("USDT").Free.String())
}

func TestSnapshotReplacesStaleLocalOrders(t *testing.T) {
	conn := newFakeConn()
	m := newManager(conn)
	entry, tp, sl := intents()

	_, err := m.EnterWithProtection(context.Background(), entry, tp, sl)
	require.NoError(t, err)
	require.Len(t, m.OpenOrders("BTCUSDT"), 2)

	// exchange says only the stop leg survives
	m.Apply(context.Background(), connector.Event{
		Type:     connector.EventResync,
		Symbol:   "BTCUSDT",
		UpdateID: 100,
		SnapshotOrders: []models.Order{
			{ClientID: "sl-1", Symbol: "BTCUSDT", Side: models.SideSell, Type: models.TypeStopLossLimit, Quantity: decimal.NewFromInt(1), Status: models.StatusNew, UpdateID: 100},
		},
	})

	open := m.OpenOrders("BTCUSDT")
	require.Len(t, open, 1)
	assert.Equal(t, "sl-1", open[0].ClientID)

	_, ok := m.Order("tp-1")
	assert.False(t, ok)
}
