package lifecycle

import (
	"context"
	"sync"
	"time"

	"tftrader/internal/connector"
	"tftrader/internal/metrics"
	"tftrader/models"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const siblingCancelAttempts = 5

//go:generate mockery --case=snake --name=Archiver

// Archiver persists order transitions for later inspection. Persistence is
// best effort: an archive failure is logged and never blocks the lifecycle.
type Archiver interface {
	SaveOrder(order *models.Order) error
}

type group struct {
	symbol     string
	legs       [2]string
	cancelSent bool
}

func (g *group) sibling(clientID string) string {
	if g.legs[0] == clientID {
		return g.legs[1]
	}
	return g.legs[0]
}

// Manager owns the authoritative local view of orders, positions and
// balances. It is driven by connector events, applied one at a time per
// symbol, and exposes entry placement with one-cancels-other protection.
type Manager struct {
	conn    connector.Connector
	archive Archiver
	logger  *logrus.Logger

	// fills at or below this quantity do not count as meaningful execution
	negligible decimal.Decimal

	mu        sync.RWMutex
	orders    map[string]*models.Order
	groups    map[string]*group
	positions map[string]*models.Position
	balances  map[string]models.Balance
}

func NewManager(
	conn connector.Connector,
	archive Archiver,
	negligible decimal.Decimal,
	logger *logrus.Logger,
) *Manager {
	return &Manager{
		conn:       conn,
		archive:    archive,
		logger:     logger,
		negligible: negligible,
		orders:     make(map[string]*models.Order),
		groups:     make(map[string]*group),
		positions:  make(map[string]*models.Position),
		balances:   make(map[string]models.Balance),
	}
}

// Apply consumes one connector event. The caller guarantees per-symbol
// ordering; Apply only guards against concurrent access from other symbols.
func (m *Manager) Apply(ctx context.Context, ev connector.Event) {
	switch ev.Type {
	case connector.EventResync:
		m.adoptSnapshot(ev)
	case connector.EventOrderUpdate:
		m.applyOrderUpdate(ctx, ev)
	case connector.EventBalance:
		m.applyBalances(ev.Balances)
	}
}

func (m *Manager) applyOrderUpdate(ctx context.Context, ev connector.Event) {
	update := ev.Order

	m.mu.Lock()

	current, tracked := m.orders[update.ClientID]
	if !tracked {
		// an order we never placed and never saw in a snapshot; adopt it so
		// manual or recovered orders are still supervised
		m.logger.
			WithField("clientId", update.ClientID).
			WithField("symbol", update.Symbol).
			Info("adopting untracked order from stream")

		clone := *update
		m.orders[update.ClientID] = &clone
		m.indexGroupLocked(&clone)
		current = &clone
	}

	if tracked {
		if !current.Status.CanTransition(update.Status) {
			m.mu.Unlock()
			m.logger.
				WithField("clientId", update.ClientID).
				WithField("from", current.Status).
				WithField("to", update.Status).
				Debug("out-of-order status transition dropped")
			return
		}

		fillDelta := update.FilledQuantity.Sub(current.FilledQuantity)

		current.Status = update.Status
		current.FilledQuantity = update.FilledQuantity
		current.UpdateID = update.UpdateID
		if update.OrderID != 0 {
			current.OrderID = update.OrderID
		}

		if fillDelta.IsPositive() {
			m.applyFillLocked(current, fillDelta, ev.FillPrice)
		}
	} else if current.FilledQuantity.IsPositive() {
		m.applyFillLocked(current, current.FilledQuantity, ev.FillPrice)
	}

	m.countTransition(current)
	m.archiveLocked(current)

	var cancelSibling string
	grp := m.groupOfLocked(current)
	if grp != nil && !grp.cancelSent && current.FilledQuantity.GreaterThan(m.negligible) {
		grp.cancelSent = true
		cancelSibling = grp.sibling(current.ClientID)
	}

	if current.Status.Terminal() {
		m.resolveTerminalLocked(current)
	}

	symbol := current.Symbol
	m.mu.Unlock()

	if cancelSibling != "" {
		m.cancelSibling(ctx, symbol, cancelSibling)
	}
}

// applyFillLocked mutates the symbol position by a confirmed fill delta.
// Optimistic submissions never touch the position; only stream-confirmed
// executions do.
func (m *Manager) applyFillLocked(order *models.Order, qty, price decimal.Decimal) {
	pos, ok := m.positions[order.Symbol]
	if !ok {
		pos = &models.Position{Symbol: order.Symbol}
		m.positions[order.Symbol] = pos
	}

	if price.IsZero() {
		price = order.Price
	}

	pos.ApplyFill(order.Side, qty, price)

	m.logger.
		WithField("symbol", order.Symbol).
		WithField("clientId", order.ClientID).
		WithField("qty", qty.String()).
		WithField("price", price.String()).
		WithField("remaining", order.Remaining().String()).
		WithField("net", pos.NetQuantity.String()).
		Info("fill applied to position")
}

func (m *Manager) countTransition(order *models.Order) {
	switch order.Status {
	case models.StatusFilled:
		metrics.OrdersFilledTotal.WithLabelValues(order.Symbol).Inc()
	case models.StatusCanceled, models.StatusExpired:
		metrics.OrdersCanceledTotal.WithLabelValues(order.Symbol).Inc()
	case models.StatusRejected:
		metrics.OrdersRejectedTotal.WithLabelValues(order.Symbol).Inc()
	}
}

// resolveTerminalLocked retires the protection pair once both legs are
// terminal. Terminal orders stay in the map as tombstones so late stream
// deltas cannot resurrect them; the next snapshot adoption prunes them.
func (m *Manager) resolveTerminalLocked(order *models.Order) {
	grp := m.groupOfLocked(order)
	if grp == nil {
		return
	}

	sibling, ok := m.orders[grp.sibling(order.ClientID)]
	if !ok || sibling.Status.Terminal() {
		metrics.OCOCompletedTotal.WithLabelValues(order.Symbol).Inc()
		delete(m.groups, order.GroupID)

		m.logger.
			WithField("symbol", order.Symbol).
			WithField("groupId", order.GroupID).
			Info("protection pair resolved")
	}
}

// cancelSibling enforces the one-cancels-other contract after a meaningful
// fill on the other leg. An unknown-order response means the sibling already
// reached a terminal state on the exchange, which resolves the group too.
// Transient failures are retried; giving up here would leave a live leg
// behind, so the attempt budget is generous.
func (m *Manager) cancelSibling(ctx context.Context, symbol, clientID string) {
	bo := &backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    5 * time.Second,
		Jitter: true,
	}

	for attempt := 1; attempt <= siblingCancelAttempts; attempt++ {
		err := m.conn.CancelOrder(ctx, symbol, clientID)
		if err == nil {
			return
		}

		if models.IsUnknownOrder(err) {
			found, queryErr := m.conn.QueryOrder(ctx, symbol, clientID)
			if queryErr == nil && found.Status == models.StatusFilled {
				// both legs executed; flag it loudly, the position absorbs the fill
				m.logger.
					WithField("symbol", symbol).
					WithField("clientId", clientID).
					Warn("sibling filled before cancellation reached the exchange")
				return
			}

			m.logger.
				WithField("symbol", symbol).
				WithField("clientId", clientID).
				Debug("sibling already terminal on exchange")
			return
		}

		// an ambiguous cancel is safe to repeat, worst case it reports the
		// order as already gone
		cls := models.Classify(err)
		if (cls != models.ClassTransient && cls != models.ClassAmbiguous) || attempt == siblingCancelAttempts {
			m.logger.
				WithError(err).
				WithField("symbol", symbol).
				WithField("clientId", clientID).
				Error("sibling cancellation failed")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.Duration()):
		}
	}
}

func (m *Manager) applyBalances(balances []models.Balance) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range balances {
		m.balances[b.Asset] = b
	}
}

func (m *Manager) archiveLocked(order *models.Order) {
	if m.archive == nil {
		return
	}

	clone := *order
	if err := m.archive.SaveOrder(&clone); err != nil {
		m.logger.WithError(err).WithField("clientId", order.ClientID).Warn("order archive failed")
	}
}

func (m *Manager) groupOfLocked(order *models.Order) *group {
	if order.GroupID == "" {
		return nil
	}
	return m.groups[order.GroupID]
}

func (m *Manager) indexGroupLocked(order *models.Order) {
	if order.GroupID == "" || order.LinkedClientID == "" {
		return
	}
	if _, ok := m.groups[order.GroupID]; !ok {
		m.groups[order.GroupID] = &group{
			symbol: order.Symbol,
			legs:   [2]string{order.ClientID, order.LinkedClientID},
		}
	}
}

// track registers a freshly placed order under lifecycle supervision.
func (m *Manager) track(order *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *order
	m.orders[clone.ClientID] = &clone
	m.indexGroupLocked(&clone)

	// a submission acknowledged with executed quantity already confirms a fill
	if clone.FilledQuantity.IsPositive() {
		m.applyFillLocked(&clone, clone.FilledQuantity, clone.Price)
	}

	m.archiveLocked(&clone)
	metrics.OrdersPlacedTotal.WithLabelValues(clone.Symbol, string(clone.Side)).Inc()

	if clone.Status.Terminal() {
		m.countTransition(&clone)
		m.resolveTerminalLocked(&clone)
	}
}

// Place submits a standalone order under lifecycle supervision.
func (m *Manager) Place(ctx context.Context, intent models.OrderIntent) (*models.Order, error) {
	order, err := m.conn.PlaceOrder(ctx, intent)
	if err != nil {
		return nil, err
	}
	m.track(order)
	return order, nil
}

// CancelAll cancels every live order supervised for the symbol.
func (m *Manager) CancelAll(ctx context.Context, symbol string) error {
	m.mu.RLock()
	var ids []string
	for _, o := range m.orders {
		if o.Symbol == symbol && !o.Status.Terminal() {
			ids = append(ids, o.ClientID)
		}
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.conn.CancelOrder(ctx, symbol, id); err != nil && !models.IsUnknownOrder(err) {
			return errors.Wrapf(err, "cancel %s", id)
		}
	}

	return nil
}

// Position returns a copy of the current symbol position.
func (m *Manager) Position(symbol string) models.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if pos, ok := m.positions[symbol]; ok {
		return *pos
	}
	return models.Position{Symbol: symbol}
}

// OpenOrders returns copies of the live orders supervised for the symbol.
func (m *Manager) OpenOrders(symbol string) []models.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Order
	for _, o := range m.orders {
		if o.Symbol == symbol && !o.Status.Terminal() {
			out = append(out, *o)
		}
	}
	return out
}

// Order returns the supervised order with the given client id.
func (m *Manager) Order(clientID string) (models.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if o, ok := m.orders[clientID]; ok {
		return *o, true
	}
	return models.Order{}, false
}

// HasProtection reports whether an unresolved protection pair exists for the
// symbol.
func (m *Manager) HasProtection(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, grp := range m.groups {
		for _, leg := range grp.legs {
			if o, ok := m.orders[leg]; ok && o.Symbol == symbol {
				return true
			}
		}
	}
	return false
}

// Balance returns the tracked balance for one asset.
func (m *Manager) Balance(asset string) models.Balance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.balances[asset]
}
