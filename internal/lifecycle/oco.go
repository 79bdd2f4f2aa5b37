package lifecycle

import (
	"context"

	"tftrader/internal/metrics"
	"tftrader/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// EnterWithProtection places the entry order and, when it is accepted,
// submits the take-profit/stop-loss pair covering it. Failure to establish
// protection cancels the entry: the manager never knowingly leaves an
// unprotected position behind.
func (m *Manager) EnterWithProtection(
	ctx context.Context,
	entry, takeProfit, stopLoss models.OrderIntent,
) (*models.Order, error) {
	order, err := m.conn.PlaceOrder(ctx, entry)
	if err != nil {
		return nil, errors.Wrap(err, "entry order")
	}
	m.track(order)

	if order.Status == models.StatusRejected || order.Status == models.StatusExpired {
		return nil, errors.Errorf("entry order %s %s", order.ClientID, order.Status)
	}

	if err := m.PlaceProtection(ctx, takeProfit, stopLoss); err != nil {
		if !order.Status.Terminal() {
			if cancelErr := m.conn.CancelOrder(ctx, entry.Symbol, order.ClientID); cancelErr != nil && !models.IsUnknownOrder(cancelErr) {
				m.logger.
					WithError(cancelErr).
					WithField("clientId", order.ClientID).
					Error("entry cancellation after protection failure")
			}
		}
		return nil, errors.Wrap(err, "protection placement")
	}

	return order, nil
}

// PlaceProtection submits the exit pair, natively when the venue links
// orders server side and leg by leg otherwise.
func (m *Manager) PlaceProtection(ctx context.Context, takeProfit, stopLoss models.OrderIntent) error {
	if m.conn.SupportsNativeOCO() {
		orders, err := m.conn.PlaceOCO(ctx, takeProfit, stopLoss)
		if err != nil {
			return err
		}
		for i := range orders {
			m.track(&orders[i])
		}
		return nil
	}

	return m.placeEmulatedPair(ctx, takeProfit, stopLoss)
}

// placeEmulatedPair places two independent orders linked by a local group id.
// The second leg failing cancels the first: a lone surviving leg would turn
// the protection pair into an unhedged order.
func (m *Manager) placeEmulatedPair(ctx context.Context, takeProfit, stopLoss models.OrderIntent) error {
	groupID := uuid.NewString()
	if takeProfit.ClientID == "" {
		takeProfit.ClientID = uuid.NewString()
	}
	if stopLoss.ClientID == "" {
		stopLoss.ClientID = uuid.NewString()
	}

	first, err := m.conn.PlaceOrder(ctx, takeProfit)
	if err != nil {
		return errors.Wrap(err, "take-profit leg")
	}
	first.GroupID = groupID
	first.LinkedClientID = stopLoss.ClientID

	second, err := m.conn.PlaceOrder(ctx, stopLoss)
	if err != nil {
		metrics.OCOFailClosedTotal.WithLabelValues(takeProfit.Symbol).Inc()

		if cancelErr := m.conn.CancelOrder(ctx, first.Symbol, first.ClientID); cancelErr != nil && !models.IsUnknownOrder(cancelErr) {
			m.logger.
				WithError(cancelErr).
				WithField("clientId", first.ClientID).
				Error("lone protection leg cancellation failed")
		}

		return errors.Wrap(err, "stop-loss leg")
	}
	second.GroupID = groupID
	second.LinkedClientID = first.ClientID

	m.track(first)
	m.track(second)

	return nil
}
