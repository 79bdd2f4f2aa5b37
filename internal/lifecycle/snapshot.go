package lifecycle

import (
	"time"

	"tftrader/internal/connector"
	"tftrader/models"
)

// adoptSnapshot replaces the supervised view of one symbol wholesale with the
// authoritative snapshot. Venue-linked pairs are rebuilt from the group ids
// the snapshot carries; emulated pairs use local group ids the venue never
// echoes back, so they are reconciled against the surviving legs instead. A
// pair that lost a leg degrades to a lone supervised order.
func (m *Manager) adoptSnapshot(ev connector.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, o := range m.orders {
		if o.Symbol == ev.Symbol {
			delete(m.orders, id)
		}
	}

	legsByGroup := make(map[string][]string)
	for i := range ev.SnapshotOrders {
		clone := ev.SnapshotOrders[i]
		m.orders[clone.ClientID] = &clone

		if clone.GroupID != "" {
			legsByGroup[clone.GroupID] = append(legsByGroup[clone.GroupID], clone.ClientID)
		}
	}

	for groupID, legs := range legsByGroup {
		if len(legs) != 2 {
			survivor := m.orders[legs[0]]
			survivor.GroupID = ""
			survivor.LinkedClientID = ""
			delete(m.groups, groupID)

			m.logger.
				WithField("symbol", ev.Symbol).
				WithField("groupId", groupID).
				WithField("clientId", survivor.ClientID).
				Warn("protection pair lost a leg, continuing unpaired")
			continue
		}
		if _, ok := m.groups[groupID]; !ok {
			m.groups[groupID] = &group{symbol: ev.Symbol, legs: [2]string{legs[0], legs[1]}}
		}
	}

	for groupID, grp := range m.groups {
		if grp.symbol != ev.Symbol {
			continue
		}

		first, okFirst := m.orders[grp.legs[0]]
		second, okSecond := m.orders[grp.legs[1]]

		switch {
		case okFirst && okSecond:
			first.GroupID = groupID
			first.LinkedClientID = second.ClientID
			second.GroupID = groupID
			second.LinkedClientID = first.ClientID

		case okFirst || okSecond:
			survivor := first
			if !okFirst {
				survivor = second
			}
			survivor.GroupID = ""
			survivor.LinkedClientID = ""
			delete(m.groups, groupID)

			m.logger.
				WithField("symbol", ev.Symbol).
				WithField("groupId", groupID).
				WithField("clientId", survivor.ClientID).
				Warn("protection pair lost a leg, continuing unpaired")

		default:
			delete(m.groups, groupID)
		}
	}

	if len(ev.Balances) > 0 {
		m.balances = make(map[string]models.Balance, len(ev.Balances))
		for _, b := range ev.Balances {
			m.balances[b.Asset] = b
		}
	}

	if pos, ok := m.positions[ev.Symbol]; ok {
		pos.LastReconciled = time.Now()
	}

	m.logger.
		WithField("symbol", ev.Symbol).
		WithField("orders", len(ev.SnapshotOrders)).
		Info("order state adopted from snapshot")
}
