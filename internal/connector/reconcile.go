package connector

import (
	"context"
	"encoding/json"
	"time"

	"tftrader/internal/connector/structs"
	"tftrader/internal/metrics"
	"tftrader/models"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"
)

// Start launches the stream and the single dispatch goroutine that owns all
// shared connector state. Serializing snapshot replacement and delta delivery
// through one path is what makes the per-symbol ordering guarantee hold
// without extra locking.
func (b *Binance) Start(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)

	b.stream.Subscribe(accountTopic)
	b.stream.Start(ctx)

	b.wg.Add(1)
	go b.dispatchLoop(ctx)

	return nil
}

func (b *Binance) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.stream.Stop()
	b.wg.Wait()
}

// Subscribe registers a consumer for one symbol and asks the stream for its
// kline topic. Events for a symbol are delivered in order; nothing is
// guaranteed across symbols.
func (b *Binance) Subscribe(symbol, interval string) <-chan Event {
	b.mu.Lock()
	ch, ok := b.subscribers[symbol]
	if !ok {
		ch = make(chan Event, 256)
		b.subscribers[symbol] = ch
	}
	snapshotTaken := b.asOf > 0 || b.resyncing
	b.mu.Unlock()

	b.stream.Subscribe(klineTopic(symbol, interval))

	// a symbol subscribed after the first snapshot would otherwise not see
	// one until the next reconnect
	if !ok && snapshotTaken {
		b.requestResync()
	}

	return ch
}

// requestResync coalesces snapshot requests into the dispatch loop.
func (b *Binance) requestResync() {
	select {
	case b.resyncReq <- struct{}{}:
	default:
	}
}

func (b *Binance) dispatchLoop(ctx context.Context) {
	defer b.wg.Done()

	bo := &backoff.Backoff{
		Min:    time.Second,
		Max:    30 * time.Second,
		Jitter: true,
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-b.stream.Resync():
			if !b.resyncWithRetry(ctx, bo) {
				return
			}

		case <-b.resyncReq:
			if !b.resyncWithRetry(ctx, bo) {
				return
			}

		case msg := <-b.stream.Out():
			b.handleFrame(ctx, msg)
		}
	}
}

func (b *Binance) resyncWithRetry(ctx context.Context, bo *backoff.Backoff) bool {
	for {
		if err := b.resync(ctx); err == nil {
			bo.Reset()
			return true
		} else {
			b.logger.WithError(err).Error("resync failed")
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(bo.Duration()):
		}
	}
}

// resync fetches the authoritative snapshot, records its as-of update id and
// hands the snapshot to every subscriber. Deltas at or below the as-of id are
// discarded afterwards, so an event observed both in the snapshot and on the
// stream is applied exactly once.
func (b *Binance) resync(ctx context.Context) error {
	b.mu.Lock()
	b.resyncing = true
	symbols := make([]string, 0, len(b.subscribers))
	for symbol := range b.subscribers {
		symbols = append(symbols, symbol)
	}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.resyncing = false
		b.mu.Unlock()
	}()

	account, err := b.account(ctx)
	if err != nil {
		return err
	}
	balances, err := account.ToBalances()
	if err != nil {
		return err
	}

	asOf := account.UpdateTime

	snapshots := make(map[string][]models.Order, len(symbols))
	for _, symbol := range symbols {
		orders, err := b.OpenOrders(ctx, symbol)
		if err != nil {
			return err
		}
		for i := range orders {
			if orders[i].UpdateID > asOf {
				asOf = orders[i].UpdateID
			}
		}
		snapshots[symbol] = orders
	}

	b.mu.Lock()
	b.asOf = asOf
	b.mu.Unlock()

	for _, symbol := range symbols {
		b.deliver(ctx, symbol, Event{
			Type:           EventResync,
			UpdateID:       asOf,
			Symbol:         symbol,
			SnapshotOrders: snapshots[symbol],
			Balances:       balances,
		})
	}

	metrics.ResyncsTotal.Inc()

	b.logger.
		WithField("asOf", asOf).
		WithField("symbols", len(symbols)).
		Info("state resynchronized from snapshot")

	return nil
}

func (b *Binance) handleFrame(ctx context.Context, msg []byte) {
	var env structs.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		b.logger.WithError(err).Debug("undecodable stream frame")
		return
	}

	switch env.Event {
	case "executionReport":
		var report structs.ExecutionReport
		if err := json.Unmarshal(msg, &report); err != nil {
			b.logger.WithError(err).Warn("bad execution report")
			return
		}

		order, err := report.ToModel()
		if err != nil {
			b.logger.WithError(err).Warn("bad execution report values")
			return
		}

		if b.stale(order.UpdateID) {
			b.logger.
				WithError(models.ErrStaleDelta).
				WithField("updateId", order.UpdateID).
				WithField("clientId", order.ClientID).
				Debug("order delta dropped")
			return
		}

		fillPrice := order.Price
		if last, err := decimal.NewFromString(report.LastFilledPrice); err == nil && !last.IsZero() {
			fillPrice = last
		}

		b.deliver(ctx, order.Symbol, Event{
			Type:      EventOrderUpdate,
			UpdateID:  order.UpdateID,
			Symbol:    order.Symbol,
			Order:     order,
			FillPrice: fillPrice,
		})

	case "outboundAccountPosition":
		var account structs.AccountPosition
		if err := json.Unmarshal(msg, &account); err != nil {
			b.logger.WithError(err).Warn("bad account position")
			return
		}

		if b.stale(account.EventTime) {
			b.logger.
				WithError(models.ErrStaleDelta).
				WithField("updateId", account.EventTime).
				Debug("balance delta dropped")
			return
		}

		balances, err := account.ToBalances()
		if err != nil {
			b.logger.WithError(err).Warn("bad account position values")
			return
		}

		b.broadcast(ctx, Event{
			Type:     EventBalance,
			UpdateID: account.EventTime,
			Balances: balances,
		})

	case "kline":
		var kline structs.KlineEvent
		if err := json.Unmarshal(msg, &kline); err != nil {
			b.logger.WithError(err).Warn("bad kline event")
			return
		}

		k, err := kline.ToModel()
		if err != nil {
			b.logger.WithError(err).Warn("bad kline values")
			return
		}

		b.deliver(ctx, kline.Symbol, Event{
			Type:     EventKline,
			UpdateID: kline.EventTime,
			Symbol:   kline.Symbol,
			Kline:    k,
		})
	}
}

// stale reports whether a delta is already covered by the current snapshot.
func (b *Binance) stale(updateID int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return updateID <= b.asOf
}

func (b *Binance) deliver(ctx context.Context, symbol string, ev Event) {
	b.mu.RLock()
	ch, ok := b.subscribers[symbol]
	b.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}

func (b *Binance) broadcast(ctx context.Context, ev Event) {
	b.mu.RLock()
	symbols := make([]string, 0, len(b.subscribers))
	for symbol := range b.subscribers {
		symbols = append(symbols, symbol)
	}
	b.mu.RUnlock()

	for _, symbol := range symbols {
		scoped := ev
		scoped.Symbol = symbol
		b.deliver(ctx, symbol, scoped)
	}
}
