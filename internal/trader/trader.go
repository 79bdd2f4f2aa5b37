package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tftrader/internal/connector"
	"tftrader/internal/metrics"
	"tftrader/internal/strategy"
	"tftrader/models"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

//go:generate mockery --case=snake --name=Lifecycle

// Lifecycle is the order supervision surface the trader drives.
type Lifecycle interface {
	Apply(ctx context.Context, ev connector.Event)
	EnterWithProtection(ctx context.Context, entry, takeProfit, stopLoss models.OrderIntent) (*models.Order, error)
	Place(ctx context.Context, intent models.OrderIntent) (*models.Order, error)
	CancelAll(ctx context.Context, symbol string) error
	Position(symbol string) models.Position
	HasProtection(symbol string) bool
}

//go:generate mockery --case=snake --name=Notifier

type Notifier interface {
	Send(text string) error
}

// Settings configures one symbol worker.
type Settings struct {
	Symbol   string
	Interval string
	Quantity decimal.Decimal

	// exit offsets as fractions of the entry price
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal

	WarmupBars  int
	MaxAttempts int
	RetryMin    time.Duration
	RetryMax    time.Duration
}

// Trader runs one symbol: it applies connector events to the lifecycle,
// evaluates the signal source on every closed bar and executes at most one
// intent at a time. Signals arriving while an intent is in flight collapse
// into a single pending slot; only the newest survives.
type Trader struct {
	settings Settings
	conn     connector.Connector
	life     Lifecycle
	source   strategy.Source
	notify   Notifier
	logger   *logrus.Logger

	info *models.SymbolInfo

	mu        sync.Mutex
	lastClose decimal.Decimal
	pending   *strategy.Signal
	inFlight  bool
	fatal     bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(
	settings Settings,
	conn connector.Connector,
	life Lifecycle,
	source strategy.Source,
	notify Notifier,
	logger *logrus.Logger,
) *Trader {
	return &Trader{
		settings: settings,
		conn:     conn,
		life:     life,
		source:   source,
		notify:   notify,
		logger:   logger,
	}
}

// Start warms the signal source from history and launches the event loop.
func (t *Trader) Start(ctx context.Context) error {
	ctx, t.cancel = context.WithCancel(ctx)

	info, err := t.conn.SymbolInfo(ctx, t.settings.Symbol)
	if err != nil {
		return errors.Wrap(err, "symbol info")
	}
	t.info = info

	if t.settings.WarmupBars > 0 {
		history, err := t.conn.Klines(ctx, t.settings.Symbol, t.settings.Interval, t.settings.WarmupBars)
		if err != nil {
			return errors.Wrap(err, "kline history")
		}
		t.source.Warmup(history)

		if n := len(history); n > 0 {
			t.setLastClose(history[n-1].ClosePrice)
		}
	}

	events := t.conn.Subscribe(t.settings.Symbol, t.settings.Interval)

	t.wg.Add(1)
	go t.loop(ctx, events)

	t.logger.
		WithField("symbol", t.settings.Symbol).
		WithField("interval", t.settings.Interval).
		Info("trader started")

	return nil
}

// Stop halts signal intake and waits for the in-flight intent to finish.
func (t *Trader) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}

func (t *Trader) Symbol() string { return t.settings.Symbol }

func (t *Trader) Fatal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fatal
}

func (t *Trader) loop(ctx context.Context, events <-chan connector.Event) {
	defer t.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-events:
			t.life.Apply(ctx, ev)

			if ev.Type != connector.EventKline || ev.Kline == nil || !ev.Kline.Closed {
				continue
			}

			t.setLastClose(ev.Kline.ClosePrice)

			t.logger.
				WithField("symbol", t.settings.Symbol).
				WithField("close", ev.Kline.ClosePrice).
				WithField("trend", ev.Kline.Trend()).
				Debug("bar closed")

			sig := t.source.OnBar(*ev.Kline)
			if sig == strategy.SignalNone {
				continue
			}

			metrics.SignalsTotal.WithLabelValues(t.settings.Symbol, sig.String()).Inc()
			t.enqueue(ctx, sig)
		}
	}
}

// enqueue overwrites the pending slot and starts the executor unless one is
// already running.
func (t *Trader) enqueue(ctx context.Context, sig strategy.Signal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fatal {
		return
	}

	if t.pending != nil {
		t.logger.
			WithField("symbol", t.settings.Symbol).
			WithField("dropped", t.pending.String()).
			WithField("kept", sig.String()).
			Debug("pending intent superseded")
	}
	t.pending = &sig

	if t.inFlight {
		return
	}
	t.inFlight = true

	t.wg.Add(1)
	go t.drain(ctx)
}

func (t *Trader) drain(ctx context.Context) {
	defer t.wg.Done()

	for {
		t.mu.Lock()
		if t.pending == nil || t.fatal || ctx.Err() != nil {
			t.inFlight = false
			t.mu.Unlock()
			return
		}
		sig := *t.pending
		t.pending = nil
		t.mu.Unlock()

		t.execute(ctx, sig)
	}
}

// execute runs one intent to completion, retrying transient failures with
// backoff and giving up on policy rejections. A fatal failure stops the
// worker for good.
func (t *Trader) execute(ctx context.Context, sig strategy.Signal) {
	bo := &backoff.Backoff{
		Min:    t.settings.RetryMin,
		Max:    t.settings.RetryMax,
		Jitter: true,
	}

	attempts := t.settings.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		var err error
		switch sig {
		case strategy.SignalOpen:
			err = t.open(ctx)
		case strategy.SignalClose:
			err = t.close(ctx)
		}
		if err == nil {
			return
		}

		switch models.Classify(err) {
		case models.ClassTransient:
			if attempt >= attempts {
				t.logger.
					WithError(err).
					WithField("symbol", t.settings.Symbol).
					Error("intent abandoned after transient failures")
				t.send("⚠️ %s: %s intent abandoned: %s", t.settings.Symbol, sig, err)
				return
			}

			metrics.IntentRetriesTotal.WithLabelValues(t.settings.Symbol).Inc()
			t.logger.
				WithError(err).
				WithField("symbol", t.settings.Symbol).
				WithField("attempt", attempt).
				Warn("transient intent failure, retrying")

			select {
			case <-ctx.Done():
				return
			case <-time.After(bo.Duration()):
			}

		case models.ClassAmbiguous:
			// the order may exist on the exchange; repeating the intent
			// could execute it twice, so leave the outcome to the stream
			t.logger.
				WithError(err).
				WithField("symbol", t.settings.Symbol).
				Error("intent outcome unknown, not retried")
			t.send("⚠️ %s: %s intent outcome unknown, awaiting exchange confirmation: %s", t.settings.Symbol, sig, err)
			return

		case models.ClassRejected:
			t.logger.
				WithError(err).
				WithField("symbol", t.settings.Symbol).
				Warn("intent rejected by exchange policy")
			t.send("🚫 %s: %s intent rejected: %s", t.settings.Symbol, sig, err)
			return

		case models.ClassFatal:
			t.mu.Lock()
			t.fatal = true
			t.pending = nil
			t.mu.Unlock()

			t.logger.
				WithError(err).
				WithField("symbol", t.settings.Symbol).
				Error("fatal failure, trader halted")
			t.send("🛑 %s trader halted: %s", t.settings.Symbol, err)
			return
		}
	}
}

func (t *Trader) open(ctx context.Context) error {
	if t.life.HasProtection(t.settings.Symbol) || t.life.Position(t.settings.Symbol).NetQuantity.IsPositive() {
		t.logger.
			WithField("symbol", t.settings.Symbol).
			Debug("already in position, entry skipped")
		return nil
	}

	price := t.referencePrice()
	if price.IsZero() {
		return errors.New("no reference price yet")
	}

	qty := roundStep(t.settings.Quantity, t.info.StepSize)
	if qty.IsZero() {
		return errors.New("quantity rounds to zero")
	}

	one := decimal.NewFromInt(1)
	tpPrice := roundStep(price.Mul(one.Add(t.settings.TakeProfit)), t.info.TickSize)
	slStop := roundStep(price.Mul(one.Sub(t.settings.StopLoss)), t.info.TickSize)

	entrySide := models.SideBuy

	entry := models.OrderIntent{
		Symbol:   t.settings.Symbol,
		Side:     entrySide,
		Type:     models.TypeMarket,
		Quantity: qty,
	}
	takeProfit := models.OrderIntent{
		Symbol:   t.settings.Symbol,
		Side:     entrySide.Opposite(),
		Type:     models.TypeLimitMaker,
		Quantity: qty,
		Price:    tpPrice,
	}
	stopLoss := models.OrderIntent{
		Symbol:    t.settings.Symbol,
		Side:      entrySide.Opposite(),
		Type:      models.TypeStopLossLimit,
		Quantity:  qty,
		Price:     slStop,
		StopPrice: slStop,
	}

	order, err := t.life.EnterWithProtection(ctx, entry, takeProfit, stopLoss)
	if err != nil {
		return err
	}

	t.logger.
		WithField("symbol", t.settings.Symbol).
		WithField("clientId", order.ClientID).
		WithField("qty", qty.String()).
		WithField("tp", tpPrice.String()).
		WithField("sl", slStop.String()).
		Info("position opened with protection")
	t.send("📈 %s opened %s @ ~%s (tp %s / sl %s)", t.settings.Symbol, qty, price, tpPrice, slStop)

	return nil
}

func (t *Trader) close(ctx context.Context) error {
	if err := t.life.CancelAll(ctx, t.settings.Symbol); err != nil {
		return err
	}

	net := t.life.Position(t.settings.Symbol).NetQuantity
	qty := roundStep(net, t.info.StepSize)
	if !qty.IsPositive() {
		t.logger.
			WithField("symbol", t.settings.Symbol).
			Debug("nothing to close")
		return nil
	}

	exit := models.OrderIntent{
		Symbol:   t.settings.Symbol,
		Side:     models.SideSell,
		Type:     models.TypeMarket,
		Quantity: qty,
	}

	if _, err := t.life.Place(ctx, exit); err != nil {
		return err
	}

	t.logger.
		WithField("symbol", t.settings.Symbol).
		WithField("qty", qty.String()).
		Info("position closed")
	t.send("📉 %s closed %s", t.settings.Symbol, qty)

	return nil
}

func (t *Trader) setLastClose(price float64) {
	t.mu.Lock()
	t.lastClose = decimal.NewFromFloat(price)
	t.mu.Unlock()
}

func (t *Trader) referencePrice() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastClose
}

func (t *Trader) send(format string, args ...interface{}) {
	if t.notify == nil {
		return
	}
	if err := t.notify.Send(fmt.Sprintf(format, args...)); err != nil {
		t.logger.WithError(err).Warn("notification failed")
	}
}

// roundStep floors a value to the venue's step or tick size.
func roundStep(v, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}
