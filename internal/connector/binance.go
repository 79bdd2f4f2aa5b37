package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"tftrader/internal/connector/structs"
	"tftrader/internal/controllers"
	"tftrader/models"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	orderUrlPath     = "/api/v3/order"
	orderOCOUrlPath  = "/api/v3/order/oco"
	orderOpenUrlPath = "/api/v3/openOrders"
	accountUrlPath   = "/api/v3/account"
	exchangeInfoPath = "/api/v3/exchangeInfo"
	klinesUrlPath    = "/api/v3/klines"

	accountTopic = "account"
	recvWindow   = "60000"
)

const resolveAttempts = 5

// Binance implements Connector against the spot REST API plus the combined
// account/market stream.
type Binance struct {
	client controllers.ClientCtrl
	crypto controllers.CryptoCtrl
	stream controllers.StreamCtrl

	url       string
	nativeOCO bool

	logger *logrus.Logger

	mu          sync.RWMutex
	subscribers map[string]chan Event
	asOf        int64
	resyncing   bool

	resyncReq chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBinance(
	client controllers.ClientCtrl,
	crypto controllers.CryptoCtrl,
	stream controllers.StreamCtrl,
	url string,
	nativeOCO bool,
	logger *logrus.Logger,
) *Binance {
	return &Binance{
		client:      client,
		crypto:      crypto,
		stream:      stream,
		url:         url,
		nativeOCO:   nativeOCO,
		logger:      logger,
		subscribers: make(map[string]chan Event),
		resyncReq:   make(chan struct{}, 1),
	}
}

func (b *Binance) SupportsNativeOCO() bool {
	return b.nativeOCO
}

func (b *Binance) State() models.ConnectionState {
	state := b.stream.State()

	b.mu.RLock()
	if b.resyncing && state.Status == models.TransportConnected {
		state.Status = models.TransportResyncing
	}
	b.mu.RUnlock()

	return state
}

func (b *Binance) signedURL(urlPath string, q url.Values) (*url.URL, error) {
	baseURL, err := url.Parse(b.url)
	if err != nil {
		return nil, err
	}

	baseURL.Path = path.Join(urlPath)

	q.Set("recvWindow", recvWindow)
	q.Set("timestamp", strconv.FormatInt(b.client.Timestamp(), 10))

	sig := b.crypto.GetSignature(q.Encode())
	q.Set("signature", sig)

	baseURL.RawQuery = q.Encode()

	return baseURL, nil
}

func (b *Binance) publicURL(urlPath string, q url.Values) (*url.URL, error) {
	baseURL, err := url.Parse(b.url)
	if err != nil {
		return nil, err
	}

	baseURL.Path = path.Join(urlPath)
	baseURL.RawQuery = q.Encode()

	return baseURL, nil
}

func (b *Binance) SymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	baseURL, err := b.publicURL(exchangeInfoPath, q)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Send(ctx, http.MethodGet, baseURL, nil, false)
	if err != nil {
		return nil, err
	}

	var out structs.ExchangeInfo
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, err
	}

	for _, s := range out.Symbols {
		if s.Symbol == symbol {
			return s.ToModel()
		}
	}

	return nil, errors.Errorf("symbol %s not found in exchange info", symbol)
}

func (b *Binance) Balances(ctx context.Context) ([]models.Balance, error) {
	account, err := b.account(ctx)
	if err != nil {
		return nil, err
	}

	return account.ToBalances()
}

func (b *Binance) account(ctx context.Context) (*structs.AccountInfo, error) {
	baseURL, err := b.signedURL(accountUrlPath, url.Values{})
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Send(ctx, http.MethodGet, baseURL, nil, true)
	if err != nil {
		return nil, err
	}

	var out structs.AccountInfo
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (b *Binance) OpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	baseURL, err := b.signedURL(orderOpenUrlPath, q)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Send(ctx, http.MethodGet, baseURL, nil, true)
	if err != nil {
		return nil, err
	}

	var out []structs.Order
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(out))
	for i := range out {
		m, err := out[i].ToModel()
		if err != nil {
			return nil, err
		}
		orders = append(orders, *m)
	}

	return orders, nil
}

func (b *Binance) Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Kline, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	baseURL, err := b.publicURL(klinesUrlPath, q)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Send(ctx, http.MethodGet, baseURL, nil, false)
	if err != nil {
		return nil, err
	}

	return parseKlines(resp, symbol, interval)
}

// PlaceOrder submits an order carrying a client-generated idempotency key.
// An ambiguous outcome is resolved with a status query by that key: if the
// exchange never saw the order it is resubmitted exactly once with the same
// key, otherwise the discovered order is adopted. The query itself is retried
// while it fails transiently; if it never resolves the ambiguity is surfaced
// to the caller, since resubmitting could duplicate an order the exchange
// already accepted.
func (b *Binance) PlaceOrder(ctx context.Context, intent models.OrderIntent) (*models.Order, error) {
	if intent.ClientID == "" {
		intent.ClientID = uuid.NewString()
	}

	order, err := b.submit(ctx, intent)
	if err == nil {
		return order, nil
	}
	if !models.IsAmbiguous(err) {
		return nil, err
	}

	b.logger.
		WithField("clientId", intent.ClientID).
		WithField("symbol", intent.Symbol).
		Warn("order submission ambiguous, querying by client id")

	bo := &backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    5 * time.Second,
		Jitter: true,
	}

	for attempt := 1; ; attempt++ {
		found, queryErr := b.QueryOrder(ctx, intent.Symbol, intent.ClientID)
		if queryErr == nil {
			return found, nil
		}
		if models.IsUnknownOrder(queryErr) {
			return b.submit(ctx, intent)
		}

		switch models.Classify(queryErr) {
		case models.ClassFatal:
			return nil, queryErr
		case models.ClassTransient:
			if attempt < resolveAttempts {
				select {
				case <-ctx.Done():
					return nil, errors.Wrap(models.ErrAmbiguous, "resolution interrupted")
				case <-time.After(bo.Duration()):
				}
				continue
			}
		}

		return nil, errors.Wrapf(models.ErrAmbiguous, "order %s unresolved: %v", intent.ClientID, queryErr)
	}
}

func (b *Binance) submit(ctx context.Context, intent models.OrderIntent) (*models.Order, error) {
	q := url.Values{}
	q.Set("symbol", intent.Symbol)
	q.Set("side", string(intent.Side))
	q.Set("type", string(intent.Type))
	q.Set("quantity", intent.Quantity.String())
	q.Set("newClientOrderId", intent.ClientID)
	q.Set("newOrderRespType", "RESULT")

	if intent.Type.RequiresPrice() {
		q.Set("price", intent.Price.String())
		q.Set("timeInForce", "GTC")
	}
	if !intent.StopPrice.IsZero() {
		q.Set("stopPrice", intent.StopPrice.String())
	}

	baseURL, err := b.signedURL(orderUrlPath, q)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Send(ctx, http.MethodPost, baseURL, nil, true)
	if err != nil {
		return nil, errors.Wrap(err, "place order")
	}

	var out structs.Order
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, err
	}

	order, err := out.ToModel()
	if err != nil {
		return nil, err
	}
	order.ClientID = intent.ClientID

	return order, nil
}

// PlaceOCO submits a native one-cancels-other pair. Only called when
// SupportsNativeOCO is true; otherwise the lifecycle manager emulates the
// pairing with two independent orders.
func (b *Binance) PlaceOCO(ctx context.Context, primary, sibling models.OrderIntent) ([]models.Order, error) {
	q := url.Values{}
	q.Set("symbol", primary.Symbol)
	q.Set("side", string(primary.Side))
	q.Set("quantity", primary.Quantity.String())
	q.Set("price", primary.Price.String())
	q.Set("stopPrice", sibling.StopPrice.String())
	q.Set("stopLimitPrice", sibling.Price.String())
	q.Set("stopLimitTimeInForce", "GTC")

	baseURL, err := b.signedURL(orderOCOUrlPath, q)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Send(ctx, http.MethodPost, baseURL, nil, true)
	if err != nil {
		return nil, errors.Wrap(err, "place oco")
	}

	var out structs.OrderList
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, err
	}

	groupID := strconv.FormatInt(out.OrderListID, 10)

	orders := make([]models.Order, 0, len(out.OrderReports))
	for i := range out.OrderReports {
		m, err := out.OrderReports[i].ToModel()
		if err != nil {
			return nil, err
		}
		m.GroupID = groupID
		orders = append(orders, *m)
	}

	for i := range orders {
		for j := range orders {
			if i != j {
				orders[i].LinkedClientID = orders[j].ClientID
			}
		}
	}

	return orders, nil
}

func (b *Binance) CancelOrder(ctx context.Context, symbol, clientID string) error {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("origClientOrderId", clientID)

	baseURL, err := b.signedURL(orderUrlPath, q)
	if err != nil {
		return err
	}

	if _, err := b.client.Send(ctx, http.MethodDelete, baseURL, nil, true); err != nil {
		return errors.Wrap(err, "cancel order")
	}

	return nil
}

func (b *Binance) QueryOrder(ctx context.Context, symbol, clientID string) (*models.Order, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("origClientOrderId", clientID)

	baseURL, err := b.signedURL(orderUrlPath, q)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Send(ctx, http.MethodGet, baseURL, nil, true)
	if err != nil {
		return nil, err
	}

	var out structs.Order
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, err
	}

	return out.ToModel()
}

// parseKlines decodes the positional kline arrays of the REST API.
func parseKlines(raw []byte, symbol, interval string) ([]models.Kline, error) {
	var rows [][]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}

	klines := make([]models.Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			return nil, errors.New("malformed kline row")
		}

		k := models.Kline{Symbol: symbol, Interval: interval, Closed: true}

		openTime, ok := row[0].(float64)
		if !ok {
			return nil, errors.New("malformed kline open time")
		}
		closeTime, ok := row[6].(float64)
		if !ok {
			return nil, errors.New("malformed kline close time")
		}

		var err error
		if k.OpenPrice, err = klineField(row[1]); err != nil {
			return nil, err
		}
		if k.HighPrice, err = klineField(row[2]); err != nil {
			return nil, err
		}
		if k.LowPrice, err = klineField(row[3]); err != nil {
			return nil, err
		}
		if k.ClosePrice, err = klineField(row[4]); err != nil {
			return nil, err
		}
		if k.Volume, err = klineField(row[5]); err != nil {
			return nil, err
		}

		k.OpenTime = timeFromMillis(int64(openTime))
		k.CloseTime = timeFromMillis(int64(closeTime))

		klines = append(klines, k)
	}

	return klines, nil
}

func klineField(v interface{}) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, errors.New("malformed kline field")
	}
	return strconv.ParseFloat(s, 64)
}

func klineTopic(symbol, interval string) string {
	return strings.ToLower(symbol) + "@kline_" + interval
}

func timeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
