package structs

import (
	"strconv"
	"time"

	"tftrader/models"
)

// Envelope is used to peek at the event type of a stream frame.
type Envelope struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
}

// ExecutionReport is the account-stream order update.
type ExecutionReport struct {
	EventTime         int64  `json:"E"`
	Symbol            string `json:"s"`
	ClientOrderID     string `json:"c"`
	Side              string `json:"S"`
	Type              string `json:"o"`
	Quantity          string `json:"q"`
	Price             string `json:"p"`
	StopPrice         string `json:"P"`
	ExecutionType     string `json:"x"`
	Status            string `json:"X"`
	OrderID           int64  `json:"i"`
	OrderListID       int64  `json:"g"`
	CumFilledQty      string `json:"z"`
	LastFilledPrice   string `json:"L"`
	OrigClientOrderID string `json:"C"`
	TransactTime      int64  `json:"T"`
}

func (r *ExecutionReport) ToModel() (*models.Order, error) {
	qty, err := parseDecimal(r.Quantity)
	if err != nil {
		return nil, err
	}
	filled, err := parseDecimal(r.CumFilledQty)
	if err != nil {
		return nil, err
	}
	price, err := parseDecimal(r.Price)
	if err != nil {
		return nil, err
	}
	stopPrice, err := parseDecimal(r.StopPrice)
	if err != nil {
		return nil, err
	}

	// on cancel reports the original id moves to C
	clientID := r.ClientOrderID
	if r.OrigClientOrderID != "" {
		clientID = r.OrigClientOrderID
	}

	groupID := ""
	if r.OrderListID > 0 {
		groupID = strconv.FormatInt(r.OrderListID, 10)
	}

	return &models.Order{
		OrderID:        r.OrderID,
		ClientID:       clientID,
		GroupID:        groupID,
		Symbol:         r.Symbol,
		Side:           models.Side(r.Side),
		Type:           models.OrderType(r.Type),
		Quantity:       qty,
		Price:          price,
		StopPrice:      stopPrice,
		FilledQuantity: filled,
		Status:         models.OrderStatus(r.Status),
		UpdateID:       r.EventTime,
	}, nil
}

// AccountPosition is the account-stream balance update.
type AccountPosition struct {
	EventTime  int64 `json:"E"`
	LastUpdate int64 `json:"u"`
	Balances   []struct {
		Asset  string `json:"a"`
		Free   string `json:"f"`
		Locked string `json:"l"`
	} `json:"B"`
}

func (a *AccountPosition) ToBalances() ([]models.Balance, error) {
	out := make([]models.Balance, 0, len(a.Balances))
	for _, b := range a.Balances {
		free, err := parseDecimal(b.Free)
		if err != nil {
			return nil, err
		}
		locked, err := parseDecimal(b.Locked)
		if err != nil {
			return nil, err
		}
		out = append(out, models.Balance{Asset: b.Asset, Free: free, Locked: locked})
	}
	return out, nil
}

// KlineEvent is the market-stream candlestick update.
type KlineEvent struct {
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime   int64  `json:"t"`
		CloseTime  int64  `json:"T"`
		Interval   string `json:"i"`
		OpenPrice  string `json:"o"`
		ClosePrice string `json:"c"`
		HighPrice  string `json:"h"`
		LowPrice   string `json:"l"`
		Volume     string `json:"v"`
		Closed     bool   `json:"x"`
	} `json:"k"`
}

func (e *KlineEvent) ToModel() (*models.Kline, error) {
	open, err := strconv.ParseFloat(e.Kline.OpenPrice, 64)
	if err != nil {
		return nil, err
	}
	closePrice, err := strconv.ParseFloat(e.Kline.ClosePrice, 64)
	if err != nil {
		return nil, err
	}
	high, err := strconv.ParseFloat(e.Kline.HighPrice, 64)
	if err != nil {
		return nil, err
	}
	low, err := strconv.ParseFloat(e.Kline.LowPrice, 64)
	if err != nil {
		return nil, err
	}
	volume, err := strconv.ParseFloat(e.Kline.Volume, 64)
	if err != nil {
		return nil, err
	}

	return &models.Kline{
		Symbol:     e.Symbol,
		Interval:   e.Kline.Interval,
		OpenPrice:  open,
		ClosePrice: closePrice,
		HighPrice:  high,
		LowPrice:   low,
		Volume:     volume,
		OpenTime:   time.UnixMilli(e.Kline.OpenTime),
		CloseTime:  time.UnixMilli(e.Kline.CloseTime),
		Closed:     e.Kline.Closed,
	}, nil
}
