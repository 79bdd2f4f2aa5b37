package structs

import (
	"strconv"
	"time"

	"tftrader/models"

	"github.com/shopspring/decimal"
)

// Order is the exchange's REST representation of an order.
type Order struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	OrderListID         int64  `json:"orderListId"`
	ClientOrderID       string `json:"clientOrderId"`
	OrigClientOrderID   string `json:"origClientOrderId"`
	Price               string `json:"price"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	TimeInForce         string `json:"timeInForce"`
	Type                string `json:"type"`
	Side                string `json:"side"`
	StopPrice           string `json:"stopPrice"`
	Time                int64  `json:"time"`
	UpdateTime          int64  `json:"updateTime"`
	TransactTime        int64  `json:"transactTime"`
}

func (o *Order) ToModel() (*models.Order, error) {
	qty, err := parseDecimal(o.OrigQty)
	if err != nil {
		return nil, err
	}
	filled, err := parseDecimal(o.ExecutedQty)
	if err != nil {
		return nil, err
	}
	price, err := parseDecimal(o.Price)
	if err != nil {
		return nil, err
	}
	stopPrice, err := parseDecimal(o.StopPrice)
	if err != nil {
		return nil, err
	}

	// market responses report price zero; recover the average from the
	// cumulative quote amount
	if price.IsZero() && filled.IsPositive() {
		if quote, err := parseDecimal(o.CummulativeQuoteQty); err == nil && quote.IsPositive() {
			price = quote.Div(filled)
		}
	}

	clientID := o.ClientOrderID
	if o.OrigClientOrderID != "" {
		clientID = o.OrigClientOrderID
	}

	groupID := ""
	if o.OrderListID > 0 {
		groupID = strconv.FormatInt(o.OrderListID, 10)
	}

	updateID := o.UpdateTime
	if updateID == 0 {
		updateID = o.TransactTime
	}

	createdAt := time.Time{}
	if o.Time > 0 {
		createdAt = time.UnixMilli(o.Time)
	}

	return &models.Order{
		OrderID:        o.OrderID,
		ClientID:       clientID,
		GroupID:        groupID,
		Symbol:         o.Symbol,
		Side:           models.Side(o.Side),
		Type:           models.OrderType(o.Type),
		Quantity:       qty,
		Price:          price,
		StopPrice:      stopPrice,
		FilledQuantity: filled,
		Status:         models.OrderStatus(o.Status),
		UpdateID:       updateID,
		CreatedAt:      createdAt,
	}, nil
}

// OrderList is the exchange response to a native OCO submission.
type OrderList struct {
	OrderListID       int64   `json:"orderListId"`
	ContingencyType   string  `json:"contingencyType"`
	ListStatusType    string  `json:"listStatusType"`
	ListOrderStatus   string  `json:"listOrderStatus"`
	ListClientOrderID string  `json:"listClientOrderId"`
	TransactionTime   int64   `json:"transactionTime"`
	Symbol            string  `json:"symbol"`
	OrderReports      []Order `json:"orderReports"`
}

type AccountBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

type AccountInfo struct {
	UpdateTime int64            `json:"updateTime"`
	Balances   []AccountBalance `json:"balances"`
}

func (a *AccountInfo) ToBalances() ([]models.Balance, error) {
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

type SymbolFilter struct {
	FilterType  string `json:"filterType"`
	StepSize    string `json:"stepSize"`
	TickSize    string `json:"tickSize"`
	MinNotional string `json:"minNotional"`
}

type ExchangeSymbol struct {
	Symbol     string         `json:"symbol"`
	BaseAsset  string         `json:"baseAsset"`
	QuoteAsset string         `json:"quoteAsset"`
	Filters    []SymbolFilter `json:"filters"`
}

type ExchangeInfo struct {
	Symbols []ExchangeSymbol `json:"symbols"`
}

func (s *ExchangeSymbol) ToModel() (*models.SymbolInfo, error) {
	info := &models.SymbolInfo{
		Symbol:     s.Symbol,
		BaseAsset:  s.BaseAsset,
		QuoteAsset: s.QuoteAsset,
	}

	var err error
	for _, f := range s.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			if info.StepSize, err = parseDecimal(f.StepSize); err != nil {
				return nil, err
			}
		case "PRICE_FILTER":
			if info.TickSize, err = parseDecimal(f.TickSize); err != nil {
				return nil, err
			}
		case "MIN_NOTIONAL", "NOTIONAL":
			if info.MinNotional, err = parseDecimal(f.MinNotional); err != nil {
				return nil, err
			}
		}
	}

	return info, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
