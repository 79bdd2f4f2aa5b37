package main

import (
	apihttp "tftrader/internal/api/http"
	"tftrader/internal/connector"
	"tftrader/internal/lifecycle"
	"tftrader/internal/trader"
	"tftrader/models"

	"github.com/gofiber/fiber/v2"
)

type statusProvider struct {
	conn    connector.Connector
	manager *lifecycle.Manager
	traders []*trader.Trader
}

func (s *statusProvider) ConnectionState() models.ConnectionState {
	return s.conn.State()
}

func (s *statusProvider) Symbols() []apihttp.SymbolStatus {
	out := make([]apihttp.SymbolStatus, 0, len(s.traders))
	for _, tr := range s.traders {
		out = append(out, apihttp.SymbolStatus{
			Symbol:     tr.Symbol(),
			Position:   s.manager.Position(tr.Symbol()),
			OpenOrders: s.manager.OpenOrders(tr.Symbol()),
			Halted:     tr.Fatal(),
		})
	}
	return out
}

func (a *App) initFiber(conn connector.Connector, manager *lifecycle.Manager, traders []*trader.Trader) {
	a.Fiber = fiber.New(fiber.Config{DisableStartupMessage: true})

	apihttp.RegisterHTTPEndpoints(a.Fiber, &statusProvider{
		conn:    conn,
		manager: manager,
		traders: traders,
	}, a.Logger)
}
