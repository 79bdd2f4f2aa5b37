package http

import (
	"tftrader/models"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// StatusProvider exposes the runtime view the operator endpoints render.
type StatusProvider interface {
	ConnectionState() models.ConnectionState
	Symbols() []SymbolStatus
}

type SymbolStatus struct {
	Symbol     string          `json:"symbol"`
	Position   models.Position `json:"position"`
	OpenOrders []models.Order  `json:"openOrders"`
	Halted     bool            `json:"halted"`
}

type Handler struct {
	fiber  *fiber.App
	status StatusProvider
	logger *logrus.Logger
}

func NewHandler(f *fiber.App, status StatusProvider, l *logrus.Logger) *Handler {
	return &Handler{
		fiber:  f,
		status: status,
		logger: l,
	}
}

func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	body := struct {
		Status bool `json:"status"`
	}{
		Status: true,
	}

	if err := c.JSON(body); err != nil {
		return err
	}

	return nil
}

func (h *Handler) Status(c *fiber.Ctx) error {
	body := struct {
		Connection models.ConnectionState `json:"connection"`
		Symbols    []SymbolStatus         `json:"symbols"`
	}{
		Connection: h.status.ConnectionState(),
		Symbols:    h.status.Symbols(),
	}

	if err := c.JSON(body); err != nil {
		return err
	}

	return nil
}
