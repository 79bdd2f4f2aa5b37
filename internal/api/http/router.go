package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func RegisterHTTPEndpoints(f *fiber.App, status StatusProvider, l *logrus.Logger) {
	NewMiddleware(f).useMetrics()

	h := NewHandler(f, status, l)
	router := f.Group("api")
	router.Get("/healthcheck", h.HealthCheck)
	router.Get("/status", h.Status)
}
