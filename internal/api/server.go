package api

import (
	"fmt"
	"time"

	"github.com/devcode-git/stream-reactor/internal/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// Server exposes the sink's health and metrics over HTTP.
type Server struct {
	app    *fiber.App
	host   string
	port   int
	logger zerolog.Logger
}

// NewServer creates the admin HTTP server.
func NewServer(host string, port int, stats *metrics.Collector, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Elasticsearch Sink",
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", func(c *fiber.Ctx) error {
		return c.JSON(stats.Snapshot())
	})

	return &Server{
		app:    app,
		host:   host,
		port:   port,
		logger: logger.With().Str("component", "api-server").Logger(),
	}
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.logger.Info().Str("addr", addr).Msg("Admin server listening")
	return s.app.Listen(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
