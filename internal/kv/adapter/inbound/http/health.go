package http_handler

import (
	"github.com/anthanhphan/go-kvs/internal/kv/domain"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// HealthServer exposes liveness and engine statistics over HTTP. It is
// optional and runs beside the TCP protocol listener.
type HealthServer struct {
	app   *fiber.App
	stats domain.StatsProvider
}

// NewHealthServer builds the HTTP surface. stats may be nil when the
// configured engine does not report statistics.
func NewHealthServer(stats domain.StatsProvider) *HealthServer {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &HealthServer{app: app, stats: stats}
	s.registerRoutes()
	return s
}

func (s *HealthServer) registerRoutes() {
	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/stats", s.handleStats)
}

func (s *HealthServer) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *HealthServer) handleStats(c *fiber.Ctx) error {
	if s.stats == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "engine does not report statistics",
		})
	}
	return c.JSON(s.stats.Stats())
}

func (s *HealthServer) Start(addr string) error {
	return s.app.Listen(addr)
}

func (s *HealthServer) Stop() error {
	return s.app.Shutdown()
}
