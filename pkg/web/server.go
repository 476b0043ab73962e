// Package web serves the sentinel dashboard API, the live feed websocket
// and the perception ingest websocket.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/sentinel/pkg/hub"
	"github.com/teslashibe/sentinel/pkg/ingest"
	"github.com/teslashibe/sentinel/pkg/monitor"
)

// Controller pauses and resumes analysis and republishes the snapshot.
// *agent.Runner implements it.
type Controller interface {
	Start()
	Stop()
	Running() bool
	Publish()
}

// Config holds server settings.
type Config struct {
	Port      string
	StaticDir string // dashboard assets; empty serves none
	Logger    *slog.Logger
}

// Deps are the components the server exposes. Ingest and Metrics are
// optional.
type Deps struct {
	Monitor *monitor.Monitor
	Feed    *hub.Hub
	Control Controller
	Ingest  *ingest.Hub
	Metrics http.Handler
}

// Server is the dashboard server
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	mon     *monitor.Monitor
	feed    *hub.Hub
	control Controller
}

// NewServer creates the server and registers every route.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		port:    cfg.Port,
		logger:  cfg.Logger.With("component", "web"),
		mon:     deps.Monitor,
		feed:    deps.Feed,
		control: deps.Control,
	}

	app := fiber.New(fiber.Config{
		AppName:               "Sentinel",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/state", s.handleState)
	api.Get("/zones", s.handleZones)
	api.Get("/incidents", s.handleListIncidents)
	api.Get("/incidents/:id", s.handleGetIncident)
	api.Post("/incidents/:id/resolve", s.handleResolveIncident)
	api.Delete("/incidents/:id", s.handleDeleteIncident)
	api.Post("/incidents/:id/notes", s.handleAddNote)
	api.Get("/timeline", s.handleTimeline)
	api.Post("/analysis/start", s.handleStartAnalysis)
	api.Post("/analysis/stop", s.handleStopAnalysis)

	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws", websocket.New(s.handleFeedWS))
	if deps.Ingest != nil {
		deps.Ingest.RegisterRoutes(app)
		deps.Ingest.RegisterAPIRoutes(api)
	}

	s.app = app
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", "http://localhost:"+s.port)
		errc <- s.app.Listen(":" + s.port)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return s.app.Shutdown()
	}
}
