// Package web provides the operator dashboard: a small REST surface for
// issuing commands and a websocket stream of pose, path and link events.
package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/hri-lab/go-quadlink/internal/log"
	"github.com/hri-lab/go-quadlink/pkg/control"
	"github.com/hri-lab/go-quadlink/pkg/geom"
	"github.com/hri-lab/go-quadlink/pkg/protocol"
	"github.com/hri-lab/go-quadlink/pkg/telemetry"
)

// Server is the dashboard server. Commands go through the controller;
// telemetry fans out through the hub.
type Server struct {
	app        *fiber.App
	port       string
	controller *control.Controller
	statusHub  *telemetry.Hub
}

// NewServer wires routes over the given controller. The controller's
// path acceptances are forwarded onto the stream automatically.
func NewServer(port string, controller *control.Controller) *Server {
	s := &Server{
		port:       port,
		controller: controller,
		statusHub:  telemetry.NewHub("status"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "quadlink dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Static("/", "./web")

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/move", s.handleMove)
	api.Post("/path", s.handlePath)
	api.Post("/stop", s.handleStop)
	api.Post("/pause", s.handlePause)
	api.Post("/resume", s.handleResume)
	api.Post("/estop", s.handleEmergencyStop)
	api.Post("/motion", s.handleMotion)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	controller.OnPath(func(waypoints []geom.Position) {
		s.PathUpdated(waypoints)
	})

	s.app = app
	return s
}

// Start runs the hub and blocks serving HTTP.
func (s *Server) Start() error {
	log.Info("dashboard listening", "addr", "http://localhost:"+s.port)
	go s.statusHub.Run()
	return s.app.Listen(":" + s.port)
}

// StartAsync runs the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("dashboard server error", "err", err)
		}
	}()
}

// PublishPose pushes a scene-frame pose onto the stream.
func (s *Server) PublishPose(p *protocol.Pose) {
	ev, err := telemetry.NewPoseEvent(p)
	if err != nil {
		log.Error("encoding pose event", "err", err)
		return
	}
	s.statusHub.Publish(ev)
}

// PathUpdated pushes an accepted path onto the stream.
func (s *Server) PathUpdated(waypoints []geom.Position) {
	ev, err := telemetry.NewPathEvent(waypoints)
	if err != nil {
		log.Error("encoding path event", "err", err)
		return
	}
	s.statusHub.Publish(ev)
}

// PublishLink pushes a connectivity change onto the stream.
func (s *Server) PublishLink(connected bool) {
	ev, err := telemetry.NewLinkEvent(connected)
	if err != nil {
		log.Error("encoding link event", "err", err)
		return
	}
	s.statusHub.Publish(ev)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
