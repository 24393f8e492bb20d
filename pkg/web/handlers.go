package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/hri-lab/go-quadlink/pkg/control"
	"github.com/hri-lab/go-quadlink/pkg/geom"
	"github.com/hri-lab/go-quadlink/pkg/protocol"
	"github.com/hri-lab/go-quadlink/pkg/safety"
	"github.com/hri-lab/go-quadlink/pkg/telemetry"
)

// StatusResponse is the GET /api/status payload.
type StatusResponse struct {
	Connected bool                `json:"connected"`
	Pose      *telemetry.PoseData `json:"pose,omitempty"`
	Path      []geom.Position     `json:"path"`
	Speed     float64             `json:"speed"`
	Mode      protocol.Mode       `json:"mode"`
	GazeDeg   float64             `json:"gazeDeg"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{
		Connected: s.controller.Connected(),
		Path:      s.controller.Path(),
		Speed:     s.controller.Speed(),
		Mode:      s.controller.Mode(),
		GazeDeg:   s.controller.Gaze(),
	}
	if pose, ok := s.controller.Pose(); ok {
		resp.Pose = &telemetry.PoseData{
			Position:         pose.Position,
			HeadingDeg:       pose.HeadingDeg,
			Velocity:         pose.Velocity,
			Moving:           pose.Moving,
			Status:           pose.Status,
			Battery:          pose.Battery,
			DistanceTraveled: pose.DistanceTraveled,
		}
	}
	return c.JSON(resp)
}

// MoveRequest is the POST /api/move body: a scene-frame target.
type MoveRequest struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Speed float64 `json:"speed"`
}

func (s *Server) handleMove(c *fiber.Ctx) error {
	var req MoveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	target := geom.Position{X: req.X, Y: req.Y, Z: req.Z}
	if err := s.controller.MoveTo(target, req.Speed); err != nil {
		return commandError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// PathRequest is the POST /api/path body: scene-frame waypoints.
type PathRequest struct {
	Waypoints []geom.Position `json:"waypoints"`
	Speed     float64         `json:"speed"`
}

func (s *Server) handlePath(c *fiber.Ctx) error {
	var req PathRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := s.controller.FollowPath(req.Waypoints, req.Speed); err != nil {
		return commandError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "waypoints": len(req.Waypoints)})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.controller.Stop(); err != nil {
		return commandError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) handlePause(c *fiber.Ctx) error {
	if err := s.controller.Pause(); err != nil {
		return commandError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) handleResume(c *fiber.Ctx) error {
	if err := s.controller.Resume(); err != nil {
		return commandError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) handleEmergencyStop(c *fiber.Ctx) error {
	if err := s.controller.EmergencyStop(); err != nil {
		return commandError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// MotionRequest is the POST /api/motion body: the legacy parameter set.
// Absent fields leave the current value alone; at most one of start,
// stop, reset fires.
type MotionRequest struct {
	Speed     *float64 `json:"speed"`
	Mode      *string  `json:"mode"`
	GazeAngle *float64 `json:"gazeAngle"`
	Start     bool     `json:"start"`
	Stop      bool     `json:"stop"`
	Reset     bool     `json:"reset"`
}

func (s *Server) handleMotion(c *fiber.Ctx) error {
	var req MotionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}

	if req.Speed != nil {
		if err := s.controller.SetSpeed(*req.Speed); err != nil {
			return commandError(c, err)
		}
	}
	if req.Mode != nil {
		if err := s.controller.SetMode(protocol.Mode(*req.Mode)); err != nil {
			return commandError(c, err)
		}
	}
	if req.GazeAngle != nil {
		if err := s.controller.SetGaze(*req.GazeAngle); err != nil {
			return commandError(c, err)
		}
	}

	var err error
	switch {
	case req.Start:
		err = s.controller.StartMotion()
	case req.Stop:
		err = s.controller.StopMotion()
	case req.Reset:
		err = s.controller.ResetMotion()
	}
	if err != nil {
		return commandError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "speed": s.controller.Speed()})
}

// handleStatusWS attaches one stream subscriber. Run blocks until the
// client goes away.
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	client := telemetry.NewClient(s.statusHub, conn)
	client.Run()
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}

// commandError maps controller failures to HTTP codes: validation
// problems are the client's fault, transport problems are ours.
func commandError(c *fiber.Ctx, err error) error {
	status := fiber.StatusBadGateway
	var rej *safety.Rejection
	if errors.As(err, &rej) || errors.Is(err, control.ErrEmptyPath) {
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
