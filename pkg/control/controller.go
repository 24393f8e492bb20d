// Package control is the operator-facing command API. A Controller
// stamps, validates and frame-transforms commands before handing them to
// the link, and presents incoming robot poses in scene coordinates. It
// holds the legacy motion parameters (speed, mode, gaze) so that the
// flat heartbeat command always reflects the latest operator intent.
package control

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hri-lab/go-quadlink/internal/log"
	"github.com/hri-lab/go-quadlink/pkg/geom"
	"github.com/hri-lab/go-quadlink/pkg/protocol"
	"github.com/hri-lab/go-quadlink/pkg/safety"
)

// Operator speed limits in m/s. Requests outside the band are clamped,
// not rejected; a sluggish or hot value from a UI slider should degrade
// gracefully.
const (
	MinSpeed = 0.1
	MaxSpeed = 2.0

	// MaxGazeDeg bounds the gaze angle to either side of straight ahead.
	MaxGazeDeg = 90.0

	// emergencyBurst is how many stop datagrams an emergency stop fires.
	// UDP drops packets; an e-stop must survive a lossy link.
	emergencyBurst = 10
)

// ErrEmptyPath rejects a path command with no waypoints.
var ErrEmptyPath = errors.New("control: path has no waypoints")

// Sender delivers one command datagram. *link.Link satisfies it.
type Sender interface {
	Send(cmd *protocol.Command) error
}

// PoseSource reads the link's shared state. *link.Link satisfies it.
type PoseSource interface {
	Pose() (protocol.Pose, bool)
	Connected() bool
}

// PathListener is notified with the scene-frame waypoints whenever a new
// path is accepted for sending.
type PathListener func(waypoints []geom.Position)

// Params configures a Controller.
type Params struct {
	// Frame maps scene coordinates to the robot's external frame. Nil
	// means identity.
	Frame *geom.Frame

	// Speed is the initial operator speed, clamped into the legal band.
	Speed float64

	// Validator screens outgoing positions. Nil gets a default.
	Validator *safety.Validator
}

// Controller is safe for concurrent use.
type Controller struct {
	mu        sync.Mutex
	sender    Sender
	source    PoseSource
	frame     *geom.Frame
	validator *safety.Validator

	speed   float64
	mode    protocol.Mode
	gazeDeg float64

	path      []geom.Position
	listeners []PathListener
}

// New builds a controller over the given transport.
func New(sender Sender, source PoseSource, p Params) *Controller {
	frame := p.Frame
	if frame == nil {
		frame = &geom.Frame{Scale: 1}
	}
	if p.Validator == nil {
		p.Validator = safety.New(0)
	}
	return &Controller{
		sender:    sender,
		source:    source,
		frame:     frame,
		validator: p.Validator,
		speed:     ClampSpeed(p.Speed),
		mode:      protocol.ModeForward,
	}
}

// ClampSpeed forces a speed into the legal operator band.
func ClampSpeed(v float64) float64 {
	if v < MinSpeed {
		return MinSpeed
	}
	if v > MaxSpeed {
		return MaxSpeed
	}
	return v
}

// ClampGaze forces a gaze angle into [-MaxGazeDeg, MaxGazeDeg].
func ClampGaze(deg float64) float64 {
	if deg < -MaxGazeDeg {
		return -MaxGazeDeg
	}
	if deg > MaxGazeDeg {
		return MaxGazeDeg
	}
	return deg
}

// stamp wraps an operation with a fresh ID and send-time timestamp.
func stamp(op protocol.Operation) *protocol.Command {
	return &protocol.Command{
		ID:          uuid.NewString(),
		TimestampMS: time.Now().UnixMilli(),
		Op:          op,
	}
}

// MoveTo sends the robot to a scene-frame target at the given speed.
func (c *Controller) MoveTo(target geom.Position, speed float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ext := c.frame.ToExternal(target)
	if rej := c.validator.Position(ext); rej != nil {
		return fmt.Errorf("control: target rejected: %w", rej)
	}
	c.speed = ClampSpeed(speed)
	return c.sender.Send(stamp(protocol.MoveTo{Target: ext, Speed: c.speed}))
}

// FollowPath replaces the robot's path with the given scene-frame
// waypoints. On success the path snapshot is kept and listeners are
// notified with a copy.
func (c *Controller) FollowPath(waypoints []geom.Position, speed float64) error {
	if len(waypoints) == 0 {
		return ErrEmptyPath
	}

	c.mu.Lock()
	ext := make([]geom.Position, len(waypoints))
	for i, wp := range waypoints {
		ext[i] = c.frame.ToExternal(wp)
		if rej := c.validator.Position(ext[i]); rej != nil {
			c.mu.Unlock()
			return fmt.Errorf("control: waypoint %d rejected: %w", i, rej)
		}
	}
	c.speed = ClampSpeed(speed)
	cmd := stamp(protocol.FollowPath{Waypoints: ext, Speed: c.speed})

	if err := c.sender.Send(cmd); err != nil {
		c.mu.Unlock()
		return err
	}
	c.path = make([]geom.Position, len(waypoints))
	copy(c.path, waypoints)
	listeners := make([]PathListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		snapshot := make([]geom.Position, len(waypoints))
		copy(snapshot, waypoints)
		fn(snapshot)
	}
	return nil
}

// Stop halts the robot.
func (c *Controller) Stop() error {
	return c.sender.Send(stamp(protocol.Stop{}))
}

// Pause freezes motion in place.
func (c *Controller) Pause() error {
	return c.sender.Send(stamp(protocol.Pause{}))
}

// Resume continues a paused run.
func (c *Controller) Resume() error {
	return c.sender.Send(stamp(protocol.Resume{}))
}

// EmergencyStop fires a burst of stop datagrams, pushing through send
// errors. It fails only when every datagram in the burst failed.
func (c *Controller) EmergencyStop() error {
	var lastErr error
	sent := 0
	for i := 0; i < emergencyBurst; i++ {
		if err := c.sender.Send(stamp(protocol.Stop{})); err != nil {
			lastErr = err
			continue
		}
		sent++
	}
	log.Warn("emergency stop issued", "sent", sent, "of", emergencyBurst)
	if sent == 0 {
		return fmt.Errorf("control: emergency stop: no datagram sent: %w", lastErr)
	}
	return nil
}

// StartMotion begins a legacy axis run with the current parameters.
func (c *Controller) StartMotion() error {
	return c.sendMotion(protocol.TriggerStart)
}

// StopMotion ends a legacy axis run.
func (c *Controller) StopMotion() error {
	return c.sendMotion(protocol.TriggerStop)
}

// ResetMotion returns the robot to its starting pose.
func (c *Controller) ResetMotion() error {
	return c.sendMotion(protocol.TriggerReset)
}

// UpdateMotion is the heartbeat: it re-sends the current parameters with
// no trigger so the robot keeps hearing from us on a lossy link.
func (c *Controller) UpdateMotion() error {
	return c.sendMotion(protocol.TriggerNone)
}

func (c *Controller) sendMotion(trigger protocol.Trigger) error {
	c.mu.Lock()
	op := protocol.SetMotion{
		Speed:        c.speed,
		Mode:         c.mode,
		GazeAngleDeg: c.gazeDeg,
		Trigger:      trigger,
	}
	c.mu.Unlock()
	return c.sender.Send(stamp(op))
}

// SetSpeed stores a clamped speed and pushes it to the robot.
func (c *Controller) SetSpeed(v float64) error {
	c.mu.Lock()
	c.speed = ClampSpeed(v)
	c.mu.Unlock()
	return c.UpdateMotion()
}

// SetMode selects the legacy movement axis and pushes it to the robot.
func (c *Controller) SetMode(mode protocol.Mode) error {
	if mode != protocol.ModeForward && mode != protocol.ModeRightward {
		return fmt.Errorf("control: unknown mode %q", mode)
	}
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
	return c.UpdateMotion()
}

// SetGaze stores a clamped gaze angle and pushes it to the robot.
func (c *Controller) SetGaze(deg float64) error {
	c.mu.Lock()
	c.gazeDeg = ClampGaze(deg)
	c.mu.Unlock()
	return c.UpdateMotion()
}

// Speed returns the current clamped operator speed.
func (c *Controller) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// Gaze returns the current clamped gaze angle.
func (c *Controller) Gaze() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gazeDeg
}

// Mode returns the current legacy movement axis.
func (c *Controller) Mode() protocol.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Path returns a copy of the last accepted scene-frame path.
func (c *Controller) Path() []geom.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]geom.Position, len(c.path))
	copy(out, c.path)
	return out
}

// OnPath registers a listener for accepted paths.
func (c *Controller) OnPath(fn PathListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Pose reads the link's last pose translated into scene coordinates.
func (c *Controller) Pose() (protocol.Pose, bool) {
	pose, ok := c.source.Pose()
	if !ok {
		return protocol.Pose{}, false
	}
	c.mu.Lock()
	frame := c.frame
	c.mu.Unlock()
	pose.Position = frame.ToLocal(pose.Position)
	pose.Velocity = frame.VecToLocal(pose.Velocity)
	pose.HeadingDeg = frame.HeadingToLocal(pose.HeadingDeg)
	return pose, true
}

// Connected reports link health as seen by the watchdog.
func (c *Controller) Connected() bool {
	return c.source.Connected()
}
