// Package motion implements the robot-side movement state machine: a
// defensive interpreter that turns decoded commands plus elapsed time
// into pose updates. It never trusts its inputs — every candidate
// position passes the safety validator before it is committed, and a
// rejection latches the error state instead of moving.
package motion

import (
	"sync"
	"time"

	"github.com/hri-lab/go-quadlink/internal/log"
	"github.com/hri-lab/go-quadlink/pkg/geom"
	"github.com/hri-lab/go-quadlink/pkg/protocol"
	"github.com/hri-lab/go-quadlink/pkg/safety"
)

const (
	// defaultEpsilon is the arrival radius for waypoints and targets.
	defaultEpsilon = 0.05

	// defaultTurnRate is the fraction of the remaining heading error
	// closed per tick.
	defaultTurnRate = 0.1
)

// Params configures a Machine. Zero values pick sensible defaults.
type Params struct {
	// Start is the pose position the machine begins at and returns to
	// on reset.
	Start geom.Position

	// PathLength bounds legacy axis motion: total distance traveled in
	// one run never exceeds it.
	PathLength float64

	// Speed is the initial speed in m/s, used until a command sets one.
	Speed float64

	// Epsilon is the arrival radius for waypoints and targets.
	Epsilon float64

	// TurnRate is the heading smoothing factor per tick.
	TurnRate float64

	// Validator screens every candidate position. Nil gets a default.
	Validator *safety.Validator
}

// Machine is the movement state machine. All methods are safe for
// concurrent use; Apply and Tick serialize on one mutex so a command
// never lands mid-update.
type Machine struct {
	mu sync.Mutex

	params Params

	status   protocol.MotionStatus
	pos      geom.Position
	heading  float64 // wrapped [0, 360)
	velocity geom.Position
	distance float64

	speed   float64
	mode    protocol.Mode
	gazeDeg float64 // heading target, smoothed toward each tick

	target *geom.Position // move_to destination
	plan   *Plan          // follow_path plan; nil when none
}

// NewMachine builds an idle machine at the configured start position.
func NewMachine(p Params) *Machine {
	if p.Epsilon <= 0 {
		p.Epsilon = defaultEpsilon
	}
	if p.TurnRate <= 0 || p.TurnRate > 1 {
		p.TurnRate = defaultTurnRate
	}
	if p.PathLength <= 0 {
		p.PathLength = 15
	}
	if p.Speed <= 0 {
		p.Speed = 0.5
	}
	if p.Validator == nil {
		p.Validator = safety.New(0)
	}
	return &Machine{
		params: p,
		status: protocol.StatusIdle,
		pos:    p.Start,
		speed:  p.Speed,
		mode:   protocol.ModeForward,
	}
}

// Apply feeds one decoded command into the machine. Commands that make
// no sense in the current state (pause while idle, resume while moving)
// are ignored rather than rejected; the robot keeps doing what it was
// doing.
func (m *Machine) Apply(cmd *protocol.Command) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch op := cmd.Op.(type) {
	case protocol.MoveTo:
		t := op.Target
		m.target = &t
		m.plan = nil
		if op.Speed > 0 {
			m.speed = op.Speed
		}
		m.beginRun()

	case protocol.FollowPath:
		plan, err := NewPlan(op.Waypoints)
		if err != nil {
			log.Warn("ignoring empty path", "cmd", cmd.ID)
			return
		}
		m.plan = plan
		m.target = nil
		if op.Speed > 0 {
			m.speed = op.Speed
		}
		m.beginRun()

	case protocol.Stop:
		m.halt(protocol.StatusIdle)

	case protocol.Pause:
		if m.status == protocol.StatusMoving {
			m.status = protocol.StatusPaused
			m.velocity = geom.Position{}
		}

	case protocol.Resume:
		if m.status == protocol.StatusPaused {
			m.status = protocol.StatusMoving
		}

	case protocol.SetMotion:
		m.applySetMotion(op)
	}
}

// applySetMotion handles the legacy flat command: parameters always
// update, then at most one trigger fires.
func (m *Machine) applySetMotion(op protocol.SetMotion) {
	if op.Speed > 0 {
		m.speed = op.Speed
	}
	if op.Mode != "" {
		m.mode = op.Mode
	}
	m.gazeDeg = geom.WrapDeg(op.GazeAngleDeg)

	switch op.Trigger {
	case protocol.TriggerStart:
		m.target = nil
		m.plan = nil
		m.beginRun()
	case protocol.TriggerStop:
		m.halt(protocol.StatusIdle)
	case protocol.TriggerReset:
		m.reset()
	}
}

// beginRun puts the machine into the moving state with a fresh odometer.
func (m *Machine) beginRun() {
	m.distance = 0
	m.status = protocol.StatusMoving
}

// halt stops movement in place, keeping position and odometer.
func (m *Machine) halt(status protocol.MotionStatus) {
	m.status = status
	m.velocity = geom.Position{}
}

// reset returns the machine to its initial pose and clears any plan.
func (m *Machine) reset() {
	m.status = protocol.StatusIdle
	m.pos = m.params.Start
	m.heading = 0
	m.gazeDeg = 0
	m.velocity = geom.Position{}
	m.distance = 0
	m.target = nil
	m.plan = nil
}

// Tick advances the machine by the elapsed wall time. Position moves at
// the current speed toward the active goal; heading eases toward the
// gaze target. A single Tick never overshoots: distance is clamped to
// what remains of the path, target or waypoint segment.
func (m *Machine) Tick(elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != protocol.StatusMoving {
		return
	}

	m.heading = smoothHeading(m.heading, m.gazeDeg, m.params.TurnRate)

	budget := m.speed * elapsed.Seconds()
	if budget <= 0 {
		return
	}

	candidate, applied, dir, completed := m.step(budget)

	if rej := m.params.Validator.Position(candidate); rej != nil {
		log.Warn("halting on unsafe candidate position", "reason", rej)
		m.halt(protocol.StatusError)
		return
	}

	m.pos = candidate
	m.distance += applied
	if completed {
		m.halt(protocol.StatusIdle)
		return
	}
	m.velocity = dir.Scale(m.speed)
}

// step computes where this tick's distance budget lands, by goal kind.
// It returns the candidate position, the distance actually spent, the
// unit direction of travel, and whether the goal was reached.
func (m *Machine) step(budget float64) (candidate geom.Position, applied float64, dir geom.Position, completed bool) {
	switch {
	case m.plan != nil:
		return m.stepPlan(budget)
	case m.target != nil:
		return m.stepTarget(budget, *m.target)
	default:
		return m.stepAxis(budget)
	}
}

// stepPlan walks the waypoint plan: arrive within epsilon, advance the
// cursor, and spend any leftover budget on the next segment.
func (m *Machine) stepPlan(budget float64) (geom.Position, float64, geom.Position, bool) {
	pos := m.pos
	applied := 0.0
	dir := geom.Position{}

	for {
		wp, ok := m.plan.Active()
		if !ok {
			return pos, applied, dir, true
		}
		remaining := pos.PlanarDistance(wp)
		if remaining < m.params.Epsilon {
			m.plan.Advance()
			continue
		}
		if budget <= 0 {
			return pos, applied, dir, false
		}
		dir = planarDirection(pos, wp)
		if budget >= remaining {
			pos = snapPlanar(pos, wp)
			applied += remaining
			budget -= remaining
			m.plan.Advance()
			continue
		}
		pos = pos.Add(dir.Scale(budget))
		applied += budget
		return pos, applied, dir, false
	}
}

// stepTarget moves straight at a single destination.
func (m *Machine) stepTarget(budget float64, target geom.Position) (geom.Position, float64, geom.Position, bool) {
	remaining := m.pos.PlanarDistance(target)
	if remaining < m.params.Epsilon {
		return m.pos, 0, geom.Position{}, true
	}
	dir := planarDirection(m.pos, target)
	if budget >= remaining {
		return snapPlanar(m.pos, target), remaining, dir, true
	}
	return m.pos.Add(dir.Scale(budget)), budget, dir, false
}

// stepAxis is the legacy run: straight along the mode axis until the
// configured path length is used up.
func (m *Machine) stepAxis(budget float64) (geom.Position, float64, geom.Position, bool) {
	remaining := m.params.PathLength - m.distance
	if remaining <= 0 {
		return m.pos, 0, geom.Position{}, true
	}
	completed := false
	if budget >= remaining {
		budget = remaining
		completed = true
	}
	dir := geom.Position{Z: 1}
	if m.mode == protocol.ModeRightward {
		dir = geom.Position{X: 1}
	}
	return m.pos.Add(dir.Scale(budget)), budget, dir, completed
}

// Snapshot returns the machine's current pose, timestamped now.
func (m *Machine) Snapshot() protocol.Pose {
	m.mu.Lock()
	defer m.mu.Unlock()
	return protocol.Pose{
		Position:         m.pos,
		HeadingDeg:       m.heading,
		Velocity:         m.velocity,
		Moving:           m.status == protocol.StatusMoving,
		Status:           m.status,
		DistanceTraveled: m.distance,
		TimestampMS:      time.Now().UnixMilli(),
	}
}

// Status returns the current state without the full pose.
func (m *Machine) Status() protocol.MotionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// PlanIndex returns the waypoint cursor, or -1 when no plan is active.
func (m *Machine) PlanIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.plan == nil {
		return -1
	}
	return m.plan.Index()
}

// smoothHeading eases current toward target by rate along the shortest
// arc, wrapping the result to [0, 360).
func smoothHeading(current, target, rate float64) float64 {
	diff := geom.WrapDeg(target - current)
	if diff > 180 {
		diff -= 360
	}
	return geom.WrapDeg(current + diff*rate)
}

// planarDirection is the unit vector from a toward b in the ground
// plane. The vertical component never participates in travel.
func planarDirection(a, b geom.Position) geom.Position {
	d := geom.Position{X: b.X - a.X, Z: b.Z - a.Z}
	mag := d.Magnitude()
	if mag == 0 {
		return geom.Position{}
	}
	return d.Scale(1 / mag)
}

// snapPlanar lands exactly on the goal's ground coordinates, keeping the
// current height.
func snapPlanar(pos, goal geom.Position) geom.Position {
	return geom.Position{X: goal.X, Y: pos.Y, Z: goal.Z}
}
