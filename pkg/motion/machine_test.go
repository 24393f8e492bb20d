package motion

import (
	"math"
	"testing"
	"time"

	"github.com/hri-lab/go-quadlink/pkg/geom"
	"github.com/hri-lab/go-quadlink/pkg/protocol"
	"github.com/hri-lab/go-quadlink/pkg/safety"
)

func newTestMachine(p Params) *Machine {
	if p.Validator == nil {
		p.Validator = safety.New(1000)
	}
	return NewMachine(p)
}

func apply(m *Machine, op protocol.Operation) {
	m.Apply(&protocol.Command{ID: "t", Op: op})
}

func TestMachine_StartsIdle(t *testing.T) {
	m := newTestMachine(Params{Start: geom.Position{X: 1, Z: 2}})
	pose := m.Snapshot()
	if pose.Status != protocol.StatusIdle {
		t.Fatalf("status = %v, want idle", pose.Status)
	}
	if pose.Position != (geom.Position{X: 1, Z: 2}) {
		t.Errorf("position = %+v, want start", pose.Position)
	}
	// Idle machine does not move.
	m.Tick(time.Second)
	if got := m.Snapshot().Position; got != (geom.Position{X: 1, Z: 2}) {
		t.Errorf("position after idle tick = %+v", got)
	}
}

func TestMachine_MoveToArrivesAndStops(t *testing.T) {
	m := newTestMachine(Params{})
	apply(m, protocol.MoveTo{Target: geom.Position{Z: 3}, Speed: 1})

	// 1 m/s toward z=3: after 1s we are at z=1, still moving.
	m.Tick(time.Second)
	pose := m.Snapshot()
	if math.Abs(pose.Position.Z-1) > 1e-9 {
		t.Errorf("z after 1s = %v, want 1", pose.Position.Z)
	}
	if pose.Status != protocol.StatusMoving || !pose.Moving {
		t.Errorf("status = %v moving=%v, want moving", pose.Status, pose.Moving)
	}
	if math.Abs(pose.Velocity.Z-1) > 1e-9 {
		t.Errorf("velocity z = %v, want 1", pose.Velocity.Z)
	}

	// A generous tick lands exactly on the target, never past it.
	m.Tick(10 * time.Second)
	pose = m.Snapshot()
	if pose.Position.Z != 3 {
		t.Errorf("z after arrival = %v, want exactly 3", pose.Position.Z)
	}
	if pose.Status != protocol.StatusIdle {
		t.Errorf("status after arrival = %v, want idle", pose.Status)
	}
	if pose.Velocity != (geom.Position{}) {
		t.Errorf("velocity after arrival = %+v, want zero", pose.Velocity)
	}
}

func TestMachine_LegacyRunClampsToPathLength(t *testing.T) {
	m := newTestMachine(Params{PathLength: 10})
	apply(m, protocol.SetMotion{Speed: 5, Mode: protocol.ModeForward, Trigger: protocol.TriggerStart})

	// 5 m/s for 1.6s puts the odometer at 8 of 10.
	m.Tick(1600 * time.Millisecond)
	if d := m.Snapshot().DistanceTraveled; math.Abs(d-8) > 1e-9 {
		t.Fatalf("distance = %v, want 8", d)
	}

	// The next full second would cover 5m but only 2m remain: the tick
	// clamps, finishes the run and goes idle.
	m.Tick(time.Second)
	pose := m.Snapshot()
	if math.Abs(pose.DistanceTraveled-10) > 1e-9 {
		t.Errorf("distance = %v, want exactly 10", pose.DistanceTraveled)
	}
	if pose.Status != protocol.StatusIdle {
		t.Errorf("status = %v, want idle", pose.Status)
	}
	if math.Abs(pose.Position.Z-10) > 1e-9 {
		t.Errorf("z = %v, want 10", pose.Position.Z)
	}
}

func TestMachine_RightwardMovesAlongX(t *testing.T) {
	m := newTestMachine(Params{PathLength: 10})
	apply(m, protocol.SetMotion{Speed: 2, Mode: protocol.ModeRightward, Trigger: protocol.TriggerStart})
	m.Tick(time.Second)
	pose := m.Snapshot()
	if math.Abs(pose.Position.X-2) > 1e-9 || pose.Position.Z != 0 {
		t.Errorf("position = %+v, want x=2 z=0", pose.Position)
	}
}

func TestMachine_PauseFreezesResumeContinues(t *testing.T) {
	m := newTestMachine(Params{})
	apply(m, protocol.MoveTo{Target: geom.Position{Z: 10}, Speed: 1})
	m.Tick(2 * time.Second)

	apply(m, protocol.Pause{})
	frozen := m.Snapshot()
	if frozen.Status != protocol.StatusPaused {
		t.Fatalf("status = %v, want paused", frozen.Status)
	}

	// Time passing while paused changes nothing.
	m.Tick(5 * time.Second)
	pose := m.Snapshot()
	if pose.Position != frozen.Position || pose.DistanceTraveled != frozen.DistanceTraveled {
		t.Errorf("paused machine moved: %+v -> %+v", frozen.Position, pose.Position)
	}

	apply(m, protocol.Resume{})
	m.Tick(time.Second)
	pose = m.Snapshot()
	if math.Abs(pose.Position.Z-3) > 1e-9 {
		t.Errorf("z after resume = %v, want 3", pose.Position.Z)
	}
	if math.Abs(pose.DistanceTraveled-3) > 1e-9 {
		t.Errorf("distance after resume = %v, want 3", pose.DistanceTraveled)
	}
}

func TestMachine_PauseWhileIdleIsIgnored(t *testing.T) {
	m := newTestMachine(Params{})
	apply(m, protocol.Pause{})
	if got := m.Status(); got != protocol.StatusIdle {
		t.Errorf("status = %v, want idle", got)
	}
	apply(m, protocol.Resume{})
	if got := m.Status(); got != protocol.StatusIdle {
		t.Errorf("status after stray resume = %v, want idle", got)
	}
}

func TestMachine_FollowPathAdvancesWithinEpsilon(t *testing.T) {
	m := newTestMachine(Params{Epsilon: 0.05})
	apply(m, protocol.FollowPath{
		Waypoints: []geom.Position{{Z: 5}, {X: 5, Z: 5}},
		Speed:     1,
	})
	if idx := m.PlanIndex(); idx != 0 {
		t.Fatalf("initial index = %d, want 0", idx)
	}

	// Walk to within epsilon of the first waypoint: 4.99 of 5.
	m.Tick(4990 * time.Millisecond)
	pose := m.Snapshot()
	if math.Abs(pose.Position.Z-4.99) > 1e-9 {
		t.Fatalf("z = %v, want 4.99", pose.Position.Z)
	}

	// The next tick sees the remaining 0.01 < epsilon and advances the
	// cursor before spending any budget.
	m.Tick(time.Millisecond)
	if idx := m.PlanIndex(); idx != 1 {
		t.Errorf("index = %d, want 1", idx)
	}
	if m.Status() != protocol.StatusMoving {
		t.Errorf("status = %v, want moving toward second waypoint", m.Status())
	}
}

func TestMachine_FollowPathCompletes(t *testing.T) {
	m := newTestMachine(Params{})
	apply(m, protocol.FollowPath{
		Waypoints: []geom.Position{{Z: 1}, {Z: 2}},
		Speed:     1,
	})
	m.Tick(10 * time.Second)
	pose := m.Snapshot()
	if pose.Status != protocol.StatusIdle {
		t.Errorf("status = %v, want idle after last waypoint", pose.Status)
	}
	if pose.Position.Z != 2 {
		t.Errorf("z = %v, want 2", pose.Position.Z)
	}
	if math.Abs(pose.DistanceTraveled-2) > 1e-9 {
		t.Errorf("distance = %v, want 2", pose.DistanceTraveled)
	}
}

func TestMachine_StopHaltsInPlace(t *testing.T) {
	m := newTestMachine(Params{})
	apply(m, protocol.MoveTo{Target: geom.Position{Z: 10}, Speed: 1})
	m.Tick(3 * time.Second)
	apply(m, protocol.Stop{})

	pose := m.Snapshot()
	if pose.Status != protocol.StatusIdle {
		t.Errorf("status = %v, want idle", pose.Status)
	}
	if math.Abs(pose.Position.Z-3) > 1e-9 {
		t.Errorf("stop moved the robot: z = %v", pose.Position.Z)
	}
	if math.Abs(pose.DistanceTraveled-3) > 1e-9 {
		t.Errorf("stop cleared the odometer: %v", pose.DistanceTraveled)
	}
}

func TestMachine_ResetReturnsToStart(t *testing.T) {
	start := geom.Position{X: 1, Y: 0.28, Z: 1}
	m := newTestMachine(Params{Start: start})
	apply(m, protocol.SetMotion{Speed: 1, Trigger: protocol.TriggerStart})
	m.Tick(2 * time.Second)

	apply(m, protocol.SetMotion{Trigger: protocol.TriggerReset})
	pose := m.Snapshot()
	if pose.Position != start {
		t.Errorf("position = %+v, want start %+v", pose.Position, start)
	}
	if pose.DistanceTraveled != 0 {
		t.Errorf("distance = %v, want 0", pose.DistanceTraveled)
	}
	if pose.Status != protocol.StatusIdle {
		t.Errorf("status = %v, want idle", pose.Status)
	}
}

func TestMachine_HeadingEasesTowardGaze(t *testing.T) {
	m := newTestMachine(Params{TurnRate: 0.1, PathLength: 100})
	apply(m, protocol.SetMotion{Speed: 0.5, GazeAngleDeg: 90, Trigger: protocol.TriggerStart})

	m.Tick(20 * time.Millisecond)
	h1 := m.Snapshot().HeadingDeg
	if math.Abs(h1-9) > 1e-9 {
		t.Errorf("heading after one tick = %v, want 9", h1)
	}

	// Heading converges monotonically, never overshooting 90.
	for i := 0; i < 200; i++ {
		m.Tick(20 * time.Millisecond)
	}
	h := m.Snapshot().HeadingDeg
	if h < h1 || h > 90 {
		t.Errorf("heading = %v, want within (%v, 90]", h, h1)
	}
}

func TestMachine_HeadingTakesShortestArc(t *testing.T) {
	got := smoothHeading(350, 10, 0.1)
	// 20 degrees apart across the wrap; one step closes 2 of them.
	if math.Abs(got-352) > 1e-9 {
		t.Errorf("smoothHeading(350, 10) = %v, want 352", got)
	}
	got = smoothHeading(10, 350, 0.1)
	if math.Abs(got-8) > 1e-9 {
		t.Errorf("smoothHeading(10, 350) = %v, want 8", got)
	}
}

func TestMachine_UnsafeCandidateLatchesError(t *testing.T) {
	m := newTestMachine(Params{
		PathLength: 1000,
		Validator:  safety.New(5),
	})
	apply(m, protocol.SetMotion{Speed: 10, Trigger: protocol.TriggerStart})

	// One 1s tick wants z=10, outside the 5m radius: the machine must
	// refuse to move and report the error state.
	m.Tick(time.Second)
	pose := m.Snapshot()
	if pose.Status != protocol.StatusError {
		t.Fatalf("status = %v, want error", pose.Status)
	}
	if pose.Position != (geom.Position{}) {
		t.Errorf("position = %+v, want unchanged origin", pose.Position)
	}

	// Error state is latched; time alone does not clear it.
	m.Tick(time.Second)
	if m.Status() != protocol.StatusError {
		t.Errorf("status = %v, want error to persist", m.Status())
	}

	// A fresh start clears it.
	apply(m, protocol.SetMotion{Speed: 0.5, Trigger: protocol.TriggerStart})
	if m.Status() != protocol.StatusMoving {
		t.Errorf("status = %v, want moving after restart", m.Status())
	}
}

func TestPlan_CursorBounds(t *testing.T) {
	if _, err := NewPlan(nil); err != ErrEmptyPath {
		t.Fatalf("NewPlan(nil) err = %v, want ErrEmptyPath", err)
	}

	p, err := NewPlan([]geom.Position{{Z: 1}, {Z: 2}})
	if err != nil {
		t.Fatal(err)
	}
	wp, ok := p.Active()
	if !ok || wp.Z != 1 {
		t.Errorf("Active() = %+v %v, want first waypoint", wp, ok)
	}
	p.Advance()
	p.Advance()
	if !p.Done() {
		t.Error("plan should be done after advancing past last waypoint")
	}
	p.Advance() // past the end stays put
	if p.Index() != 2 {
		t.Errorf("index = %d, want clamped at 2", p.Index())
	}
	if _, ok := p.Active(); ok {
		t.Error("Active() on a done plan should report false")
	}
}
