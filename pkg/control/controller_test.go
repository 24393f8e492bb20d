package control

import (
	"errors"
	"sync"
	"testing"

	"github.com/hri-lab/go-quadlink/pkg/geom"
	"github.com/hri-lab/go-quadlink/pkg/protocol"
	"github.com/hri-lab/go-quadlink/pkg/safety"
)

// mockSender records every command and can be told to fail.
type mockSender struct {
	mu    sync.Mutex
	sent  []*protocol.Command
	fails int // fail this many sends before succeeding
}

func (m *mockSender) Send(cmd *protocol.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails > 0 {
		m.fails--
		return errors.New("send refused")
	}
	m.sent = append(m.sent, cmd)
	return nil
}

func (m *mockSender) commands() []*protocol.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*protocol.Command, len(m.sent))
	copy(out, m.sent)
	return out
}

type mockSource struct {
	pose      protocol.Pose
	havePose  bool
	connected bool
}

func (m *mockSource) Pose() (protocol.Pose, bool) { return m.pose, m.havePose }
func (m *mockSource) Connected() bool             { return m.connected }

func newTestController(s Sender) *Controller {
	return New(s, &mockSource{}, Params{Speed: 0.5})
}

func TestController_MoveToStampsAndSends(t *testing.T) {
	sender := &mockSender{}
	c := newTestController(sender)

	if err := c.MoveTo(geom.Position{X: 1, Z: 3}, 0.8); err != nil {
		t.Fatal(err)
	}
	cmds := sender.commands()
	if len(cmds) != 1 {
		t.Fatalf("sent %d commands, want 1", len(cmds))
	}
	cmd := cmds[0]
	if cmd.ID == "" || cmd.TimestampMS == 0 {
		t.Errorf("command not stamped: id=%q ts=%d", cmd.ID, cmd.TimestampMS)
	}
	op, ok := cmd.Op.(protocol.MoveTo)
	if !ok {
		t.Fatalf("op = %T, want MoveTo", cmd.Op)
	}
	if op.Target != (geom.Position{X: 1, Z: 3}) {
		t.Errorf("target = %+v", op.Target)
	}
	if op.Speed != 0.8 {
		t.Errorf("speed = %v, want 0.8", op.Speed)
	}
}

func TestController_SpeedAndGazeClamp(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.05, MinSpeed},
		{0.1, 0.1},
		{1.3, 1.3},
		{2.0, 2.0},
		{9.9, MaxSpeed},
	}
	for _, tt := range tests {
		if got := ClampSpeed(tt.in); got != tt.want {
			t.Errorf("ClampSpeed(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if got := ClampGaze(120); got != MaxGazeDeg {
		t.Errorf("ClampGaze(120) = %v, want %v", got, MaxGazeDeg)
	}
	if got := ClampGaze(-91); got != -MaxGazeDeg {
		t.Errorf("ClampGaze(-91) = %v, want %v", got, -MaxGazeDeg)
	}
	if got := ClampGaze(45); got != 45.0 {
		t.Errorf("ClampGaze(45) = %v, want 45", got)
	}
}

func TestController_SetSpeedClampsAndHeartbeats(t *testing.T) {
	sender := &mockSender{}
	c := newTestController(sender)

	if err := c.SetSpeed(7.5); err != nil {
		t.Fatal(err)
	}
	if got := c.Speed(); got != MaxSpeed {
		t.Errorf("Speed() = %v, want clamped %v", got, MaxSpeed)
	}
	cmds := sender.commands()
	if len(cmds) != 1 {
		t.Fatalf("sent %d commands, want 1 heartbeat", len(cmds))
	}
	op, ok := cmds[0].Op.(protocol.SetMotion)
	if !ok {
		t.Fatalf("op = %T, want SetMotion", cmds[0].Op)
	}
	if op.Speed != MaxSpeed || op.Trigger != protocol.TriggerNone {
		t.Errorf("heartbeat = %+v", op)
	}
}

func TestController_SetModeRejectsUnknown(t *testing.T) {
	c := newTestController(&mockSender{})
	if err := c.SetMode("sideways"); err == nil {
		t.Error("SetMode(sideways) = nil, want error")
	}
	if err := c.SetMode(protocol.ModeRightward); err != nil {
		t.Errorf("SetMode(rightward) = %v", err)
	}
	if got := c.Mode(); got != protocol.ModeRightward {
		t.Errorf("Mode() = %v", got)
	}
}

func TestController_TriggersCarryCurrentParams(t *testing.T) {
	sender := &mockSender{}
	c := newTestController(sender)

	if err := c.SetGaze(30); err != nil {
		t.Fatal(err)
	}
	if err := c.StartMotion(); err != nil {
		t.Fatal(err)
	}

	cmds := sender.commands()
	last := cmds[len(cmds)-1].Op.(protocol.SetMotion)
	if last.Trigger != protocol.TriggerStart {
		t.Errorf("trigger = %v, want start", last.Trigger)
	}
	if last.GazeAngleDeg != 30 {
		t.Errorf("gaze = %v, want the value set earlier", last.GazeAngleDeg)
	}
}

func TestController_FollowPathTransformsAndNotifies(t *testing.T) {
	frame, err := geom.NewFrame(geom.Position{X: 10}, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	sender := &mockSender{}
	c := New(sender, &mockSource{}, Params{Frame: frame, Speed: 0.5})

	var notified []geom.Position
	c.OnPath(func(wps []geom.Position) { notified = wps })

	scene := []geom.Position{{X: 12, Z: 4}, {X: 14, Z: 8}}
	if err := c.FollowPath(scene, 1); err != nil {
		t.Fatal(err)
	}

	op := sender.commands()[0].Op.(protocol.FollowPath)
	// Scene (12,0,4) with origin x=10 and scale 2 is robot (1,0,2).
	if op.Waypoints[0] != (geom.Position{X: 1, Z: 2}) {
		t.Errorf("waypoint 0 = %+v, want robot frame (1,0,2)", op.Waypoints[0])
	}
	if op.Waypoints[1] != (geom.Position{X: 2, Z: 4}) {
		t.Errorf("waypoint 1 = %+v, want robot frame (2,0,4)", op.Waypoints[1])
	}

	if len(notified) != 2 || notified[0] != scene[0] {
		t.Errorf("listener got %+v, want scene waypoints", notified)
	}
	if got := c.Path(); len(got) != 2 || got[1] != scene[1] {
		t.Errorf("Path() = %+v", got)
	}
}

func TestController_FollowPathRejects(t *testing.T) {
	sender := &mockSender{}
	c := New(sender, &mockSource{}, Params{
		Speed:     0.5,
		Validator: safety.New(5),
	})

	if err := c.FollowPath(nil, 1); !errors.Is(err, ErrEmptyPath) {
		t.Errorf("FollowPath(nil) = %v, want ErrEmptyPath", err)
	}
	if err := c.FollowPath([]geom.Position{{X: 100}}, 1); err == nil {
		t.Error("out-of-radius waypoint accepted")
	}
	if len(sender.commands()) != 0 {
		t.Error("rejected paths must not reach the wire")
	}
	if len(c.Path()) != 0 {
		t.Error("rejected paths must not replace the snapshot")
	}
}

func TestController_EmergencyStopBurst(t *testing.T) {
	sender := &mockSender{}
	c := newTestController(sender)

	if err := c.EmergencyStop(); err != nil {
		t.Fatal(err)
	}
	cmds := sender.commands()
	if len(cmds) != 10 {
		t.Fatalf("burst sent %d datagrams, want 10", len(cmds))
	}
	for _, cmd := range cmds {
		if _, ok := cmd.Op.(protocol.Stop); !ok {
			t.Fatalf("burst carried %T, want Stop", cmd.Op)
		}
	}
}

func TestController_EmergencyStopPushesThroughErrors(t *testing.T) {
	sender := &mockSender{fails: 3}
	c := newTestController(sender)

	if err := c.EmergencyStop(); err != nil {
		t.Fatalf("partial burst should succeed, got %v", err)
	}
	if got := len(sender.commands()); got != 7 {
		t.Errorf("burst landed %d datagrams, want 7", got)
	}

	all := &mockSender{fails: 100}
	if err := New(all, &mockSource{}, Params{Speed: 0.5}).EmergencyStop(); err == nil {
		t.Error("fully failed burst should return an error")
	}
}

func TestController_PoseInSceneFrame(t *testing.T) {
	frame, err := geom.NewFrame(geom.Position{X: 10}, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	source := &mockSource{
		pose: protocol.Pose{
			Position:   geom.Position{X: 1, Z: 2},
			Velocity:   geom.Position{Z: 0.5},
			HeadingDeg: 45,
		},
		havePose:  true,
		connected: true,
	}
	c := New(&mockSender{}, source, Params{Frame: frame, Speed: 0.5})

	pose, ok := c.Pose()
	if !ok {
		t.Fatal("Pose() = false, want pose")
	}
	if pose.Position != (geom.Position{X: 12, Z: 4}) {
		t.Errorf("position = %+v, want scene (12,0,4)", pose.Position)
	}
	if pose.Velocity != (geom.Position{Z: 1}) {
		t.Errorf("velocity = %+v, want scaled (0,0,1)", pose.Velocity)
	}
	if !c.Connected() {
		t.Error("Connected() = false")
	}

	source.havePose = false
	if _, ok := c.Pose(); ok {
		t.Error("Pose() = true with no pose upstream")
	}
}
