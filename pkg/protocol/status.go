package protocol

import (
	"encoding/json"

	"github.com/hri-lab/go-quadlink/pkg/geom"
)

// MotionStatus is the robot's reported movement state.
type MotionStatus string

const (
	StatusIdle   MotionStatus = "idle"
	StatusMoving MotionStatus = "moving"
	StatusPaused MotionStatus = "paused"
	StatusError  MotionStatus = "error"
)

// Pose is one decoded telemetry sample: where the robot is, how it is
// moving, and when it said so. The codec does not judge the numbers in
// it; a Pose only becomes trusted after the safety validator passes it.
type Pose struct {
	Position         geom.Position
	HeadingDeg       float64 // wrapped to [0, 360)
	Velocity         geom.Position
	Moving           bool
	Status           MotionStatus
	Battery          *float64 // percent; nil when the peer does not report it
	DistanceTraveled float64
	TimestampMS      int64
}

// wireStatus is the status-channel schema. Velocity, batteryLevel and
// distanceTraveled are optional; everything else is required.
type wireStatus struct {
	Position         *wireVec     `json:"position"`
	Orientation      *jsonFloat   `json:"orientation"`
	Velocity         *wireVec     `json:"velocity,omitempty"`
	IsMoving         *bool        `json:"isMoving"`
	Status           MotionStatus `json:"status"`
	BatteryLevel     *jsonFloat   `json:"batteryLevel,omitempty"`
	DistanceTraveled *jsonFloat   `json:"distanceTraveled,omitempty"`
	Timestamp        *int64       `json:"timestamp"`
}

// EncodeStatus serializes a pose to the status-channel wire form.
func EncodeStatus(p *Pose) ([]byte, error) {
	pos := vecFromPosition(p.Position)
	orientation := jsonFloat(p.HeadingDeg)
	vel := vecFromPosition(p.Velocity)
	moving := p.Moving
	dist := jsonFloat(p.DistanceTraveled)
	ts := p.TimestampMS

	w := wireStatus{
		Position:         &pos,
		Orientation:      &orientation,
		Velocity:         &vel,
		IsMoving:         &moving,
		Status:           p.Status,
		DistanceTraveled: &dist,
		Timestamp:        &ts,
	}
	if p.Battery != nil {
		b := jsonFloat(*p.Battery)
		w.BatteryLevel = &b
	}
	return json.Marshal(w)
}

// DecodeStatus parses a status payload into a Pose. The heading is
// wrapped to [0, 360); nothing else is normalized or validated here.
func DecodeStatus(data []byte) (*Pose, error) {
	var w wireStatus
	if err := json.Unmarshal(quoteNonFinite(data), &w); err != nil {
		return nil, malformedf("%v", err)
	}
	if w.Position == nil {
		return nil, malformedf("status requires position")
	}
	if w.Orientation == nil {
		return nil, malformedf("status requires orientation")
	}
	if w.IsMoving == nil {
		return nil, malformedf("status requires isMoving")
	}
	if w.Status == "" {
		return nil, malformedf("status requires status")
	}
	if w.Timestamp == nil {
		return nil, malformedf("status requires timestamp")
	}

	p := &Pose{
		Position:    w.Position.position(),
		HeadingDeg:  geom.WrapDeg(float64(*w.Orientation)),
		Moving:      *w.IsMoving,
		Status:      w.Status,
		TimestampMS: *w.Timestamp,
	}
	if w.Velocity != nil {
		p.Velocity = w.Velocity.position()
	}
	if w.BatteryLevel != nil {
		b := float64(*w.BatteryLevel)
		p.Battery = &b
	}
	if w.DistanceTraveled != nil {
		p.DistanceTraveled = float64(*w.DistanceTraveled)
	}
	return p, nil
}
