package telemetry

import (
	"encoding/json"
	"time"

	"github.com/hri-lab/go-quadlink/pkg/geom"
	"github.com/hri-lab/go-quadlink/pkg/protocol"
)

// EventType tags a telemetry event for stream consumers.
type EventType string

const (
	EventPose EventType = "pose"
	EventPath EventType = "path"
	EventLink EventType = "link"
)

// Event is the envelope every stream message rides in.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// PoseData is the pose payload in scene coordinates.
type PoseData struct {
	Position         geom.Position         `json:"position"`
	HeadingDeg       float64               `json:"headingDeg"`
	Velocity         geom.Position         `json:"velocity"`
	Moving           bool                  `json:"moving"`
	Status           protocol.MotionStatus `json:"status"`
	Battery          *float64              `json:"battery,omitempty"`
	DistanceTraveled float64               `json:"distanceTraveled"`
}

// PathData carries a newly accepted path.
type PathData struct {
	Waypoints []geom.Position `json:"waypoints"`
}

// LinkData carries a connectivity change.
type LinkData struct {
	Connected bool `json:"connected"`
}

func newEvent(t EventType, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: t, Timestamp: time.Now().UnixMilli(), Data: data}, nil
}

// NewPoseEvent wraps a pose for broadcast.
func NewPoseEvent(p *protocol.Pose) (Event, error) {
	return newEvent(EventPose, PoseData{
		Position:         p.Position,
		HeadingDeg:       p.HeadingDeg,
		Velocity:         p.Velocity,
		Moving:           p.Moving,
		Status:           p.Status,
		Battery:          p.Battery,
		DistanceTraveled: p.DistanceTraveled,
	})
}

// NewPathEvent wraps an accepted path for broadcast.
func NewPathEvent(waypoints []geom.Position) (Event, error) {
	return newEvent(EventPath, PathData{Waypoints: waypoints})
}

// NewLinkEvent wraps a connectivity change for broadcast.
func NewLinkEvent(connected bool) (Event, error) {
	return newEvent(EventLink, LinkData{Connected: connected})
}
