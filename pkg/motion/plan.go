package motion

import (
	"errors"

	"github.com/hri-lab/go-quadlink/pkg/geom"
)

// ErrEmptyPath rejects a plan with no waypoints.
var ErrEmptyPath = errors.New("motion: path has no waypoints")

// Plan is an ordered set of waypoints and a cursor into it. The cursor
// only ever moves forward, and stays within [0, len] — index == len means
// the plan is exhausted.
type Plan struct {
	waypoints []geom.Position
	index     int
}

// NewPlan copies the waypoints into a fresh plan with the cursor at the
// first one.
func NewPlan(waypoints []geom.Position) (*Plan, error) {
	if len(waypoints) == 0 {
		return nil, ErrEmptyPath
	}
	wps := make([]geom.Position, len(waypoints))
	copy(wps, waypoints)
	return &Plan{waypoints: wps}, nil
}

// Active returns the waypoint the cursor points at, or false when the
// plan is exhausted.
func (p *Plan) Active() (geom.Position, bool) {
	if p.index >= len(p.waypoints) {
		return geom.Position{}, false
	}
	return p.waypoints[p.index], true
}

// Advance moves the cursor to the next waypoint. Advancing past the last
// waypoint marks the plan done; further calls are no-ops.
func (p *Plan) Advance() {
	if p.index < len(p.waypoints) {
		p.index++
	}
}

// Done reports whether every waypoint has been visited.
func (p *Plan) Done() bool {
	return p.index >= len(p.waypoints)
}

// Index returns the cursor position.
func (p *Plan) Index() int {
	return p.index
}

// Len returns the number of waypoints.
func (p *Plan) Len() int {
	return len(p.waypoints)
}

// Waypoints returns a copy of the waypoint list.
func (p *Plan) Waypoints() []geom.Position {
	out := make([]geom.Position, len(p.waypoints))
	copy(out, p.waypoints)
	return out
}
