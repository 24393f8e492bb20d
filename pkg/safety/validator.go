// Package safety rejects numerically invalid or wildly out-of-range
// values before they reach motion state or the wire. A rejection is never
// fatal: the caller discards the value, keeps the previous one, and the
// link carries on.
package safety

import (
	"fmt"
	"math"

	"github.com/hri-lab/go-quadlink/pkg/geom"
	"github.com/hri-lab/go-quadlink/pkg/protocol"
)

// DefaultMaxRadius bounds how far from the origin a reported position may
// be before it is treated as garbage telemetry. It is a sanity bound, not
// an operating envelope: a legged robot on a study course is never 500
// units from its start.
const DefaultMaxRadius = 500.0

// Rejection explains why a value was refused. It satisfies error so it
// can ride normal error paths, but callers treat it as a diagnostic, not
// a failure.
type Rejection struct {
	Field  string
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("safety: rejected %s: %s", r.Field, r.Reason)
}

// Validator holds the configured bounds. The zero value is not usable;
// construct with New.
type Validator struct {
	maxRadius float64
}

// New returns a validator with the given maximum position radius.
// A non-positive radius falls back to DefaultMaxRadius.
func New(maxRadius float64) *Validator {
	if maxRadius <= 0 {
		maxRadius = DefaultMaxRadius
	}
	return &Validator{maxRadius: maxRadius}
}

// MaxRadius returns the configured position bound.
func (v *Validator) MaxRadius() float64 { return v.maxRadius }

// Position returns nil if p is finite and within the configured radius,
// or a *Rejection describing the first failure.
func (v *Validator) Position(p geom.Position) *Rejection {
	if !p.IsFinite() {
		return &Rejection{Field: "position", Reason: "non-finite coordinate"}
	}
	if mag := p.Magnitude(); mag > v.maxRadius {
		return &Rejection{
			Field:  "position",
			Reason: fmt.Sprintf("magnitude %.1f exceeds max radius %.1f", mag, v.maxRadius),
		}
	}
	return nil
}

// Angle checks an orientation-bearing value. Angles are unbounded by
// design, so only finiteness applies.
func (v *Validator) Angle(field string, deg float64) *Rejection {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return &Rejection{Field: field, Reason: "non-finite angle"}
	}
	return nil
}

// Pose validates every numeric field of a telemetry sample. The first
// failing field is reported; an invalid pose must never be applied to
// state or retransmitted.
func (v *Validator) Pose(p *protocol.Pose) *Rejection {
	if rej := v.Position(p.Position); rej != nil {
		return rej
	}
	if rej := v.Angle("orientation", p.HeadingDeg); rej != nil {
		return rej
	}
	// Velocity is a direction/rate, not a position: finiteness only.
	if !p.Velocity.IsFinite() {
		return &Rejection{Field: "velocity", Reason: "non-finite component"}
	}
	if p.Battery != nil && (math.IsNaN(*p.Battery) || math.IsInf(*p.Battery, 0)) {
		return &Rejection{Field: "batteryLevel", Reason: "non-finite value"}
	}
	if math.IsNaN(p.DistanceTraveled) || math.IsInf(p.DistanceTraveled, 0) {
		return &Rejection{Field: "distanceTraveled", Reason: "non-finite value"}
	}
	return nil
}
