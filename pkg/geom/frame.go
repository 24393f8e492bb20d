// Package geom provides the coordinate-frame mapping between the local
// scene frame used by visualization clients and the robot's real-world frame.
package geom

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidScale is returned when a frame is configured with a
// non-positive scale factor.
var ErrInvalidScale = errors.New("geom: frame scale must be > 0")

// Position is a point (or direction) in 3D space. Y is the vertical axis;
// the robot moves in the X/Z plane.
type Position struct {
	X float64
	Y float64
	Z float64
}

// Add returns p + q component-wise.
func (p Position) Add(q Position) Position {
	return Position{X: p.X + q.X, Y: p.Y + q.Y, Z: p.Z + q.Z}
}

// Sub returns p - q component-wise.
func (p Position) Sub(q Position) Position {
	return Position{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Scale returns p with every component multiplied by s.
func (p Position) Scale(s float64) Position {
	return Position{X: p.X * s, Y: p.Y * s, Z: p.Z * s}
}

// Magnitude returns the Euclidean length of p.
func (p Position) Magnitude() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// PlanarDistance returns the distance between p and q ignoring the
// vertical axis. Distance-traveled accounting uses this so that body
// height drift never counts as progress.
func (p Position) PlanarDistance(q Position) float64 {
	dx := p.X - q.X
	dz := p.Z - q.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// IsFinite reports whether every component is a finite number.
func (p Position) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y) && isFinite(p.Z)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// WrapDeg wraps an angle in degrees to [0, 360).
func WrapDeg(deg float64) float64 {
	wrapped := math.Mod(deg, 360)
	if wrapped < 0 {
		wrapped += 360
	}
	return wrapped
}

// Frame maps between local scene coordinates and the robot's external
// frame: an origin offset, a uniform scale (scene units per meter) and a
// planar rotation about the vertical axis.
//
// ToLocal and ToExternal are exact inverses of each other. A rotation of
// exactly 0 degrees takes a trigonometry-free path so the identity holds
// bit for bit, not just within tolerance.
type Frame struct {
	Origin      Position
	Scale       float64
	RotationDeg float64
}

// NewFrame validates and returns a coordinate frame. A scale factor of
// zero (or below) is a configuration error: it would make the inverse
// transform divide by zero.
func NewFrame(origin Position, scale, rotationDeg float64) (*Frame, error) {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, fmt.Errorf("%w (got %v)", ErrInvalidScale, scale)
	}
	return &Frame{Origin: origin, Scale: scale, RotationDeg: rotationDeg}, nil
}

// ToLocal converts a position in the robot's external frame to local
// scene coordinates: rotate in the horizontal plane, scale, then add the
// origin offset.
func (f *Frame) ToLocal(external Position) Position {
	p := f.rotate(external, f.RotationDeg)
	p = p.Scale(f.Scale)
	return p.Add(f.Origin)
}

// ToExternal converts a local scene position back to the robot's
// external frame. It is the exact inverse of ToLocal.
func (f *Frame) ToExternal(local Position) Position {
	p := local.Sub(f.Origin)
	p = p.Scale(1 / f.Scale)
	return f.rotate(p, -f.RotationDeg)
}

// VecToLocal converts a direction or velocity from the external frame to
// scene coordinates. Directions rotate and scale but carry no origin
// offset.
func (f *Frame) VecToLocal(external Position) Position {
	return f.rotate(external, f.RotationDeg).Scale(f.Scale)
}

// VecToExternal is the inverse of VecToLocal.
func (f *Frame) VecToExternal(local Position) Position {
	return f.rotate(local.Scale(1/f.Scale), -f.RotationDeg)
}

// HeadingToLocal converts an external heading angle to the scene frame.
func (f *Frame) HeadingToLocal(deg float64) float64 {
	return WrapDeg(deg + f.RotationDeg)
}

// HeadingToExternal is the inverse of HeadingToLocal.
func (f *Frame) HeadingToExternal(deg float64) float64 {
	return WrapDeg(deg - f.RotationDeg)
}

// rotate applies a planar rotation about the vertical axis. The vertical
// component passes through untouched.
func (f *Frame) rotate(p Position, deg float64) Position {
	if deg == 0 {
		return p
	}
	rad := deg * math.Pi / 180
	sin, cos := math.Sincos(rad)
	return Position{
		X: p.X*cos - p.Z*sin,
		Y: p.Y,
		Z: p.X*sin + p.Z*cos,
	}
}
