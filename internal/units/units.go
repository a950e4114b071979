// Package units carries a small angle type used wherever a Keplerian element
// or store column crosses the radians/degrees boundary.
package units

import "math"

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// Angle represents an angular measurement, keeping the radians/degrees
// conversion in one place instead of scattering `* 180 / math.Pi` literals
// across the scan and store packages.
type Angle struct {
	rad float64
}

// NewAngle creates an Angle from radians.
func NewAngle(radians float64) Angle { return Angle{rad: radians} }

// AngleFromDegrees creates an Angle from degrees.
func AngleFromDegrees(deg float64) Angle { return Angle{rad: deg * deg2rad} }

// Radians returns the angle in radians.
func (a Angle) Radians() float64 { return a.rad }

// Degrees returns the angle in degrees.
func (a Angle) Degrees() float64 { return a.rad * rad2deg }
