// Package spatial maps an azimuth to a virtual source position around the
// listener and renders a mono block as an equal-power stereo image.
package spatial

import (
	"errors"
	"fmt"
	"math"
)

// Defaults for the virtual source circle
const (
	DefaultRadius    = 5.0
	DefaultAngleStep = 15
)

// ErrInvalidAzimuth is returned for azimuths outside [0, 360)
var ErrInvalidAzimuth = errors.New("spatial: azimuth must be in [0, 360)")

// Position is a point in listener space: +x right, +y up, -z in front
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the distance from the listener at the origin
func (p Position) Distance() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// Radians converts degrees to radians
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ValidateAzimuth checks a control-surface azimuth
func ValidateAzimuth(deg int) error {
	if deg < 0 || deg >= 360 {
		return fmt.Errorf("%w: %d", ErrInvalidAzimuth, deg)
	}
	return nil
}

// NormalizeDegrees wraps deg into [0, 360)
func NormalizeDegrees(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Snap rounds angle to the nearest multiple of step, wrapped into [0, 360).
// A non-positive step only rounds to whole degrees.
func Snap(angle float64, step int) int {
	if step <= 0 {
		step = 1
	}
	snapped := int(math.Round(angle/float64(step))) * step
	return NormalizeDegrees(snapped)
}

// PositionFor places a source at azimuthDeg on a circle of the given radius
// in the horizontal plane. 0 is straight ahead, 90 is to the right.
func PositionFor(azimuthDeg int, radius float64) Position {
	theta := Radians(float64(azimuthDeg))
	return Position{
		X: radius * math.Sin(theta),
		Y: 0,
		Z: -radius * math.Cos(theta),
	}
}

// TrackPoint maps azimuthDeg onto a circular UI track centred at (cx, cy).
// Screen y grows downwards, so 0 degrees sits at the top of the track.
func TrackPoint(azimuthDeg int, cx, cy, radius float64) (x, y float64) {
	theta := Radians(float64(azimuthDeg))
	return cx + radius*math.Sin(theta), cy - radius*math.Cos(theta)
}

// AngleFromPoint converts a drag offset from the track centre into degrees
// in [0, 360), measured clockwise from the top.
func AngleFromPoint(dx, dy float64) float64 {
	deg := math.Atan2(dx, -dy) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}
