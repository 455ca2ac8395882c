package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionFor(t *testing.T) {
	tests := []struct {
		azimuth int
		want    Position
	}{
		{0, Position{X: 0, Y: 0, Z: -5}},
		{90, Position{X: 5, Y: 0, Z: 0}},
		{180, Position{X: 0, Y: 0, Z: 5}},
		{270, Position{X: -5, Y: 0, Z: 0}},
	}

	for _, tt := range tests {
		got := PositionFor(tt.azimuth, DefaultRadius)
		assert.InDelta(t, tt.want.X, got.X, 1e-9, "x at %d", tt.azimuth)
		assert.Equal(t, 0.0, got.Y)
		assert.InDelta(t, tt.want.Z, got.Z, 1e-9, "z at %d", tt.azimuth)
		assert.InDelta(t, DefaultRadius, got.Distance(), 1e-9)
	}
}

func TestTrackPoint(t *testing.T) {
	x, y := TrackPoint(0, 100, 100, 50)
	assert.InDelta(t, 100, x, 1e-9)
	assert.InDelta(t, 50, y, 1e-9)

	x, y = TrackPoint(90, 100, 100, 50)
	assert.InDelta(t, 150, x, 1e-9)
	assert.InDelta(t, 100, y, 1e-9)
}

func TestSnap(t *testing.T) {
	tests := []struct {
		angle float64
		step  int
		want  int
	}{
		{0, 15, 0},
		{7, 15, 0},
		{8, 15, 15},
		{44, 15, 45},
		{352.4, 15, 345},
		{353, 15, 0},
		{-10, 15, 345},
		{123.4, 0, 123},
		{100, 90, 90},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Snap(tt.angle, tt.step), "Snap(%v, %d)", tt.angle, tt.step)
	}
}

func TestAngleFromPoint(t *testing.T) {
	assert.InDelta(t, 0, AngleFromPoint(0, -1), 1e-9)
	assert.InDelta(t, 90, AngleFromPoint(1, 0), 1e-9)
	assert.InDelta(t, 180, AngleFromPoint(0, 1), 1e-9)
	assert.InDelta(t, 270, AngleFromPoint(-1, 0), 1e-9)
	assert.InDelta(t, 45, AngleFromPoint(1, -1), 1e-9)
}

func TestAngleFromPoint_TrackPointInverse(t *testing.T) {
	for deg := 0; deg < 360; deg += 15 {
		x, y := TrackPoint(deg, 10, 20, 7)
		got := Snap(AngleFromPoint(x-10, y-20), DefaultAngleStep)
		assert.Equal(t, deg, got)
	}
}

func TestValidateAzimuth(t *testing.T) {
	assert.NoError(t, ValidateAzimuth(0))
	assert.NoError(t, ValidateAzimuth(359))
	assert.ErrorIs(t, ValidateAzimuth(360), ErrInvalidAzimuth)
	assert.ErrorIs(t, ValidateAzimuth(-1), ErrInvalidAzimuth)
}

func TestNormalizeDegrees(t *testing.T) {
	assert.Equal(t, 0, NormalizeDegrees(360))
	assert.Equal(t, 350, NormalizeDegrees(-10))
	assert.Equal(t, 10, NormalizeDegrees(730))
}

func TestRadians(t *testing.T) {
	assert.InDelta(t, math.Pi, Radians(180), 1e-12)
}
