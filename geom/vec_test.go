package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadingPointsNoseAtTarget(t *testing.T) {
	origin := Vec{100, 100}
	assert.InDelta(t, 90, Heading(origin, Vec{200, 100}), 1e-9)  // east
	assert.InDelta(t, 180, Heading(origin, Vec{100, 200}), 1e-9) // south (screen y grows down)
	assert.InDelta(t, 0, Heading(origin, Vec{100, 0}), 1e-9)     // north
	assert.InDelta(t, 270, Heading(origin, Vec{0, 100}), 1e-9)   // west
}

func TestLerpAngleTakesShortestArc(t *testing.T) {
	assert.InDelta(t, 1, LerpAngle(350, 10, 0.55), 1e-9)
	assert.InDelta(t, 355, LerpAngle(5, 345, 0.5), 1e-9)
	assert.InDelta(t, 45, LerpAngle(0, 90, 0.5), 1e-9)
}

func TestNormalizeAndClamp(t *testing.T) {
	assert.Equal(t, Vec{}, Vec{}.Normalize())
	assert.InDelta(t, 1, Vec{3, 4}.Normalize().Len(), 1e-12)
	assert.Equal(t, Vec{0, 50}, Vec{-10, 50}.Clamp(100, 100))
	assert.Equal(t, Vec{100, 100}, Vec{150, 400}.Clamp(100, 100))
	assert.InDelta(t, 5, Vec{0, 0}.Dist(Vec{3, 4}), 1e-12)
	assert.Equal(t, Vec{0, 100}, Vec{math.NaN(), math.Inf(1)}.Clamp(100, 100))
}
