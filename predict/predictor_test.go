package predict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacearena/geom"
)

func TestStepSteersTowardWaypointAndStops(t *testing.T) {
	c := NewContext(geom.Vec{X: 100, Y: 100}, 300, 10000, 10000)
	c.SetWaypoint(geom.Vec{X: 400, Y: 100})

	Step(c, 0.5)
	assert.InDelta(t, 250, c.Pos.X, 1e-9)
	assert.InDelta(t, 300, c.Vel.Len(), 1e-9)
	// 每步只转 10%，不会瞬间对准 90°
	assert.InDelta(t, 9, c.Rotation, 1e-9)

	for i := 0; i < 10; i++ {
		Step(c, 0.5)
	}
	assert.Equal(t, geom.Vec{X: 400, Y: 100}, c.Pos)
	assert.Equal(t, geom.Vec{}, c.Vel)
	assert.Nil(t, c.Waypoint)
}

func TestStepStopsInsideArrivalRadius(t *testing.T) {
	c := NewContext(geom.Vec{X: 100, Y: 100}, 300, 10000, 10000)
	c.SetWaypoint(geom.Vec{X: 105, Y: 100})
	Step(c, 0.016)
	assert.Equal(t, geom.Vec{X: 100, Y: 100}, c.Pos)
	assert.Equal(t, geom.Vec{}, c.Vel)
	assert.Nil(t, c.Waypoint)
}

func TestPointerFollowTakesPriority(t *testing.T) {
	c := NewContext(geom.Vec{X: 500, Y: 500}, 100, 10000, 10000)
	c.SetWaypoint(geom.Vec{X: 1000, Y: 500})
	c.FollowPointer(geom.Vec{X: 500, Y: 0})
	Step(c, 1)
	assert.InDelta(t, 400, c.Pos.Y, 1e-9)
	assert.InDelta(t, 500, c.Pos.X, 1e-9)
	require.NotNil(t, c.Waypoint)

	c.ReleasePointer()
	Step(c, 1)
	assert.Greater(t, c.Pos.X, 500.0)
}

func TestCombatLockOverridesRotationNotMovement(t *testing.T) {
	c := NewContext(geom.Vec{X: 500, Y: 500}, 100, 10000, 10000)
	c.Rotation = 180
	c.SetWaypoint(geom.Vec{X: 1000, Y: 500}) // 航向 90°
	c.LockOn(geom.Vec{X: 500, Y: 1000})      // 目标方位 180°

	Step(c, 1)
	assert.InDelta(t, 180, c.Rotation, 1e-9)
	assert.InDelta(t, 600, c.Pos.X, 1e-9)

	c.Unlock()
	Step(c, 1)
	assert.InDelta(t, 171, c.Rotation, 1e-9)
}

func TestStepClampsToWorldBounds(t *testing.T) {
	c := NewContext(geom.Vec{X: 5, Y: 5}, 1000, 200, 200)
	c.FollowPointer(geom.Vec{X: -500, Y: -500})
	Step(c, 1)
	assert.Equal(t, geom.Vec{}, c.Pos)

	c.Pos = geom.Vec{X: 250, Y: 90}
	c.ReleasePointer()
	Step(c, 0.016)
	assert.Equal(t, geom.Vec{X: 200, Y: 90}, c.Pos)
}

func TestReconcileThreshold(t *testing.T) {
	c := NewContext(geom.Vec{X: 1000, Y: 1000}, 300, 10000, 10000)

	assert.False(t, Reconcile(c, geom.Vec{X: 1500, Y: 1000}))
	assert.Equal(t, geom.Vec{X: 1000, Y: 1000}, c.Pos)

	assert.False(t, Reconcile(c, geom.Vec{X: 1300, Y: 1400}))
	assert.Equal(t, geom.Vec{X: 1000, Y: 1000}, c.Pos)

	assert.True(t, Reconcile(c, geom.Vec{X: 1500.5, Y: 1000}))
	assert.Equal(t, geom.Vec{X: 1500.5, Y: 1000}, c.Pos)
}
