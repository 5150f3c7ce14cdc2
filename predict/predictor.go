// Package predict 客户端本地运动预测：在两次权威快照之间推进自己的飞船，
// 并在偏差过大时与服务端位置对齐。
package predict

import "spacearena/geom"

const (
	// RotationLerp 每步朝目标朝向插值的比例
	RotationLerp = 0.1
	// ArrivalRadius 距目标点小于该值即停船
	ArrivalRadius = 10.0
	// CorrectionThreshold 本地与权威位置偏差超过该值时直接瞬移校正
	CorrectionThreshold = 500.0
)

// Context 一帧之间保存的全部预测状态，由帧回调按引用传给 Step
type Context struct {
	Pos      geom.Vec
	Vel      geom.Vec
	Rotation float64
	Speed    float64

	// Pointer 按住鼠标时的跟随点
	Pointer *geom.Vec
	// Waypoint 点击小地图设置的航点，到达后清除
	Waypoint *geom.Vec
	// Lock 交战目标的位置；非空时朝向由目标方位决定
	Lock *geom.Vec

	Width  float64
	Height float64
}

func NewContext(pos geom.Vec, speed, width, height float64) *Context {
	return &Context{Pos: pos, Speed: speed, Width: width, Height: height}
}

func (c *Context) FollowPointer(p geom.Vec) { c.Pointer = &p }
func (c *Context) ReleasePointer()          { c.Pointer = nil }
func (c *Context) SetWaypoint(p geom.Vec)   { c.Waypoint = &p }
func (c *Context) ClearWaypoint()           { c.Waypoint = nil }
func (c *Context) LockOn(p geom.Vec)        { c.Lock = &p }
func (c *Context) Unlock()                  { c.Lock = nil }

func (c *Context) goal() (geom.Vec, bool) {
	if c.Pointer != nil {
		return *c.Pointer, true
	}
	if c.Waypoint != nil {
		return *c.Waypoint, true
	}
	return geom.Vec{}, false
}

// Step 推进一帧：转向、设置速度、积分位置、边界裁剪
func Step(c *Context, dt float64) {
	goal, moving := c.goal()
	if moving {
		dist := c.Pos.Dist(goal)
		if dist <= ArrivalRadius {
			c.Vel = geom.Vec{}
			c.Waypoint = nil
			moving = false
		} else {
			c.Vel = goal.Sub(c.Pos).Normalize().Scale(c.Speed)
		}
	} else {
		c.Vel = geom.Vec{}
	}

	switch {
	case c.Lock != nil:
		c.Rotation = geom.LerpAngle(c.Rotation, geom.Heading(c.Pos, *c.Lock), RotationLerp)
	case moving:
		c.Rotation = geom.LerpAngle(c.Rotation, geom.Heading(c.Pos, goal), RotationLerp)
	}

	if dt > 0 {
		delta := c.Vel.Scale(dt)
		if moving && delta.Len() >= c.Pos.Dist(goal) {
			// 本帧即可抵达，避免越过目标点来回抖动
			c.Pos = goal
		} else {
			c.Pos = c.Pos.Add(delta)
		}
	}
	c.Pos = c.Pos.Clamp(c.Width, c.Height)
}

// Reconcile 收到权威位置时调用；偏差超过阈值才校正，返回是否发生校正
func Reconcile(c *Context, authoritative geom.Vec) bool {
	if c.Pos.Dist(authoritative) <= CorrectionThreshold {
		return false
	}
	c.Pos = authoritative.Clamp(c.Width, c.Height)
	return true
}
