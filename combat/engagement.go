package combat

import "spacearena/geom"

// EngagementState 目标锁定状态
type EngagementState int

const (
	Idle EngagementState = iota
	Selected
	Engaged
)

func (s EngagementState) String() string {
	switch s {
	case Selected:
		return "selected"
	case Engaged:
		return "engaged"
	default:
		return "idle"
	}
}

// Engagement Idle → Selected（单次指定）→ Engaged（再次指定同一目标或开战键）→ Idle
type Engagement struct {
	state  EngagementState
	target string
}

func (e *Engagement) State() EngagementState { return e.state }
func (e *Engagement) Target() string         { return e.target }
func (e *Engagement) Engaged() bool          { return e.state == Engaged }

// Designate 指定目标；对已选中的同一目标再次指定即进入交战
func (e *Engagement) Designate(id string) EngagementState {
	if id == "" {
		e.Disengage()
		return e.state
	}
	if e.target == id && e.state != Idle {
		e.state = Engaged
		return e.state
	}
	e.target = id
	e.state = Selected
	return e.state
}

// Engage 开战键：仅在已选中目标时生效
func (e *Engagement) Engage() bool {
	if e.state == Idle {
		return false
	}
	e.state = Engaged
	return true
}

// Disengage 显式脱战，清除目标
func (e *Engagement) Disengage() {
	e.state = Idle
	e.target = ""
}

// TargetLost 目标死亡或离开模拟时回到 Idle
func (e *Engagement) TargetLost(id string) bool {
	if e.state == Idle || e.target != id {
		return false
	}
	e.Disengage()
	return true
}

// Enforce 每步检查：进入安全区或目标不存在时强制脱战
func (e *Engagement) Enforce(inSafetyZone, targetAlive bool) bool {
	if e.state == Idle {
		return false
	}
	if inSafetyZone || !targetAlive {
		e.Disengage()
		return true
	}
	return false
}

// SafetyZone 基地周围禁止交战的区域
type SafetyZone struct {
	Center geom.Vec
	Radius float64
}

func (z SafetyZone) Contains(p geom.Vec) bool {
	return z.Radius > 0 && p.Dist(z.Center) < z.Radius
}
