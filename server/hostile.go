package server

import (
	"time"

	"spacearena/combat"
	"spacearena/geom"
	"spacearena/protocol"
)

const (
	AttitudePassive    = "passive"
	AttitudeAggressive = "aggressive"
)

// HostileSpec 敌方单位的类型参数
type HostileSpec struct {
	Type        string
	Health      float64
	Shield      float64
	Speed       float64
	Damage      float64
	FireRate    float64
	Range       float64 // 开火距离
	AggroRadius float64 // 主动索敌半径，0 表示只会反击
	Attitude    string
	Reward      Reward
}

var hostileSpecs = map[string]HostileSpec{
	"drone": {
		Type: "drone", Health: 800, Shield: 400, Speed: 280, Damage: 20, FireRate: 1,
		Range: 500, Attitude: AttitudePassive,
		Reward: Reward{Experience: 400, Credits: 400, Honor: 2, SpecialCurrency: 1},
	},
	"raider": {
		Type: "raider", Health: 2000, Shield: 2000, Speed: 240, Damage: 60, FireRate: 1,
		Range: 550, AggroRadius: 450, Attitude: AttitudeAggressive,
		Reward: Reward{Experience: 1600, Credits: 1600, Honor: 8, SpecialCurrency: 2},
	},
	"dreadnought": {
		Type: "dreadnought", Health: 20000, Shield: 10000, Speed: 160, Damage: 400, FireRate: 0.5,
		Range: 650, AggroRadius: 600, Attitude: AttitudeAggressive,
		Reward: Reward{Experience: 12800, Credits: 12800, Honor: 64, SpecialCurrency: 16},
	},
}

// spawnTypeFor 按 6:3:1 的比例分配类型
func spawnTypeFor(i int) string {
	switch n := i % 10; {
	case n < 6:
		return "drone"
	case n < 9:
		return "raider"
	default:
		return "dreadnought"
	}
}

const (
	// 巡逻半径与保持距离
	roamRadius     = 800.0
	preferredRange = 300.0
)

// HostileEntity 敌方单位
type HostileEntity struct {
	ID       string
	Type     string
	Spec     HostileSpec
	Pos      geom.Vec
	Vel      geom.Vec
	Rotation float64
	Vitals   combat.Vitals
	Attitude string

	Engaged  bool
	TargetID ConnID
	Weapon   combat.Weapon

	Home      geom.Vec
	roamTo    *geom.Vec
	Dead      bool
	RespawnAt time.Time
}

func newHostile(id string, spec HostileSpec, pos geom.Vec) *HostileEntity {
	h := &HostileEntity{
		ID:       id,
		Type:     spec.Type,
		Spec:     spec,
		Attitude: spec.Attitude,
		Weapon:   combat.Weapon{FireRate: spec.FireRate},
	}
	h.reset(pos)
	return h
}

func (h *HostileEntity) reset(pos geom.Vec) {
	h.Pos = pos
	h.Home = pos
	h.Vel = geom.Vec{}
	h.Vitals = combat.Vitals{
		Health: h.Spec.Health, MaxHealth: h.Spec.Health,
		Shield: h.Spec.Shield, MaxShield: h.Spec.Shield,
	}
	h.Dead = false
	h.roamTo = nil
	h.disengage()
}

func (h *HostileEntity) engage(target ConnID) {
	h.Engaged = true
	h.TargetID = target
	h.roamTo = nil
}

func (h *HostileEntity) disengage() {
	h.Engaged = false
	h.TargetID = ""
}

func (h *HostileEntity) State() protocol.HostileState {
	return protocol.HostileState{
		ID:        h.ID,
		Type:      h.Type,
		X:         h.Pos.X,
		Y:         h.Pos.Y,
		VX:        h.Vel.X,
		VY:        h.Vel.Y,
		Rotation:  h.Rotation,
		Health:    h.Vitals.Health,
		MaxHealth: h.Vitals.MaxHealth,
		Shield:    h.Vitals.Shield,
		MaxShield: h.Vitals.MaxShield,
		Engaged:   h.Engaged,
		Attitude:  h.Attitude,
	}
}

// ResourceNode 可采集矿点
type ResourceNode struct {
	ID     string
	Type   string
	Pos    geom.Vec
	Amount int
}

func (n *ResourceNode) State() protocol.ResourceState {
	return protocol.ResourceState{ID: n.ID, Type: n.Type, X: n.Pos.X, Y: n.Pos.Y, Amount: n.Amount}
}
