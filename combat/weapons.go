package combat

import "time"

const (
	KindBeam   = "beam"
	KindGuided = "guided"
)

const (
	BeamSpeed   = 800.0
	GuidedSpeed = 500.0

	BeamTTL   = 2 * time.Second
	GuidedTTL = 5 * time.Second

	HitRadius      = 20.0
	CollisionGrace = 50 * time.Millisecond

	BeamFireRate   = 1.0
	RocketFireRate = 0.5
)

// BeamAmmo 激光弹药的伤害倍率
var BeamAmmo = map[string]float64{
	"x1": 1,
	"x2": 2,
	"x3": 3,
	"x4": 4,
}

// Rockets 导弹类型与固定伤害
var Rockets = map[string]float64{
	"r310":    1000,
	"plt2026": 2000,
	"plt2021": 4000,
}

// BeamDamage 激光单发伤害 = 舰船基础伤害 × 弹药倍率
func BeamDamage(base float64, ammoType string) (float64, error) {
	mult, ok := BeamAmmo[ammoType]
	if !ok {
		return 0, ErrUnknownAmmo
	}
	return base * mult, nil
}

// RocketDamage 导弹伤害
func RocketDamage(rocketType string) (float64, error) {
	dmg, ok := Rockets[rocketType]
	if !ok {
		return 0, ErrUnknownAmmo
	}
	return dmg, nil
}
