package combat

import (
	"errors"
	"time"
)

var (
	ErrNoTarget    = errors.New("no target engaged")
	ErrCoolingDown = errors.New("weapon cooling down")
	ErrNoAmmo      = errors.New("out of ammunition")
	ErrUnknownAmmo = errors.New("unknown ammunition type")
	ErrTooClose    = errors.New("target too close")
)

// Magazine 弹药库存：弹药类型 → 数量
type Magazine map[string]int

// Weapon 射速门控。FireRate 为每秒发射次数，<=0 表示不限速。
type Weapon struct {
	FireRate float64
	LastFire time.Time
}

// Ready 距上次开火是否已满 1/FireRate 秒（按毫秒计）
func (w *Weapon) Ready(now time.Time) bool {
	if w.FireRate <= 0 || w.LastFire.IsZero() {
		return true
	}
	elapsed := float64(now.Sub(w.LastFire).Milliseconds()) / 1000
	return elapsed >= 1/w.FireRate
}

// Check 只做判断，不修改任何状态
func (w *Weapon) Check(now time.Time, mag Magazine, ammoType string, engaged bool) error {
	if !engaged {
		return ErrNoTarget
	}
	if !w.Ready(now) {
		return ErrCoolingDown
	}
	if mag[ammoType] <= 0 {
		return ErrNoAmmo
	}
	return nil
}

// Commit 扣除一发弹药并记录开火时间
func (w *Weapon) Commit(now time.Time, mag Magazine, ammoType string) {
	mag[ammoType]--
	w.LastFire = now
}
