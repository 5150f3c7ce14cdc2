package combat

import "math"

// Vitals 生命与护盾，均被限制在 [0, max]
type Vitals struct {
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
	Shield    float64 `json:"shield"`
	MaxShield float64 `json:"maxShield"`
}

// DamageResult 一次伤害的结算结果
type DamageResult struct {
	ShieldDamage float64
	HealthDamage float64
	Killed       bool
}

// Absorb 先扣护盾，剩余部分再扣生命
func (v *Vitals) Absorb(amount float64) DamageResult {
	if !usable(amount) || v.Dead() {
		return DamageResult{}
	}
	shieldDamage := min(amount, v.Shield)
	v.Shield -= shieldDamage
	remaining := amount - shieldDamage
	healthDamage := min(remaining, v.Health)
	v.Health = max(0, v.Health-remaining)
	return DamageResult{
		ShieldDamage: shieldDamage,
		HealthDamage: healthDamage,
		Killed:       v.Health == 0,
	}
}

// Heal 恢复生命，不超过上限；已阵亡不可治疗
func (v *Vitals) Heal(amount float64) float64 {
	if !usable(amount) || v.Dead() {
		return 0
	}
	before := v.Health
	v.Health = min(v.MaxHealth, v.Health+amount)
	return v.Health - before
}

// Restore 满血满盾（重生）
func (v *Vitals) Restore() {
	v.Health = v.MaxHealth
	v.Shield = v.MaxShield
}

// Clamp 把持久化或客户端带来的数值拉回合法区间
func (v *Vitals) Clamp() {
	v.Health = min(max(v.Health, 0), v.MaxHealth)
	v.Shield = min(max(v.Shield, 0), v.MaxShield)
}

// usable 正的有限数才参与结算
func usable(amount float64) bool {
	return amount > 0 && !math.IsInf(amount, 0)
}

func (v *Vitals) Dead() bool { return v.Health <= 0 }
