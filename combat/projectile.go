package combat

import (
	"fmt"
	"time"

	"spacearena/geom"
)

// Projectile 由 Resolver 独占，不在实例之间共享
type Projectile struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Pos       geom.Vec  `json:"pos"`
	Vel       geom.Vec  `json:"vel"`
	Rotation  float64   `json:"rotation"`
	Damage    float64   `json:"damage"`
	OwnerID   string    `json:"ownerId"`
	TargetID  string    `json:"targetId"`
	SpawnedAt time.Time `json:"spawnedAt"`
}

// Targets 查询目标的当前位置与速度；ok=false 表示目标已不在模拟中
type Targets interface {
	Locate(id string) (pos, vel geom.Vec, ok bool)
}

// TargetsFunc 适配普通函数
type TargetsFunc func(id string) (geom.Vec, geom.Vec, bool)

func (f TargetsFunc) Locate(id string) (geom.Vec, geom.Vec, bool) { return f(id) }

// Shot 一次开火请求
type Shot struct {
	Kind     string
	OwnerID  string
	TargetID string
	Origin   geom.Vec
	Damage   float64
}

// Hit 命中事件，由调用方按护盾优先规则结算伤害
type Hit struct {
	ProjectileID string
	Kind         string
	OwnerID      string
	TargetID     string
	Damage       float64
	Pos          geom.Vec
}

// Config 弹道参数
type Config struct {
	BeamSpeed      float64
	GuidedSpeed    float64
	BeamTTL        time.Duration
	GuidedTTL      time.Duration
	HitRadius      float64
	CollisionGrace time.Duration
}

func DefaultConfig() Config {
	return Config{
		BeamSpeed:      BeamSpeed,
		GuidedSpeed:    GuidedSpeed,
		BeamTTL:        BeamTTL,
		GuidedTTL:      GuidedTTL,
		HitRadius:      HitRadius,
		CollisionGrace: CollisionGrace,
	}
}

// Resolver 管理一个模拟上下文内的全部弹体
type Resolver struct {
	cfg         Config
	prefix      string
	seq         uint64
	projectiles []*Projectile
}

// NewResolver prefix 用于区分不同模拟上下文生成的弹体 ID
func NewResolver(cfg Config, prefix string) *Resolver {
	return &Resolver{cfg: cfg, prefix: prefix}
}

func (r *Resolver) speed(kind string) float64 {
	if kind == KindGuided {
		return r.cfg.GuidedSpeed
	}
	return r.cfg.BeamSpeed
}

func (r *Resolver) ttl(kind string) time.Duration {
	if kind == KindGuided {
		return r.cfg.GuidedTTL
	}
	return r.cfg.BeamTTL
}

// Fire 门控通过且瞄准有效时生成弹体，并扣除一发弹药
func (r *Resolver) Fire(now time.Time, w *Weapon, mag Magazine, ammoType string, engaged bool, shot Shot, targets Targets) (*Projectile, error) {
	if err := w.Check(now, mag, ammoType, engaged); err != nil {
		return nil, err
	}
	p, err := r.Spawn(now, shot, targets)
	if err != nil {
		return nil, err
	}
	w.Commit(now, mag, ammoType)
	return p, nil
}

// Spawn 计算提前量并生成弹体（不经过门控）。
// 激光瞄准拦截点，制导弹体瞄准当前位置并在飞行中追踪。
func (r *Resolver) Spawn(now time.Time, shot Shot, targets Targets) (*Projectile, error) {
	targetPos, targetVel, ok := targets.Locate(shot.TargetID)
	if !ok {
		return nil, ErrNoTarget
	}
	speed := r.speed(shot.Kind)
	aim := targetPos
	if shot.Kind != KindGuided {
		aim = Intercept(shot.Origin, targetPos, targetVel, speed)
	}
	if shot.Origin.Dist(aim) < MinShotDistance {
		return nil, ErrTooClose
	}
	r.seq++
	p := &Projectile{
		ID:        fmt.Sprintf("%s%d", r.prefix, r.seq),
		Kind:      shot.Kind,
		Pos:       shot.Origin,
		Vel:       aim.Sub(shot.Origin).Normalize().Scale(speed),
		Rotation:  geom.Heading(shot.Origin, aim),
		Damage:    shot.Damage,
		OwnerID:   shot.OwnerID,
		TargetID:  shot.TargetID,
		SpawnedAt: now,
	}
	r.projectiles = append(r.projectiles, p)
	return p, nil
}

// Step 推进所有弹体并返回本步命中。
// 超时、命中或目标消失的弹体被移除。
func (r *Resolver) Step(now time.Time, dt float64, targets Targets) []Hit {
	var hits []Hit
	alive := r.projectiles[:0]
	for _, p := range r.projectiles {
		age := now.Sub(p.SpawnedAt)
		if age > r.ttl(p.Kind) {
			continue
		}
		targetPos, _, ok := targets.Locate(p.TargetID)
		if !ok {
			continue
		}
		if p.Kind == KindGuided {
			if dir := targetPos.Sub(p.Pos); dir.Len() > 0 {
				p.Vel = dir.Normalize().Scale(r.speed(p.Kind))
				p.Rotation = geom.Heading(p.Pos, targetPos)
			}
		}
		p.Pos = p.Pos.Add(p.Vel.Scale(dt))
		if age >= r.cfg.CollisionGrace && p.Pos.Dist(targetPos) < r.cfg.HitRadius {
			hits = append(hits, Hit{
				ProjectileID: p.ID,
				Kind:         p.Kind,
				OwnerID:      p.OwnerID,
				TargetID:     p.TargetID,
				Damage:       p.Damage,
				Pos:          p.Pos,
			})
			continue
		}
		alive = append(alive, p)
	}
	for i := len(alive); i < len(r.projectiles); i++ {
		r.projectiles[i] = nil
	}
	r.projectiles = alive
	return hits
}

// Projectiles 返回当前弹体的副本
func (r *Resolver) Projectiles() []Projectile {
	out := make([]Projectile, 0, len(r.projectiles))
	for _, p := range r.projectiles {
		out = append(out, *p)
	}
	return out
}

func (r *Resolver) Len() int { return len(r.projectiles) }

// Clear 模拟上下文销毁时丢弃全部弹体
func (r *Resolver) Clear() {
	r.projectiles = nil
}

// Forget 移除与某实体相关（发射者或目标）的弹体
func (r *Resolver) Forget(id string) {
	alive := r.projectiles[:0]
	for _, p := range r.projectiles {
		if p.OwnerID == id || p.TargetID == id {
			continue
		}
		alive = append(alive, p)
	}
	for i := len(alive); i < len(r.projectiles); i++ {
		r.projectiles[i] = nil
	}
	r.projectiles = alive
}
