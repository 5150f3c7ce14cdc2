package server

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"spacearena/combat"
	"spacearena/geom"
	"spacearena/protocol"
	"spacearena/store"
)

var (
	ErrNoPlayer           = errors.New("player not in world")
	ErrDead               = errors.New("ship destroyed")
	ErrInSafetyZone       = errors.New("combat is disabled inside the safety zone")
	ErrInvalidRespawnMode = errors.New("invalid respawn mode")
	ErrUnknownEntity      = errors.New("unknown entity")
)

// Saver 接收玩家存档快照；实现必须不阻塞调用方
type Saver interface {
	Save(rec store.PlayerRecord)
}

// WorldOptions 世界参数
type WorldOptions struct {
	Width        float64
	Height       float64
	Base         geom.Vec // 新玩家出生点，也是安全区中心
	SafetyRadius float64
	Hostiles     int
	Resources    int
	Seed         int64
	RespawnDelay time.Duration
}

// World 权威世界状态。只允许在 Tick 协程中访问，因此不加锁。
type World struct {
	opts      WorldOptions
	zone      combat.SafetyZone
	players   map[ConnID]*PlayerSession
	hostiles  map[string]*HostileEntity
	resources map[string]*ResourceNode
	resolver  *combat.Resolver
	rng       *rand.Rand
	saver     Saver
	metrics   *Metrics
}

func NewWorld(opts WorldOptions, saver Saver, metrics *Metrics) *World {
	seed := uint64(opts.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	w := &World{
		opts:      opts,
		zone:      combat.SafetyZone{Center: opts.Base, Radius: opts.SafetyRadius},
		players:   make(map[ConnID]*PlayerSession),
		hostiles:  make(map[string]*HostileEntity),
		resources: make(map[string]*ResourceNode),
		resolver:  combat.NewResolver(combat.DefaultConfig(), "p-"),
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		saver:     saver,
		metrics:   metrics,
	}
	for i := 0; i < opts.Hostiles; i++ {
		w.spawnHostile(spawnTypeFor(i), w.randomOpenPoint())
	}
	for i := 0; i < opts.Resources; i++ {
		id := fmt.Sprintf("r-%03d", i+1)
		node := &ResourceNode{ID: id, Type: collectable[i%len(collectable)], Amount: ResourceNodeAmount}
		node.Pos = w.randomOpenPoint()
		w.resources[id] = node
	}
	return w
}

func (w *World) spawnHostile(typ string, pos geom.Vec) *HostileEntity {
	id := fmt.Sprintf("h-%03d", len(w.hostiles)+1)
	h := newHostile(id, hostileSpecs[typ], pos)
	w.hostiles[id] = h
	return h
}

// randomOpenPoint 随机取一个安全区外的点
func (w *World) randomOpenPoint() geom.Vec {
	for i := 0; ; i++ {
		p := geom.Vec{X: w.rng.Float64() * w.opts.Width, Y: w.rng.Float64() * w.opts.Height}
		if p.Dist(w.zone.Center) > w.zone.Radius*1.5 || i > 32 {
			return p
		}
	}
}

func (w *World) SafetyZone() combat.SafetyZone { return w.zone }

func (w *World) SetSafetyRadius(r float64) { w.zone.Radius = r }

func (w *World) SetRespawnDelay(d time.Duration) { w.opts.RespawnDelay = d }

func (w *World) RespawnDelay() time.Duration { return w.opts.RespawnDelay }

func (w *World) Player(id ConnID) (*PlayerSession, bool) {
	p, ok := w.players[id]
	return p, ok
}

func (w *World) Hostile(id string) (*HostileEntity, bool) {
	h, ok := w.hostiles[id]
	return h, ok
}

func (w *World) PlayerCount() int { return len(w.players) }

// Players 按 ID 排序的在线玩家
func (w *World) Players() []*PlayerSession {
	out := make([]*PlayerSession, 0, len(w.players))
	for _, p := range w.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddPlayer 创建玩家实体；没有存档时在基地出生
func (w *World) AddPlayer(id ConnID, ident Identity, rec *store.PlayerRecord) *PlayerSession {
	p := newPlayerSession(id, ident, rec, w.opts.Base)
	p.Pos = p.Pos.Clamp(w.opts.Width, w.opts.Height)
	w.players[id] = p
	return p
}

// RemovePlayer 先交出最终存档再移除；重复调用返回 false
func (w *World) RemovePlayer(id ConnID) bool {
	p, ok := w.players[id]
	if !ok {
		return false
	}
	w.Persist(id)
	delete(w.players, id)
	w.resolver.Forget(string(id))
	for _, h := range w.hostiles {
		if h.TargetID == id {
			h.disengage()
		}
	}
	Log.Debugf("player removed: id=%s user=%s", id, p.Username)
	return true
}

// Persist 立即把玩家当前状态交给写协程
func (w *World) Persist(id ConnID) bool {
	p, ok := w.players[id]
	if !ok || w.saver == nil {
		return false
	}
	w.saver.Save(p.Record())
	return true
}

// Records 全部在线玩家的存档快照，供周期保存
func (w *World) Records() []store.PlayerRecord {
	out := make([]store.PlayerRecord, 0, len(w.players))
	for _, p := range w.Players() {
		out = append(out, p.Record())
	}
	return out
}

// ApplyInput 记录输入时间并采信客户端上报的运动状态（仅做边界裁剪）
func (w *World) ApplyInput(id ConnID, in protocol.PlayerInput, now time.Time) bool {
	p, ok := w.players[id]
	if !ok {
		return false
	}
	p.LastInput = now
	if p.Dead() || !finiteInput(in) {
		return true
	}
	p.Pos = geom.Vec{X: in.X, Y: in.Y}.Clamp(w.opts.Width, w.opts.Height)
	p.Vel = geom.Vec{X: in.VX, Y: in.VY}
	p.Rotation = geom.NormalizeAngle(in.Rotation)

	e := &p.Engagement
	switch {
	case in.TargetID == "":
		e.Disengage()
	case in.TargetID != e.Target():
		e.Designate(in.TargetID)
		if in.Engaged {
			e.Engage()
		}
	case in.Engaged:
		e.Engage()
	case e.Engaged():
		// 客户端退出交战但保留选中
		e.Disengage()
		e.Designate(in.TargetID)
	}
	w.enforceEngagement(p)
	return true
}

func finiteInput(in protocol.PlayerInput) bool {
	for _, v := range []float64{in.X, in.Y, in.VX, in.VY, in.Rotation} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (w *World) enforceEngagement(p *PlayerSession) {
	target := p.Engagement.Target()
	alive := false
	if h, ok := w.hostiles[target]; ok && !h.Dead {
		alive = true
	}
	if p.Engagement.Enforce(w.zone.Contains(p.Pos), alive) {
		Log.Debugf("engagement dropped: player=%s target=%s", p.ID, target)
	}
}

// Damage 对玩家或敌方单位结算伤害（先护盾后生命）
func (w *World) Damage(entityID string, amount float64, now time.Time) (combat.DamageResult, bool) {
	if p, ok := w.players[ConnID(entityID)]; ok {
		res := p.Vitals.Absorb(amount)
		if res.Killed {
			w.playerKilled(p)
		}
		return res, true
	}
	if h, ok := w.hostiles[entityID]; ok && !h.Dead {
		res := h.Vitals.Absorb(amount)
		if res.Killed {
			w.killHostile(h, now)
		}
		return res, true
	}
	return combat.DamageResult{}, false
}

// DamageHostile 客户端上报的对敌伤害；未交战的敌方会反击攻击者
func (w *World) DamageHostile(attacker ConnID, id string, amount float64, now time.Time) (combat.DamageResult, error) {
	h, ok := w.hostiles[id]
	if !ok || h.Dead {
		return combat.DamageResult{}, ErrUnknownEntity
	}
	if p, ok := w.players[attacker]; ok {
		if w.zone.Contains(p.Pos) {
			return combat.DamageResult{}, ErrInSafetyZone
		}
		if !h.Engaged && !p.Dead() {
			h.engage(attacker)
		}
	}
	res := h.Vitals.Absorb(amount)
	if res.Killed {
		w.killHostile(h, now)
	}
	return res, nil
}

func (w *World) playerKilled(p *PlayerSession) {
	p.Vel = geom.Vec{}
	p.Engagement.Disengage()
	w.resolver.Forget(string(p.ID))
	for _, h := range w.hostiles {
		if h.TargetID == p.ID {
			h.disengage()
		}
	}
	Log.Infof("player destroyed: id=%s user=%s", p.ID, p.Username)
}

func (w *World) killHostile(h *HostileEntity, now time.Time) {
	h.Dead = true
	h.Vel = geom.Vec{}
	h.RespawnAt = now.Add(w.opts.RespawnDelay)
	h.disengage()
	w.resolver.Forget(h.ID)
	for _, p := range w.players {
		p.Engagement.TargetLost(h.ID)
	}
	w.metrics.IncHostileDestroyed()
	Log.Debugf("hostile destroyed: id=%s type=%s respawn=%s", h.ID, h.Type, h.RespawnAt.Format(time.RFC3339))
}

// Grant 累加经验与货币，并按经验重算等级
func (w *World) Grant(id ConnID, r Reward) bool {
	p, ok := w.players[id]
	if !ok {
		return false
	}
	p.grant(r)
	return true
}

// EnemyDestroyed 按敌方类型发放击毁奖励
func (w *World) EnemyDestroyed(id ConnID, enemyType string) (Reward, error) {
	p, ok := w.players[id]
	if !ok {
		return Reward{}, ErrNoPlayer
	}
	spec, ok := hostileSpecs[enemyType]
	if !ok {
		return Reward{}, ErrUnknownEnemy
	}
	p.grant(spec.Reward)
	return spec.Reward, nil
}

func (w *World) Heal(id ConnID, amount float64) (float64, error) {
	p, ok := w.players[id]
	if !ok {
		return 0, ErrNoPlayer
	}
	if p.Dead() {
		return 0, ErrDead
	}
	return p.Vitals.Heal(amount), nil
}

// Respawn base：回基地满状态；spot：原地满状态
func (w *World) Respawn(id ConnID, mode string) error {
	p, ok := w.players[id]
	if !ok {
		return ErrNoPlayer
	}
	switch mode {
	case protocol.RespawnBase:
		p.Pos = w.opts.Base
	case protocol.RespawnSpot:
	default:
		return ErrInvalidRespawnMode
	}
	p.Vel = geom.Vec{}
	p.Vitals.Restore()
	p.Engagement.Disengage()
	return nil
}

// CollectResource 采集范围内的矿点，矿点随后在别处重生
func (w *World) CollectResource(id ConnID, nodeID string) (string, int, error) {
	p, ok := w.players[id]
	if !ok {
		return "", 0, ErrNoPlayer
	}
	if p.Dead() {
		return "", 0, ErrDead
	}
	node, ok := w.resources[nodeID]
	if !ok {
		return "", 0, ErrNoSuchResource
	}
	if p.Pos.Dist(node.Pos) > CollectRadius {
		return "", 0, ErrOutOfRange
	}
	p.Resources[node.Type] += node.Amount
	typ, amount := node.Type, node.Amount
	node.Pos = w.randomOpenPoint()
	return typ, amount, nil
}

func (w *World) SellResource(id ConnID, resource string, amount int) (int64, error) {
	p, ok := w.players[id]
	if !ok {
		return 0, ErrNoPlayer
	}
	return p.sell(resource, amount)
}

func (w *World) RefineResource(id ConnID, target string) error {
	p, ok := w.players[id]
	if !ok {
		return ErrNoPlayer
	}
	return p.refine(target)
}

// FireBeam 向当前交战目标发射激光
func (w *World) FireBeam(id ConnID, ammoType string, now time.Time) (*combat.Projectile, error) {
	p, err := w.shooter(id)
	if err != nil {
		return nil, err
	}
	dmg, err := combat.BeamDamage(p.Ship.BeamDamage, ammoType)
	if err != nil {
		return nil, err
	}
	return w.fire(p, &p.Beam, p.Ammo, ammoType, combat.KindBeam, dmg, now)
}

// FireGuided 向当前交战目标发射导弹
func (w *World) FireGuided(id ConnID, rocketType string, now time.Time) (*combat.Projectile, error) {
	p, err := w.shooter(id)
	if err != nil {
		return nil, err
	}
	dmg, err := combat.RocketDamage(rocketType)
	if err != nil {
		return nil, err
	}
	return w.fire(p, &p.Launcher, p.Rockets, rocketType, combat.KindGuided, dmg, now)
}

func (w *World) shooter(id ConnID) (*PlayerSession, error) {
	p, ok := w.players[id]
	if !ok {
		return nil, ErrNoPlayer
	}
	if p.Dead() {
		return nil, ErrDead
	}
	if w.zone.Contains(p.Pos) {
		p.Engagement.Disengage()
		return nil, ErrInSafetyZone
	}
	return p, nil
}

func (w *World) fire(p *PlayerSession, weapon *combat.Weapon, mag combat.Magazine, ammoType, kind string, dmg float64, now time.Time) (*combat.Projectile, error) {
	target := p.Engagement.Target()
	if h, ok := w.hostiles[target]; !ok || h.Dead {
		p.Engagement.TargetLost(target)
		return nil, combat.ErrNoTarget
	}
	shot := combat.Shot{Kind: kind, OwnerID: string(p.ID), TargetID: target, Origin: p.Pos, Damage: dmg}
	proj, err := w.resolver.Fire(now, weapon, mag, ammoType, p.Engagement.Engaged(), shot, w)
	if err != nil {
		return nil, err
	}
	w.metrics.IncFired()
	return proj, nil
}

// Locate 实现 combat.Targets：存活的玩家或敌方单位
func (w *World) Locate(id string) (geom.Vec, geom.Vec, bool) {
	if h, ok := w.hostiles[id]; ok && !h.Dead {
		return h.Pos, h.Vel, true
	}
	if p, ok := w.players[ConnID(id)]; ok && !p.Dead() {
		return p.Pos, p.Vel, true
	}
	return geom.Vec{}, geom.Vec{}, false
}

func (w *World) Projectiles() []combat.Projectile { return w.resolver.Projectiles() }

// Advance 推进一帧：玩家航位推算、敌方 AI、弹体与命中结算
func (w *World) Advance(now time.Time, dt float64) {
	for _, p := range w.players {
		if p.Dead() {
			continue
		}
		p.Pos = p.Pos.Add(p.Vel.Scale(dt)).Clamp(w.opts.Width, w.opts.Height)
		w.enforceEngagement(p)
	}
	for _, h := range w.hostiles {
		if h.Dead {
			if !now.Before(h.RespawnAt) {
				h.reset(w.randomOpenPoint())
				Log.Debugf("hostile respawned: id=%s type=%s", h.ID, h.Type)
			}
			continue
		}
		w.think(h, now, dt)
	}
	for _, hit := range w.resolver.Step(now, dt, w) {
		w.applyHit(hit, now)
	}
}

func (w *World) applyHit(hit combat.Hit, now time.Time) {
	if p, ok := w.players[ConnID(hit.TargetID)]; ok {
		if w.zone.Contains(p.Pos) {
			return
		}
		w.metrics.IncHit()
		if p.Vitals.Absorb(hit.Damage).Killed {
			w.playerKilled(p)
		}
		return
	}
	h, ok := w.hostiles[hit.TargetID]
	if !ok || h.Dead {
		return
	}
	w.metrics.IncHit()
	if !h.Engaged {
		if owner, ok := w.players[ConnID(hit.OwnerID)]; ok && !owner.Dead() {
			h.engage(owner.ID)
		}
	}
	if h.Vitals.Absorb(hit.Damage).Killed {
		w.killHostile(h, now)
	}
}

// think 敌方 AI：巡逻、索敌、追击、开火
func (w *World) think(h *HostileEntity, now time.Time, dt float64) {
	var target *PlayerSession
	if h.Engaged {
		p, ok := w.players[h.TargetID]
		if !ok || p.Dead() || w.zone.Contains(p.Pos) {
			h.disengage()
		} else {
			target = p
		}
	}
	if target == nil && h.Spec.AggroRadius > 0 {
		target = w.nearestPrey(h.Pos, h.Spec.AggroRadius)
		if target != nil {
			h.engage(target.ID)
		}
	}

	var goal geom.Vec
	speed := h.Spec.Speed
	if target != nil {
		dist := h.Pos.Dist(target.Pos)
		goal = target.Pos
		if dist <= preferredRange {
			goal = h.Pos
		}
		h.Rotation = geom.Heading(h.Pos, target.Pos)
		if dist <= h.Spec.Range && h.Weapon.Ready(now) {
			shot := combat.Shot{Kind: combat.KindBeam, OwnerID: h.ID, TargetID: string(target.ID), Origin: h.Pos, Damage: h.Spec.Damage}
			if _, err := w.resolver.Spawn(now, shot, w); err == nil {
				h.Weapon.LastFire = now
			}
		}
	} else {
		if h.roamTo == nil || h.Pos.Dist(*h.roamTo) < 10 {
			next := h.Home.Add(geom.Vec{
				X: (w.rng.Float64()*2 - 1) * roamRadius,
				Y: (w.rng.Float64()*2 - 1) * roamRadius,
			}).Clamp(w.opts.Width, w.opts.Height)
			h.roamTo = &next
		}
		goal = *h.roamTo
		speed *= 0.5
	}

	step := goal.Sub(h.Pos)
	if step.Len() < 1 {
		h.Vel = geom.Vec{}
		return
	}
	h.Vel = step.Normalize().Scale(speed)
	if target == nil {
		h.Rotation = geom.Heading(h.Pos, goal)
	}
	next := h.Pos.Add(h.Vel.Scale(dt)).Clamp(w.opts.Width, w.opts.Height)
	if w.zone.Contains(next) {
		// 敌方不进入安全区
		h.Vel = geom.Vec{}
		h.roamTo = nil
		return
	}
	h.Pos = next
}

// nearestPrey 半径内最近的、不在安全区的存活玩家
func (w *World) nearestPrey(from geom.Vec, radius float64) *PlayerSession {
	var best *PlayerSession
	bestDist := radius
	for _, p := range w.players {
		if p.Dead() || w.zone.Contains(p.Pos) {
			continue
		}
		if d := from.Dist(p.Pos); d <= bestDist {
			if best == nil || d < bestDist || p.ID < best.ID {
				best, bestDist = p, d
			}
		}
	}
	return best
}

// Snapshot 广播用的只读投影；阵亡的敌方单位不出现
func (w *World) Snapshot(now time.Time) protocol.GameState {
	gs := protocol.GameState{
		Players:   make([]protocol.PlayerState, 0, len(w.players)),
		Hostiles:  make([]protocol.HostileState, 0, len(w.hostiles)),
		Resources: make([]protocol.ResourceState, 0, len(w.resources)),
		Timestamp: now.UnixMilli(),
	}
	for _, p := range w.Players() {
		gs.Players = append(gs.Players, p.State())
	}
	for _, h := range w.hostiles {
		if !h.Dead {
			gs.Hostiles = append(gs.Hostiles, h.State())
		}
	}
	sort.Slice(gs.Hostiles, func(i, j int) bool { return gs.Hostiles[i].ID < gs.Hostiles[j].ID })
	for _, n := range w.resources {
		gs.Resources = append(gs.Resources, n.State())
	}
	sort.Slice(gs.Resources, func(i, j int) bool { return gs.Resources[i].ID < gs.Resources[j].ID })
	return gs
}
