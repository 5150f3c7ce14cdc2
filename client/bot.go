package client

import (
	"time"

	"spacearena/combat"
	"spacearena/geom"
	"spacearena/predict"
	"spacearena/protocol"
)

const (
	// 与目标保持的距离与开火距离
	standoff  = 250.0
	fireRange = 600.0
	// 目标消失前血量低于该比例视为被击毁
	killRatio = 0.25
)

// Outbound 一帧中需要发给服务端的消息
type Outbound struct {
	Type protocol.MsgType
	Data any
}

// ApplySnapshot 用权威快照校正本地预测，并刷新敌方列表
func (c *Client) ApplySnapshot(gs protocol.GameState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Snapshots++

	for _, p := range gs.Players {
		if p.ID != c.id {
			continue
		}
		if predict.Reconcile(c.pred, geom.Vec{X: p.X, Y: p.Y}) {
			c.stats.Corrections++
			c.log.Debugf("position corrected: x=%.0f y=%.0f", p.X, p.Y)
		}
	}

	seen := make(map[string]protocol.HostileState, len(gs.Hostiles))
	for _, h := range gs.Hostiles {
		seen[h.ID] = h
	}
	c.pendingKill = ""
	if target := c.engage.Target(); target != "" {
		if _, ok := seen[target]; !ok {
			if prev, known := c.hostiles[target]; known && prev.Health <= prev.MaxHealth*killRatio {
				c.pendingKill = prev.Type
			}
			c.engage.TargetLost(target)
			c.local.Forget(target)
			c.pred.Unlock()
		}
	}
	c.hostiles = seen
}

// Frame 推进一帧：选择目标、驾驶、开火、本地弹道，返回需要发送的消息
func (c *Client) Frame(now time.Time, dt float64) []Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Outbound

	if c.pendingKill != "" {
		out = append(out, Outbound{Type: protocol.MsgEnemyDestroyed, Data: protocol.EnemyDestroyed{EnemyType: c.pendingKill}})
		c.stats.Kills++
		c.pendingKill = ""
	}

	if c.engage.State() == combat.Idle {
		if id, ok := c.nearestHostile(); ok {
			// 连续两次指定同一目标即进入交战
			c.engage.Designate(id)
			c.engage.Designate(id)
		}
	}

	if h, ok := c.hostiles[c.engage.Target()]; ok {
		target := geom.Vec{X: h.X, Y: h.Y}
		c.pred.LockOn(target)
		away := c.pred.Pos.Sub(target).Normalize()
		if away.Len() == 0 {
			away = geom.Vec{X: 1}
		}
		c.pred.SetWaypoint(target.Add(away.Scale(standoff)))

		if c.pred.Pos.Dist(target) <= fireRange {
			shot := combat.Shot{
				Kind:     combat.KindBeam,
				OwnerID:  c.id,
				TargetID: h.ID,
				Origin:   c.pred.Pos,
			}
			if _, err := c.local.Fire(now, &c.beam, c.ammo, c.ammoType, c.engage.Engaged(), shot, combat.TargetsFunc(c.locate)); err == nil {
				c.stats.ShotsFired++
				out = append(out, Outbound{Type: protocol.MsgFireBeam, Data: protocol.FireBeam{AmmoType: c.ammoType}})
			}
		}
	} else {
		c.pred.Unlock()
	}

	predict.Step(c.pred, dt)
	c.stats.LocalHits += len(c.local.Step(now, dt, combat.TargetsFunc(c.locate)))
	return out
}

// locate 本地弹道的目标查询：最近一次快照中的敌方（调用方持有 c.mu）
func (c *Client) locate(id string) (geom.Vec, geom.Vec, bool) {
	h, ok := c.hostiles[id]
	if !ok {
		return geom.Vec{}, geom.Vec{}, false
	}
	return geom.Vec{X: h.X, Y: h.Y}, geom.Vec{X: h.VX, Y: h.VY}, true
}

func (c *Client) nearestHostile() (string, bool) {
	best, bestDist := "", 0.0
	for id, h := range c.hostiles {
		d := c.pred.Pos.Dist(geom.Vec{X: h.X, Y: h.Y})
		if best == "" || d < bestDist || (d == bestDist && id < best) {
			best, bestDist = id, d
		}
	}
	return best, best != ""
}
