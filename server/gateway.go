package server

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"spacearena/combat"
	"spacearena/protocol"
	"spacearena/store"
)

// 认证类消息在读协程中完成协作方 I/O，结果再以 Admission 进入 Tick 队列
type authHandler func(g *Gateway, c *ClientConn, msg protocol.Inbound)

// 其余消息在 Tick 协程中执行；p 只有 disconnect 时可能为 nil
type tickHandler func(r *Room, c Conn, p *PlayerSession, msg protocol.Inbound, now time.Time)

var authHandlers = map[protocol.MsgType]authHandler{
	protocol.MsgLogin:         handleLogin,
	protocol.MsgRegister:      handleRegister,
	protocol.MsgResumeSession: handleResume,
}

var tickHandlers = map[protocol.MsgType]tickHandler{
	protocol.MsgPlayerInput:     handlePlayerInput,
	protocol.MsgEnemyDestroyed:  handleEnemyDestroyed,
	protocol.MsgCollectResource: handleCollect,
	protocol.MsgSellResource:    handleSell,
	protocol.MsgRefineResource:  handleRefine,
	protocol.MsgFireBeam:        handleFireBeam,
	protocol.MsgFireGuided:      handleFireGuided,
	protocol.MsgDamageEntity:    handleDamageEntity,
	protocol.MsgPlayerDamaged:   handlePlayerDamaged,
	protocol.MsgPlayerHeal:      handlePlayerHeal,
	protocol.MsgRespawn:         handleRespawn,
	protocol.MsgDisconnect:      handleDisconnect,
}

// ---- 认证（读协程） ----

func (g *Gateway) authContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.opts.AuthTimeout)
}

func handleLogin(g *Gateway, c *ClientConn, msg protocol.Inbound) {
	m := msg.(protocol.Login)
	ctx, cancel := g.authContext()
	defer cancel()

	res := g.auth.Login(ctx, m.Username, m.Password)
	if !res.Success {
		g.metrics.IncLoginRejected()
		Log.Infof("login rejected: user=%q addr=%s reason=%s", m.Username, c.Addr(), res.Message)
		c.Send(protocol.MsgLoginResponse, protocol.Response{Success: false, Message: res.Message})
		return
	}
	g.admit(ctx, c, res, uuid.NewString(), false)
}

func handleResume(g *Gateway, c *ClientConn, msg protocol.Inbound) {
	m := msg.(protocol.ResumeSession)
	if m.Token == "" || m.Username == "" {
		c.Send(protocol.MsgLoginResponse, protocol.Response{Success: false, Message: "Invalid session"})
		return
	}
	ctx, cancel := g.authContext()
	defer cancel()

	// 只确认账号存在，不校验 token 的真实性
	res := g.auth.Lookup(ctx, m.Username)
	if !res.Success {
		g.metrics.IncLoginRejected()
		c.Send(protocol.MsgLoginResponse, protocol.Response{Success: false, Message: res.Message})
		return
	}
	g.admit(ctx, c, res, m.Token, true)
}

func (g *Gateway) admit(ctx context.Context, c *ClientConn, res store.Result, token string, resumed bool) {
	rec, err := g.db.LoadPlayer(ctx, res.AccountID)
	if errors.Is(err, store.ErrNoRecord) {
		rec, err = nil, nil
	}
	if err != nil {
		Log.Errorf("load player failed: account=%d err=%v", res.AccountID, err)
		c.Send(protocol.MsgLoginResponse, protocol.Response{Success: false, Message: store.ErrGeneric})
		return
	}
	cmd := Command{
		Conn: c,
		Admit: &Admission{
			Identity: Identity{AccountID: res.AccountID, Username: res.Username},
			Record:   rec,
			Token:    token,
			Resumed:  resumed,
		},
	}
	if !g.room.Submit(cmd) {
		c.Send(protocol.MsgLoginResponse, protocol.Response{Success: false, Message: "Server busy, try again"})
	}
}

func handleRegister(g *Gateway, c *ClientConn, msg protocol.Inbound) {
	m := msg.(protocol.Register)
	ctx, cancel := g.authContext()
	defer cancel()

	res := g.auth.Register(ctx, m.Username, m.Password, c.Addr())
	if res.Success {
		Log.Infof("account registered: user=%q addr=%s", res.Username, c.Addr())
	}
	c.Send(protocol.MsgRegisterResponse, protocol.Response{Success: res.Success, Message: res.Message})
}

// ---- 游戏消息（Tick 协程） ----

func handlePlayerInput(r *Room, c Conn, p *PlayerSession, msg protocol.Inbound, now time.Time) {
	r.world.ApplyInput(p.ID, msg.(protocol.PlayerInput), now)
}

func handleEnemyDestroyed(r *Room, c Conn, p *PlayerSession, msg protocol.Inbound, now time.Time) {
	m := msg.(protocol.EnemyDestroyed)
	reward, err := r.world.EnemyDestroyed(p.ID, m.EnemyType)
	if err != nil {
		r.reject(c, err)
		return
	}
	Log.Debugf("reward granted: user=%s enemy=%s exp=%d credits=%d", p.Username, m.EnemyType, reward.Experience, reward.Credits)
	r.commit(p)
}

func handleCollect(r *Room, c Conn, p *PlayerSession, msg protocol.Inbound, now time.Time) {
	m := msg.(protocol.CollectResource)
	typ, n, err := r.world.CollectResource(p.ID, m.ID)
	if err != nil {
		r.reject(c, err)
		return
	}
	Log.Debugf("resource collected: user=%s node=%s type=%s amount=%d", p.Username, m.ID, typ, n)
	r.commit(p)
}

func handleSell(r *Room, c Conn, p *PlayerSession, msg protocol.Inbound, now time.Time) {
	m := msg.(protocol.SellResource)
	if _, err := r.world.SellResource(p.ID, m.Resource, m.Amount); err != nil {
		r.reject(c, err)
		return
	}
	r.commit(p)
}

func handleRefine(r *Room, c Conn, p *PlayerSession, msg protocol.Inbound, now time.Time) {
	m := msg.(protocol.RefineResource)
	if err := r.world.RefineResource(p.ID, m.TargetType); err != nil {
		r.reject(c, err)
		return
	}
	r.commit(p)
}

func handleFireBeam(r *Room, c Conn, p *PlayerSession, msg protocol.Inbound, now time.Time) {
	m := msg.(protocol.FireBeam)
	_, err := r.world.FireBeam(p.ID, m.AmmoType, now)
	r.fired(c, p, err)
}

func handleFireGuided(r *Room, c Conn, p *PlayerSession, msg protocol.Inbound, now time.Time) {
	m := msg.(protocol.FireGuided)
	_, err := r.world.FireGuided(p.ID, m.RocketType, now)
	r.fired(c, p, err)
}

// fired 冷却与贴脸抑制属于正常节流，不回报错误
func (r *Room) fired(c Conn, p *PlayerSession, err error) {
	switch {
	case err == nil:
		r.commit(p)
	case errors.Is(err, combat.ErrCoolingDown), errors.Is(err, combat.ErrTooClose):
		Log.Debugf("shot suppressed: user=%s err=%v", p.Username, err)
	default:
		r.reject(c, err)
	}
}

func handleDamageEntity(r *Room, c Conn, p *PlayerSession, msg protocol.Inbound, now time.Time) {
	m := msg.(protocol.DamageEntity)
	if _, err := r.world.DamageHostile(p.ID, m.ID, m.Damage, now); err != nil {
		r.reject(c, err)
		return
	}
	r.world.Persist(p.ID)
}

func handlePlayerDamaged(r *Room, c Conn, p *PlayerSession, msg protocol.Inbound, now time.Time) {
	m := msg.(protocol.PlayerDamaged)
	// 安全区内不承受敌方火力
	if r.world.SafetyZone().Contains(p.Pos) {
		return
	}
	r.world.Damage(string(p.ID), m.Damage, now)
}

func handlePlayerHeal(r *Room, c Conn, p *PlayerSession, msg protocol.Inbound, now time.Time) {
	m := msg.(protocol.PlayerHeal)
	if _, err := r.world.Heal(p.ID, m.Amount); err != nil {
		r.reject(c, err)
	}
}

func handleRespawn(r *Room, c Conn, p *PlayerSession, msg protocol.Inbound, now time.Time) {
	m := msg.(protocol.Respawn)
	if err := r.world.Respawn(p.ID, m.Mode); err != nil {
		r.reject(c, err)
	}
}

func handleDisconnect(r *Room, c Conn, p *PlayerSession, msg protocol.Inbound, now time.Time) {
	c.Close()
	if p != nil {
		r.removePlayer(p.ID)
	}
}

// commit 经济类变更成功后立即写存档，并把库存推给本人
func (r *Room) commit(p *PlayerSession) {
	r.world.Persist(p.ID)
	if p.Conn != nil {
		r.send(p.Conn, protocol.MsgInventory, p.Inventory())
	}
}

func (r *Room) reject(c Conn, err error) {
	r.send(c, protocol.MsgError, protocol.ErrorMessage{Message: err.Error()})
}
