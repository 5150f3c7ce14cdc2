package server

import (
	"time"

	"spacearena/combat"
	"spacearena/geom"
	"spacearena/protocol"
	"spacearena/store"
)

// ConnID 连接唯一标识，同时作为玩家实体 ID
type ConnID string

// Identity 认证通过的账号
type Identity struct {
	AccountID uint
	Username  string
}

// ShipSpec 舰船基础属性
type ShipSpec struct {
	MaxHealth  float64
	MaxShield  float64
	Speed      float64
	BeamDamage float64
}

const DefaultShip = "phoenix"

var ships = map[string]ShipSpec{
	"phoenix":   {MaxHealth: 4000, MaxShield: 2000, Speed: 320, BeamDamage: 150},
	"liberator": {MaxHealth: 16000, MaxShield: 8000, Speed: 300, BeamDamage: 300},
	"goliath":   {MaxHealth: 256000, MaxShield: 96000, Speed: 280, BeamDamage: 900},
}

func shipSpec(name string) (string, ShipSpec) {
	if s, ok := ships[name]; ok {
		return name, s
	}
	return DefaultShip, ships[DefaultShip]
}

// 新账号的初始物资
var (
	starterAmmo    = map[string]int{"x1": 2000, "x2": 200}
	starterRockets = map[string]int{"r310": 100}
)

const starterCredits = 10000

// PlayerSession 服务端权威的玩家状态（服务端独占，只在 Tick 线程修改）
type PlayerSession struct {
	ID        ConnID
	AccountID uint
	Username  string
	Address   string
	Token     string

	Pos      geom.Vec
	Vel      geom.Vec
	Rotation float64
	Vitals   combat.Vitals

	LastInput time.Time

	ShipType string
	Ship     ShipSpec

	Level           int
	Experience      int64
	Credits         int64
	Honor           int64
	SpecialCurrency int64

	Ammo      combat.Magazine
	Rockets   combat.Magazine
	Resources map[string]int

	Beam       combat.Weapon
	Launcher   combat.Weapon
	Engagement combat.Engagement

	Conn Conn // 网络连接的发送端
}

// newPlayerSession 从存档恢复；rec 为 nil 时按新账号出生在基地
func newPlayerSession(id ConnID, ident Identity, rec *store.PlayerRecord, spawn geom.Vec) *PlayerSession {
	p := &PlayerSession{
		ID:        id,
		AccountID: ident.AccountID,
		Username:  ident.Username,
		Beam:      combat.Weapon{FireRate: combat.BeamFireRate},
		Launcher:  combat.Weapon{FireRate: combat.RocketFireRate},
	}
	if rec == nil {
		p.ShipType, p.Ship = shipSpec(DefaultShip)
		p.Pos = spawn
		p.Vitals = combat.Vitals{
			Health: p.Ship.MaxHealth, MaxHealth: p.Ship.MaxHealth,
			Shield: p.Ship.MaxShield, MaxShield: p.Ship.MaxShield,
		}
		p.Level = 1
		p.Credits = starterCredits
		p.Ammo = copyCounts(starterAmmo)
		p.Rockets = copyCounts(starterRockets)
		p.Resources = map[string]int{}
		return p
	}

	p.ShipType, p.Ship = shipSpec(rec.ShipType)
	p.Pos = geom.Vec{X: rec.X, Y: rec.Y}
	p.Vitals = combat.Vitals{
		Health: rec.Health, MaxHealth: p.Ship.MaxHealth,
		Shield: rec.Shield, MaxShield: p.Ship.MaxShield,
	}
	p.Vitals.Clamp()
	p.Experience = rec.Experience
	p.Level = LevelFor(rec.Experience)
	p.Credits = rec.Credits
	p.Honor = rec.Honor
	p.SpecialCurrency = rec.SpecialCurrency
	p.Ammo = store.DecodeCounts(rec.Ammo)
	p.Rockets = store.DecodeCounts(rec.Rockets)
	p.Resources = store.DecodeCounts(rec.Resources)
	return p
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (p *PlayerSession) Dead() bool { return p.Vitals.Dead() }

// Record 存档快照（值拷贝，可交给写协程）
func (p *PlayerSession) Record() store.PlayerRecord {
	return store.PlayerRecord{
		AccountID:       p.AccountID,
		Username:        p.Username,
		X:               p.Pos.X,
		Y:               p.Pos.Y,
		Health:          p.Vitals.Health,
		MaxHealth:       p.Vitals.MaxHealth,
		Shield:          p.Vitals.Shield,
		MaxShield:       p.Vitals.MaxShield,
		ShipType:        p.ShipType,
		Level:           p.Level,
		Experience:      p.Experience,
		Credits:         p.Credits,
		Honor:           p.Honor,
		SpecialCurrency: p.SpecialCurrency,
		Ammo:            store.EncodeCounts(p.Ammo),
		Rockets:         store.EncodeCounts(p.Rockets),
		Resources:       store.EncodeCounts(p.Resources),
	}
}

// State 广播给客户端的轻量状态
func (p *PlayerSession) State() protocol.PlayerState {
	return protocol.PlayerState{
		ID:        string(p.ID),
		Username:  p.Username,
		X:         p.Pos.X,
		Y:         p.Pos.Y,
		VX:        p.Vel.X,
		VY:        p.Vel.Y,
		Rotation:  p.Rotation,
		Health:    p.Vitals.Health,
		MaxHealth: p.Vitals.MaxHealth,
		Shield:    p.Vitals.Shield,
		MaxShield: p.Vitals.MaxShield,
		ShipType:  p.ShipType,
	}
}

func (p *PlayerSession) Currency() protocol.Currency {
	return protocol.Currency{
		Experience:      p.Experience,
		Credits:         p.Credits,
		Honor:           p.Honor,
		SpecialCurrency: p.SpecialCurrency,
	}
}

// Inventory 仅发给本人的私有状态
func (p *PlayerSession) Inventory() protocol.Inventory {
	return protocol.Inventory{
		Level:     p.Level,
		Currency:  p.Currency(),
		Ammo:      copyCounts(p.Ammo),
		Rockets:   copyCounts(p.Rockets),
		Resources: copyCounts(p.Resources),
	}
}

func (p *PlayerSession) LoginSuccess() protocol.LoginSuccess {
	return protocol.LoginSuccess{
		ID:           string(p.ID),
		SessionToken: p.Token,
		Username:     p.Username,
		Position:     protocol.Position{X: p.Pos.X, Y: p.Pos.Y},
		Level:        p.Level,
		Currency:     p.Currency(),
		ShipType:     p.ShipType,
	}
}
