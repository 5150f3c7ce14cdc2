package server

import (
	"errors"
	"math"
)

var (
	ErrUnknownResource = errors.New("unknown resource type")
	ErrNotEnough       = errors.New("not enough resources")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrOutOfRange      = errors.New("resource out of range")
	ErrNoSuchResource  = errors.New("resource not found")
	ErrUnknownEnemy    = errors.New("unknown enemy type")
)

// Reward 击毁奖励或任意发放
type Reward struct {
	Experience      int64
	Credits         int64
	Honor           int64
	SpecialCurrency int64
}

// 可采集的原矿
var collectable = []string{"prometium", "endurium", "terbium"}

// 单价（credits / 单位）
var resourcePrices = map[string]int64{
	"prometium": 10,
	"endurium":  15,
	"terbium":   25,
	"prometid":  200,
	"duranium":  350,
	"promerium": 1200,
}

// 精炼配方：产物 → 所需原料
var recipes = map[string]map[string]int{
	"prometid":  {"prometium": 20, "endurium": 10},
	"duranium":  {"endurium": 10, "terbium": 20},
	"promerium": {"prometid": 10, "duranium": 10},
}

const (
	// CollectRadius 采集时玩家与矿点的最大距离
	CollectRadius = 150.0
	// ResourceNodeAmount 单个矿点产出
	ResourceNodeAmount = 5
)

// LevelFor 经验 → 等级：2 级需要 10000 经验，之后每级翻倍
func LevelFor(exp int64) int {
	level := 1
	need := int64(10000)
	for exp >= need && level < 32 {
		level++
		need *= 2
	}
	return level
}

// addSaturating 只受存储类型范围限制的累加
func addSaturating(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

func (p *PlayerSession) grant(r Reward) {
	p.Experience = addSaturating(p.Experience, r.Experience)
	p.Credits = addSaturating(p.Credits, r.Credits)
	p.Honor = addSaturating(p.Honor, r.Honor)
	p.SpecialCurrency = addSaturating(p.SpecialCurrency, r.SpecialCurrency)
	p.Level = LevelFor(p.Experience)
}

func (p *PlayerSession) sell(resource string, amount int) (int64, error) {
	price, ok := resourcePrices[resource]
	if !ok {
		return 0, ErrUnknownResource
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if p.Resources[resource] < amount {
		return 0, ErrNotEnough
	}
	p.Resources[resource] -= amount
	earned := price * int64(amount)
	p.Credits = addSaturating(p.Credits, earned)
	return earned, nil
}

func (p *PlayerSession) refine(target string) error {
	recipe, ok := recipes[target]
	if !ok {
		return ErrUnknownResource
	}
	for res, n := range recipe {
		if p.Resources[res] < n {
			return ErrNotEnough
		}
	}
	for res, n := range recipe {
		p.Resources[res] -= n
	}
	p.Resources[target]++
	return nil
}
