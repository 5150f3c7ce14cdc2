package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Models 需要迁移的全部表
var Models = []interface{}{
	&Account{},
	&PlayerRecord{},
}

// Account 登录账号
type Account struct {
	ID              uint      `gorm:"primaryKey"`
	Username        string    `gorm:"size:32;uniqueIndex"`
	PasswordHash    string    `gorm:"size:72"`
	RegisterAddress string    `gorm:"size:64;index"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

// PlayerRecord 玩家存档
type PlayerRecord struct {
	AccountID       uint    `gorm:"primaryKey;autoIncrement:false"`
	Username        string  `gorm:"size:32"`
	X               float64 `gorm:"column:pos_x"`
	Y               float64 `gorm:"column:pos_y"`
	Health          float64
	MaxHealth       float64
	Shield          float64
	MaxShield       float64
	ShipType        string `gorm:"size:32"`
	Level           int
	Experience      int64
	Credits         int64
	Honor           int64
	SpecialCurrency int64
	Ammo            datatypes.JSON
	Rockets         datatypes.JSON
	Resources       datatypes.JSON
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

// EncodeCounts map → JSON 列
func EncodeCounts(m map[string]int) datatypes.JSON {
	if len(m) == 0 {
		return datatypes.JSON("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}

// DecodeCounts JSON 列 → map；空列或损坏数据返回空 map
func DecodeCounts(j datatypes.JSON) map[string]int {
	out := make(map[string]int)
	if len(j) == 0 {
		return out
	}
	_ = json.Unmarshal(j, &out)
	return out
}
