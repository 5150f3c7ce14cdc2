package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNoRecord 账号尚无存档
var ErrNoRecord = errors.New("no player record")

// LoadPlayer 读取存档；没有存档时返回 ErrNoRecord
func (s *Store) LoadPlayer(ctx context.Context, accountID uint) (*PlayerRecord, error) {
	var rec PlayerRecord
	err := s.DB.WithContext(ctx).First(&rec, "account_id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("load player %d: %w", accountID, err)
	}
	return &rec, nil
}

// SavePlayer 以主键 upsert 存档
func (s *Store) SavePlayer(ctx context.Context, rec *PlayerRecord) error {
	if rec == nil || rec.AccountID == 0 {
		return errors.New("save player: missing account id")
	}
	if err := s.DB.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("save player %d: %w", rec.AccountID, err)
	}
	return nil
}
