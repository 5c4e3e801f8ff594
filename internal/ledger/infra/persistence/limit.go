package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"vaultbank.com/internal/ledger/domain"
	"vaultbank.com/pkg/xerr"
)

// GetDailyLimit 不存在时返回零值实例
func (r *Repo) GetDailyLimit(ctx context.Context, userID string) (*domain.UserDailyLimit, error) {
	var limit domain.UserDailyLimit
	err := r.tx(ctx).WithContext(ctx).Where("user_id = ?", userID).First(&limit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.UserDailyLimit{
				UserID:         userID,
				DepositsUSD:    decimal.Zero,
				WithdrawalsUSD: decimal.Zero,
			}, nil
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("query daily limit failed: %v", err))
	}
	return &limit, nil
}

// SaveDailyLimit Upsert 整条记录
func (r *Repo) SaveDailyLimit(ctx context.Context, limit *domain.UserDailyLimit) error {
	err := r.tx(ctx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}}, // 唯一索引列
		DoUpdates: clause.Assignments(map[string]interface{}{
			"deposits_usd":    limit.DepositsUSD,
			"withdrawals_usd": limit.WithdrawalsUSD,
			"day":             limit.Day,
			"version":         gorm.Expr("version + 1"),
		}),
	}).Create(limit).Error
	if err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("save daily limit failed: %v", err))
	}
	return nil
}
