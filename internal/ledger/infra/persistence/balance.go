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

// GetUserBalance 不存在时返回零值实例，不报错
func (r *Repo) GetUserBalance(ctx context.Context, userID, assetID string) (*domain.UserBalance, error) {
	var bal domain.UserBalance
	err := r.tx(ctx).WithContext(ctx).
		Where("user_id = ? AND asset_id = ?", userID, assetID).
		First(&bal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.UserBalance{UserID: userID, AssetID: assetID, Amount: decimal.Zero}, nil
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("query balance failed: %v", err))
	}
	return &bal, nil
}

// AddUserBalance 原子累加，不存在则插入 (Upsert: INSERT ON DUPLICATE KEY UPDATE)
// 累加在数据库端完成，天然抗并发，不依赖应用层读改写
func (r *Repo) AddUserBalance(ctx context.Context, userID, assetID string, delta decimal.Decimal) error {
	bal := &domain.UserBalance{
		UserID:  userID,
		AssetID: assetID,
		Amount:  delta,
	}
	err := r.tx(ctx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "asset_id"}}, // 唯一索引列
		DoUpdates: clause.Assignments(map[string]interface{}{
			"amount":  gorm.Expr("amount + ?", delta),
			"version": gorm.Expr("version + 1"),
		}),
	}).Create(bal).Error
	if err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("add balance failed: %v", err))
	}
	return nil
}

// SumBalances 某资产全部用户余额之和，核账用
func (r *Repo) SumBalances(ctx context.Context, assetID string) (decimal.Decimal, error) {
	var out struct {
		Total decimal.Decimal
	}
	err := r.tx(ctx).WithContext(ctx).Model(&domain.UserBalance{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("asset_id = ?", assetID).
		Scan(&out).Error
	if err != nil {
		return decimal.Zero, xerr.New(xerr.DbError, fmt.Sprintf("sum balances failed: %v", err))
	}
	return out.Total, nil
}
