package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UserBalance 用户在某一资产上的余额，(user_id, asset_id) 唯一
type UserBalance struct {
	ID        int64
	UserID    string          `gorm:"uniqueIndex:idx_user_asset;size:64"`
	AssetID   string          `gorm:"uniqueIndex:idx_user_asset;size:64"`
	Amount    decimal.Decimal `gorm:"type:decimal(65,0);default:0"`
	Version   int64           `gorm:"default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BalanceRepo 余额仓储
type BalanceRepo interface {
	// GetUserBalance 不存在时返回零值实例 (Amount=0)，不报错
	GetUserBalance(ctx context.Context, userID, assetID string) (*UserBalance, error)
	// AddUserBalance 原子累加 (delta 可为负，提现扣减)，不存在则创建
	AddUserBalance(ctx context.Context, userID, assetID string, delta decimal.Decimal) error
	// SumBalances 某资产所有用户余额之和，用于核账:
	// 不变式 sum(UserBalance) == Asset.TotalBalance <= Asset.BankCap
	SumBalances(ctx context.Context, assetID string) (decimal.Decimal, error)
}
