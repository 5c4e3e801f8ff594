package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"vaultbank.com/internal/ledger/domain"
	"vaultbank.com/pkg/xerr"
)

// CreateAsset 注册资产；主键冲突按 DbError 返回
func (r *Repo) CreateAsset(ctx context.Context, asset *domain.Asset) error {
	if err := r.tx(ctx).WithContext(ctx).Create(asset).Error; err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("create asset failed: %v", err))
	}
	return nil
}

// GetAsset 未注册返回 (nil, nil)
func (r *Repo) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	var asset domain.Asset
	err := r.tx(ctx).WithContext(ctx).Where("id = ?", id).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("query asset failed: %v", err))
	}
	return &asset, nil
}

// SaveAsset 整体回写，乐观锁：version 不匹配说明并发修改，整个事务回滚重来
func (r *Repo) SaveAsset(ctx context.Context, asset *domain.Asset) error {
	res := r.tx(ctx).WithContext(ctx).Model(&domain.Asset{}).
		Where("id = ? AND version = ?", asset.ID, asset.Version).
		Updates(map[string]interface{}{
			"symbol":           asset.Symbol,
			"decimals":         asset.Decimals,
			"supported":        asset.Supported,
			"withdrawal_limit": asset.WithdrawalLimit,
			"deposit_limit":    asset.DepositLimit,
			"bank_cap":         asset.BankCap,
			"price_feed":       asset.PriceFeed,
			"price_decimals":   asset.PriceDecimals,
			"last_price":       asset.LastPrice,
			"price_updated_at": asset.PriceUpdatedAt,
			"deviation_bps":    asset.DeviationBps,
			"total_balance":    asset.TotalBalance,
			"deposit_count":    asset.DepositCount,
			"withdrawal_count": asset.WithdrawalCount,
			"version":          asset.Version + 1,
		})
	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("save asset failed: %v", res.Error))
	}
	if res.RowsAffected == 0 {
		// 🔒 乐观锁冲突：记录已被其他事务改过
		return xerr.Newf(xerr.DbError, "asset %s version conflict", asset.ID)
	}
	asset.Version++
	return nil
}

func (r *Repo) ListAssets(ctx context.Context) ([]*domain.Asset, error) {
	assets := make([]*domain.Asset, 0)
	err := r.tx(ctx).WithContext(ctx).Order("id asc").Find(&assets).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list assets failed: %v", err))
	}
	return assets, nil
}
