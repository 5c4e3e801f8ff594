package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceCache 余额读缓存
// 写路径提交后删除对应 key，读路径 singleflight 防击穿
type BalanceCache interface {
	Get(ctx context.Context, userID, assetID string) (decimal.Decimal, bool)
	Set(ctx context.Context, userID, assetID string, v decimal.Decimal, ttl time.Duration)
	Del(ctx context.Context, userID, assetID string)
}

// NopCache 空实现，单测和无 Redis 的开发环境用
type NopCache struct{}

func (NopCache) Get(context.Context, string, string) (decimal.Decimal, bool) {
	return decimal.Zero, false
}
func (NopCache) Set(context.Context, string, string, decimal.Decimal, time.Duration) {}
func (NopCache) Del(context.Context, string, string)                                 {}
