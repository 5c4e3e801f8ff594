// Package rediscache 是余额缓存的 Redis 实现
package rediscache

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"vaultbank.com/internal/ledger/core/service"
	"vaultbank.com/pkg/logger"
	"vaultbank.com/pkg/safe"
)

// Cache 余额读缓存
// 写路径 Del 采用延迟双删：立刻删一次，短暂延迟后再删一次，
// 压缩"并发读用旧值回填缓存"的窗口
type Cache struct {
	client *redis.Client
}

var _ service.BalanceCache = (*Cache)(nil)

func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Get(ctx context.Context, userID, assetID string) (decimal.Decimal, bool) {
	s, err := c.client.Get(ctx, key(userID, assetID)).Result()
	if err == redis.Nil {
		return decimal.Zero, false
	}
	if err != nil {
		// 缓存故障按未命中处理，读路径退回数据库
		logger.Warn(ctx, "余额缓存读取失败", zap.Error(err))
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		// 缓存脏了就删掉，避免持续命中错误
		_ = c.client.Del(ctx, key(userID, assetID)).Err()
		return decimal.Zero, false
	}
	return v, true
}

func (c *Cache) Set(ctx context.Context, userID, assetID string, v decimal.Decimal, ttl time.Duration) {
	// 加入随机时间 防止抖动
	ttl = withJitter(ttl, 300*time.Millisecond)
	if err := c.client.Set(ctx, key(userID, assetID), v.String(), ttl).Err(); err != nil {
		logger.Warn(ctx, "余额缓存写入失败", zap.Error(err))
	}
}

func (c *Cache) Del(ctx context.Context, userID, assetID string) {
	k := key(userID, assetID)
	if err := c.client.Del(ctx, k).Err(); err != nil {
		logger.Warn(ctx, "余额缓存删除失败", zap.String("key", k), zap.Error(err))
	}
	// 延迟二删
	safe.Go(func() {
		time.Sleep(500 * time.Millisecond)
		bg, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.client.Del(bg, k).Err()
	})
}

func key(userID, assetID string) string {
	return fmt.Sprintf("ledger:bal:%s:%s", userID, assetID)
}

func withJitter(ttl time.Duration, jitter time.Duration) time.Duration {
	if ttl <= 0 || jitter <= 0 {
		return ttl
	}
	// [0, jitter) 的随机
	j := time.Duration(rand.Int63n(int64(jitter)))
	return ttl + j
}
