package server

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdemStore 提现防重占坑
// Begin 占坑成功返回 true；业务失败后必须 Release 释放，
// 否则合法重试会被挡到 key 过期
type IdemStore interface {
	Begin(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string)
}

// 24小时过期，足够覆盖网络重试周期
const idemTTL = 24 * time.Hour

type redisIdem struct {
	client *redis.Client
}

func (r redisIdem) Begin(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, key, "processing", idemTTL).Result()
}

func (r redisIdem) Release(ctx context.Context, key string) {
	_ = r.client.Del(ctx, key).Err()
}
