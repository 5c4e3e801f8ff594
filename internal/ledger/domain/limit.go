package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UserDailyLimit 用户当日累计充提 USD (1e18 定点)，跨日自动清零
type UserDailyLimit struct {
	ID             int64
	UserID         string          `gorm:"uniqueIndex;size:64"`
	DepositsUSD    decimal.Decimal `gorm:"type:decimal(65,0);default:0"`
	WithdrawalsUSD decimal.Decimal `gorm:"type:decimal(65,0);default:0"`
	Day            int64           // UTC 天序号 (unix/86400)
	Version        int64           `gorm:"default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Rollover 跨日清零。只改内存副本，落库发生在事务提交时，
// 因此校验失败的操作不会把"已清零"写回去
func (l *UserDailyLimit) Rollover(today int64) {
	if today > l.Day {
		l.DepositsUSD = decimal.Zero
		l.WithdrawalsUSD = decimal.Zero
		l.Day = today
	}
}

// LimitRepo 日限额仓储
type LimitRepo interface {
	// GetDailyLimit 不存在时返回零值实例
	GetDailyLimit(ctx context.Context, userID string) (*UserDailyLimit, error)
	// SaveDailyLimit upsert 整条记录
	SaveDailyLimit(ctx context.Context, limit *UserDailyLimit) error
}
