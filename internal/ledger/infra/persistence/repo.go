// Package persistence 是账本存储的 gorm/MySQL 实现
package persistence

import (
	"context"

	"gorm.io/gorm"
	"vaultbank.com/internal/ledger/domain"
)

type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// 确保 Repo 实现了所有接口
var _ domain.Store = (*Repo)(nil)

// AutoMigrate 建表
func (r *Repo) AutoMigrate() error {
	return r.db.AutoMigrate(
		&domain.Asset{},
		&domain.UserBalance{},
		&domain.UserDailyLimit{},
		&domain.DepositRecord{},
		&domain.WithdrawRecord{},
	)
}

// Transaction 实现事务
func (r *Repo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 把 tx 注入到 context 中
		txCtx := context.WithValue(ctx, "tx_db", tx)
		return fn(txCtx)
	})
}

// tx 取出事务句柄；不在事务中则用基础连接
func (r *Repo) tx(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value("tx_db").(*gorm.DB); ok {
		return tx
	}
	return r.db
}
