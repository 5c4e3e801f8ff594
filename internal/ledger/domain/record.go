package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type RecordStatus uint8

// 流水状态枚举
const (
	RecordStatusPending   RecordStatus = iota // 已入账，等待链上转账结果
	RecordStatusConfirmed                     // 转账成功
	RecordStatusFailed                        // 转账失败，账已冲正
)

// DepositRecord 充值流水；充值在转入完成后才入账，所以创建即 Confirmed
type DepositRecord struct {
	ID        int64
	UserID    string          `gorm:"index;size:64"`
	AssetID   string          `gorm:"size:64"`
	Symbol    string          `gorm:"size:20"`
	Amount    decimal.Decimal `gorm:"type:decimal(65,0)"`
	USDValue  decimal.Decimal `gorm:"type:decimal(65,0)"` // 1e18 定点
	Status    RecordStatus
	CreatedAt time.Time
}

func (DepositRecord) TableName() string { return "deposit_records" }

// WithdrawRecord 提现流水，状态随链上转账结果流转
type WithdrawRecord struct {
	ID        int64
	UserID    string          `gorm:"index;size:64"`
	AssetID   string          `gorm:"size:64"`
	Symbol    string          `gorm:"size:20"`
	Amount    decimal.Decimal `gorm:"type:decimal(65,0)"`
	USDValue  decimal.Decimal `gorm:"type:decimal(65,0)"`
	ToAddress string          `gorm:"size:64"`
	TxHash    string          `gorm:"size:80"`
	Status    RecordStatus
	ErrorMsg  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (WithdrawRecord) TableName() string { return "withdraw_records" }

// RecordRepo 流水仓储
type RecordRepo interface {
	CreateDepositRecord(ctx context.Context, rec *DepositRecord) error
	CreateWithdrawRecord(ctx context.Context, rec *WithdrawRecord) error
	// UpdateWithdrawResult 标记提现流水的链上结果
	UpdateWithdrawResult(ctx context.Context, id int64, txHash string, status RecordStatus, errMsg string) error
	ListDepositRecords(ctx context.Context, userID string, page, limit int) ([]*DepositRecord, error)
	ListWithdrawRecords(ctx context.Context, userID string, page, limit int) ([]*WithdrawRecord, error)
}
