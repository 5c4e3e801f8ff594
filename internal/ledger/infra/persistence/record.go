package persistence

import (
	"context"
	"fmt"

	"vaultbank.com/internal/ledger/domain"
	"vaultbank.com/pkg/xerr"
)

func (r *Repo) CreateDepositRecord(ctx context.Context, rec *domain.DepositRecord) error {
	if err := r.tx(ctx).WithContext(ctx).Create(rec).Error; err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("create deposit record failed: %v", err))
	}
	return nil
}

func (r *Repo) CreateWithdrawRecord(ctx context.Context, rec *domain.WithdrawRecord) error {
	if err := r.tx(ctx).WithContext(ctx).Create(rec).Error; err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("create withdraw record failed: %v", err))
	}
	return nil
}

// UpdateWithdrawResult 标记提现流水的链上结果
func (r *Repo) UpdateWithdrawResult(ctx context.Context, id int64, txHash string, status domain.RecordStatus, errMsg string) error {
	res := r.tx(ctx).WithContext(ctx).Model(&domain.WithdrawRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"tx_hash":   txHash,
			"status":    status,
			"error_msg": errMsg,
		})
	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("update withdraw result failed: %v", res.Error))
	}
	if res.RowsAffected == 0 {
		return xerr.NewErrCode(xerr.RecordNotFound)
	}
	return nil
}

func (r *Repo) ListDepositRecords(ctx context.Context, userID string, page, limit int) ([]*domain.DepositRecord, error) {
	records := make([]*domain.DepositRecord, 0)
	err := r.tx(ctx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id desc").
		Offset(pageOffset(page, limit)).Limit(pageLimit(limit)).
		Find(&records).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list deposit records failed: %v", err))
	}
	return records, nil
}

func (r *Repo) ListWithdrawRecords(ctx context.Context, userID string, page, limit int) ([]*domain.WithdrawRecord, error) {
	records := make([]*domain.WithdrawRecord, 0)
	err := r.tx(ctx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id desc").
		Offset(pageOffset(page, limit)).Limit(pageLimit(limit)).
		Find(&records).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list withdraw records failed: %v", err))
	}
	return records, nil
}

func pageLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}

func pageOffset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageLimit(limit)
}
