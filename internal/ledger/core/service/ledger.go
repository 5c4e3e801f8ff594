package service

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"vaultbank.com/internal/ledger/domain"
	"vaultbank.com/pkg/logger"
	"vaultbank.com/pkg/metrics"
	"vaultbank.com/pkg/xerr"
)

// Limits 全局日限额 (USD，1e18 定点)
type Limits struct {
	DailyDepositUSD  decimal.Decimal
	DailyWithdrawUSD decimal.Decimal
}

// BankStats 资产维度的统计读数
type BankStats struct {
	AssetID         string          `json:"asset_id"`
	Symbol          string          `json:"symbol"`
	DepositCount    int64           `json:"deposit_count"`
	WithdrawalCount int64           `json:"withdrawal_count"`
	TotalBalance    decimal.Decimal `json:"total_balance"`
	BankCap         decimal.Decimal `json:"bank_cap"`
}

// LedgerService 账本核心：余额簿记 + 限额执行 + 充提状态迁移
//
// 每一笔迁移的铁律顺序：校验 -> 状态提交 -> 外部转账。
// 提现的外部 Push 是不可信边界，必须发生在余额扣减提交之后、锁释放之后；
// 转账期间的任何重入看到的都是扣减后的余额，重复提现会在余额校验处失败
type LedgerService struct {
	store    domain.Store
	registry *RegistryService
	price    *PriceService
	gateway  domain.TransferGateway
	guard    *Guard
	cache    BalanceCache
	sf       singleflight.Group
	locks    *keyedMutex
	limits   Limits
	now      func() time.Time
}

func NewLedgerService(
	store domain.Store,
	registry *RegistryService,
	price *PriceService,
	gateway domain.TransferGateway,
	guard *Guard,
	cache BalanceCache,
	limits Limits,
) *LedgerService {
	if cache == nil {
		cache = NopCache{}
	}
	return &LedgerService{
		store:    store,
		registry: registry,
		price:    price,
		gateway:  gateway,
		guard:    guard,
		cache:    cache,
		locks:    newKeyedMutex(),
		limits:   limits,
		now:      time.Now,
	}
}

// Deposit 充值迁移
// 顺序：单笔限额 -> 持仓上限 -> 跨日清零 -> 价格准入 -> 日限额 -> 转入 -> 提交
// 转入失败则整笔失败，不落任何状态
func (s *LedgerService) Deposit(ctx context.Context, userID, assetID string, amount decimal.Decimal) (*domain.DepositRecord, error) {
	if err := s.guard.CheckOperational(); err != nil {
		return nil, s.reject("deposit", err)
	}
	if !amount.IsInteger() || amount.Sign() <= 0 {
		return nil, s.reject("deposit", xerr.NewErrCode(xerr.ZeroAmount))
	}
	assetID = strings.ToLower(strings.TrimSpace(assetID))

	// 当日额度是用户级状态，跨资产共享，必须连同资产锁一起持有
	unlockUser := s.locks.lock(userKey(userID))
	defer unlockUser()
	unlockAsset := s.locks.lock(assetKey(assetID))
	defer unlockAsset()

	asset, err := s.registry.Get(ctx, assetID)
	if err != nil {
		return nil, s.reject("deposit", err)
	}
	if !asset.Supported {
		return nil, s.reject("deposit", xerr.NewErrCode(xerr.AssetNotSupported))
	}
	if amount.GreaterThan(asset.DepositLimit) {
		return nil, s.reject("deposit", xerr.NewErrCode(xerr.ExceedsDepositLimit))
	}
	if asset.TotalBalance.Add(amount).GreaterThan(asset.BankCap) {
		return nil, s.reject("deposit", xerr.NewErrCode(xerr.ExceedsBankCap))
	}

	limit, err := s.store.GetDailyLimit(ctx, userID)
	if err != nil {
		return nil, err
	}
	limit.Rollover(s.today())

	if err := s.price.Refresh(ctx, asset); err != nil {
		return nil, s.reject("deposit", err)
	}
	usd, err := s.price.USDValue(asset, amount)
	if err != nil {
		return nil, s.reject("deposit", err)
	}
	if limit.DepositsUSD.Add(usd).GreaterThan(s.limits.DailyDepositUSD) {
		return nil, s.reject("deposit", xerr.NewErrCode(xerr.ExceedsDailyDepositLimit))
	}

	// 代币充值是拉取式：转入必须先成功，余额才能入账
	// 原生币的价值转移随请求原子到达，无需拉取
	if assetID != domain.NativeAssetID {
		if err := s.gateway.Pull(ctx, userID, assetID, amount); err != nil {
			return nil, s.reject("deposit", asTransferErr(err))
		}
	}

	rec := &domain.DepositRecord{
		UserID:    userID,
		AssetID:   assetID,
		Symbol:    asset.Symbol,
		Amount:    amount,
		USDValue:  usd,
		Status:    domain.RecordStatusConfirmed,
		CreatedAt: s.now(),
	}
	asset.TotalBalance = asset.TotalBalance.Add(amount)
	asset.DepositCount++
	limit.DepositsUSD = limit.DepositsUSD.Add(usd)

	err = s.store.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.store.AddUserBalance(txCtx, userID, assetID, amount); err != nil {
			return err
		}
		if err := s.store.SaveAsset(txCtx, asset); err != nil {
			return err
		}
		if err := s.store.SaveDailyLimit(txCtx, limit); err != nil {
			return err
		}
		return s.store.CreateDepositRecord(txCtx, rec)
	})
	if err != nil {
		// 资金已进托管而账本没记上，必须人工对账
		logger.Error(ctx, "充值落库失败，托管资金与账本不一致",
			zap.String("user", userID), zap.String("asset", assetID),
			zap.String("amount", amount.String()), zap.Error(err))
		return nil, err
	}

	s.cache.Del(ctx, userID, assetID)
	metrics.DepositTotal.WithLabelValues(asset.Symbol).Inc()
	logger.Info(ctx, "充值入账",
		zap.String("user", userID),
		zap.String("symbol", asset.Symbol),
		zap.String("amount", amount.String()),
		zap.String("usd", usd.String()),
	)
	return rec, nil
}

// Withdraw 提现迁移
// 先持锁提交扣减，释放锁后才调用外部 Push；
// Push 失败走冲正，把余额/计数/当日额度精确还原
func (s *LedgerService) Withdraw(ctx context.Context, userID, assetID, toAddress string, amount decimal.Decimal) (*domain.WithdrawRecord, error) {
	if err := s.guard.CheckOperational(); err != nil {
		return nil, s.reject("withdraw", err)
	}
	if !amount.IsInteger() || amount.Sign() <= 0 {
		return nil, s.reject("withdraw", xerr.NewErrCode(xerr.ZeroAmount))
	}
	assetID = strings.ToLower(strings.TrimSpace(assetID))

	rec, usd, err := s.commitWithdraw(ctx, userID, assetID, toAddress, amount)
	if err != nil {
		return nil, err
	}

	// ---- 不可信边界 ----
	// 此行以下不允许出现除"冲正/标记流水结果"之外的状态写入
	txHash, pushErr := s.gateway.Push(ctx, toAddress, assetID, amount)
	if pushErr != nil {
		s.revertWithdraw(ctx, rec, usd, pushErr)
		return nil, s.reject("withdraw", asTransferErr(pushErr))
	}

	if err := s.store.UpdateWithdrawResult(ctx, rec.ID, txHash, domain.RecordStatusConfirmed, ""); err != nil {
		logger.Error(ctx, "提现流水标记失败", zap.Int64("id", rec.ID), zap.Error(err))
	}
	rec.TxHash = txHash
	rec.Status = domain.RecordStatusConfirmed

	metrics.WithdrawTotal.WithLabelValues(rec.Symbol).Inc()
	logger.Info(ctx, "提现完成",
		zap.String("user", userID),
		zap.String("symbol", rec.Symbol),
		zap.String("amount", amount.String()),
		zap.String("usd", usd.String()),
		zap.String("tx", txHash),
	)
	return rec, nil
}

// commitWithdraw 持锁完成校验和状态提交
func (s *LedgerService) commitWithdraw(ctx context.Context, userID, assetID, toAddress string, amount decimal.Decimal) (*domain.WithdrawRecord, decimal.Decimal, error) {
	unlockUser := s.locks.lock(userKey(userID))
	defer unlockUser()
	unlockAsset := s.locks.lock(assetKey(assetID))
	defer unlockAsset()

	asset, err := s.registry.Get(ctx, assetID)
	if err != nil {
		return nil, decimal.Zero, s.reject("withdraw", err)
	}
	if !asset.Supported {
		return nil, decimal.Zero, s.reject("withdraw", xerr.NewErrCode(xerr.AssetNotSupported))
	}

	bal, err := s.store.GetUserBalance(ctx, userID, assetID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if bal.Amount.LessThan(amount) {
		return nil, decimal.Zero, s.reject("withdraw", xerr.NewErrCode(xerr.InsufficientBalance))
	}
	if amount.GreaterThan(asset.WithdrawalLimit) {
		return nil, decimal.Zero, s.reject("withdraw", xerr.NewErrCode(xerr.ExceedsWithdrawLimit))
	}

	limit, err := s.store.GetDailyLimit(ctx, userID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	limit.Rollover(s.today())

	if err := s.price.Refresh(ctx, asset); err != nil {
		return nil, decimal.Zero, s.reject("withdraw", err)
	}
	usd, err := s.price.USDValue(asset, amount)
	if err != nil {
		return nil, decimal.Zero, s.reject("withdraw", err)
	}
	if limit.WithdrawalsUSD.Add(usd).GreaterThan(s.limits.DailyWithdrawUSD) {
		return nil, decimal.Zero, s.reject("withdraw", xerr.NewErrCode(xerr.ExceedsDailyWithdrawLimit))
	}

	rec := &domain.WithdrawRecord{
		UserID:    userID,
		AssetID:   assetID,
		Symbol:    asset.Symbol,
		Amount:    amount,
		USDValue:  usd,
		ToAddress: toAddress,
		Status:    domain.RecordStatusPending,
		CreatedAt: s.now(),
	}
	asset.TotalBalance = asset.TotalBalance.Sub(amount)
	asset.WithdrawalCount++
	limit.WithdrawalsUSD = limit.WithdrawalsUSD.Add(usd)

	err = s.store.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.store.AddUserBalance(txCtx, userID, assetID, amount.Neg()); err != nil {
			return err
		}
		if err := s.store.SaveAsset(txCtx, asset); err != nil {
			return err
		}
		if err := s.store.SaveDailyLimit(txCtx, limit); err != nil {
			return err
		}
		return s.store.CreateWithdrawRecord(txCtx, rec)
	})
	if err != nil {
		return nil, decimal.Zero, err
	}

	s.cache.Del(ctx, userID, assetID)
	return rec, usd, nil
}

// revertWithdraw 冲正：Push 失败后把这笔提现的全部状态变更精确还原
func (s *LedgerService) revertWithdraw(ctx context.Context, rec *domain.WithdrawRecord, usd decimal.Decimal, cause error) {
	unlockUser := s.locks.lock(userKey(rec.UserID))
	defer unlockUser()
	unlockAsset := s.locks.lock(assetKey(rec.AssetID))
	defer unlockAsset()

	err := s.store.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.store.AddUserBalance(txCtx, rec.UserID, rec.AssetID, rec.Amount); err != nil {
			return err
		}
		asset, err := s.store.GetAsset(txCtx, rec.AssetID)
		if err != nil {
			return err
		}
		if asset == nil {
			return xerr.NewErrCode(xerr.AssetNotSupported)
		}
		asset.TotalBalance = asset.TotalBalance.Add(rec.Amount)
		asset.WithdrawalCount--
		if err := s.store.SaveAsset(txCtx, asset); err != nil {
			return err
		}

		limit, err := s.store.GetDailyLimit(txCtx, rec.UserID)
		if err != nil {
			return err
		}
		// 跨日后不归还额度：当日额度已经清零过了
		if limit.Day == s.today() {
			limit.WithdrawalsUSD = limit.WithdrawalsUSD.Sub(usd)
			if limit.WithdrawalsUSD.Sign() < 0 {
				limit.WithdrawalsUSD = decimal.Zero
			}
			if err := s.store.SaveDailyLimit(txCtx, limit); err != nil {
				return err
			}
		}
		return s.store.UpdateWithdrawResult(txCtx, rec.ID, "", domain.RecordStatusFailed, cause.Error())
	})
	if err != nil {
		logger.Error(ctx, "提现冲正失败，需要人工对账",
			zap.Int64("record", rec.ID),
			zap.String("user", rec.UserID),
			zap.String("asset", rec.AssetID),
			zap.String("amount", rec.Amount.String()),
			zap.Error(err),
		)
		return
	}
	s.cache.Del(ctx, rec.UserID, rec.AssetID)
}

// GetBalance 余额查询：缓存 + singleflight 防击穿
func (s *LedgerService) GetBalance(ctx context.Context, userID, assetID string) (decimal.Decimal, error) {
	assetID = strings.ToLower(strings.TrimSpace(assetID))
	if v, ok := s.cache.Get(ctx, userID, assetID); ok {
		return v, nil
	}

	key := userID + ":" + assetID
	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		bal, err := s.store.GetUserBalance(ctx, userID, assetID)
		if err != nil {
			return nil, err
		}
		ttl := time.Duration(30+rand.Intn(30)) * time.Second // TTL 打散防雪崩
		s.cache.Set(ctx, userID, assetID, bal.Amount, ttl)
		return bal.Amount, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

// GetBankStats 资产统计读数
func (s *LedgerService) GetBankStats(ctx context.Context, assetID string) (*BankStats, error) {
	asset, err := s.registry.Get(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return &BankStats{
		AssetID:         asset.ID,
		Symbol:          asset.Symbol,
		DepositCount:    asset.DepositCount,
		WithdrawalCount: asset.WithdrawalCount,
		TotalBalance:    asset.TotalBalance,
		BankCap:         asset.BankCap,
	}, nil
}

// QuoteUSD 按缓存价格报价 (只读，不触发 Refresh)
func (s *LedgerService) QuoteUSD(ctx context.Context, assetID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsInteger() || amount.Sign() < 0 {
		return decimal.Zero, xerr.NewErrCode(xerr.RequestParamsError)
	}
	asset, err := s.registry.Get(ctx, assetID)
	if err != nil {
		return decimal.Zero, err
	}
	return s.price.USDValue(asset, amount)
}

// IsPriceFresh 缓存价格是否仍然新鲜
func (s *LedgerService) IsPriceFresh(ctx context.Context, assetID string) (bool, error) {
	asset, err := s.registry.Get(ctx, assetID)
	if err != nil {
		return false, err
	}
	return s.price.IsFresh(asset), nil
}

// Sweep 紧急转移：冻结资产并把托管持仓整体推到指定地址
// 账本余额保留不动，事后人工对账；资产在转移前先置为不可用
func (s *LedgerService) Sweep(ctx context.Context, role Role, assetID, toAddress string) (string, error) {
	if err := s.guard.RequireAdmin(role); err != nil {
		return "", err
	}
	assetID = strings.ToLower(strings.TrimSpace(assetID))

	unlock := s.locks.lock(assetKey(assetID))
	asset, err := s.registry.Get(ctx, assetID)
	if err != nil {
		unlock()
		return "", err
	}
	total := asset.TotalBalance
	asset.Supported = false
	err = s.store.Transaction(ctx, func(txCtx context.Context) error {
		return s.store.SaveAsset(txCtx, asset)
	})
	unlock()
	if err != nil {
		return "", err
	}

	if total.Sign() <= 0 {
		return "", nil
	}
	txHash, err := s.gateway.Push(ctx, toAddress, assetID, total)
	if err != nil {
		logger.Error(ctx, "紧急转移失败，资产保持冻结",
			zap.String("asset", assetID), zap.Error(err))
		return "", asTransferErr(err)
	}
	logger.Warn(ctx, "紧急转移完成",
		zap.String("asset", assetID),
		zap.String("to", toAddress),
		zap.String("amount", total.String()),
		zap.String("tx", txHash),
	)
	return txHash, nil
}

// Pause / Resume 暂停开关，管理能力
func (s *LedgerService) Pause(role Role) error  { return s.guard.Pause(role) }
func (s *LedgerService) Resume(role Role) error { return s.guard.Resume(role) }

// ListDeposits / ListWithdrawals 流水查询
func (s *LedgerService) ListDeposits(ctx context.Context, userID string, page, limit int) ([]*domain.DepositRecord, error) {
	return s.store.ListDepositRecords(ctx, userID, page, limit)
}

func (s *LedgerService) ListWithdrawals(ctx context.Context, userID string, page, limit int) ([]*domain.WithdrawRecord, error) {
	return s.store.ListWithdrawRecords(ctx, userID, page, limit)
}

// today UTC 天序号
func (s *LedgerService) today() int64 {
	return s.now().Unix() / 86400
}

// reject 统一拒绝出口，按业务码打点
func (s *LedgerService) reject(op string, err error) error {
	metrics.TransitionRejectTotal.WithLabelValues(op, strconv.Itoa(xerr.CodeOf(err))).Inc()
	return err
}

// asTransferErr 网关错误归一化到转账错误码
func asTransferErr(err error) error {
	switch xerr.CodeOf(err) {
	case xerr.TransferFailed, xerr.InsufficientAllowance:
		return err
	default:
		return xerr.Newf(xerr.TransferFailed, "transfer failed: %v", err)
	}
}
