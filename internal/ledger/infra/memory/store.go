// Package memory 提供纯内存的账本存储，供单测和无 MySQL 的开发环境使用。
// 语义与 persistence 包的 gorm 实现保持一致：
// Transaction 之间串行，失败时只回滚本事务触碰过的键。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"vaultbank.com/internal/ledger/domain"
	"vaultbank.com/pkg/xerr"
)

// Store 内存账本存储
type Store struct {
	mu        sync.Mutex
	txMu      sync.Mutex // 事务全程持有：事务之间串行，回滚不会吞掉别人的提交
	journal   *journal   // 事务进行中非 nil
	assets    map[string]*domain.Asset
	balances  map[string]*domain.UserBalance // key: user|asset
	limits    map[string]*domain.UserDailyLimit
	deposits  []*domain.DepositRecord
	withdraws []*domain.WithdrawRecord
	nextID    int64
}

func NewStore() *Store {
	return &Store{
		assets:   make(map[string]*domain.Asset),
		balances: make(map[string]*domain.UserBalance),
		limits:   make(map[string]*domain.UserDailyLimit),
		nextID:   1,
	}
}

// txMarkerKey 与 persistence 的 tx_db 同构：事务内的写入
// 通过 ctx 标记识别，事务外的直写不进日志
type txMarkerKey struct{}

// journal 记录事务首次触碰每个键之前的旧值，nil 表示原先不存在
type journal struct {
	assets       map[string]*domain.Asset
	balances     map[string]*domain.UserBalance
	limits       map[string]*domain.UserDailyLimit
	withdrawPrev map[int64]*domain.WithdrawRecord
	newDeposits  map[int64]struct{}
	newWithdraws map[int64]struct{}
}

func newJournal() *journal {
	return &journal{
		assets:       make(map[string]*domain.Asset),
		balances:     make(map[string]*domain.UserBalance),
		limits:       make(map[string]*domain.UserDailyLimit),
		withdrawPrev: make(map[int64]*domain.WithdrawRecord),
		newDeposits:  make(map[int64]struct{}),
		newWithdraws: make(map[int64]struct{}),
	}
}

// Transaction 串行执行 fn，失败按写入日志逐键回滚
func (s *Store) Transaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.journal = newJournal()
	s.mu.Unlock()

	err := fn(context.WithValue(ctx, txMarkerKey{}, true))

	s.mu.Lock()
	j := s.journal
	s.journal = nil
	if err != nil {
		s.rollback(j)
	}
	s.mu.Unlock()
	return err
}

// tracking 返回当前写入应该记录到的日志，要求持有 s.mu
func (s *Store) tracking(ctx context.Context) *journal {
	if s.journal == nil || ctx.Value(txMarkerKey{}) == nil {
		return nil
	}
	return s.journal
}

func (s *Store) journalAsset(ctx context.Context, id string) {
	j := s.tracking(ctx)
	if j == nil {
		return
	}
	if _, seen := j.assets[id]; seen {
		return
	}
	if a, ok := s.assets[id]; ok {
		c := *a
		j.assets[id] = &c
	} else {
		j.assets[id] = nil
	}
}

func (s *Store) journalBalance(ctx context.Context, key string) {
	j := s.tracking(ctx)
	if j == nil {
		return
	}
	if _, seen := j.balances[key]; seen {
		return
	}
	if b, ok := s.balances[key]; ok {
		c := *b
		j.balances[key] = &c
	} else {
		j.balances[key] = nil
	}
}

func (s *Store) journalLimit(ctx context.Context, userID string) {
	j := s.tracking(ctx)
	if j == nil {
		return
	}
	if _, seen := j.limits[userID]; seen {
		return
	}
	if l, ok := s.limits[userID]; ok {
		c := *l
		j.limits[userID] = &c
	} else {
		j.limits[userID] = nil
	}
}

func (s *Store) rollback(j *journal) {
	for id, prev := range j.assets {
		if prev == nil {
			delete(s.assets, id)
		} else {
			s.assets[id] = prev
		}
	}
	for k, prev := range j.balances {
		if prev == nil {
			delete(s.balances, k)
		} else {
			s.balances[k] = prev
		}
	}
	for k, prev := range j.limits {
		if prev == nil {
			delete(s.limits, k)
		} else {
			s.limits[k] = prev
		}
	}
	if len(j.newDeposits) > 0 {
		kept := s.deposits[:0]
		for _, r := range s.deposits {
			if _, drop := j.newDeposits[r.ID]; !drop {
				kept = append(kept, r)
			}
		}
		s.deposits = kept
	}
	if len(j.newWithdraws) > 0 {
		kept := s.withdraws[:0]
		for _, r := range s.withdraws {
			if _, drop := j.newWithdraws[r.ID]; !drop {
				kept = append(kept, r)
			}
		}
		s.withdraws = kept
	}
	// 本事务新建又改写的流水已经整条删掉了，不再还原
	for id, prev := range j.withdrawPrev {
		if _, created := j.newWithdraws[id]; created {
			continue
		}
		for i, r := range s.withdraws {
			if r.ID == id {
				s.withdraws[i] = prev
			}
		}
	}
}

func balanceKey(userID, assetID string) string { return userID + "|" + assetID }

// ---- AssetRepo ----

func (s *Store) CreateAsset(ctx context.Context, asset *domain.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[asset.ID]; ok {
		return xerr.Newf(xerr.DbError, "asset %s already exists", asset.ID)
	}
	s.journalAsset(ctx, asset.ID)
	now := time.Now()
	asset.CreatedAt = now
	asset.UpdatedAt = now
	c := *asset
	s.assets[asset.ID] = &c
	return nil
}

func (s *Store) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (s *Store) SaveAsset(ctx context.Context, asset *domain.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journalAsset(ctx, asset.ID)
	asset.Version++
	asset.UpdatedAt = time.Now()
	c := *asset
	s.assets[asset.ID] = &c
	return nil
}

func (s *Store) ListAssets(ctx context.Context) ([]*domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- BalanceRepo ----

func (s *Store) GetUserBalance(ctx context.Context, userID, assetID string) (*domain.UserBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[balanceKey(userID, assetID)]
	if !ok {
		return &domain.UserBalance{UserID: userID, AssetID: assetID, Amount: decimal.Zero}, nil
	}
	c := *b
	return &c, nil
}

func (s *Store) AddUserBalance(ctx context.Context, userID, assetID string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := balanceKey(userID, assetID)
	s.journalBalance(ctx, key)
	b, ok := s.balances[key]
	if !ok {
		b = &domain.UserBalance{
			ID:        s.nextID,
			UserID:    userID,
			AssetID:   assetID,
			Amount:    decimal.Zero,
			CreatedAt: time.Now(),
		}
		s.nextID++
		s.balances[key] = b
	}
	b.Amount = b.Amount.Add(delta)
	b.Version++
	b.UpdatedAt = time.Now()
	return nil
}

func (s *Store) SumBalances(ctx context.Context, assetID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, b := range s.balances {
		if b.AssetID == assetID {
			sum = sum.Add(b.Amount)
		}
	}
	return sum, nil
}

// ---- LimitRepo ----

func (s *Store) GetDailyLimit(ctx context.Context, userID string) (*domain.UserDailyLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limits[userID]
	if !ok {
		return &domain.UserDailyLimit{
			UserID:         userID,
			DepositsUSD:    decimal.Zero,
			WithdrawalsUSD: decimal.Zero,
		}, nil
	}
	c := *l
	return &c, nil
}

func (s *Store) SaveDailyLimit(ctx context.Context, limit *domain.UserDailyLimit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journalLimit(ctx, limit.UserID)
	if limit.ID == 0 {
		limit.ID = s.nextID
		s.nextID++
		limit.CreatedAt = time.Now()
	}
	limit.Version++
	limit.UpdatedAt = time.Now()
	c := *limit
	s.limits[limit.UserID] = &c
	return nil
}

// ---- RecordRepo ----

func (s *Store) CreateDepositRecord(ctx context.Context, rec *domain.DepositRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextID
	s.nextID++
	if j := s.tracking(ctx); j != nil {
		j.newDeposits[rec.ID] = struct{}{}
	}
	c := *rec
	s.deposits = append(s.deposits, &c)
	return nil
}

func (s *Store) CreateWithdrawRecord(ctx context.Context, rec *domain.WithdrawRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextID
	s.nextID++
	if j := s.tracking(ctx); j != nil {
		j.newWithdraws[rec.ID] = struct{}{}
	}
	c := *rec
	s.withdraws = append(s.withdraws, &c)
	return nil
}

func (s *Store) UpdateWithdrawResult(ctx context.Context, id int64, txHash string, status domain.RecordStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.withdraws {
		if r.ID == id {
			// 原地改写，回滚需要整条旧值
			if j := s.tracking(ctx); j != nil {
				if _, seen := j.withdrawPrev[id]; !seen {
					c := *r
					j.withdrawPrev[id] = &c
				}
			}
			r.TxHash = txHash
			r.Status = status
			r.ErrorMsg = errMsg
			r.UpdatedAt = time.Now()
			return nil
		}
	}
	return xerr.NewErrCode(xerr.RecordNotFound)
}

func (s *Store) ListDepositRecords(ctx context.Context, userID string, page, limit int) ([]*domain.DepositRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*domain.DepositRecord
	for _, r := range s.deposits {
		if r.UserID == userID {
			c := *r
			all = append(all, &c)
		}
	}
	return pageSlice(all, page, limit), nil
}

func (s *Store) ListWithdrawRecords(ctx context.Context, userID string, page, limit int) ([]*domain.WithdrawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*domain.WithdrawRecord
	for _, r := range s.withdraws {
		if r.UserID == userID {
			c := *r
			all = append(all, &c)
		}
	}
	return pageSlice(all, page, limit), nil
}

func pageSlice[T any](all []T, page, limit int) []T {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	// 新的在前
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	start := (page - 1) * limit
	if start >= len(all) {
		return nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}
