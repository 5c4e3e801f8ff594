// Package mock 提供可编程的网关桩，供单测和本地开发模式使用
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"vaultbank.com/internal/ledger/domain"
	"vaultbank.com/pkg/xerr"
)

// Oracle 可设值的喂价桩
type Oracle struct {
	mu    sync.Mutex
	feeds map[string]*domain.PriceData
	err   error
}

func NewOracle() *Oracle {
	return &Oracle{feeds: make(map[string]*domain.PriceData)}
}

// SetPrice 设置某个喂价的读数
func (o *Oracle) SetPrice(feed string, price decimal.Decimal, decimals uint8, updatedAt int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.feeds[feed] = &domain.PriceData{Price: price, Decimals: decimals, UpdatedAt: updatedAt}
}

// SetErr 让后续所有读取都失败 (模拟喂价源不可达)
func (o *Oracle) SetErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *Oracle) Latest(ctx context.Context, feed string) (*domain.PriceData, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	d, ok := o.feeds[feed]
	if !ok {
		return nil, xerr.Newf(xerr.PriceFeedNotAvailable, "no such feed %s", feed)
	}
	c := *d
	return &c, nil
}

func (o *Oracle) FeedDecimals(ctx context.Context, feed string) (uint8, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return 0, o.err
	}
	d, ok := o.feeds[feed]
	if !ok {
		return 0, xerr.Newf(xerr.PriceFeedNotAvailable, "no such feed %s", feed)
	}
	return d.Decimals, nil
}

// Transfer 记录式转账桩
// PullErr/PushErr 注入失败；OnPull/OnPush 钩子在划转期间回调，
// 用来模拟外部转账进行中有其他请求并发进入的场景
type Transfer struct {
	mu      sync.Mutex
	pulls   []Call
	pushes  []Call
	PullErr error
	PushErr error
	OnPull  func(ctx context.Context, from, assetID string, amount decimal.Decimal)
	OnPush  func(ctx context.Context, to, assetID string, amount decimal.Decimal)

	seq atomic.Int64
}

// Call 一次转账调用的记录
type Call struct {
	Account string // Pull 的付款方 / Push 的收款方
	AssetID string
	Amount  decimal.Decimal
}

func NewTransfer() *Transfer {
	return &Transfer{}
}

func (t *Transfer) Pull(ctx context.Context, from, assetID string, amount decimal.Decimal) error {
	t.mu.Lock()
	t.pulls = append(t.pulls, Call{Account: from, AssetID: assetID, Amount: amount})
	hook := t.OnPull
	err := t.PullErr
	t.mu.Unlock()

	if hook != nil {
		hook(ctx, from, assetID, amount)
	}
	return err
}

func (t *Transfer) Push(ctx context.Context, to, assetID string, amount decimal.Decimal) (string, error) {
	t.mu.Lock()
	t.pushes = append(t.pushes, Call{Account: to, AssetID: assetID, Amount: amount})
	hook := t.OnPush
	err := t.PushErr
	t.mu.Unlock()

	if hook != nil {
		hook(ctx, to, assetID, amount)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0xmock%012d", t.seq.Add(1)), nil
}

// Pulls / Pushes 调用记录快照
func (t *Transfer) Pulls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.pulls...)
}

func (t *Transfer) Pushes() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.pushes...)
}

// Metadata 可设值的代币元数据桩
type Metadata struct {
	mu     sync.Mutex
	tokens map[string]tokenMeta
	err    error
}

type tokenMeta struct {
	decimals uint8
	symbol   string
}

func NewMetadata() *Metadata {
	return &Metadata{tokens: make(map[string]tokenMeta)}
}

func (m *Metadata) SetToken(assetID string, decimals uint8, symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[assetID] = tokenMeta{decimals: decimals, symbol: symbol}
}

func (m *Metadata) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Metadata) Query(ctx context.Context, assetID string) (uint8, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, "", m.err
	}
	t, ok := m.tokens[assetID]
	if !ok {
		return 0, "", fmt.Errorf("unknown token %s", assetID)
	}
	return t.decimals, t.symbol, nil
}
