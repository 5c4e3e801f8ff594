package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// NativeAssetID 原生币哨兵地址 (零地址)，隐式永远支持
const NativeAssetID = "0x0000000000000000000000000000000000000000"

// Asset 资产配置 + 聚合计数
// 金额一律以最小单位的整数存储 (decimal(65,0))，换算靠 Decimals
type Asset struct {
	ID              string          `gorm:"primaryKey;size:64"` // 代币合约地址，原生币为零地址
	Symbol          string          `gorm:"size:20"`
	Decimals        uint8           // 资产自身精度
	Supported       bool            // 是否开放充提
	WithdrawalLimit decimal.Decimal `gorm:"type:decimal(65,0);default:0"` // 单笔提现上限
	DepositLimit    decimal.Decimal `gorm:"type:decimal(65,0);default:0"` // 单笔充值上限
	BankCap         decimal.Decimal `gorm:"type:decimal(65,0);default:0"` // 总持仓上限

	// 喂价绑定与价格缓存
	PriceFeed      string          `gorm:"size:64"` // 喂价合约地址，空表示未绑定
	PriceDecimals  uint8           // 喂价自身精度
	LastPrice      decimal.Decimal `gorm:"type:decimal(65,0);default:0"` // 最近一次通过准入的价格
	PriceUpdatedAt int64           // 该价格的链上更新时间 (unix 秒)
	DeviationBps   int64           // 偏离阈值 (基点)，0 表示不检查

	// 聚合计数，与用户余额同事务更新
	TotalBalance    decimal.Decimal `gorm:"type:decimal(65,0);default:0"` // 所有用户余额之和
	DepositCount    int64
	WithdrawalCount int64

	Version   int64 `gorm:"default:0"` // 乐观锁
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPriceFeed 是否绑定了喂价；未绑定的资产 USD 价值按 0 计
func (a *Asset) HasPriceFeed() bool {
	return a.PriceFeed != ""
}

// AssetRepo 资产配置仓储
type AssetRepo interface {
	// CreateAsset 注册资产；ID 冲突返回 DbError
	CreateAsset(ctx context.Context, asset *Asset) error
	// GetAsset 未注册返回 (nil, nil)
	GetAsset(ctx context.Context, id string) (*Asset, error)
	// SaveAsset 整体回写 (价格缓存 / 计数 / 限额)，乐观锁
	SaveAsset(ctx context.Context, asset *Asset) error
	// ListAssets 全部已注册资产
	ListAssets(ctx context.Context) ([]*Asset, error)
}

// AssetMetadata 注册时查询代币自身元数据 (decimals / symbol)
// 对应 ERC-20 的 decimals()/symbol()；原生币由网关直接给出
type AssetMetadata interface {
	Query(ctx context.Context, assetID string) (decimals uint8, symbol string, err error)
}
