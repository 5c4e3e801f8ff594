package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceData 喂价读数
type PriceData struct {
	Price     decimal.Decimal // 喂价精度下的整数价格
	Decimals  uint8           // 喂价自身精度
	UpdatedAt int64           // 链上更新时间 (unix 秒)
}

// PriceOracle 喂价网关，只读
// 读数是否可用由准入控制 (staleness / deviation) 决定，网关不做判断
type PriceOracle interface {
	// Latest 喂价不可达时返回 PriceFeedNotAvailable
	Latest(ctx context.Context, feed string) (*PriceData, error)
	// FeedDecimals 注册时的存活探测：喂价必须能应答精度查询
	FeedDecimals(ctx context.Context, feed string) (uint8, error)
}

// TransferGateway 资产转移网关 —— 不可信边界
// Push 的收款方可能是任意外部代码，调用期间控制权可能重入本系统；
// 所有余额写入必须发生在 Push 之前 (见 LedgerService.Withdraw)
type TransferGateway interface {
	// Pull 从 from 划转 amount 到托管账户；授权不足返回 InsufficientAllowance
	Pull(ctx context.Context, from, assetID string, amount decimal.Decimal) error
	// Push 从托管账户划转 amount 到 to；任何非成功应答返回 TransferFailed
	Push(ctx context.Context, to, assetID string, amount decimal.Decimal) (txHash string, err error)
}
