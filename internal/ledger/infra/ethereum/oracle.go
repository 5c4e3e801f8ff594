package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"vaultbank.com/internal/ledger/domain"
	"vaultbank.com/pkg/xerr"
)

// Oracle 读取 Chainlink 风格聚合器的喂价
// 节点调用包在熔断器里：连续失败后快速失败，不把链上抖动放大成接口雪崩
type Oracle struct {
	client  *Client
	breaker *gobreaker.CircuitBreaker[*domain.PriceData]
}

var _ domain.PriceOracle = (*Oracle)(nil)

func NewOracle(client *Client) *Oracle {
	settings := gobreaker.Settings{
		Name:    "price-oracle",
		Timeout: 30 * time.Second, // 熔断后多久放行探测请求
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Oracle{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[*domain.PriceData](settings),
	}
}

// Latest 读 latestRoundData；任何失败 (含熔断打开) 都归一为 PriceFeedNotAvailable
func (o *Oracle) Latest(ctx context.Context, feed string) (*domain.PriceData, error) {
	data, err := o.breaker.Execute(func() (*domain.PriceData, error) {
		return o.readRound(ctx, feed)
	})
	if err != nil {
		return nil, xerr.Newf(xerr.PriceFeedNotAvailable, "oracle %s: %v", feed, err)
	}
	return data, nil
}

func (o *Oracle) readRound(ctx context.Context, feed string) (*domain.PriceData, error) {
	addr := common.HexToAddress(feed)

	out, err := o.call(ctx, addr, "latestRoundData")
	if err != nil {
		return nil, err
	}
	// (roundId, answer, startedAt, updatedAt, answeredInRound)
	answer, ok := out[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected answer type %T", out[1])
	}
	updatedAt, ok := out[3].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected updatedAt type %T", out[3])
	}

	decimals, err := o.feedDecimals(ctx, addr)
	if err != nil {
		return nil, err
	}

	return &domain.PriceData{
		Price:     decimal.NewFromBigInt(answer, 0),
		Decimals:  decimals,
		UpdatedAt: updatedAt.Int64(),
	}, nil
}

// FeedDecimals 注册时的存活探测
func (o *Oracle) FeedDecimals(ctx context.Context, feed string) (uint8, error) {
	dec, err := o.feedDecimals(ctx, common.HexToAddress(feed))
	if err != nil {
		return 0, xerr.Newf(xerr.PriceFeedNotAvailable, "oracle %s: %v", feed, err)
	}
	return dec, nil
}

func (o *Oracle) feedDecimals(ctx context.Context, addr common.Address) (uint8, error) {
	out, err := o.call(ctx, addr, "decimals")
	if err != nil {
		return 0, err
	}
	dec, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", out[0])
	}
	return dec, nil
}

// call 只读合约调用
func (o *Oracle) call(ctx context.Context, addr common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := o.client.aggABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	ret, err := o.client.eth.CallContract(ctx, gethereum.CallMsg{To: &addr, Data: input}, nil)
	if err != nil {
		return nil, err
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("empty response from %s", addr.Hex())
	}
	return o.client.aggABI.Unpack(method, ret)
}
