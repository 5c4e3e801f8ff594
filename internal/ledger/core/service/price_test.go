package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"vaultbank.com/internal/ledger/domain"
	"vaultbank.com/internal/ledger/infra/mock"
	"vaultbank.com/pkg/xerr"
)

func newPriceEnv() (*PriceService, *mock.Oracle, time.Time) {
	oracle := mock.NewOracle()
	now := time.Unix(1_700_000_000, 0).UTC()
	svc := NewPriceService(oracle)
	svc.now = func() time.Time { return now }
	return svc, oracle, now
}

func TestUSDValue_Truncation(t *testing.T) {
	svc, _, now := newPriceEnv()

	// 8 位精度的喂价 (Chainlink 风格)：ETH = 2000.12345678 USD
	asset := &domain.Asset{
		ID:             domain.NativeAssetID,
		Decimals:       18,
		PriceFeed:      "0xfeed",
		PriceDecimals:  8,
		LastPrice:      decimal.RequireFromString("200012345678"),
		PriceUpdatedAt: now.Unix() - 60,
	}

	// 1 ETH = 1e18 wei -> 2000.12345678 * 1e18
	v, err := svc.USDValue(asset, decimal.New(1, 18))
	require.NoError(t, err)
	require.Equal(t, "2000123456780000000000", v.String())

	// 1 wei: 1 * 1e18 / 1e18 * 200012345678 / 1e8 = 2000 (向零截断)
	v, err = svc.USDValue(asset, decimal.NewFromInt(1))
	require.NoError(t, err)
	require.Equal(t, "2000", v.String())

	// 3 wei: 3 * 200012345678 / 1e8 = 6000.37... -> 6000
	v, err = svc.USDValue(asset, decimal.NewFromInt(3))
	require.NoError(t, err)
	require.Equal(t, "6000", v.String())
}

func TestUSDValue_NoFeedIsZero(t *testing.T) {
	svc, _, _ := newPriceEnv()
	asset := &domain.Asset{ID: domain.NativeAssetID, Decimals: 18}

	v, err := svc.USDValue(asset, decimal.New(5, 18))
	require.NoError(t, err)
	require.True(t, v.IsZero())
}

func TestUSDValue_StaleCachedPrice(t *testing.T) {
	svc, _, now := newPriceEnv()
	asset := &domain.Asset{
		ID:             domain.NativeAssetID,
		Decimals:       18,
		PriceFeed:      "0xfeed",
		PriceDecimals:  8,
		LastPrice:      decimal.NewFromInt(1e8),
		PriceUpdatedAt: now.Add(-13 * time.Hour).Unix(),
	}
	_, err := svc.USDValue(asset, decimal.New(1, 18))
	require.True(t, xerr.IsCode(err, xerr.StalePrice))
}

func TestRefresh_DeviationFloor(t *testing.T) {
	svc, oracle, now := newPriceEnv()
	ctx := context.Background()

	asset := &domain.Asset{
		ID:           "0xtoken",
		Symbol:       "TKN",
		Decimals:     18,
		PriceFeed:    "0xfeed",
		DeviationBps: 99,
		LastPrice:    decimal.NewFromInt(10000),
	}

	// |10099-10000| * 10000 / 10000 = 99 bps，不超过阈值 99
	oracle.SetPrice("0xfeed", decimal.NewFromInt(10099), 8, now.Unix()-1)
	require.NoError(t, svc.Refresh(ctx, asset))
	require.Equal(t, int64(10099), asset.LastPrice.IntPart())

	// 从新缓存 10099 再跳到 10201: |102| * 10000 / 10099 -> floor 101 > 99
	oracle.SetPrice("0xfeed", decimal.NewFromInt(10201), 8, now.Unix()-1)
	err := svc.Refresh(ctx, asset)
	require.True(t, xerr.IsCode(err, xerr.PriceDeviationExceeded))
	// 拒绝时不更新缓存
	require.Equal(t, int64(10099), asset.LastPrice.IntPart())
}

func TestRefresh_FirstPriceSkipsDeviation(t *testing.T) {
	svc, oracle, now := newPriceEnv()
	asset := &domain.Asset{
		ID:           "0xtoken",
		Decimals:     18,
		PriceFeed:    "0xfeed",
		DeviationBps: 1,
	}
	// LastPrice == 0：没有历史基准，偏离检查跳过
	oracle.SetPrice("0xfeed", decimal.NewFromInt(999999), 8, now.Unix()-1)
	require.NoError(t, svc.Refresh(context.Background(), asset))
	require.Equal(t, int64(999999), asset.LastPrice.IntPart())
}

func TestRefresh_ZeroUpdatedAtIsStale(t *testing.T) {
	svc, oracle, _ := newPriceEnv()
	asset := &domain.Asset{ID: "0xtoken", Decimals: 18, PriceFeed: "0xfeed"}

	oracle.SetPrice("0xfeed", decimal.NewFromInt(100), 8, 0)
	err := svc.Refresh(context.Background(), asset)
	require.True(t, xerr.IsCode(err, xerr.StalePrice))
}

func TestIsFresh(t *testing.T) {
	svc, _, now := newPriceEnv()

	asset := &domain.Asset{PriceFeed: "0xfeed", PriceUpdatedAt: now.Add(-11 * time.Hour).Unix()}
	require.True(t, svc.IsFresh(asset))

	asset.PriceUpdatedAt = now.Add(-12*time.Hour - time.Second).Unix()
	require.False(t, svc.IsFresh(asset))

	// 未绑喂价 / 从未有价都算不新鲜
	require.False(t, svc.IsFresh(&domain.Asset{}))
	require.False(t, svc.IsFresh(&domain.Asset{PriceFeed: "0xfeed"}))
}
