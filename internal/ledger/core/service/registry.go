package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"vaultbank.com/internal/ledger/domain"
	"vaultbank.com/pkg/logger"
	"vaultbank.com/pkg/xerr"
)

// RegisterParams 资产注册参数，decimals/symbol 不在其中 ——
// 由资产自己的元数据接口给出，防止配置和链上实际不一致
type RegisterParams struct {
	AssetID         string
	WithdrawalLimit decimal.Decimal
	DepositLimit    decimal.Decimal
	BankCap         decimal.Decimal
	PriceFeed       string
	DeviationBps    int64
}

// RegistryService 资产注册表
type RegistryService struct {
	store  domain.Store
	oracle domain.PriceOracle
	meta   domain.AssetMetadata
	native domain.Asset // 原生币的内置配置模板
}

func NewRegistryService(store domain.Store, oracle domain.PriceOracle, meta domain.AssetMetadata, native domain.Asset) *RegistryService {
	native.ID = domain.NativeAssetID
	native.Decimals = 18
	native.Supported = true
	return &RegistryService{store: store, oracle: oracle, meta: meta, native: native}
}

// EnsureNative 启动时把原生币写入注册表，之后计数/价格缓存都走同一条持久化路径
func (s *RegistryService) EnsureNative(ctx context.Context) error {
	existing, err := s.store.GetAsset(ctx, domain.NativeAssetID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	a := s.native
	return s.store.CreateAsset(ctx, &a)
}

// Register 注册资产，全或无：任何一步失败都不落任何数据
func (s *RegistryService) Register(ctx context.Context, params RegisterParams) (*domain.Asset, error) {
	id := strings.ToLower(strings.TrimSpace(params.AssetID))
	if id == "" {
		return nil, xerr.New(xerr.InvalidAsset, "asset id is empty")
	}
	if params.WithdrawalLimit.Sign() < 0 || params.DepositLimit.Sign() < 0 || params.BankCap.Sign() < 0 {
		return nil, xerr.New(xerr.InvalidAsset, "limits must be non-negative")
	}
	if params.DeviationBps < 0 {
		return nil, xerr.New(xerr.InvalidAsset, "deviation threshold must be non-negative")
	}

	existing, err := s.store.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, xerr.Newf(xerr.InvalidAsset, "asset %s already registered", id)
	}

	// 喂价存活探测：必须能应答精度查询，否则拒绝注册
	var priceDecimals uint8
	feed := strings.ToLower(strings.TrimSpace(params.PriceFeed))
	if feed != "" {
		priceDecimals, err = s.oracle.FeedDecimals(ctx, feed)
		if err != nil {
			return nil, xerr.Newf(xerr.InvalidAsset, "price feed probe failed: %v", err)
		}
	}

	// 资产元数据来自资产自身接口；查询失败则整个注册失败，不留半成品
	var (
		assetDecimals uint8
		symbol        string
	)
	if id == domain.NativeAssetID {
		assetDecimals = s.native.Decimals
		symbol = s.native.Symbol
	} else {
		assetDecimals, symbol, err = s.meta.Query(ctx, id)
		if err != nil {
			return nil, xerr.Newf(xerr.InvalidAsset, "asset metadata query failed: %v", err)
		}
	}

	asset := &domain.Asset{
		ID:              id,
		Symbol:          symbol,
		Decimals:        assetDecimals,
		Supported:       true,
		WithdrawalLimit: params.WithdrawalLimit,
		DepositLimit:    params.DepositLimit,
		BankCap:         params.BankCap,
		PriceFeed:       feed,
		PriceDecimals:   priceDecimals,
		DeviationBps:    params.DeviationBps,
		TotalBalance:    decimal.Zero,
	}
	if err := s.store.CreateAsset(ctx, asset); err != nil {
		return nil, err
	}

	logger.Info(ctx, "资产已注册",
		zap.String("asset", id),
		zap.String("symbol", symbol),
		zap.Uint8("decimals", assetDecimals),
		zap.String("feed", feed),
	)
	return asset, nil
}

// Get 查询资产配置；未注册返回 AssetNotSupported
// 原生币哨兵隐式支持：即使还没写入存储也返回内置配置
func (s *RegistryService) Get(ctx context.Context, assetID string) (*domain.Asset, error) {
	id := strings.ToLower(strings.TrimSpace(assetID))
	asset, err := s.store.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		if id == domain.NativeAssetID {
			a := s.native
			return &a, nil
		}
		return nil, xerr.Newf(xerr.AssetNotSupported, "asset %s not registered", id)
	}
	return asset, nil
}

// List 全部已注册资产
func (s *RegistryService) List(ctx context.Context) ([]*domain.Asset, error) {
	return s.store.ListAssets(ctx)
}
