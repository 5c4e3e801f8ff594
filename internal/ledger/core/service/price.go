package service

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"vaultbank.com/internal/ledger/domain"
	"vaultbank.com/pkg/metrics"
	"vaultbank.com/pkg/xerr"
)

// FreshnessWindow 价格新鲜度窗口，超过即拒绝
const FreshnessWindow = 12 * time.Hour

// usdDecimals USD 价值统一归一到 1e18 定点
const usdDecimals = 18

// PriceService 价格准入控制
// 每次使用价格前都要过 staleness / deviation 两道闸，
// 不通过则整笔操作失败，而不是静默跳过更新
type PriceService struct {
	oracle domain.PriceOracle
	now    func() time.Time
}

func NewPriceService(oracle domain.PriceOracle) *PriceService {
	return &PriceService{oracle: oracle, now: time.Now}
}

// Refresh 拉取最新喂价并做准入检查，通过后缓存到 asset 副本上
// 注意：只改内存副本，落库发生在外层事务提交时
func (s *PriceService) Refresh(ctx context.Context, asset *domain.Asset) error {
	if !asset.HasPriceFeed() {
		// 未绑定喂价的资产退化为纯数量限额
		return nil
	}

	data, err := s.oracle.Latest(ctx, asset.PriceFeed)
	if err != nil {
		metrics.OracleRejectTotal.WithLabelValues(asset.Symbol, "unavailable").Inc()
		if xerr.CodeOf(err) == xerr.PriceFeedNotAvailable {
			return err
		}
		return xerr.Newf(xerr.PriceFeedNotAvailable, "oracle read failed: %v", err)
	}

	// 新鲜度闸
	now := s.now().Unix()
	if data.UpdatedAt <= 0 || now-data.UpdatedAt > int64(FreshnessWindow/time.Second) {
		metrics.OracleRejectTotal.WithLabelValues(asset.Symbol, "stale").Inc()
		return xerr.NewErrCode(xerr.StalePrice)
	}

	// 偏离闸：|new-old| * 10000 / old (基点，向下取整)
	// 超阈值时整笔操作失败，不是跳过这次更新
	if asset.LastPrice.Sign() > 0 && asset.DeviationBps > 0 {
		dev := deviationBps(asset.LastPrice, data.Price)
		if dev > asset.DeviationBps {
			metrics.OracleRejectTotal.WithLabelValues(asset.Symbol, "deviation").Inc()
			return xerr.Newf(xerr.PriceDeviationExceeded, "price deviation %d bps exceeds %d bps", dev, asset.DeviationBps)
		}
	}

	asset.LastPrice = data.Price
	asset.PriceDecimals = data.Decimals
	asset.PriceUpdatedAt = data.UpdatedAt
	return nil
}

// USDValue 把最小单位金额换算为 1e18 定点 USD 价值
// amount * 10^18 / 10^assetDecimals * price / 10^priceDecimals，除法一律向零取整 ——
// 日限额记账依赖精确的截断语义，禁止换成浮点或四舍五入
func (s *PriceService) USDValue(asset *domain.Asset, amount decimal.Decimal) (decimal.Decimal, error) {
	if !asset.HasPriceFeed() || asset.LastPrice.Sign() <= 0 {
		return decimal.Zero, nil
	}

	// 即使同一笔操作里刚 Refresh 过也要再查一次：时间可能已经前进
	if s.now().Unix()-asset.PriceUpdatedAt > int64(FreshnessWindow/time.Second) {
		return decimal.Zero, xerr.NewErrCode(xerr.StalePrice)
	}

	v := new(big.Int).Mul(amount.BigInt(), pow10(usdDecimals))
	v.Quo(v, pow10(int(asset.Decimals)))
	v.Mul(v, asset.LastPrice.BigInt())
	v.Quo(v, pow10(int(asset.PriceDecimals)))
	return decimal.NewFromBigInt(v, 0), nil
}

// IsFresh 只读查询：缓存价格是否仍在新鲜度窗口内
func (s *PriceService) IsFresh(asset *domain.Asset) bool {
	if !asset.HasPriceFeed() || asset.PriceUpdatedAt <= 0 {
		return false
	}
	return s.now().Unix()-asset.PriceUpdatedAt <= int64(FreshnessWindow/time.Second)
}

func deviationBps(cached, fresh decimal.Decimal) int64 {
	diff := new(big.Int).Sub(fresh.BigInt(), cached.BigInt())
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(10000))
	diff.Quo(diff, cached.BigInt())
	return diff.Int64()
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
