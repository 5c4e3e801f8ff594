package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"vaultbank.com/internal/ledger/core/service"
	"vaultbank.com/internal/ledger/domain"
	"vaultbank.com/internal/ledger/infra/memory"
	"vaultbank.com/internal/ledger/infra/mock"
	"vaultbank.com/pkg/logger"
	"vaultbank.com/pkg/middleware"
)

// fakeIdem 内存版占坑存储，记录 Begin/Release 调用
type fakeIdem struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func newFakeIdem() *fakeIdem {
	return &fakeIdem{held: make(map[string]bool)}
}

func (f *fakeIdem) Begin(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeIdem) Release(ctx context.Context, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
	f.released = append(f.released, key)
}

func (f *fakeIdem) releasedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.released)
}

func newIdemEnv(t *testing.T) (*Handler, *service.LedgerService, *fakeIdem) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.Init("test", "error")

	store := memory.NewStore()
	oracle := mock.NewOracle()
	meta := mock.NewMetadata()
	gateway := mock.NewTransfer()

	native := domain.Asset{
		Symbol:          "ETH",
		WithdrawalLimit: decimal.NewFromInt(1_000_000),
		DepositLimit:    decimal.NewFromInt(1_000_000),
		BankCap:         decimal.NewFromInt(10_000_000),
	}
	registry := service.NewRegistryService(store, oracle, meta, native)
	require.NoError(t, registry.EnsureNative(context.Background()))

	ledger := service.NewLedgerService(store, registry, service.NewPriceService(oracle), gateway, service.NewGuard(), nil, service.Limits{
		DailyDepositUSD:  decimal.New(10_000, 18),
		DailyWithdrawUSD: decimal.New(5_000, 18),
	})

	h := NewHandler(ledger, registry, nil)
	idem := newFakeIdem()
	h.idem = idem
	return h, ledger, idem
}

func doWithdraw(h *Handler, requestID, amount string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := fmt.Sprintf(`{"asset_id":%q,"amount":%q,"to_address":"0x00000000000000000000000000000000000000dd","request_id":%q}`,
		domain.NativeAssetID, amount, requestID)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/withdraw", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.CtxKeyIdentity, middleware.Identity{UserID: "user-1"})
	h.Withdraw(c)
	return w
}

// 业务失败后占坑必须释放：同一 request_id 的合法重试不能被挡 24 小时
func TestWithdraw_IdemReleasedOnFailure(t *testing.T) {
	h, ledger, idem := newIdemEnv(t)
	ctx := context.Background()

	// 余额不足，提现失败，占坑要放掉
	w := doWithdraw(h, "req-1", "10")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, 1, idem.releasedCount())

	// 充值后用同一个 request_id 重试，必须放行
	_, err := ledger.Deposit(ctx, "user-1", domain.NativeAssetID, decimal.NewFromInt(10))
	require.NoError(t, err)

	w = doWithdraw(h, "req-1", "10")
	require.Equal(t, http.StatusOK, w.Code)

	// 成功后占坑保留，重复提交被拦截
	require.Equal(t, 1, idem.releasedCount())
	w = doWithdraw(h, "req-1", "10")
	require.Equal(t, http.StatusConflict, w.Code)
}
