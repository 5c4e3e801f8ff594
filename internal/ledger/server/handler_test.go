package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"vaultbank.com/internal/ledger/core/service"
	"vaultbank.com/internal/ledger/domain"
	"vaultbank.com/internal/ledger/infra/memory"
	"vaultbank.com/internal/ledger/infra/mock"
	"vaultbank.com/internal/ledger/server"
	"vaultbank.com/pkg/logger"
	"vaultbank.com/pkg/xerr"
)

const (
	userToken  = "tok-user"
	adminToken = "tok-admin"
	testToken  = "0x00000000000000000000000000000000000000aa"
	testFeed   = "0x00000000000000000000000000000000000000ff"
)

func newTestServer(t *testing.T) (http.Handler, *mock.Oracle, *mock.Metadata) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.Init("test", "error")

	store := memory.NewStore()
	oracle := mock.NewOracle()
	meta := mock.NewMetadata()
	gateway := mock.NewTransfer()

	registry := service.NewRegistryService(store, oracle, meta, domain.Asset{
		Symbol:          "ETH",
		WithdrawalLimit: decimal.NewFromInt(1_000_000),
		DepositLimit:    decimal.NewFromInt(1_000_000),
		BankCap:         decimal.NewFromInt(10_000_000),
	})
	require.NoError(t, registry.EnsureNative(context.Background()))

	ledger := service.NewLedgerService(
		store, registry, service.NewPriceService(oracle), gateway,
		service.NewGuard(), nil,
		service.Limits{
			DailyDepositUSD:  decimal.New(10_000, 18),
			DailyWithdrawUSD: decimal.New(5_000, 18),
		},
	)

	h := server.NewHandler(ledger, registry, nil)
	srv := server.NewRouter(context.Background(), ":0", h, server.AuthConfig{
		AdminToken: adminToken,
		Tokens:     map[string]string{userToken: "user-1"},
	})
	return srv.Handler, oracle, meta
}

func doReq(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func bizCode(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var resp struct {
		Code int `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Code
}

func registerTestToken(t *testing.T, h http.Handler, oracle *mock.Oracle, meta *mock.Metadata) {
	t.Helper()
	meta.SetToken(testToken, 0, "TKN")
	oracle.SetPrice(testFeed, decimal.NewFromInt(1), 0, time.Now().Unix()-60)
	w := doReq(t, h, http.MethodPost, "/api/v1/admin/assets", adminToken, `{
		"asset_id": "`+testToken+`",
		"withdrawal_limit": "500",
		"deposit_limit": "500",
		"bank_cap": "1000",
		"price_feed": "`+testFeed+`",
		"deviation_bps": 1000
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAuthRequired(t *testing.T) {
	h, _, _ := newTestServer(t)

	w := doReq(t, h, http.MethodGet, "/api/v1/assets", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doReq(t, h, http.MethodGet, "/api/v1/assets", "bad-token", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doReq(t, h, http.MethodGet, "/api/v1/assets", userToken, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAdminEndpointsRejectUsers(t *testing.T) {
	h, _, _ := newTestServer(t)

	w := doReq(t, h, http.MethodPost, "/api/v1/admin/pause", userToken, "")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, xerr.Unauthorized, bizCode(t, w))

	w = doReq(t, h, http.MethodPost, "/api/v1/admin/pause", adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)

	// 暂停后充值被拒 503
	w = doReq(t, h, http.MethodPost, "/api/v1/deposit", userToken,
		`{"asset_id": "`+domain.NativeAssetID+`", "amount": "100"}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, xerr.ContractPaused, bizCode(t, w))

	w = doReq(t, h, http.MethodPost, "/api/v1/admin/resume", adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDepositWithdrawFlow(t *testing.T) {
	h, oracle, meta := newTestServer(t)
	registerTestToken(t, h, oracle, meta)

	w := doReq(t, h, http.MethodPost, "/api/v1/deposit", userToken,
		`{"asset_id": "`+testToken+`", "amount": "100"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doReq(t, h, http.MethodGet, "/api/v1/balance/"+testToken, userToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	var balResp struct {
		Data struct {
			Balance string `json:"balance"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &balResp))
	require.Equal(t, "100", balResp.Data.Balance)

	w = doReq(t, h, http.MethodPost, "/api/v1/withdraw", userToken,
		`{"asset_id": "`+testToken+`", "amount": "60", "to_address": "0x00000000000000000000000000000000000000dd"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 超余额提现 -> 422 + 业务码
	w = doReq(t, h, http.MethodPost, "/api/v1/withdraw", userToken,
		`{"asset_id": "`+testToken+`", "amount": "100", "to_address": "0x00000000000000000000000000000000000000dd"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, xerr.InsufficientBalance, bizCode(t, w))

	// 流水可查
	w = doReq(t, h, http.MethodGet, "/api/v1/records/withdrawals", userToken, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDeposit_BadRequest(t *testing.T) {
	h, _, _ := newTestServer(t)

	// 非整数金额
	w := doReq(t, h, http.MethodPost, "/api/v1/deposit", userToken,
		`{"asset_id": "`+domain.NativeAssetID+`", "amount": "1.5"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// 缺字段
	w = doReq(t, h, http.MethodPost, "/api/v1/deposit", userToken, `{"amount": "1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsAndQuote(t *testing.T) {
	h, oracle, meta := newTestServer(t)
	registerTestToken(t, h, oracle, meta)

	w := doReq(t, h, http.MethodPost, "/api/v1/deposit", userToken,
		`{"asset_id": "`+testToken+`", "amount": "200"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doReq(t, h, http.MethodGet, "/api/v1/assets/"+testToken+"/stats", userToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	var statsResp struct {
		Data struct {
			TotalBalance decimal.Decimal `json:"total_balance"`
			DepositCount int64           `json:"deposit_count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statsResp))
	require.True(t, statsResp.Data.TotalBalance.Equal(decimal.NewFromInt(200)))
	require.Equal(t, int64(1), statsResp.Data.DepositCount)

	// 报价：1 单位 * 1 USD = 1e18
	w = doReq(t, h, http.MethodGet, "/api/v1/quote?asset_id="+testToken+"&amount=1", userToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	var quoteResp struct {
		Data struct {
			USDValue string `json:"usd_value"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quoteResp))
	require.Equal(t, "1000000000000000000", quoteResp.Data.USDValue)

	w = doReq(t, h, http.MethodGet, "/api/v1/assets/"+testToken+"/price-fresh", userToken, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHealthz_NoAuth(t *testing.T) {
	h, _, _ := newTestServer(t)
	w := doReq(t, h, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, w.Code)
}
