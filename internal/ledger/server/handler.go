package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"vaultbank.com/internal/ledger/core/service"
	"vaultbank.com/pkg/common"
	"vaultbank.com/pkg/middleware"
	"vaultbank.com/pkg/xerr"
)

// Handler 账本 HTTP 入口
// redisClient 可为 nil (开发模式)，此时提现防重降级为不拦截
type Handler struct {
	ledger      *service.LedgerService
	registry    *service.RegistryService
	redisClient *redis.Client
	idem        IdemStore
}

func NewHandler(ledger *service.LedgerService, registry *service.RegistryService, redisClient *redis.Client) *Handler {
	h := &Handler{ledger: ledger, registry: registry, redisClient: redisClient}
	if redisClient != nil {
		h.idem = redisIdem{client: redisClient}
	}
	return h
}

type amountReq struct {
	AssetID string `json:"asset_id" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

type withdrawReq struct {
	AssetID   string `json:"asset_id" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	ToAddress string `json:"to_address" binding:"required"`
	RequestID string `json:"request_id"` // 客户端防重 id，可选
}

// parseAmount 金额必须是非负整数字符串 (最小单位)
func parseAmount(s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(s)
	if err != nil || !v.IsInteger() {
		return decimal.Zero, xerr.New(xerr.RequestParamsError, "amount must be an integer string")
	}
	return v, nil
}

// Deposit POST /api/v1/deposit
func (h *Handler) Deposit(c *gin.Context) {
	id, ok := middleware.IdentityFromGin(c)
	if !ok {
		common.FailFromErr(c, xerr.NewErrCode(xerr.Unauthorized))
		return
	}
	var req amountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, xerr.MapErrMsg(xerr.RequestParamsError))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}

	rec, err := h.ledger.Deposit(c.Request.Context(), id.UserID, req.AssetID, amount)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, rec)
}

// Withdraw POST /api/v1/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	id, ok := middleware.IdentityFromGin(c)
	if !ok {
		common.FailFromErr(c, xerr.NewErrCode(xerr.Unauthorized))
		return
	}
	var req withdrawReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, xerr.MapErrMsg(xerr.RequestParamsError))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}

	// === Redis 软防重 (为了性能) ===
	// SetNX 占坑；同一 request_id 只允许一笔在途/已成功的提现
	var idemKey string
	if h.idem != nil && req.RequestID != "" {
		idemKey = fmt.Sprintf("idempotent:withdraw:%s:%s", id.UserID, req.RequestID)
		isNew, err := h.idem.Begin(c.Request.Context(), idemKey)
		if err != nil {
			common.FailFromErr(c, xerr.New(xerr.ServerCommonError, "idempotency check failed"))
			return
		}
		if !isNew {
			common.Fail(c, http.StatusConflict, xerr.RequestParamsError, "重复的请求，请稍后查询结果")
			return
		}
	}

	rec, err := h.ledger.Withdraw(c.Request.Context(), id.UserID, req.AssetID, req.ToAddress, amount)
	if err != nil {
		// 业务失败要释放占坑，同一 request_id 的合法重试才能进来
		if idemKey != "" {
			h.idem.Release(c.Request.Context(), idemKey)
		}
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, rec)
}

// Balance GET /api/v1/balance/:asset_id
func (h *Handler) Balance(c *gin.Context) {
	id, ok := middleware.IdentityFromGin(c)
	if !ok {
		common.FailFromErr(c, xerr.NewErrCode(xerr.Unauthorized))
		return
	}
	bal, err := h.ledger.GetBalance(c.Request.Context(), id.UserID, c.Param("asset_id"))
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, gin.H{"asset_id": c.Param("asset_id"), "balance": bal.String()})
}

// Quote GET /api/v1/quote?asset_id=&amount=
func (h *Handler) Quote(c *gin.Context) {
	amount, err := parseAmount(c.Query("amount"))
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	usd, err := h.ledger.QuoteUSD(c.Request.Context(), c.Query("asset_id"), amount)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, gin.H{"usd_value": usd.String()})
}

// Assets GET /api/v1/assets
func (h *Handler) Assets(c *gin.Context) {
	assets, err := h.registry.List(c.Request.Context())
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, assets)
}

// BankStats GET /api/v1/assets/:asset_id/stats
func (h *Handler) BankStats(c *gin.Context) {
	stats, err := h.ledger.GetBankStats(c.Request.Context(), c.Param("asset_id"))
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, stats)
}

// PriceFresh GET /api/v1/assets/:asset_id/price-fresh
func (h *Handler) PriceFresh(c *gin.Context) {
	fresh, err := h.ledger.IsPriceFresh(c.Request.Context(), c.Param("asset_id"))
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, gin.H{"fresh": fresh})
}

// DepositRecords GET /api/v1/records/deposits
func (h *Handler) DepositRecords(c *gin.Context) {
	id, ok := middleware.IdentityFromGin(c)
	if !ok {
		common.FailFromErr(c, xerr.NewErrCode(xerr.Unauthorized))
		return
	}
	page, limit := pageParams(c)
	records, err := h.ledger.ListDeposits(c.Request.Context(), id.UserID, page, limit)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, records)
}

// WithdrawRecords GET /api/v1/records/withdrawals
func (h *Handler) WithdrawRecords(c *gin.Context) {
	id, ok := middleware.IdentityFromGin(c)
	if !ok {
		common.FailFromErr(c, xerr.NewErrCode(xerr.Unauthorized))
		return
	}
	page, limit := pageParams(c)
	records, err := h.ledger.ListWithdrawals(c.Request.Context(), id.UserID, page, limit)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, records)
}

func pageParams(c *gin.Context) (int, int) {
	page := 1
	limit := 20
	fmt.Sscanf(c.DefaultQuery("page", "1"), "%d", &page)
	fmt.Sscanf(c.DefaultQuery("limit", "20"), "%d", &limit)
	return page, limit
}
