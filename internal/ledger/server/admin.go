package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"vaultbank.com/internal/ledger/core/service"
	"vaultbank.com/pkg/common"
	"vaultbank.com/pkg/middleware"
	"vaultbank.com/pkg/xerr"
	"vaultbank.com/pkg/xredis"
)

// 管理入口：注册资产 / 暂停 / 恢复 / 紧急转移
// 角色由 Auth 中间件解出，账本核心再做一次能力校验 (双保险)

type registerAssetReq struct {
	AssetID         string `json:"asset_id" binding:"required"`
	WithdrawalLimit string `json:"withdrawal_limit" binding:"required"`
	DepositLimit    string `json:"deposit_limit" binding:"required"`
	BankCap         string `json:"bank_cap" binding:"required"`
	PriceFeed       string `json:"price_feed"`
	DeviationBps    int64  `json:"deviation_bps"`
}

type sweepReq struct {
	AssetID   string `json:"asset_id" binding:"required"`
	ToAddress string `json:"to_address" binding:"required"`
}

func roleOf(c *gin.Context) service.Role {
	if id, ok := middleware.IdentityFromGin(c); ok && id.Admin {
		return service.RoleAdmin
	}
	return service.RoleUser
}

// RegisterAsset POST /api/v1/admin/assets
func (h *Handler) RegisterAsset(c *gin.Context) {
	if roleOf(c) != service.RoleAdmin {
		common.FailFromErr(c, xerr.NewErrCode(xerr.Unauthorized))
		return
	}
	var req registerAssetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, xerr.MapErrMsg(xerr.RequestParamsError))
		return
	}

	parse := func(s string) (decimal.Decimal, error) { return parseAmount(s) }
	wl, err := parse(req.WithdrawalLimit)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	dl, err := parse(req.DepositLimit)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	bankCap, err := parse(req.BankCap)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}

	asset, err := h.registry.Register(c.Request.Context(), service.RegisterParams{
		AssetID:         req.AssetID,
		WithdrawalLimit: wl,
		DepositLimit:    dl,
		BankCap:         bankCap,
		PriceFeed:       req.PriceFeed,
		DeviationBps:    req.DeviationBps,
	})
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, asset)
}

// Pause POST /api/v1/admin/pause
func (h *Handler) Pause(c *gin.Context) {
	if err := h.ledger.Pause(roleOf(c)); err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, gin.H{"paused": true})
}

// Resume POST /api/v1/admin/resume
func (h *Handler) Resume(c *gin.Context) {
	if err := h.ledger.Resume(roleOf(c)); err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, gin.H{"paused": false})
}

// Sweep POST /api/v1/admin/sweep
// 紧急转移跨实例互斥：同一资产的并发 sweep 会推两笔全额转账
func (h *Handler) Sweep(c *gin.Context) {
	var req sweepReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, xerr.MapErrMsg(xerr.RequestParamsError))
		return
	}

	if h.redisClient != nil {
		lock := xredis.NewDistLock(h.redisClient, "ledger:sweep:"+req.AssetID, 2*time.Minute)
		ok, err := lock.TryLock(c.Request.Context())
		if err != nil {
			common.FailFromErr(c, xerr.New(xerr.ServerCommonError, "sweep lock failed"))
			return
		}
		if !ok {
			common.Fail(c, http.StatusConflict, xerr.RequestParamsError, "该资产的紧急转移正在进行")
			return
		}
		defer func() { _, _ = lock.Unlock(context.Background()) }()
	}

	txHash, err := h.ledger.Sweep(c.Request.Context(), roleOf(c), req.AssetID, req.ToAddress)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, gin.H{"tx_hash": txHash})
}
