// Package server 组装账本服务的 HTTP 路由
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"vaultbank.com/pkg/middleware"
	"vaultbank.com/pkg/ratelimit"
)

// AuthConfig 静态 token 鉴权配置
type AuthConfig struct {
	AdminToken string
	Tokens     map[string]string // token -> userID
}

// NewRouter 装配中间件和路由，返回可直接 ListenAndServe 的 http.Server
func NewRouter(ctx context.Context, addr string, h *Handler, auth AuthConfig) *http.Server {
	// 限流
	store := ratelimit.NewStore(200, 400, 10*time.Minute)
	store.StartJanitor(ctx, time.Minute)
	// 监控
	r := gin.New()
	p := ginprom.NewPrometheus("vaultbank")
	p.Use(r)
	r.Use(
		otelgin.Middleware("ledger-service"),
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
		middleware.RateLimit(store),
	)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api/v1", middleware.Auth(auth.Tokens, auth.AdminToken))
	{
		api.POST("/deposit", h.Deposit)
		api.POST("/withdraw", h.Withdraw)
		api.GET("/balance/:asset_id", h.Balance)
		api.GET("/quote", h.Quote)
		api.GET("/assets", h.Assets)
		api.GET("/assets/:asset_id/stats", h.BankStats)
		api.GET("/assets/:asset_id/price-fresh", h.PriceFresh)
		api.GET("/records/deposits", h.DepositRecords)
		api.GET("/records/withdrawals", h.WithdrawRecords)

		admin := api.Group("/admin")
		{
			admin.POST("/assets", h.RegisterAsset)
			admin.POST("/pause", h.Pause)
			admin.POST("/resume", h.Resume)
			admin.POST("/sweep", h.Sweep)
		}
	}

	return &http.Server{
		Addr:           addr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}
