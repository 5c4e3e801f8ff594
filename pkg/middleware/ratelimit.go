package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"vaultbank.com/pkg/common"
	"vaultbank.com/pkg/logger"
	"vaultbank.com/pkg/metrics"
	"vaultbank.com/pkg/ratelimit"
)

func RateLimit(store *ratelimit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := c.ClientIP() + ":" + route

		if !store.Allow(key) {
			// 限流属于"可控拒绝"，不打堆栈 (压测会炸日志)
			logger.Warn(c, "http rate limited",
				zap.String("request_id", common.RequestIDFromGin(c)),
				zap.String("ip", c.ClientIP()),
				zap.String("route", route),
			)
			metrics.RateLimitBlockTotal.WithLabelValues("ledger-service", route, "qps").Inc()
			common.Fail(c, http.StatusTooManyRequests, 1003001, "请求过于频繁")
			c.Abort()
			return
		}
		c.Next()
	}
}
