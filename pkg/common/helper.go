package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"vaultbank.com/pkg/logger"
	"vaultbank.com/pkg/xerr"
)

// Response 定义 http 返回格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// FailFromErr 业务错误统一出口：对外只回 biz_code + message (data=null)
// 网关日志记录原始错误
func FailFromErr(c *gin.Context, err error) {
	code := xerr.CodeOf(err)
	httpStatus := mapCodeToHTTP(code)
	logger.Warn(c, "http error",
		zap.String("request_id", RequestIDFromGin(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("biz_code", code),
		zap.Error(err),
	)
	Fail(c, httpStatus, code, xerr.MapErrMsg(code))
}

// mapCodeToHTTP 业务码 -> HTTP 状态码
func mapCodeToHTTP(code int) int {
	switch code {
	case xerr.ZeroAmount, xerr.RequestParamsError, xerr.InvalidAsset, xerr.InvalidPriceFeed:
		return http.StatusBadRequest
	case xerr.ExceedsDepositLimit, xerr.ExceedsWithdrawLimit, xerr.ExceedsBankCap,
		xerr.InsufficientBalance, xerr.ExceedsDailyDepositLimit, xerr.ExceedsDailyWithdrawLimit,
		xerr.InsufficientAllowance:
		return http.StatusUnprocessableEntity
	case xerr.AssetNotSupported, xerr.RecordNotFound:
		return http.StatusNotFound
	case xerr.StalePrice, xerr.PriceDeviationExceeded, xerr.PriceFeedNotAvailable:
		return http.StatusConflict
	case xerr.Unauthorized:
		return http.StatusForbidden
	case xerr.ContractPaused:
		return http.StatusServiceUnavailable
	case xerr.TransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
