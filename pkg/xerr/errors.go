package xerr

import (
	"errors"
	"fmt"
)

// 通用错误码
const (
	OK                 = 200
	RequestParamsError = 400
	RecordNotFound     = 404
	ServerCommonError  = 500
	DbError            = 501
)

// 账本业务错误码 (2xxx)
// 每一个码对应一条被破坏的校验规则，客户端可以据此精确提示
const (
	ZeroAmount                = 2001 // 金额必须 > 0
	ExceedsDepositLimit       = 2002 // 超过单笔充值上限
	ExceedsWithdrawLimit      = 2003 // 超过单笔提现上限
	ExceedsBankCap            = 2004 // 超过资产总持仓上限
	InsufficientBalance       = 2005 // 可用余额不足
	ExceedsDailyDepositLimit  = 2006 // 超过当日充值 USD 限额
	ExceedsDailyWithdrawLimit = 2007 // 超过当日提现 USD 限额

	AssetNotSupported = 2101 // 资产未注册
	InvalidAsset      = 2102 // 注册参数非法 / 重复注册 / 元数据查询失败
	InvalidPriceFeed  = 2103 // 喂价地址非法

	StalePrice             = 2201 // 价格超过新鲜度窗口
	PriceDeviationExceeded = 2202 // 价格偏离超过阈值
	PriceFeedNotAvailable  = 2203 // 喂价源不可达

	TransferFailed        = 2301 // 链上转账失败
	InsufficientAllowance = 2302 // 授权额度不足

	Unauthorized   = 2401 // 无权限
	ContractPaused = 2402 // 系统已暂停
)

type CodeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func Newf(code int, format string, args ...interface{}) error {
	return &CodeError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// CodeOf 提取业务错误码；非 CodeError 一律按 ServerCommonError 处理
func CodeOf(err error) int {
	if err == nil {
		return OK
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ServerCommonError
}

// IsCode 判断错误是否携带指定业务码
func IsCode(err error, code int) bool {
	return CodeOf(err) == code
}

func MapErrMsg(code int) string {
	switch code {
	case ServerCommonError:
		return "服务器开小差了"
	case RequestParamsError:
		return "参数错误"
	case DbError:
		return "数据库繁忙"
	case RecordNotFound:
		return "记录不存在"
	case ZeroAmount:
		return "金额必须大于 0"
	case ExceedsDepositLimit:
		return "超过单笔充值上限"
	case ExceedsWithdrawLimit:
		return "超过单笔提现上限"
	case ExceedsBankCap:
		return "超过资产持仓上限"
	case InsufficientBalance:
		return "可用余额不足"
	case ExceedsDailyDepositLimit:
		return "超过当日充值限额"
	case ExceedsDailyWithdrawLimit:
		return "超过当日提现限额"
	case AssetNotSupported:
		return "资产未注册"
	case InvalidAsset:
		return "资产注册参数非法"
	case InvalidPriceFeed:
		return "喂价地址非法"
	case StalePrice:
		return "价格已过期"
	case PriceDeviationExceeded:
		return "价格偏离过大"
	case PriceFeedNotAvailable:
		return "喂价源不可用"
	case TransferFailed:
		return "转账失败"
	case InsufficientAllowance:
		return "授权额度不足"
	case Unauthorized:
		return "无权限"
	case ContractPaused:
		return "系统已暂停"
	default:
		return "未知错误"
	}
}
