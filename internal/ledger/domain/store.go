package domain

import "context"

// Store 账本状态的聚合仓储
// 所有仓储由同一实现承载，Transaction 内的写入全部成功或全部回滚 ——
// 任何一步校验失败都不能留下半提交状态
type Store interface {
	// Transaction 在一个事务里执行 fn；fn 返回错误则整体回滚
	Transaction(ctx context.Context, fn func(txCtx context.Context) error) error

	AssetRepo
	BalanceRepo
	LimitRepo
	RecordRepo
}
