package service

import (
	"sync/atomic"

	"vaultbank.com/pkg/xerr"
)

type Role uint8

const (
	RoleUser Role = iota
	RoleAdmin
)

// Guard 访问策略：暂停开关 + 管理能力校验
// 所有能力校验都发生在账本逻辑之前
type Guard struct {
	paused atomic.Bool
}

func NewGuard() *Guard {
	return &Guard{}
}

// CheckOperational 系统暂停时拒绝一切变更入口
func (g *Guard) CheckOperational() error {
	if g.paused.Load() {
		return xerr.NewErrCode(xerr.ContractPaused)
	}
	return nil
}

// RequireAdmin 管理入口 (注册资产 / 暂停 / 紧急转移) 必须持有管理角色
func (g *Guard) RequireAdmin(role Role) error {
	if role != RoleAdmin {
		return xerr.NewErrCode(xerr.Unauthorized)
	}
	return nil
}

func (g *Guard) Pause(role Role) error {
	if err := g.RequireAdmin(role); err != nil {
		return err
	}
	g.paused.Store(true)
	return nil
}

func (g *Guard) Resume(role Role) error {
	if err := g.RequireAdmin(role); err != nil {
		return err
	}
	g.paused.Store(false)
	return nil
}

func (g *Guard) Paused() bool {
	return g.paused.Load()
}
