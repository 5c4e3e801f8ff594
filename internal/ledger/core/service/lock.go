package service

import "sync"

// keyedMutex 串行化状态迁移
// 资产锁覆盖 bankCap / totalBalance 这类资产全局的校验，
// 用户锁覆盖跨资产共享的当日额度。两把锁的 key 分属不同
// 命名空间，加锁顺序固定为先用户后资产，避免交叉死锁
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func userKey(userID string) string   { return "u:" + userID }
func assetKey(assetID string) string { return "a:" + assetID }

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock 锁住 key，返回解锁函数
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
