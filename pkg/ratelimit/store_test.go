package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStore_AllowBurstThenBlock(t *testing.T) {
	// 1 rps，突发 3
	s := NewStore(1, 3, time.Minute)

	assert.True(t, s.Allow("k"))
	assert.True(t, s.Allow("k"))
	assert.True(t, s.Allow("k"))
	// 突发额度耗尽
	assert.False(t, s.Allow("k"))

	// 不同 key 互不影响
	assert.True(t, s.Allow("other"))
}

func TestStore_Cleanup(t *testing.T) {
	s := NewStore(1, 1, time.Millisecond)
	s.Allow("stale-key")

	time.Sleep(5 * time.Millisecond)
	s.cleanup()

	s.mu.Lock()
	_, exists := s.entries["stale-key"]
	s.mu.Unlock()
	assert.False(t, exists)
}
