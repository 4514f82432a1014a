package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/EthanQC/warpong/internal/domain/entity"
)

func TestSetOnlineAndGet(t *testing.T) {
	r := NewPresenceRegistry()
	_, ok := r.Get("alice")
	assert.False(t, ok)

	prev, replaced := r.SetOnline("alice", "c1")
	assert.False(t, replaced)
	assert.Equal(t, entity.NoConn, prev)

	id, ok := r.Get("alice")
	assert.True(t, ok)
	assert.Equal(t, entity.ConnID("c1"), id)
	assert.Equal(t, 1, r.Len())
}

func TestLastLoginWinsAndOwnershipGuard(t *testing.T) {
	r := NewPresenceRegistry()
	r.SetOnline("alice", "c1")

	prev, replaced := r.SetOnline("alice", "c2")
	assert.True(t, replaced)
	assert.Equal(t, entity.ConnID("c1"), prev)

	// 旧连接的清理不能把新连接踢掉
	assert.False(t, r.RemoveIfOwner("alice", "c1"))
	id, ok := r.Get("alice")
	assert.True(t, ok)
	assert.Equal(t, entity.ConnID("c2"), id)

	assert.True(t, r.RemoveIfOwner("alice", "c2"))
	_, ok = r.Get("alice")
	assert.False(t, ok)
}

func TestSameConnReloginNotReplaced(t *testing.T) {
	r := NewPresenceRegistry()
	r.SetOnline("alice", "c1")
	_, replaced := r.SetOnline("alice", "c1")
	assert.False(t, replaced)
}

func TestOnlineSorted(t *testing.T) {
	r := NewPresenceRegistry()
	r.SetOnline("carol", "c3")
	r.SetOnline("alice", "c1")
	r.SetOnline("bob", "c2")
	assert.Equal(t, []string{"alice", "bob", "carol"}, r.Online())
}

func TestConcurrentLoginLogout(t *testing.T) {
	r := NewPresenceRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := entity.ConnID(fmt.Sprintf("c%d", i))
			r.SetOnline("alice", id)
			r.RemoveIfOwner("alice", id)
		}(i)
	}
	wg.Wait()

	// 最后一次写入者随后一定会删除自己的记录
	assert.Equal(t, 0, r.Len())
}
