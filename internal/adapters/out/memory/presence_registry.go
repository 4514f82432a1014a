package memory

import (
	"sort"
	"sync"

	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/ports/out"
)

// PresenceRegistry 互斥锁保护的在线表
type PresenceRegistry struct {
	mu      sync.RWMutex
	entries map[string]entity.ConnID
}

var _ out.PresenceRegistry = (*PresenceRegistry)(nil)

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{entries: make(map[string]entity.ConnID)}
}

func (r *PresenceRegistry) SetOnline(username string, conn entity.ConnID) (entity.ConnID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.entries[username]
	r.entries[username] = conn
	return prev, ok && prev != conn
}

func (r *PresenceRegistry) Get(username string) (entity.ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.entries[username]
	return id, ok
}

func (r *PresenceRegistry) RemoveIfOwner(username string, conn entity.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.entries[username]; ok && cur == conn {
		delete(r.entries, username)
		return true
	}
	return false
}

// Online 按字典序返回
func (r *PresenceRegistry) Online() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *PresenceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
