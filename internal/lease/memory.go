package lease

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryLocker keeps leases in process memory. It only coordinates passes
// within one process.
type MemoryLocker struct {
	mu     sync.Mutex
	leases *cache.Cache
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		leases: cache.New(cache.NoExpiration, time.Minute),
	}
}

func (l *MemoryLocker) Acquire(_ context.Context, name string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	token := newToken()
	if err := l.leases.Add(name, token, ttl); err != nil {
		return nil, ErrHeld
	}

	return &memoryLease{locker: l, name: name, token: token}, nil
}

type memoryLease struct {
	locker *MemoryLocker
	name   string
	token  string
}

func (m *memoryLease) Release(_ context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()

	if v, ok := m.locker.leases.Get(m.name); ok && v == m.token {
		m.locker.leases.Delete(m.name)
	}

	return nil
}
