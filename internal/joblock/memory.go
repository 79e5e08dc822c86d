package joblock

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Guard with the same acquire/expire semantics as
// Store. Single-process deployments and tests only; it cannot exclude other
// instances.
type Memory struct {
	mu    sync.Mutex
	locks map[string]Lock
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{locks: map[string]Lock{}, now: time.Now}
}

func (m *Memory) Acquire(_ context.Context, job, holder string, d time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if cur, ok := m.locks[job]; ok && cur.LockedUntil.After(now) {
		return false, nil
	}
	m.locks[job] = Lock{
		JobName:     job,
		LockedBy:    holder,
		LockedAt:    now,
		LockedUntil: now.Add(d),
	}
	return true, nil
}

func (m *Memory) Release(_ context.Context, job, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.locks[job]; ok && cur.LockedBy == holder {
		delete(m.locks, job)
	}
	return nil
}
