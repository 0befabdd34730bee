package distlock

import (
	"context"
	"sync"
)

// LocalLocks hands out in-process locks. It backs single-process mode,
// where there is no Redis or Postgres to coordinate through.
type LocalLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalFactory returns a Factory whose locks only exclude holders in
// this process.
func NewLocalFactory() Factory {
	l := &LocalLocks{held: make(map[string]bool)}
	return func(key string) DistLock { return &localLock{owner: l, key: key} }
}

type localLock struct {
	owner    *LocalLocks
	key      string
	acquired bool
}

func (l *localLock) Acquire(context.Context) (bool, error) {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	if l.owner.held[l.key] {
		return false, nil
	}
	l.owner.held[l.key] = true
	l.acquired = true
	return true, nil
}

func (l *localLock) Release(context.Context) error {
	if !l.acquired {
		return nil
	}
	l.owner.mu.Lock()
	delete(l.owner.held, l.key)
	l.owner.mu.Unlock()
	l.acquired = false
	return nil
}
