package userlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wasteloop/internal/observability/metrics"
)

// LocalLocker is an in-process keyed mutex for single-replica deployments.
type LocalLocker struct {
	mu      sync.Mutex
	slots   map[snowflake.ID]*slot
	metrics *metrics.WorkerMetrics
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker(m *metrics.WorkerMetrics) *LocalLocker {
	return &LocalLocker{
		slots:   make(map[snowflake.ID]*slot),
		metrics: m,
	}
}

func (l *LocalLocker) Lock(ctx context.Context, userID snowflake.ID) (func(), error) {
	start := time.Now()
	s := l.acquireSlot(userID)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.releaseSlot(userID)
		return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
	}
	l.metrics.ObserveLockWait(metrics.LockResourceUser, time.Since(start))

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.releaseSlot(userID)
		})
	}, nil
}

func (l *LocalLocker) acquireSlot(userID snowflake.ID) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[userID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[userID] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) releaseSlot(userID snowflake.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[userID]
	if !ok {
		return
	}
	s.refs--
	if s.refs == 0 {
		delete(l.slots, userID)
	}
}
