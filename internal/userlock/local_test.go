package userlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesPerUser(t *testing.T) {
	locker := NewLocalLocker(nil)
	var active, maxActive int32

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), snowflake.ID(1))
			require.NoError(t, err)
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), maxActive)
	require.Empty(t, locker.slots)
}

func TestLocalLockerIndependentUsers(t *testing.T) {
	locker := NewLocalLocker(nil)

	unlockA, err := locker.Lock(context.Background(), snowflake.ID(1))
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := locker.Lock(ctx, snowflake.ID(2))
	require.NoError(t, err)
	unlockB()
}

func TestLocalLockerHonorsContext(t *testing.T) {
	locker := NewLocalLocker(nil)

	unlock, err := locker.Lock(context.Background(), snowflake.ID(1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, snowflake.ID(1))
	require.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	unlock()
	require.Empty(t, locker.slots)
}
