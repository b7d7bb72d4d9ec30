package userlock

import (
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/wasteloop/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLockTTLOutlivesPipeline(t *testing.T) {
	cases := []struct {
		name      string
		lockTTL   time.Duration
		taskLimit time.Duration
		want      time.Duration
	}{
		{name: "configured ttl is longer", lockTTL: 2 * time.Minute, taskLimit: 45 * time.Second, want: 2 * time.Minute},
		{name: "short ttl is raised", lockTTL: 30 * time.Second, taskLimit: 45 * time.Second, want: time.Minute},
		{name: "unset task timeout uses fallback", lockTTL: 0, taskLimit: 0, want: time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Config{
				Redis:     config.RedisConfig{LockTTL: tc.lockTTL},
				Ingestion: config.IngestionConfig{TaskTimeout: tc.taskLimit},
			}
			assert.Equal(t, tc.want, lockTTL(cfg))
		})
	}
}

func TestNewAppliesLockTTLFloor(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	locker := New(Params{
		Config: config.Config{
			Redis:     config.RedisConfig{LockTTL: 30 * time.Second},
			Ingestion: config.IngestionConfig{TaskTimeout: 45 * time.Second},
		},
		Log:   zap.NewNop(),
		Redis: client,
	})

	rl, ok := locker.(*RedisLocker)
	require.True(t, ok)
	assert.Equal(t, time.Minute, rl.ttl)
}
