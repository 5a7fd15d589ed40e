package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha15-sentry/pkg/types"
)

func TestStateManager_MemoryMode(t *testing.T) {
	sm := NewStateManager(types.RedisConfig{})
	ctx := context.Background()

	require.NoError(t, sm.MarkAlerted(ctx, "2025-08-28", "TCS"))
	require.NoError(t, sm.MarkAlerted(ctx, "2025-08-28", "INFY"))
	require.NoError(t, sm.MarkAlerted(ctx, "2025-08-28", "TCS"))
	require.NoError(t, sm.MarkAlerted(ctx, "2025-08-27", "SBIN"))

	got, err := sm.LoadAlerted(ctx, "2025-08-28")
	require.NoError(t, err)
	assert.Equal(t, []string{"INFY", "TCS"}, got)

	got, err = sm.LoadAlerted(ctx, "2025-08-29")
	require.NoError(t, err)
	assert.Empty(t, got)

	stats := sm.GetRedisStats()
	assert.Equal(t, false, stats["redis_enabled"])
	assert.Equal(t, 2, stats["memory_days"])
	assert.Equal(t, 3, stats["memory_alerted"])
	assert.NoError(t, sm.Close())
}

func TestStateManager_PurgeBefore(t *testing.T) {
	sm := NewStateManager(types.RedisConfig{})
	ctx := context.Background()

	require.NoError(t, sm.MarkAlerted(ctx, "2025-08-27", "SBIN"))
	require.NoError(t, sm.MarkAlerted(ctx, "2025-08-28", "TCS"))

	sm.PurgeBefore("2025-08-28")

	got, err := sm.LoadAlerted(ctx, "2025-08-27")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = sm.LoadAlerted(ctx, "2025-08-28")
	require.NoError(t, err)
	assert.Equal(t, []string{"TCS"}, got)
}

func TestStateManager_UnreachableRedisFallsBackToMemory(t *testing.T) {
	// 端口1上没有Redis，Ping失败后降级为内存模式
	sm := NewStateManager(types.RedisConfig{URL: "127.0.0.1:1"})
	defer sm.Close()

	assert.False(t, sm.useRedis)
	assert.Nil(t, sm.redisClient)

	ctx := context.Background()
	require.NoError(t, sm.MarkAlerted(ctx, "2025-08-28", "TCS"))
	got, err := sm.LoadAlerted(ctx, "2025-08-28")
	require.NoError(t, err)
	assert.Equal(t, []string{"TCS"}, got)
}
