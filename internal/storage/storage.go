package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"alpha15-sentry/pkg/types"
)

const (
	keyPrefix = "alpha15:alerted:"
	// 告警记录只对当天有意义，留足跨时区余量
	alertTTL = 36 * time.Hour
)

// StateManager 当日已告警合约的持久化：内存为准，Redis镜像用于同日重启恢复
type StateManager struct {
	alerted     map[string]map[string]time.Time // date -> symbol -> 告警时间
	mutex       sync.RWMutex
	redisClient *redis.Client
	useRedis    bool
	now         func() time.Time
}

func NewStateManager(redisConfig types.RedisConfig) *StateManager {
	sm := &StateManager{
		alerted: make(map[string]map[string]time.Time),
		now:     time.Now,
	}

	if redisConfig.URL == "" {
		zap.L().Info("🔧 未配置Redis，使用纯内存模式")
		return sm
	}

	sm.redisClient = redis.NewClient(&redis.Options{
		Addr:     redisConfig.URL,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := sm.redisClient.Ping(ctx).Result(); err != nil {
		zap.L().Warn("⚠️ Redis连接失败，使用纯内存模式", zap.String("addr", redisConfig.URL), zap.Error(err))
		_ = sm.redisClient.Close()
		sm.redisClient = nil
		return sm
	}

	zap.L().Info("✅ Redis连接成功", zap.String("addr", redisConfig.URL))
	sm.useRedis = true
	return sm
}

func redisKey(date string) string {
	return keyPrefix + date
}

// MarkAlerted 记录合约在 date 已告警；Redis写入失败只记录日志
func (sm *StateManager) MarkAlerted(ctx context.Context, date, symbol string) error {
	sm.mutex.Lock()
	day := sm.alerted[date]
	if day == nil {
		day = make(map[string]time.Time)
		sm.alerted[date] = day
	}
	day[symbol] = sm.now()
	sm.mutex.Unlock()

	if !sm.useRedis {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	key := redisKey(date)
	pipe := sm.redisClient.TxPipeline()
	pipe.SAdd(ctx, key, symbol)
	pipe.Expire(ctx, key, alertTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		zap.L().Warn("⚠️ Redis存储告警状态失败", zap.String("symbol", symbol), zap.Error(err))
		return fmt.Errorf("Redis存储失败 %s: %w", symbol, err)
	}
	return nil
}

// LoadAlerted 返回 date 已告警的合约（内存与Redis合并，按名称排序）
func (sm *StateManager) LoadAlerted(ctx context.Context, date string) ([]string, error) {
	set := make(map[string]struct{})

	sm.mutex.RLock()
	for symbol := range sm.alerted[date] {
		set[symbol] = struct{}{}
	}
	sm.mutex.RUnlock()

	var err error
	if sm.useRedis {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		var members []string
		members, err = sm.redisClient.SMembers(ctx, redisKey(date)).Result()
		if err != nil {
			err = fmt.Errorf("读取Redis告警状态失败: %w", err)
		}
		for _, m := range members {
			set[m] = struct{}{}
		}
	}

	symbols := make([]string, 0, len(set))
	for symbol := range set {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols, err
}

// PurgeBefore 清除 date 之前的内存记录，Redis依赖过期时间
func (sm *StateManager) PurgeBefore(date string) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	for d := range sm.alerted {
		if d < date {
			delete(sm.alerted, d)
		}
	}
}

// GetRedisStats 获取存储统计信息
func (sm *StateManager) GetRedisStats() map[string]interface{} {
	sm.mutex.RLock()
	days := len(sm.alerted)
	total := 0
	for _, day := range sm.alerted {
		total += len(day)
	}
	sm.mutex.RUnlock()

	stats := map[string]interface{}{
		"redis_enabled":  sm.useRedis,
		"memory_days":    days,
		"memory_alerted": total,
	}

	if sm.useRedis {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		keys, err := sm.redisClient.Keys(ctx, keyPrefix+"*").Result()
		if err == nil {
			stats["redis_keys"] = len(keys)
		} else {
			stats["redis_error"] = err.Error()
		}
	}

	return stats
}

// Close 关闭Redis连接
func (sm *StateManager) Close() error {
	if sm.redisClient == nil {
		return nil
	}
	return sm.redisClient.Close()
}
