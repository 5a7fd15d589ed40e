package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alpha15-sentry/pkg/types"
)

// 交易日期格式，信号时间已在交易所时区
const dateLayout = "2006-01-02"

// Journal 评估与信号日志
type Journal interface {
	RecordEvaluation(ctx context.Context, runID string, eval *types.Evaluation) error
	RecordSignal(ctx context.Context, runID string, signal *types.TradingSignal, delivered bool) error
	Close() error
}

// Open 按配置打开日志后端，未配置时返回空实现
func Open(cfg types.DatabaseConfig) (Journal, error) {
	switch cfg.Driver {
	case "mysql":
		m, err := NewManager(cfg.MySQL)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		p, err := NewPostgresJournal(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "sqlite":
		r, err := NewSQLiteJournal(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "":
		zap.L().Info("🔧 未配置信号日志数据库，跳过落库")
		return NoopJournal{}, nil
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}
}

// NoopJournal 不落库
type NoopJournal struct{}

func (NoopJournal) RecordEvaluation(context.Context, string, *types.Evaluation) error { return nil }
func (NoopJournal) RecordSignal(context.Context, string, *types.TradingSignal, bool) error {
	return nil
}
func (NoopJournal) Close() error { return nil }
