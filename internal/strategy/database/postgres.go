package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"alpha15-sentry/pkg/types"
)

// PostgresJournal PostgreSQL信号日志
type PostgresJournal struct {
	pool *pgxpool.Pool
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS evaluations (
		id         BIGSERIAL PRIMARY KEY,
		run_id     TEXT NOT NULL,
		trade_date TEXT NOT NULL,
		symbol     TEXT NOT NULL,
		eval_time  TIMESTAMPTZ NOT NULL,
		poc        DOUBLE PRECISION,
		atr_value  DOUBLE PRECISION,
		ltp        DOUBLE PRECISION,
		first_open DOUBLE PRECISION,
		first_high DOUBLE PRECISION,
		first_low  DOUBLE PRECISION,
		signal     TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_eval_symbol_date ON evaluations(symbol, trade_date)`,
	`CREATE TABLE IF NOT EXISTS trading_signals (
		id          BIGSERIAL PRIMARY KEY,
		run_id      TEXT NOT NULL,
		trade_date  TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		exchange    TEXT NOT NULL,
		signal_time TIMESTAMPTZ NOT NULL,
		signal_type TEXT NOT NULL,
		price       DOUBLE PRECISION,
		poc         DOUBLE PRECISION,
		atr_value   DOUBLE PRECISION,
		first_open  DOUBLE PRECISION,
		first_high  DOUBLE PRECISION,
		first_low   DOUBLE PRECISION,
		delivered   BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (trade_date, symbol)
	)`,
}

// NewPostgresJournal 连接并建表
func NewPostgresJournal(ctx context.Context, cfg types.PostgresConfig) (*PostgresJournal, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("解析PostgreSQL连接串失败: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnLifetime = time.Hour
	if poolCfg.ConnConfig.RuntimeParams == nil {
		poolCfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "alpha15-sentry"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("创建PostgreSQL连接池失败: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("连接PostgreSQL失败: %w", err)
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("PostgreSQL建表失败: %w", err)
		}
	}

	zap.L().Info("✅ PostgreSQL信号日志已连接",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database))
	return &PostgresJournal{pool: pool}, nil
}

// RecordEvaluation 保存评估快照
func (p *PostgresJournal) RecordEvaluation(ctx context.Context, runID string, eval *types.Evaluation) error {
	r := newEvaluationRecord(runID, eval)
	_, err := p.pool.Exec(ctx, `INSERT INTO evaluations
		(run_id, trade_date, symbol, eval_time, poc, atr_value, ltp, first_open, first_high, first_low, signal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.RunID, r.TradeDate, r.Symbol, eval.EvalTime, r.POC, r.ATRValue, r.LTP,
		r.FirstOpen, r.FirstHigh, r.FirstLow, r.Signal)
	if err != nil {
		return fmt.Errorf("保存评估快照失败: %w", err)
	}
	return nil
}

// RecordSignal 保存交易信号，同一合约同一天只保留第一条
func (p *PostgresJournal) RecordSignal(ctx context.Context, runID string, signal *types.TradingSignal, delivered bool) error {
	r := newSignalRecord(runID, signal, delivered)
	_, err := p.pool.Exec(ctx, `INSERT INTO trading_signals
		(run_id, trade_date, symbol, exchange, signal_time, signal_type, price, poc, atr_value,
		 first_open, first_high, first_low, delivered)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (trade_date, symbol) DO NOTHING`,
		r.RunID, r.TradeDate, r.Symbol, r.Exchange, signal.SignalTime, r.SignalType, r.Price, r.POC, r.ATRValue,
		r.FirstOpen, r.FirstHigh, r.FirstLow, r.Delivered)
	if err != nil {
		return fmt.Errorf("保存交易信号失败: %w", err)
	}
	return nil
}

// Health 检查连接池是否可用
func (p *PostgresJournal) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.pool.Ping(ctx)
}

func (p *PostgresJournal) Close() error {
	p.pool.Close()
	return nil
}
