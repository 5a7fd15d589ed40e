package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"alpha15-sentry/pkg/types"
)

// SQLiteJournal 单机部署用的SQLite信号日志
type SQLiteJournal struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteJournal 打开（或创建）数据库并建表
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	if dbPath == "" {
		dbPath = "alpha15.db"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开SQLite失败: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置WAL模式失败: %w", err)
	}

	j := &SQLiteJournal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("SQLite建表失败: %w", err)
	}

	zap.L().Info("✅ SQLite信号日志已打开", zap.String("path", dbPath))
	return j, nil
}

func (j *SQLiteJournal) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS evaluations (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT NOT NULL,
			trade_date TEXT NOT NULL,
			symbol     TEXT NOT NULL,
			eval_time  INTEGER NOT NULL,
			poc        REAL,
			atr_value  REAL,
			ltp        REAL,
			first_open REAL,
			first_high REAL,
			first_low  REAL,
			signal     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_eval_symbol_date ON evaluations(symbol, trade_date)`,

		`CREATE TABLE IF NOT EXISTS trading_signals (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL,
			trade_date  TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			exchange    TEXT NOT NULL,
			signal_time INTEGER NOT NULL,
			signal_type TEXT NOT NULL,
			price       REAL,
			poc         REAL,
			atr_value   REAL,
			first_open  REAL,
			first_high  REAL,
			first_low   REAL,
			delivered   INTEGER NOT NULL DEFAULT 0,
			UNIQUE(trade_date, symbol)
		)`,
	}

	for _, s := range stmts {
		if _, err := j.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordEvaluation 保存评估快照
func (j *SQLiteJournal) RecordEvaluation(ctx context.Context, runID string, eval *types.Evaluation) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	r := newEvaluationRecord(runID, eval)
	_, err := j.db.ExecContext(ctx, `INSERT INTO evaluations
		(run_id, trade_date, symbol, eval_time, poc, atr_value, ltp, first_open, first_high, first_low, signal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.TradeDate, r.Symbol, r.EvalTime, r.POC, r.ATRValue, r.LTP,
		r.FirstOpen, r.FirstHigh, r.FirstLow, r.Signal)
	if err != nil {
		return fmt.Errorf("保存评估快照失败: %w", err)
	}
	return nil
}

// RecordSignal 保存交易信号，同一合约同一天只保留一条
func (j *SQLiteJournal) RecordSignal(ctx context.Context, runID string, signal *types.TradingSignal, delivered bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	r := newSignalRecord(runID, signal, delivered)
	_, err := j.db.ExecContext(ctx, `INSERT OR IGNORE INTO trading_signals
		(run_id, trade_date, symbol, exchange, signal_time, signal_type, price, poc, atr_value,
		 first_open, first_high, first_low, delivered)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.TradeDate, r.Symbol, r.Exchange, r.SignalTime, r.SignalType, r.Price, r.POC, r.ATRValue,
		r.FirstOpen, r.FirstHigh, r.FirstLow, r.Delivered)
	if err != nil {
		return fmt.Errorf("保存交易信号失败: %w", err)
	}
	return nil
}

// GetTradingSignals 获取某日的交易信号
func (j *SQLiteJournal) GetTradingSignals(ctx context.Context, date string) ([]TradingSignal, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT id, run_id, trade_date, symbol, exchange, signal_time, signal_type,
		price, poc, atr_value, first_open, first_high, first_low, delivered
		FROM trading_signals WHERE trade_date = ? ORDER BY signal_time ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("查询交易信号失败: %w", err)
	}
	defer rows.Close()

	var out []TradingSignal
	for rows.Next() {
		var s TradingSignal
		if err := rows.Scan(&s.ID, &s.RunID, &s.TradeDate, &s.Symbol, &s.Exchange, &s.SignalTime, &s.SignalType,
			&s.Price, &s.POC, &s.ATRValue, &s.FirstOpen, &s.FirstHigh, &s.FirstLow, &s.Delivered); err != nil {
			return nil, fmt.Errorf("读取交易信号失败: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountEvaluations 某日评估次数
func (j *SQLiteJournal) CountEvaluations(ctx context.Context, date string) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM evaluations WHERE trade_date = ?`, date).Scan(&n)
	return n, err
}

// Health 检查数据库是否可用
func (j *SQLiteJournal) Health() error {
	return j.db.Ping()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
