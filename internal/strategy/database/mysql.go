package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"alpha15-sentry/pkg/types"
)

// Manager MySQL信号日志
type Manager struct {
	db     *gorm.DB
	config types.MySQLConfig
}

// EvaluationRecord 每次评估的指标快照
type EvaluationRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RunID     string    `gorm:"type:varchar(36);not null;index" json:"run_id"`
	TradeDate string    `gorm:"type:char(10);not null;index:idx_eval_symbol_date" json:"trade_date"`
	Symbol    string    `gorm:"type:varchar(40);not null;index:idx_eval_symbol_date" json:"symbol"`
	EvalTime  int64     `gorm:"not null" json:"eval_time"`
	POC       float64   `gorm:"type:decimal(20,8);not null" json:"poc"`
	ATRValue  float64   `gorm:"type:decimal(20,8);not null" json:"atr_value"`
	LTP       float64   `gorm:"type:decimal(20,8);not null" json:"ltp"`
	FirstOpen float64   `gorm:"type:decimal(20,8);not null" json:"first_open"`
	FirstHigh float64   `gorm:"type:decimal(20,8);not null" json:"first_high"`
	FirstLow  float64   `gorm:"type:decimal(20,8);not null" json:"first_low"`
	Signal    string    `gorm:"type:varchar(4)" json:"signal"`
	CreatedAt time.Time `json:"created_at"`
}

// TradingSignal 交易信号模型
type TradingSignal struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RunID      string    `gorm:"type:varchar(36);not null;index" json:"run_id"`
	TradeDate  string    `gorm:"type:char(10);not null;uniqueIndex:uk_signal_symbol_date" json:"trade_date"`
	Symbol     string    `gorm:"type:varchar(40);not null;uniqueIndex:uk_signal_symbol_date" json:"symbol"`
	Exchange   string    `gorm:"type:varchar(10);not null" json:"exchange"`
	SignalTime int64     `gorm:"not null" json:"signal_time"`
	SignalType string    `gorm:"type:enum('BUY','SELL');not null" json:"signal_type"`
	Price      float64   `gorm:"type:decimal(20,8);not null" json:"price"`
	POC        float64   `gorm:"type:decimal(20,8);not null" json:"poc"`
	ATRValue   float64   `gorm:"type:decimal(20,8);not null" json:"atr_value"`
	FirstOpen  float64   `gorm:"type:decimal(20,8);not null" json:"first_open"`
	FirstHigh  float64   `gorm:"type:decimal(20,8);not null" json:"first_high"`
	FirstLow   float64   `gorm:"type:decimal(20,8);not null" json:"first_low"`
	Delivered  bool      `gorm:"not null;default:false" json:"delivered"`
	CreatedAt  time.Time `json:"created_at"`
}

// StrategyPerformance 每日信号统计
type StrategyPerformance struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Date         string    `gorm:"type:char(10);not null;uniqueIndex" json:"date"`
	TotalSignals int       `gorm:"default:0" json:"total_signals"`
	BuySignals   int       `gorm:"default:0" json:"buy_signals"`
	SellSignals  int       `gorm:"default:0" json:"sell_signals"`
	Undelivered  int       `gorm:"default:0" json:"undelivered"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewManager 创建数据库管理器
func NewManager(config types.MySQLConfig) (*Manager, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %w", err)
	}

	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	manager := &Manager{
		db:     db,
		config: config,
	}

	if err := manager.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	zap.L().Info("✅ MySQL数据库连接成功",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("database", config.Database))

	return manager, nil
}

// AutoMigrate 自动迁移表结构
func (m *Manager) AutoMigrate() error {
	return m.db.AutoMigrate(
		&EvaluationRecord{},
		&TradingSignal{},
		&StrategyPerformance{},
	)
}

// RecordEvaluation 保存评估快照
func (m *Manager) RecordEvaluation(ctx context.Context, runID string, eval *types.Evaluation) error {
	return m.db.WithContext(ctx).Create(newEvaluationRecord(runID, eval)).Error
}

// RecordSignal 保存交易信号并更新当日统计
func (m *Manager) RecordSignal(ctx context.Context, runID string, signal *types.TradingSignal, delivered bool) error {
	record := newSignalRecord(runID, signal, delivered)

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("保存交易信号失败: %w", err)
		}
		return updateStrategyPerformance(tx, record)
	})
}

// updateStrategyPerformance 更新每日信号统计
func updateStrategyPerformance(tx *gorm.DB, record *TradingSignal) error {
	var performance StrategyPerformance
	result := tx.Where("date = ?", record.TradeDate).First(&performance)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		performance = StrategyPerformance{Date: record.TradeDate}
		applySignal(&performance, record)
		return tx.Create(&performance).Error
	}
	if result.Error != nil {
		return result.Error
	}

	applySignal(&performance, record)
	return tx.Model(&performance).Where("id = ?", performance.ID).Updates(map[string]interface{}{
		"total_signals": performance.TotalSignals,
		"buy_signals":   performance.BuySignals,
		"sell_signals":  performance.SellSignals,
		"undelivered":   performance.Undelivered,
	}).Error
}

func applySignal(p *StrategyPerformance, record *TradingSignal) {
	p.TotalSignals++
	switch record.SignalType {
	case string(types.SignalBuy):
		p.BuySignals++
	case string(types.SignalSell):
		p.SellSignals++
	}
	if !record.Delivered {
		p.Undelivered++
	}
}

// GetTradingSignals 获取某日的交易信号
func (m *Manager) GetTradingSignals(ctx context.Context, date string) ([]TradingSignal, error) {
	var signals []TradingSignal
	err := m.db.WithContext(ctx).Where("trade_date = ?", date).
		Order("signal_time ASC").
		Find(&signals).Error
	return signals, err
}

// Close 关闭数据库连接
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接健康状态
func (m *Manager) Health() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func newEvaluationRecord(runID string, eval *types.Evaluation) *EvaluationRecord {
	return &EvaluationRecord{
		RunID:     runID,
		TradeDate: eval.EvalTime.Format(dateLayout),
		Symbol:    eval.Symbol,
		EvalTime:  eval.EvalTime.Unix(),
		POC:       eval.POC,
		ATRValue:  eval.ATRValue,
		LTP:       eval.LTP,
		FirstOpen: eval.FirstOpen,
		FirstHigh: eval.FirstHigh,
		FirstLow:  eval.FirstLow,
		Signal:    string(eval.Signal),
		CreatedAt: time.Now(),
	}
}

func newSignalRecord(runID string, signal *types.TradingSignal, delivered bool) *TradingSignal {
	return &TradingSignal{
		RunID:      runID,
		TradeDate:  signal.SignalTime.Format(dateLayout),
		Symbol:     signal.Symbol,
		Exchange:   signal.Exchange,
		SignalTime: signal.SignalTime.Unix(),
		SignalType: string(signal.SignalType),
		Price:      signal.Price,
		POC:        signal.POC,
		ATRValue:   signal.ATRValue,
		FirstOpen:  signal.FirstOpen,
		FirstHigh:  signal.FirstHigh,
		FirstLow:   signal.FirstLow,
		Delivered:  delivered,
		CreatedAt:  time.Now(),
	}
}
