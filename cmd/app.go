package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"alpha15-sentry/internal/analyzer"
	"alpha15-sentry/internal/calendar"
	smartapi "alpha15-sentry/internal/fetcher"
	"alpha15-sentry/internal/instruments"
	"alpha15-sentry/internal/notifier"
	"alpha15-sentry/internal/scheduler"
	"alpha15-sentry/internal/storage"
	"alpha15-sentry/internal/strategy/database"
	"alpha15-sentry/internal/strategy/fetcher"
	"alpha15-sentry/internal/strategy/monitor"
	"alpha15-sentry/internal/strategy/websocket"
	"alpha15-sentry/pkg/types"
)

// App 应用程序管理器
type App struct {
	config *types.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cal         *calendar.Calendar
	instruments []types.Instrument
	client      *smartapi.SmartAPIClient
	fetcher     *fetcher.HistoryKlineFetcher
	stream      *websocket.Client
	dispatcher  *notifier.Dispatcher
	store       *storage.StateManager
	journal     database.Journal
	monitor     *monitor.PerformanceMonitor
	metricsSrv  *http.Server
	cron        *cron.Cron

	done chan struct{}
	mu   sync.Mutex
	err  error
}

// NewApp 创建应用程序实例：加载日历、合约列表，初始化存储与通知
func NewApp(config *types.Config) (*App, error) {
	cal, err := calendar.New(config.Session)
	if err != nil {
		return nil, err
	}

	list, err := instruments.Load(config.Instruments)
	if err != nil {
		return nil, err
	}

	journal, err := database.Open(config.Database)
	if err != nil {
		return nil, fmt.Errorf("打开信号日志失败: %w", err)
	}

	client := smartapi.NewSmartAPIClient(config.SmartAPI, config.Network)

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		config:      config,
		ctx:         ctx,
		cancel:      cancel,
		cal:         cal,
		instruments: list,
		client:      client,
		fetcher:     fetcher.NewHistoryKlineFetcher(client, cal.Location()),
		dispatcher:  notifier.NewDispatcher(config.Notify, notifier.NewFromConfig(config)...),
		store:       storage.NewStateManager(config.Redis),
		journal:     journal,
		monitor:     monitor.NewPerformanceMonitor(),
		done:        make(chan struct{}),
	}, nil
}

// Start 登录行情会话并启动监控；登录失败视为启动失败
func (app *App) Start() error {
	zap.L().Info("🚀 Alpha15 Sentry 启动中...",
		zap.Int("instruments", len(app.instruments)),
		zap.Bool("daemon", app.config.Daemon.Enabled))

	if err := app.login(); err != nil {
		return err
	}

	if app.config.Metrics.Addr != "" {
		app.metricsSrv = app.monitor.Serve(app.config.Metrics.Addr)
	}

	if app.config.Stream.Enabled {
		app.startStream()
	}

	if app.config.Daemon.Enabled {
		return app.startDaemon()
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		defer close(app.done)
		app.setErr(app.runSession())
	}()

	zap.L().Info("✅ Alpha15 Sentry 已启动")
	return nil
}

// startDaemon 按cron在每个交易日启动一次会话
func (app *App) startDaemon() error {
	app.cron = cron.New(
		cron.WithLocation(app.cal.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	_, err := app.cron.AddFunc(app.config.Daemon.Cron, func() {
		if !app.cal.IsTradingDay(time.Now()) {
			zap.L().Info("📅 非交易日，跳过", zap.String("date", app.cal.DateKey(time.Now())))
			return
		}
		// 会话令牌按天失效，每次会话前重新登录
		if err := app.login(); err != nil {
			zap.L().Error("❌ 重新登录失败，跳过今日会话", zap.Error(err))
			return
		}
		if err := app.runSession(); err != nil {
			zap.L().Error("❌ 监控会话异常结束", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("cron表达式无效 %q: %w", app.config.Daemon.Cron, err)
	}

	app.cron.Start()
	zap.L().Info("⏰ 常驻模式已启动",
		zap.String("cron", app.config.Daemon.Cron),
		zap.Time("next_window", app.cal.NextWindowStart(time.Now())))
	return nil
}

func (app *App) login() error {
	ctx, cancel := context.WithTimeout(app.ctx, time.Minute)
	defer cancel()
	if err := app.client.Login(ctx); err != nil {
		return fmt.Errorf("行情会话建立失败: %w", err)
	}
	return nil
}

// startStream 连接实时行情推送，失败时回退到REST取LTP
func (app *App) startStream() {
	sess, ok := app.client.Session()
	if !ok {
		return
	}

	creds := websocket.Credentials{
		JWTToken:   sess.JWTToken,
		APIKey:     app.client.APIKey(),
		ClientCode: sess.ClientCode,
		FeedToken:  sess.FeedToken,
	}
	stream := websocket.NewClient(app.config.Stream.Endpoint, app.config.Network.Proxy, creds, app.config.Stream)

	if err := stream.Connect(); err != nil {
		zap.L().Warn("⚠️ 实时行情连接失败，使用REST获取LTP", zap.Error(err))
		return
	}
	if err := stream.Subscribe(app.instruments); err != nil {
		zap.L().Warn("⚠️ 实时行情订阅失败，使用REST获取LTP", zap.Error(err))
		_ = stream.Close()
		return
	}
	stream.StartReading()

	app.stream = stream
	app.fetcher.WithQuoteCache(stream, app.config.Stream.MaxQuoteAge)
}

// runSession 运行一次监控会话直到窗口结束
func (app *App) runSession() error {
	app.store.PurgeBefore(app.cal.DateKey(time.Now()))

	if hc, ok := app.journal.(interface{ Health() error }); ok {
		if err := hc.Health(); err != nil {
			zap.L().Warn("⚠️ 信号日志数据库不可用，本次会话的落库可能失败", zap.Error(err))
		}
	}

	engine := analyzer.NewAnalysisEngine(app.fetcher, app.cal, app.config.Session.ATRLookbackDays)
	sched := scheduler.NewScheduler(app.instruments, engine, app.dispatcher, app.cal, app.config.Session,
		scheduler.WithAlertStore(app.store),
		scheduler.WithJournal(app.journal),
		scheduler.WithMonitor(app.monitor),
	)

	report, err := sched.Run(app.ctx)
	if err != nil {
		return err
	}

	zap.L().Info("📋 会话统计",
		zap.String("run_id", report.RunID),
		zap.String("reason", report.Reason),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt).Truncate(time.Second)))
	fmt.Print(app.monitor.FormattedReport())
	return nil
}

// Stop 停止应用程序
func (app *App) Stop() {
	zap.L().Info("🛑 正在优雅关闭...")
	app.cancel()

	if app.cron != nil {
		<-app.cron.Stop().Done()
	}

	// 等待所有goroutine结束，最多等待30秒
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 强制关闭超时")
	}

	if app.stream != nil {
		_ = app.stream.Close()
	}
	if app.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = app.metricsSrv.Shutdown(ctx)
		cancel()
	}

	logoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	app.client.Logout(logoutCtx)
	cancel()

	if err := app.dispatcher.Close(); err != nil {
		zap.L().Warn("⚠️ 关闭通知渠道失败", zap.Error(err))
	}
	if err := app.journal.Close(); err != nil {
		zap.L().Warn("⚠️ 关闭信号日志失败", zap.Error(err))
	}
	if err := app.store.Close(); err != nil {
		zap.L().Warn("⚠️ 关闭Redis失败", zap.Error(err))
	}

	zap.L().Info("✅ Alpha15 Sentry 已安全关闭")
}

// WaitForShutdown 等待关闭信号；单次模式下会话结束也会返回
func (app *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := app.done
	if app.cron != nil {
		done = nil
	}

	select {
	case sig := <-sigCh:
		zap.L().Info("📴 收到停止信号", zap.String("signal", sig.String()))
	case <-done:
	}
}

// Err 单次模式会话的错误
func (app *App) Err() error {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.err
}

func (app *App) setErr(err error) {
	app.mu.Lock()
	app.err = err
	app.mu.Unlock()
}
