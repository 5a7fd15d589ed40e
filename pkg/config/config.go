package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"alpha15-sentry/pkg/types"
)

// Load 从 ./configs 或当前目录加载配置
func Load() (*types.Config, error) {
	return LoadFrom("./configs", ".")
}

// LoadFrom 依次读取 config.local.yaml、config.yaml；环境变量覆盖文件配置，
// 凭证可放在 .env 中（如 SMARTAPI_API_KEY、TELEGRAM_BOT_TOKEN）
func LoadFrom(paths ...string) (*types.Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// 设置默认值
	setDefaults(v)

	// 读取环境变量，smartapi.api_key -> SMARTAPI_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 优先尝试读取本地配置文件
	v.SetConfigName("config.local")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// 如果本地配置文件不存在，尝试读取默认配置文件
		v.SetConfigName("config")
		if err := v.ReadInConfig(); err != nil {
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	var config types.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_path", "logs")
	v.SetDefault("log.max_size", 200)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.compress", false)

	v.SetDefault("smartapi.base_url", "https://apiconnect.angelone.in")
	v.SetDefault("smartapi.api_key", "")
	v.SetDefault("smartapi.client_code", "")
	v.SetDefault("smartapi.pin", "")
	v.SetDefault("smartapi.totp_secret", "")

	v.SetDefault("instruments.file", "futures_masterlist.csv")
	v.SetDefault("instruments.symbols", []string{})
	v.SetDefault("instruments.exchange", "NFO")

	v.SetDefault("session.timezone", "Asia/Kolkata")
	v.SetDefault("session.market_open", "09:15")
	v.SetDefault("session.market_close", "15:30")
	v.SetDefault("session.window_start", "09:30")
	v.SetDefault("session.window_end", "09:45")
	v.SetDefault("session.first_candle_cutoff", "09:30")
	v.SetDefault("session.atr_lookback_days", 30)
	v.SetDefault("session.cycle_delay", 5*time.Second)
	v.SetDefault("session.instrument_delay", 2*time.Second)
	v.SetDefault("session.wait_poll", time.Minute)
	v.SetDefault("session.holidays", []string{})

	v.SetDefault("notify.max_attempts", 3)
	v.SetDefault("notify.backoff", time.Second)

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("dingtalk.webhook_url", "")
	v.SetDefault("dingtalk.secret", "")
	v.SetDefault("pushplus.user_token", "")
	v.SetDefault("pushplus.to", "")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("database.driver", "")
	v.SetDefault("database.sqlite_path", "alpha15.db")
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.username", "root")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "alpha15")
	v.SetDefault("database.mysql.max_idle_conns", 5)
	v.SetDefault("database.mysql.max_open_conns", 10)
	v.SetDefault("database.postgres.url", "")
	v.SetDefault("database.postgres.max_conns", 4)

	v.SetDefault("stream.enabled", false)
	v.SetDefault("stream.endpoint", "wss://smartapisocket.angelone.in/smart-stream")
	v.SetDefault("stream.reconnect_interval", 5*time.Second)
	v.SetDefault("stream.ping_interval", 30*time.Second)
	v.SetDefault("stream.max_reconnect_attempts", 10)
	v.SetDefault("stream.max_quote_age", 10*time.Second)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("daemon.enabled", false)
	v.SetDefault("daemon.cron", "25 9 * * 1-5")

	v.SetDefault("network.proxy", "")
	v.SetDefault("network.timeout", 30*time.Second)
}
