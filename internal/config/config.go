package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"morpho-rate-alerts/internal/logging"
	"morpho-rate-alerts/internal/version"
)

// ErrInvalid marks a missing or malformed setting. Loading fails before any network call.
var ErrInvalid = errors.New("invalid configuration")

// State backends understood by the state store factory.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Market    MarketConfig    `mapstructure:"market"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	State     StateConfig     `mapstructure:"state"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// MarketConfig identifies the watched lending market and the API serving it.
type MarketConfig struct {
	UniqueKey      string        `mapstructure:"unique_key"`
	ChainID        int           `mapstructure:"chain_id"`
	Endpoint       string        `mapstructure:"endpoint"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// AlertingConfig defines the threshold and routing.
type AlertingConfig struct {
	// Threshold is a fraction, 0.07 means 7%.
	Threshold float64        `mapstructure:"threshold"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	BotToken           string        `mapstructure:"bot_token"`
	ChatID             string        `mapstructure:"chat_id"`
	APIBase            string        `mapstructure:"api_base"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	DisableLinkPreview bool          `mapstructure:"disable_link_preview"`
}

// StateConfig selects where the alert state lives.
type StateConfig struct {
	Backend  string `mapstructure:"backend"`
	FilePath string `mapstructure:"file_path"`
	Lock     bool   `mapstructure:"lock"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// RedisConfig encapsulates Redis connectivity.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
}

// SchedulerConfig governs the watch cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	Cron          string        `mapstructure:"cron"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// MetricsConfig controls prometheus exposure.
type MetricsConfig struct {
	ListenAddr     string `mapstructure:"listen_addr"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// legacyEnv maps keys to the environment names used by earlier deployments.
var legacyEnv = map[string]string{
	"market.unique_key":           "MORPHO_MARKET_UNIQUE_KEY",
	"market.chain_id":             "MORPHO_CHAIN_ID",
	"alerting.threshold":          "BORROW_APY_THRESHOLD",
	"alerting.telegram.bot_token": "TG_BOT_TOKEN",
	"alerting.telegram.chat_id":   "TG_CHAT_ID",
}

const envPrefix = "RATEALERT"

// Load builds configuration from an optional .env file, config file, environment, and defaults.
func Load(path, envFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func bindLegacyEnv(v *viper.Viper) error {
	for key, legacy := range legacyEnv {
		primary := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, primary, legacy); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ratealert")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", "")
	v.SetDefault("logging.caller", false)
	v.SetDefault("logging.pretty", false)

	v.SetDefault("market.unique_key", "")
	v.SetDefault("market.chain_id", 1)
	v.SetDefault("market.endpoint", "https://api.morpho.org/graphql")
	v.SetDefault("market.request_timeout", "20s")
	v.SetDefault("market.user_agent", version.UserAgent())

	v.SetDefault("alerting.threshold", 0.07)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.request_timeout", "20s")
	v.SetDefault("alerting.telegram.disable_link_preview", true)

	v.SetDefault("state.backend", BackendFile)
	v.SetDefault("state.file_path", "state.json")
	v.SetDefault("state.lock", true)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	// 0 derives the lock key from market and chain
	v.SetDefault("database.advisory_lock_key", int64(0))

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "ratealert")
	v.SetDefault("redis.lock_ttl", "1m")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.cron", "")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "ratealert")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

func (c *Config) normalize() {
	c.Market.UniqueKey = strings.TrimSpace(c.Market.UniqueKey)
	c.Alerting.Telegram.BotToken = strings.TrimSpace(c.Alerting.Telegram.BotToken)
	c.Alerting.Telegram.ChatID = strings.TrimSpace(c.Alerting.Telegram.ChatID)
	c.State.Backend = strings.ToLower(strings.TrimSpace(c.State.Backend))
}

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	if err := c.validateMarket(); err != nil {
		return err
	}
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if c.Alerting.Threshold < 0 {
		return fmt.Errorf("%w: alerting.threshold cannot be negative", ErrInvalid)
	}

	switch c.State.Backend {
	case BackendFile:
		if c.State.FilePath == "" {
			return fmt.Errorf("%w: state.file_path is required for the file backend", ErrInvalid)
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("%w: database.dsn is required for the postgres backend", ErrInvalid)
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr is required for the redis backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown state.backend %q", ErrInvalid, c.State.Backend)
	}

	if c.Scheduler.Cron != "" {
		if _, err := cron.ParseStandard(c.Scheduler.Cron); err != nil {
			return fmt.Errorf("%w: scheduler.cron: %v", ErrInvalid, err)
		}
	} else if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("%w: scheduler.interval must be greater than zero", ErrInvalid)
	}
	return nil
}

// validateMarket checks the settings needed to query the market.
func (c *Config) validateMarket() error {
	if c.Market.UniqueKey == "" {
		return fmt.Errorf("%w: market.unique_key (MORPHO_MARKET_UNIQUE_KEY) is required", ErrInvalid)
	}
	if c.Market.ChainID <= 0 {
		return fmt.Errorf("%w: market.chain_id must be positive", ErrInvalid)
	}
	if c.Market.Endpoint == "" {
		return fmt.Errorf("%w: market.endpoint is required", ErrInvalid)
	}
	if c.Market.RequestTimeout <= 0 {
		return fmt.Errorf("%w: market.request_timeout must be greater than zero", ErrInvalid)
	}
	return nil
}

// validateTelegram checks the bot credentials.
func (c *Config) validateTelegram() error {
	if c.Alerting.Telegram.BotToken == "" {
		return fmt.Errorf("%w: alerting.telegram.bot_token (TG_BOT_TOKEN) 必须配置", ErrInvalid)
	}
	if c.Alerting.Telegram.ChatID == "" {
		return fmt.Errorf("%w: alerting.telegram.chat_id (TG_CHAT_ID) 必须配置", ErrInvalid)
	}
	if c.Alerting.Telegram.RequestTimeout <= 0 {
		return fmt.Errorf("%w: alerting.telegram.request_timeout must be greater than zero", ErrInvalid)
	}
	return nil
}
