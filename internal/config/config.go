package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"rwa-price-aggregator/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Server   ServerConfig   `mapstructure:"server"`
	Feeds    FeedsConfig    `mapstructure:"feeds"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RedisConfig covers the spread-state store. Disabled deployments fall
// back to process-local state.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PollerConfig governs the price-fetch cadence.
type PollerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToCycle    bool          `mapstructure:"align_to_cycle"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Retention       time.Duration `mapstructure:"retention"`
	MaxStaleness    time.Duration `mapstructure:"max_staleness"`
}

// AlertsConfig defines evaluation cadence and delivery parameters.
type AlertsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	CheckInterval  time.Duration `mapstructure:"check_interval"`
	SpreadStateTTL time.Duration `mapstructure:"spread_state_ttl"`
	Email          EmailConfig   `mapstructure:"email"`
}

// EmailConfig 描述 Postmark 邮件告警参数。
type EmailConfig struct {
	ServerToken    string        `mapstructure:"server_token"`
	FromAddress    string        `mapstructure:"from_address"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ServerConfig covers the JSON API listener.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// FeedsConfig aggregates per-venue client settings.
type FeedsConfig struct {
	FetchTimeout time.Duration     `mapstructure:"fetch_timeout"`
	UserAgent    string            `mapstructure:"user_agent"`
	Kraken       KrakenFeedConfig  `mapstructure:"kraken"`
	Bybit        BybitFeedConfig   `mapstructure:"bybit"`
	Uniswap      UniswapFeedConfig `mapstructure:"uniswap"`
	Onchain      OnchainFeedConfig `mapstructure:"onchain"`
}

// KrakenFeedConfig covers the Kraken REST client.
type KrakenFeedConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	BaseURL           string        `mapstructure:"base_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// BybitFeedConfig covers the Bybit REST client.
type BybitFeedConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// UniswapFeedConfig covers the Uniswap V3 subgraph client.
type UniswapFeedConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	SubgraphURL    string        `mapstructure:"subgraph_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// OnchainFeedConfig covers direct Ethereum RPC pool reads.
type OnchainFeedConfig struct {
	Enabled        bool                   `mapstructure:"enabled"`
	RPCURL         string                 `mapstructure:"rpc_url"`
	RequestTimeout time.Duration          `mapstructure:"request_timeout"`
	Pools          map[string]OnchainPool `mapstructure:"pools"`
}

// OnchainPool describes one Uniswap V3 pool contract per token symbol.
type OnchainPool struct {
	Address        string `mapstructure:"address"`
	Invert         bool   `mapstructure:"invert"`
	Token0Decimals int32  `mapstructure:"token0_decimals"`
	Token1Decimals int32  `mapstructure:"token1_decimals"`
	FeeBps         int64  `mapstructure:"fee_bps"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RWAWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
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
	v.SetDefault("app.name", "rwawatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("poller.interval", "30s")
	v.SetDefault("poller.align_to_cycle", true)
	v.SetDefault("poller.advisory_lock_key", int64(0x72776177))
	v.SetDefault("poller.startup_delay", "0s")
	v.SetDefault("poller.retention", "720h")
	v.SetDefault("poller.max_staleness", "60s")

	v.SetDefault("alerts.enabled", true)
	v.SetDefault("alerts.check_interval", "60s")
	v.SetDefault("alerts.spread_state_ttl", "168h")
	v.SetDefault("alerts.email.api_base", "https://api.postmarkapp.com")
	v.SetDefault("alerts.email.from_address", "alerts@rwawatch.local")
	v.SetDefault("alerts.email.request_timeout", "10s")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("feeds.fetch_timeout", "15s")
	v.SetDefault("feeds.user_agent", "rwawatch/1.0")
	v.SetDefault("feeds.kraken.enabled", true)
	v.SetDefault("feeds.kraken.base_url", "https://api.kraken.com")
	v.SetDefault("feeds.kraken.request_timeout", "10s")
	v.SetDefault("feeds.kraken.requests_per_second", 1.0)
	v.SetDefault("feeds.bybit.enabled", true)
	v.SetDefault("feeds.bybit.base_url", "https://api.bybit.com")
	v.SetDefault("feeds.bybit.request_timeout", "10s")
	v.SetDefault("feeds.uniswap.enabled", false)
	v.SetDefault("feeds.uniswap.request_timeout", "15s")
	v.SetDefault("feeds.onchain.enabled", false)
	v.SetDefault("feeds.onchain.request_timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)
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

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be greater than zero")
	}
	if c.Poller.MaxStaleness <= 0 {
		return fmt.Errorf("poller.max_staleness must be greater than zero")
	}
	if c.Alerts.Enabled && c.Alerts.CheckInterval <= 0 {
		return fmt.Errorf("alerts.check_interval must be greater than zero")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port 必须在 1-65535 之间")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr 必须配置")
	}
	if c.Feeds.Uniswap.Enabled && c.Feeds.Uniswap.SubgraphURL == "" {
		return fmt.Errorf("feeds.uniswap.subgraph_url 必须配置")
	}
	if c.Feeds.Onchain.Enabled && c.Feeds.Onchain.RPCURL == "" {
		return fmt.Errorf("feeds.onchain.rpc_url 必须配置")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
