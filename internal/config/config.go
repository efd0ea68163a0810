package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"ais-diff-events/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Port      PortConfig      `mapstructure:"port"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects and parameterises the store backend.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres | sqlite | memory
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"` // sqlite file
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs pipeline cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	RunAtStart      bool          `mapstructure:"run_at_start"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// FeedConfig covers the third-party AIS endpoint.
type FeedConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// PortConfig identifies the tracked port and the fetch time window.
type PortConfig struct {
	Code      string        `mapstructure:"code"`
	Timezone  string        `mapstructure:"timezone"`
	Lookback  time.Duration `mapstructure:"lookback"`
	Lookahead time.Duration `mapstructure:"lookahead"`
}

// Location resolves the port-local timezone, defaulting to UTC+8.
func (p PortConfig) Location() *time.Location {
	if p.Timezone != "" {
		if loc, err := time.LoadLocation(p.Timezone); err == nil {
			return loc
		}
	}
	return time.FixedZone("UTC+8", 8*3600)
}

// RulesConfig 规则阈值配置：到港窗口、吃水突变、信号失联等级。
type RulesConfig struct {
	ArrivalSoon        time.Duration `mapstructure:"arrival_soon"`
	ArrivalImminent    time.Duration `mapstructure:"arrival_imminent"`
	ArrivalUrgent      time.Duration `mapstructure:"arrival_urgent"`
	DraughtSpike       float64       `mapstructure:"draught_spike"`
	StaleWarnHours     float64       `mapstructure:"stale_warn_hours"`
	StaleCriticalHours float64       `mapstructure:"stale_critical_hours"`
	ArrivedWindow      time.Duration `mapstructure:"arrived_window"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHIPWATCHER")
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
	v.SetDefault("app.name", "shipwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "30m")
	v.SetDefault("scheduler.run_at_start", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x73686970))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("feed.request_timeout", "10s")
	v.SetDefault("feed.user_agent", "shipwatcher/1.0")

	v.SetDefault("port.timezone", "Asia/Shanghai")
	v.SetDefault("port.lookback", "24h")
	v.SetDefault("port.lookahead", "72h")

	v.SetDefault("rules.arrival_soon", "6h")
	v.SetDefault("rules.arrival_imminent", "2h")
	v.SetDefault("rules.arrival_urgent", "30m")
	v.SetDefault("rules.draught_spike", 1.5)
	v.SetDefault("rules.stale_warn_hours", 6.0)
	v.SetDefault("rules.stale_critical_hours", 24.0)
	v.SetDefault("rules.arrived_window", "24h")

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
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("database.driver must be one of postgres/sqlite/memory, got %q", c.Database.Driver)
	}
	if c.Port.Code == "" {
		return fmt.Errorf("port.code 必须配置")
	}
	if c.Port.Lookback < 0 || c.Port.Lookahead < 0 {
		return fmt.Errorf("port.lookback/lookahead cannot be negative")
	}
	if c.Rules.ArrivalSoon <= 0 || c.Rules.ArrivalImminent <= 0 || c.Rules.ArrivalUrgent <= 0 {
		return fmt.Errorf("rules.arrival_* windows must be greater than zero")
	}
	if c.Rules.ArrivalUrgent >= c.Rules.ArrivalImminent || c.Rules.ArrivalImminent >= c.Rules.ArrivalSoon {
		return fmt.Errorf("rules.arrival windows 必须满足 urgent < imminent < soon")
	}
	if c.Rules.DraughtSpike <= 0 {
		return fmt.Errorf("rules.draught_spike must be greater than zero")
	}
	if c.Rules.StaleWarnHours <= 0 || c.Rules.StaleCriticalHours <= c.Rules.StaleWarnHours {
		return fmt.Errorf("rules.stale thresholds must satisfy 0 < warn < critical")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
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
