// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Fx        FxConfig        `mapstructure:"fx"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// EngineConfig holds the ledger/tree engine parameters. Monetary values are
// decimal strings in the base currency, parsed once at startup.
type EngineConfig struct {
	BaseCurrency        string   `mapstructure:"base_currency"`
	ActivationThreshold string   `mapstructure:"activation_threshold"`
	ReferralReward      string   `mapstructure:"referral_reward"`
	CommissionSchedule  []string `mapstructure:"commission_schedule"`
	TeamReward          string   `mapstructure:"team_reward"`
	TeamRewardSize      int      `mapstructure:"team_reward_size"`
	SpinMin             string   `mapstructure:"spin_min"`
	SpinMax             string   `mapstructure:"spin_max"`
	WithdrawalMinimum   string   `mapstructure:"withdrawal_minimum"`

	// AmountTolerance is the permitted deviation, in minor units, between a
	// provider-reported amount and the recorded intent.
	AmountTolerance int64 `mapstructure:"amount_tolerance"`
}

// ProvidersConfig holds payment-provider adapter configuration.
type ProvidersConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
	Sandbox      SandboxConfig `mapstructure:"sandbox"`
}

// SandboxConfig holds the development sandbox adapter configuration.
type SandboxConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	SettleAfter time.Duration `mapstructure:"settle_after"`
}

// FxConfig holds display-layer currency conversion rates. Each rate is the
// KES value of one unit of the currency, as a decimal string.
type FxConfig struct {
	RatesToBase map[string]string `mapstructure:"rates_to_base"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. DATABASE_HOST, ENGINE_ACTIVATION_THRESHOLD.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file not found is OK; env vars can provide everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "earnplatform")
	v.SetDefault("database.name", "earnplatform")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Engine defaults mirror the production platform schedule.
	v.SetDefault("engine.base_currency", "KES")
	v.SetDefault("engine.activation_threshold", "500.00")
	v.SetDefault("engine.referral_reward", "50.00")
	v.SetDefault("engine.commission_schedule", []string{"50.00", "30.00", "20.00", "10.00", "5.00"})
	v.SetDefault("engine.team_reward", "50.00")
	v.SetDefault("engine.team_reward_size", 100)
	v.SetDefault("engine.spin_min", "10.00")
	v.SetDefault("engine.spin_max", "100.00")
	v.SetDefault("engine.withdrawal_minimum", "100.00")
	v.SetDefault("engine.amount_tolerance", 1)

	// Provider defaults
	v.SetDefault("providers.poll_interval", "30s")
	v.SetDefault("providers.poll_timeout", "10s")
	v.SetDefault("providers.stale_after", "2m")
	v.SetDefault("providers.sandbox.enabled", false)
	v.SetDefault("providers.sandbox.settle_after", "5s")

	// Display-rate fallbacks: KES per unit of currency.
	v.SetDefault("fx.rates_to_base", map[string]string{
		"USD": "130",
		"UGX": "0.027027",
		"TZS": "0.043478",
	})
}
