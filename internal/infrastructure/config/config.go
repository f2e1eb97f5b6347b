package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the settlement service
type Config struct {
	Environment    string               `mapstructure:"environment"`
	LogLevel       string               `mapstructure:"log_level"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Chain          ChainConfig          `mapstructure:"chain"`
	Rail           RailConfig           `mapstructure:"rail"`
	Poller         PollerConfig         `mapstructure:"poller"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ChainConfig describes the escrow chain: the node endpoint, the escrow
// contract, and the operator account used for completeTrade calls.
type ChainConfig struct {
	RPCURL          string `mapstructure:"rpc_url"`
	EscrowAddress   string `mapstructure:"escrow_address"`
	OperatorAddress string `mapstructure:"operator_address"`
	TokenDecimals   int    `mapstructure:"token_decimals"`
	StartBlock      uint64 `mapstructure:"start_block"`
}

// RailConfig describes the external payment rail. When ClientID/ClientSecret
// are unset the client runs in mock mode (see adapters/rail).
type RailConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	SenderName    string `mapstructure:"sender_name"`
	Timeout       int    `mapstructure:"timeout"`
	MaxRetries    int    `mapstructure:"max_retries"`
}

// MockMode reports whether the rail client should simulate payouts
func (r RailConfig) MockMode() bool {
	return r.ClientID == "" || r.ClientSecret == ""
}

type PollerConfig struct {
	IntervalMs int  `mapstructure:"interval_ms"`
	Enabled    bool `mapstructure:"enabled"`
}

// Interval returns the poll interval as a duration
func (p PollerConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

// ReconciliationConfig drives the periodic report of reserved-but-unspent
// ledger funds and stale pending settlements.
type ReconciliationConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Schedule        string `mapstructure:"schedule"`
	PendingAgeHours int    `mapstructure:"pending_age_hours"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// .env is optional
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "settlement_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("chain.rpc_url", "http://localhost:8545")
	viper.SetDefault("chain.token_decimals", 6)
	viper.SetDefault("chain.start_block", 0)

	viper.SetDefault("rail.base_url", "https://api.rail.example")
	viper.SetDefault("rail.sender_name", "P2Ramp Settlement")
	viper.SetDefault("rail.timeout", 30)
	viper.SetDefault("rail.max_retries", 3)

	viper.SetDefault("poller.interval_ms", 8000)
	viper.SetDefault("poller.enabled", true)

	viper.SetDefault("reconciliation.enabled", true)
	viper.SetDefault("reconciliation.schedule", "0 * * * *")
	viper.SetDefault("reconciliation.pending_age_hours", 24)
}

// overrideFromEnv maps flat env var names that don't follow the dotted scheme
func overrideFromEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		viper.Set("database.url", v)
	}
	if v := os.Getenv("CHAIN_RPC_URL"); v != "" {
		viper.Set("chain.rpc_url", v)
	}
	if v := os.Getenv("ESCROW_CONTRACT_ADDRESS"); v != "" {
		viper.Set("chain.escrow_address", v)
	}
	if v := os.Getenv("RAIL_CLIENT_ID"); v != "" {
		viper.Set("rail.client_id", v)
	}
	if v := os.Getenv("RAIL_CLIENT_SECRET"); v != "" {
		viper.Set("rail.client_secret", v)
	}
	if v := os.Getenv("RAIL_WEBHOOK_SECRET"); v != "" {
		viper.Set("rail.webhook_secret", v)
	}
}

func validate(cfg *Config) error {
	if cfg.Chain.EscrowAddress == "" && cfg.Poller.Enabled {
		return fmt.Errorf("chain.escrow_address is required when the poller is enabled")
	}
	if cfg.Chain.TokenDecimals < 0 || cfg.Chain.TokenDecimals > 18 {
		return fmt.Errorf("chain.token_decimals must be between 0 and 18")
	}
	if cfg.Poller.IntervalMs <= 0 {
		return fmt.Errorf("poller.interval_ms must be positive")
	}
	if cfg.Environment == "production" && cfg.Rail.WebhookSecret == "" {
		return fmt.Errorf("rail.webhook_secret is required in production")
	}
	return nil
}
