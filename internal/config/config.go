package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Market   Market   `mapstructure:"market"`
	Replay   Replay   `mapstructure:"replay"`
	Trading  Trading  `mapstructure:"trading"`
	Notifier Notifier `mapstructure:"notifier"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Market holds the configuration for the synthetic price generator and the
// sliding price window.
type Market struct {
	BasePrice        float64 `mapstructure:"base_price"`
	MaxPoints        int     `mapstructure:"max_points"`
	MAWindow         int     `mapstructure:"ma_window"`
	VolatilityWindow int     `mapstructure:"volatility_window"`
	LiveIntervalMs   int     `mapstructure:"live_interval_ms"`
}

// Replay holds the configuration for historical playback.
type Replay struct {
	BaseIntervalMs int   `mapstructure:"base_interval_ms"`
	Speeds         []int `mapstructure:"speeds"`
}

// Trading holds the configuration for the paper-trading ledger.
type Trading struct {
	InitialBalance float64 `mapstructure:"initial_balance"`
}

// Notifier holds the configuration for outbound notifications.
type Notifier struct {
	WebhookURL     string  `mapstructure:"webhook_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Server holds the configuration for the HTTP API server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the trade journal database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err = viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults cover every knob.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	err = viper.Unmarshal(&config)
	return
}

func setDefaults() {
	viper.SetDefault("market.base_price", 150.0)
	viper.SetDefault("market.max_points", 50)
	viper.SetDefault("market.ma_window", 50)
	viper.SetDefault("market.volatility_window", 14)
	viper.SetDefault("market.live_interval_ms", 1200)

	viper.SetDefault("replay.base_interval_ms", 1000)
	viper.SetDefault("replay.speeds", []int{1, 5, 10})

	viper.SetDefault("trading.initial_balance", 10000.0)

	viper.SetDefault("notifier.webhook_url", "")
	viper.SetDefault("notifier.rate_limit", 5) // notifications per second
	viper.SetDefault("notifier.rate_limit_burst", 10)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")

	viper.SetDefault("server.port", 8080)

	viper.SetDefault("database.dsn", "quantstream.db")
}
