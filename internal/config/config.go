package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ServerURL  string        `mapstructure:"server_url"`
	Token      string        `mapstructure:"token"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	// Reconnect policy for the realtime transport.
	RetryMinDelay time.Duration `mapstructure:"retry_min_delay"`
	RetryMaxDelay time.Duration `mapstructure:"retry_max_delay"`
	RetryAttempts int           `mapstructure:"retry_attempts"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("retry_min_delay", "500ms")
	v.SetDefault("retry_max_delay", "10s")
	v.SetDefault("retry_attempts", 5)
	v.SetDefault("request_timeout", "30s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
