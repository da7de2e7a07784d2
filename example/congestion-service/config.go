package main

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const defaultConfigFile = "/etc/congestion.yaml"

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Log      LogConfig      `mapstructure:"log"`
}

type HTTPConfig struct {
	Address        string        `mapstructure:"address"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
}

type PollerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type CacheConfig struct {
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type NotifierConfig struct {
	ListenQueueSize int `mapstructure:"listen_queue_size"`
}

type UpstreamConfig struct {
	BaseURL     string   `mapstructure:"base_url"`
	APIKey      string   `mapstructure:"api_key"`
	Areas       []string `mapstructure:"areas"`
	Concurrency int      `mapstructure:"concurrency"`
}

// RedisConfig with an empty address disables state persistence
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// PostgresConfig with an empty DSN disables the alert journal
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func configPath() string {
	if path := os.Getenv("CONGESTION_CONFIG"); path != "" {
		return path
	}
	return defaultConfigFile
}

// loadConfig reads the yaml file at path. A missing file is not an error,
// defaults and CONGESTION_* environment variables apply.
func loadConfig(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("http.address", "localhost:9090")
	v.SetDefault("http.allowed_origins", []string{"localhost:*"})
	v.SetDefault("http.heartbeat", 30*time.Second)
	v.SetDefault("poller.interval", 300*time.Second)
	v.SetDefault("poller.fetch_timeout", 30*time.Second)
	v.SetDefault("cache.stale_after", time.Duration(0))
	v.SetDefault("notifier.listen_queue_size", 64)
	v.SetDefault("upstream.base_url", "http://openapi.seoul.go.kr:8088")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.areas", []string{})
	v.SetDefault("upstream.concurrency", 8)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "congestion:previous-levels")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("CONGESTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	payload, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Msgf("config file %v not found, using defaults", path)
	case err != nil:
		return Config{}, err
	default:
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewReader(payload)); err != nil {
			return Config{}, err
		}
		log.Info().Msgf("reading config: %v", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		log.Warn().Msgf("unknown log level %q, using info", level)
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
