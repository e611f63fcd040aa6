package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"market_scanner/internal/models"
	"market_scanner/pkg/logger"
	"market_scanner/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	envPrefix         = "SCANNER"
	configDir         = "configs"
)

// Config ...
type Config struct {
	Service struct {
		Name       string `mapstructure:"name"`
		LogLevel   string `mapstructure:"log_level"`
		Dev        bool   `mapstructure:"dev"`
		HealthAddr string `mapstructure:"health_addr"`
	} `mapstructure:"service"`

	Telegram struct {
		Token       string `mapstructure:"token"`
		AdminChatID int64  `mapstructure:"admin_chat_id"`
	} `mapstructure:"telegram"`

	DB struct {
		DSN      string `mapstructure:"dsn"`
		MaxConns int32  `mapstructure:"max_conns"`
	} `mapstructure:"db"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		Channel  string `mapstructure:"channel"`
	} `mapstructure:"redis"`

	Market   MarketConfig   `mapstructure:"market"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Settings SettingsConfig `mapstructure:"settings"`

	// Дефолты стратегии (создаём юзеру при первом запуске)
	Defaults models.ScanConfig `mapstructure:"defaults"`

	Tracing tracing.Config `mapstructure:"tracing"`

	Bootstrap struct {
		Enabled bool `mapstructure:"enabled"`
		Symbols int  `mapstructure:"symbols"`
	} `mapstructure:"bootstrap"`
}

type MarketConfig struct {
	Provider string `mapstructure:"provider"` // okx | binance
	BaseURL  string `mapstructure:"base_url"`
	WSURL    string `mapstructure:"ws_url"`

	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	RPS            float64       `mapstructure:"rps"`
	Burst          int           `mapstructure:"burst"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBase      time.Duration `mapstructure:"retry_base"`
	RetryMax       time.Duration `mapstructure:"retry_max"`
	SymbolsTTL     time.Duration `mapstructure:"symbols_ttl"`
	TickerStream   bool          `mapstructure:"ticker_stream"`

	Binance struct {
		APIKey    string `mapstructure:"api_key"`
		SecretKey string `mapstructure:"secret_key"`
	} `mapstructure:"binance"`
}

type CacheConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type ScannerConfig struct {
	Tick    time.Duration `mapstructure:"tick"`
	Workers int           `mapstructure:"workers"`
}

type SettingsConfig struct {
	Backend  string `mapstructure:"backend"` // pg | file
	FilePath string `mapstructure:"file_path"`
}

func defaults() Config {
	var c Config
	c.Service.Name = "market_scanner"
	c.Service.LogLevel = "info"
	c.Service.HealthAddr = ":8080"

	c.DB.MaxConns = 10
	c.Redis.Channel = "scanner:signals"

	c.Market = MarketConfig{
		Provider:       "okx",
		BaseURL:        "https://www.okx.com",
		WSURL:          "wss://ws.okx.com:8443/ws/v5/public",
		MaxConcurrent:  8,
		RPS:            10,
		Burst:          20,
		RequestTimeout: 10 * time.Second,
		RetryAttempts:  4,
		RetryBase:      500 * time.Millisecond,
		RetryMax:       8 * time.Second,
		SymbolsTTL:     10 * time.Minute,
	}
	c.Cache.Capacity = 500
	c.Scanner = ScannerConfig{Tick: 5 * time.Second, Workers: 16}
	c.Settings = SettingsConfig{Backend: "file", FilePath: "data/users.yaml"}
	c.Defaults = models.DefaultScanConfig()
	c.Bootstrap.Symbols = 30
	return c
}

func NewConfig() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}

	v := viper.New()
	v.SetConfigFile(configDir + "/" + configFileName)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", configFileName, err)
		}
		logger.Warn("[CONFIG] файл %s не найден, работаем на дефолтах и env", configFileName)
	}

	config := defaults()
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB.DSN = dsn
	}

	config.Defaults = config.Defaults.Normalized()
	return &config, nil
}

// bindEnvKeys: AutomaticEnv видит только известные viper ключи.
func bindEnvKeys(v *viper.Viper) {
	for _, k := range []string{
		"service.log_level", "service.dev", "service.health_addr",
		"telegram.token", "telegram.admin_chat_id",
		"db.dsn", "db.max_conns",
		"redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.channel",
		"market.provider", "market.base_url", "market.ws_url", "market.max_concurrent",
		"market.rps", "market.burst", "market.request_timeout", "market.retry_attempts",
		"market.ticker_stream", "market.binance.api_key", "market.binance.secret_key",
		"cache.capacity",
		"scanner.tick", "scanner.workers",
		"settings.backend", "settings.file_path",
		"tracing.enabled", "tracing.host", "tracing.port",
		"bootstrap.enabled", "bootstrap.symbols",
	} {
		_ = v.BindEnv(k)
	}
}
