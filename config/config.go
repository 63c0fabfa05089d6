package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all engine configuration, loaded once at process start.
type Config struct {
	Environment string

	Symbol              string
	MarketZone          string
	Timeframes          []string
	MaxBarsPerSeries    int
	MaxLevelsPerSide    int
	MaxTrades           int
	EnforceMinBarVolume bool

	Historical HistoricalConfig
	Realtime   RealtimeConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Logging    LoggingConfig
}

// HistoricalConfig configures the REST HistoricalDataSource client.
type HistoricalConfig struct {
	BaseURL   string
	APIKey    string
	RetryMax  int
	RetryWaitSeconds int
}

// RealtimeConfig configures the WebSocket RealtimeTransport client.
type RealtimeConfig struct {
	URL                string
	PingIntervalSeconds int
	DefaultTradeVolume uint64
}

// RedisConfig configures the optional event fan-out (distribution, not
// persistence — see distribute.Fanout).
type RedisConfig struct {
	Addr          string
	Enabled       bool
	ChannelPrefix string
}

// JWTConfig holds the expected session-token shape constraints (§4.10);
// the engine never signs or issues tokens itself.
type JWTConfig struct {
	MinLength int
}

// LoggingConfig configures the optional rotating file log sink. An
// empty FilePath leaves logging on stdout only.
type LoggingConfig struct {
	FilePath           string
	MaxSizeMB          int
	MaxBackups         int
	CompressionEnabled bool
}

// Load loads configuration from the environment, optionally seeded from
// a .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),

		Symbol:              getEnv("SYMBOL", "ESZ5"),
		MarketZone:           getEnv("MARKET_ZONE", "America/Chicago"),
		Timeframes:           getEnvAsSlice("TIMEFRAMES", []string{"1min", "5min", "1hr"}, ","),
		MaxBarsPerSeries:     getEnvAsInt("MAX_BARS_PER_SERIES", 1000),
		MaxLevelsPerSide:     getEnvAsInt("MAX_LEVELS_PER_SIDE", 100),
		MaxTrades:            getEnvAsInt("MAX_TRADES", 1000),
		EnforceMinBarVolume:  getEnvAsBool("ENFORCE_MIN_BAR_VOLUME", false),

		Historical: HistoricalConfig{
			BaseURL:          getEnv("HISTORICAL_BASE_URL", "https://api.example.com/historical"),
			APIKey:           getEnv("HISTORICAL_API_KEY", ""),
			RetryMax:         getEnvAsInt("HISTORICAL_RETRY_MAX", 3),
			RetryWaitSeconds: getEnvAsInt("HISTORICAL_RETRY_WAIT_SECONDS", 2),
		},

		Realtime: RealtimeConfig{
			URL:                 getEnv("REALTIME_URL", "wss://stream.example.com/market"),
			PingIntervalSeconds: getEnvAsInt("REALTIME_PING_INTERVAL_SECONDS", 30),
			DefaultTradeVolume:  uint64(getEnvAsInt("REALTIME_DEFAULT_TRADE_VOLUME", 25)),
		},

		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Enabled:       getEnvAsBool("REDIS_FANOUT_ENABLED", false),
			ChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "marketcore"),
		},

		JWT: JWTConfig{
			MinLength: getEnvAsInt("JWT_MIN_LENGTH", 50),
		},

		Logging: LoggingConfig{
			FilePath:           getEnv("LOG_FILE_PATH", ""),
			MaxSizeMB:          getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups:         getEnvAsInt("LOG_MAX_BACKUPS", 10),
			CompressionEnabled: getEnvAsBool("LOG_COMPRESSION_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required configuration is present for the given
// environment.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("SYMBOL is required")
	}
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("TIMEFRAMES must list at least one timeframe")
	}
	if c.Environment == "production" {
		if c.Historical.BaseURL == "" {
			return fmt.Errorf("HISTORICAL_BASE_URL is required in production")
		}
		if c.Realtime.URL == "" {
			return fmt.Errorf("REALTIME_URL is required in production")
		}
	}
	return nil
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string, sep string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	return strings.Split(valueStr, sep)
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultVal
	}
	return value
}
