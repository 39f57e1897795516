package rsiengine

import (
	"log/slog"
	"strings"
	"time"

	"rsi-engine/config"
	"rsi-engine/internal/history"
	"rsi-engine/internal/indicator"
	redisstore "rsi-engine/internal/store/redis"
)

// Config holds all env-parsed configuration for the RSI engine.
// Resolved once at startup and passed by value.
type Config struct {
	BrokerAddr     string
	BrokerPassword string
	TradeTopic     string // inbound stream
	RSITopic       string // outbound stream
	GroupID        string
	ConsumerName   string
	OffsetReset    string // "earliest" or "latest"
	RSIPeriod      int
	MaxHistory     int
	PublishTimeout time.Duration
	StreamMaxLen   int64
	MetricsAddr    string // empty disables the HTTP server
	JournalPath    string // empty disables the emission journal
	LogLevel       string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		BrokerAddr:     "localhost:6379",
		TradeTopic:     "trade-data",
		RSITopic:       "rsi-data",
		GroupID:        "rsi-service",
		ConsumerName:   "rsi-1",
		OffsetReset:    redisstore.OffsetEarliest,
		RSIPeriod:      indicator.DefaultRSIPeriod,
		MaxHistory:     history.DefaultMaxHistory,
		PublishTimeout: 5 * time.Second,
		StreamMaxLen:   100000,
		MetricsAddr:    ":9096",
		LogLevel:       "info",
	}
}

// LoadConfig reads all environment variables and returns a Config.
// Invalid values fall back to the defaults with a warning.
func LoadConfig() Config {
	d := DefaultConfig()

	offset := strings.ToLower(config.GetEnv("AUTO_OFFSET_RESET", d.OffsetReset))
	if offset != redisstore.OffsetEarliest && offset != redisstore.OffsetLatest {
		slog.Warn("[config] unknown AUTO_OFFSET_RESET, using default", "value", offset, "default", d.OffsetReset)
		offset = d.OffsetReset
	}

	return Config{
		BrokerAddr:     config.GetEnv("BROKER", d.BrokerAddr),
		BrokerPassword: config.GetEnv("BROKER_PASSWORD", ""),
		TradeTopic:     config.GetEnv("TRADE_TOPIC", d.TradeTopic),
		RSITopic:       config.GetEnv("RSI_TOPIC", d.RSITopic),
		GroupID:        config.GetEnv("GROUP_ID", d.GroupID),
		ConsumerName:   config.GetEnv("CONSUMER_NAME", d.ConsumerName),
		OffsetReset:    offset,
		RSIPeriod:      config.GetEnvInt("RSI_PERIOD", d.RSIPeriod),
		MaxHistory:     config.GetEnvInt("MAX_HISTORY", d.MaxHistory),
		PublishTimeout: config.GetEnvMillis("PUBLISH_TIMEOUT_MS", d.PublishTimeout),
		StreamMaxLen:   int64(config.GetEnvInt("RSI_STREAM_MAXLEN", int(d.StreamMaxLen))),
		MetricsAddr:    config.GetEnv("METRICS_ADDR", d.MetricsAddr),
		JournalPath:    config.GetEnv("JOURNAL_PATH", ""),
		LogLevel:       config.GetEnv("LOG_LEVEL", d.LogLevel),
	}
}
