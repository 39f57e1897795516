package rsiengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var configKeys = []string{
	"BROKER", "BROKER_PASSWORD", "TRADE_TOPIC", "RSI_TOPIC", "RSI_PERIOD",
	"GROUP_ID", "CONSUMER_NAME", "AUTO_OFFSET_RESET", "MAX_HISTORY",
	"PUBLISH_TIMEOUT_MS", "RSI_STREAM_MAXLEN", "METRICS_ADDR", "JOURNAL_PATH", "LOG_LEVEL",
}

func clearConfigEnv(t *testing.T) {
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv(t)
	assert.Equal(t, DefaultConfig(), LoadConfig())

	cfg := LoadConfig()
	assert.Equal(t, "localhost:6379", cfg.BrokerAddr)
	assert.Equal(t, "trade-data", cfg.TradeTopic)
	assert.Equal(t, "rsi-data", cfg.RSITopic)
	assert.Equal(t, "rsi-service", cfg.GroupID)
	assert.Equal(t, "earliest", cfg.OffsetReset)
	assert.Equal(t, 14, cfg.RSIPeriod)
	assert.Equal(t, 200, cfg.MaxHistory)
	assert.Equal(t, 5*time.Second, cfg.PublishTimeout)
	assert.Empty(t, cfg.JournalPath)
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("BROKER", "redis:6380")
	t.Setenv("TRADE_TOPIC", "trades")
	t.Setenv("RSI_TOPIC", "rsi")
	t.Setenv("RSI_PERIOD", "7")
	t.Setenv("GROUP_ID", "g")
	t.Setenv("AUTO_OFFSET_RESET", "LATEST")
	t.Setenv("MAX_HISTORY", "50")
	t.Setenv("PUBLISH_TIMEOUT_MS", "250")
	t.Setenv("RSI_STREAM_MAXLEN", "1000")
	t.Setenv("JOURNAL_PATH", "data/emissions.db")

	cfg := LoadConfig()
	assert.Equal(t, "redis:6380", cfg.BrokerAddr)
	assert.Equal(t, "trades", cfg.TradeTopic)
	assert.Equal(t, "rsi", cfg.RSITopic)
	assert.Equal(t, 7, cfg.RSIPeriod)
	assert.Equal(t, "g", cfg.GroupID)
	assert.Equal(t, "latest", cfg.OffsetReset)
	assert.Equal(t, 50, cfg.MaxHistory)
	assert.Equal(t, 250*time.Millisecond, cfg.PublishTimeout)
	assert.Equal(t, int64(1000), cfg.StreamMaxLen)
	assert.Equal(t, "data/emissions.db", cfg.JournalPath)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("RSI_PERIOD", "-3")
	t.Setenv("MAX_HISTORY", "lots")
	t.Setenv("AUTO_OFFSET_RESET", "middle")
	t.Setenv("PUBLISH_TIMEOUT_MS", "0")

	cfg := LoadConfig()
	assert.Equal(t, 14, cfg.RSIPeriod)
	assert.Equal(t, 200, cfg.MaxHistory)
	assert.Equal(t, "earliest", cfg.OffsetReset)
	assert.Equal(t, 5*time.Second, cfg.PublishTimeout)
}
