package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus represents the engine's health as served on /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	PipelineState   string
	LastMessageTime time.Time
	RedisConnected  bool
	RedisLatencyMs  float64
	JournalEnabled  bool
	JournalOK       bool
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		PipelineState: "starting",
		StartedAt:     time.Now(),
	}
}

func (h *HealthStatus) SetPipelineState(s string) {
	h.mu.Lock()
	h.PipelineState = s
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastMessageTime(t time.Time) {
	h.mu.Lock()
	h.LastMessageTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetJournal(enabled, ok bool) {
	h.mu.Lock()
	h.JournalEnabled = enabled
	h.JournalOK = ok
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the journal database.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	err := db.PingContext(ctx)

	h.mu.Lock()
	h.JournalOK = err == nil
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
// sqlDB may be nil when the journal is disabled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.RedisConnected || h.PipelineState != "running" || (h.JournalEnabled && !h.JournalOK) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if h.PipelineState == "terminated" {
		overallStatus = "unhealthy"
	}

	messageAge := ""
	lastMessage := ""
	if !h.LastMessageTime.IsZero() {
		messageAge = time.Since(h.LastMessageTime).Round(time.Millisecond).String()
		lastMessage = h.LastMessageTime.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		PipelineState   string  `json:"pipeline_state"`
		LastMessageTime string  `json:"last_message_time"`
		MessageAge      string  `json:"message_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		JournalEnabled  bool    `json:"journal_enabled"`
		JournalOK       bool    `json:"journal_ok"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		PipelineState:   h.PipelineState,
		LastMessageTime: lastMessage,
		MessageAge:      messageAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		JournalEnabled:  h.JournalEnabled,
		JournalOK:       h.JournalOK,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
