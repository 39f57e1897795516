package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.MessagesConsumed.Inc()
	a.Emissions.WithLabelValues("delivered").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.MessagesConsumed))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.MessagesConsumed))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.Emissions.WithLabelValues("delivered")))
}

func TestServer_ExposesMetricsAndHealth(t *testing.T) {
	m := NewMetrics()
	m.ParseErrors.Inc()
	h := NewHealthStatus()
	srv := NewServer(":0", m, h)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "rsiengine_parse_errors_total 1"))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "not running yet")
}

func TestHealthStatus_States(t *testing.T) {
	cases := []struct {
		name     string
		setup    func(h *HealthStatus)
		wantCode int
		want     string
	}{
		{
			name: "healthy",
			setup: func(h *HealthStatus) {
				h.SetPipelineState("running")
				h.SetRedisConnected(true)
			},
			wantCode: http.StatusOK,
			want:     "healthy",
		},
		{
			name: "redis down",
			setup: func(h *HealthStatus) {
				h.SetPipelineState("running")
			},
			wantCode: http.StatusServiceUnavailable,
			want:     "degraded",
		},
		{
			name: "journal broken",
			setup: func(h *HealthStatus) {
				h.SetPipelineState("running")
				h.SetRedisConnected(true)
				h.SetJournal(true, false)
			},
			wantCode: http.StatusServiceUnavailable,
			want:     "degraded",
		},
		{
			name: "terminated",
			setup: func(h *HealthStatus) {
				h.SetPipelineState("terminated")
				h.SetRedisConnected(true)
			},
			wantCode: http.StatusServiceUnavailable,
			want:     "unhealthy",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthStatus()
			tc.setup(h)
			h.SetLastMessageTime(time.Now())

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			require.Equal(t, tc.wantCode, rec.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.want, body["status"])
			assert.NotEmpty(t, body["message_age"])
		})
	}
}
