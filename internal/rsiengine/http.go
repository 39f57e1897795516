package rsiengine

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"rsi-engine/internal/model"
)

// EmissionLister reads back journaled emissions.
type EmissionLister interface {
	Recent(ctx context.Context, token string, limit int) ([]model.EmissionRecord, error)
}

type emissionDTO struct {
	Token     string  `json:"token_address"`
	RSI       float64 `json:"rsi"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp_ms"`
	Outcome   string  `json:"outcome"`
	EntryID   string  `json:"entry_id,omitempty"`
	Error     string  `json:"error,omitempty"`
	LatencyMs float64 `json:"latency_ms"`
}

// emissionsHandler serves GET /emissions?token=<token_address>&limit=<n>.
func emissionsHandler(l EmissionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "GET only", http.StatusMethodNotAllowed)
			return
		}
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "token is required", http.StatusBadRequest)
			return
		}
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 1000 {
				http.Error(w, "limit must be between 1 and 1000", http.StatusBadRequest)
				return
			}
			limit = n
		}

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		recs, err := l.Recent(ctx, token, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		out := make([]emissionDTO, 0, len(recs))
		for _, rec := range recs {
			out = append(out, emissionDTO{
				Token:     rec.Token,
				RSI:       rec.RSI,
				Price:     rec.Price,
				Timestamp: rec.Timestamp.UnixMilli(),
				Outcome:   rec.Outcome,
				EntryID:   rec.EntryID,
				Error:     rec.Error,
				LatencyMs: rec.LatencyMs,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}
