package rsiengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"rsi-engine/internal/logger"
	"rsi-engine/internal/model"
)

type published struct {
	key     string
	payload []byte
	traceID string
	ctxErr  error
	hasDL   bool
}

// fakePublisher records every publish. When gate is non-nil each call waits
// for it to close (or for ctx) before returning.
type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
	gate chan struct{}
	seq  int
}

func (f *fakePublisher) Publish(ctx context.Context, key string, payload []byte) (string, error) {
	_, hasDL := ctx.Deadline()
	p := published{
		key:     key,
		payload: append([]byte(nil), payload...),
		traceID: logger.TraceID(ctx),
		ctxErr:  ctx.Err(),
		hasDL:   hasDL,
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			f.mu.Lock()
			f.msgs = append(f.msgs, p)
			f.mu.Unlock()
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, p)
	if f.err != nil {
		return "", f.err
	}
	f.seq++
	return fmt.Sprintf("%d-0", f.seq), nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func (f *fakePublisher) all() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

func (f *fakePublisher) results(t *testing.T) []model.IndicatorResult {
	t.Helper()
	var out []model.IndicatorResult
	for _, m := range f.all() {
		var r model.IndicatorResult
		if err := json.Unmarshal(m.payload, &r); err != nil {
			t.Fatalf("bad payload %q: %v", m.payload, err)
		}
		out = append(out, r)
	}
	return out
}

type fakeJournal struct {
	mu   sync.Mutex
	recs []model.EmissionRecord
}

func (f *fakeJournal) Record(rec model.EmissionRecord) {
	f.mu.Lock()
	f.recs = append(f.recs, rec)
	f.mu.Unlock()
}

func (f *fakeJournal) all() []model.EmissionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.EmissionRecord(nil), f.recs...)
}

type fakeAcks struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeAcks) Enqueue(id string) {
	f.mu.Lock()
	f.ids = append(f.ids, id)
	f.mu.Unlock()
}

func (f *fakeAcks) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

type fakeCommitter struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (f *fakeCommitter) Ack(_ context.Context, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]string(nil), ids...))
	return f.err
}

func (f *fakeCommitter) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func (f *fakeCommitter) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, b := range f.batches {
		out = append(out, len(b))
	}
	return out
}
