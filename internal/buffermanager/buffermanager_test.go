package buffermanager

import (
	"context"
	"testing"
	"time"

	"github.com/dgnsrekt/clipengine/internal/config"
	"github.com/dgnsrekt/clipengine/internal/store"
	"github.com/dgnsrekt/clipengine/internal/types"
)

func newTestManager(t *testing.T) (*Manager, *store.Store, *config.Reactive) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open() = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	r, err := config.NewReactive("")
	if err != nil {
		t.Fatalf("config.NewReactive() = %v", err)
	}
	return New(st, r, time.Hour), st, r
}

func appendHTTP(t *testing.T, st *store.Store, id string, tsMS int64) {
	t.Helper()
	env := types.Envelope{ID: id, Timestamp: tsMS, TabID: 1, Hostname: "x.test"}
	_, err := st.Append(context.Background(), types.StreamHTTP, env, types.HTTPEntry{Envelope: env}, tsMS, func() string { return id })
	if err != nil {
		t.Fatalf("Append() = %v", err)
	}
}

func TestPassEvictsRecordsOlderThan24Hours(t *testing.T) {
	m, st, _ := newTestManager(t)
	fixedNow := time.UnixMilli(1_000_000_000_000)
	m.now = func() time.Time { return fixedNow }

	appendHTTP(t, st, "old", fixedNow.Add(-25*time.Hour).UnixMilli())
	appendHTTP(t, st, "fresh", fixedNow.Add(-1*time.Hour).UnixMilli())

	if err := m.Pass(context.Background()); err != nil {
		t.Fatalf("Pass() = %v", err)
	}

	n, err := st.Count(context.Background(), types.StreamHTTP)
	if err != nil {
		t.Fatalf("Count() = %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 surviving record, got %d", n)
	}
}

func TestPassRecordsLastCleanupMetadata(t *testing.T) {
	m, st, _ := newTestManager(t)
	fixedNow := time.UnixMilli(2_000_000_000_000)
	m.now = func() time.Time { return fixedNow }

	if err := m.Pass(context.Background()); err != nil {
		t.Fatalf("Pass() = %v", err)
	}

	v, ok, err := st.GetMeta(context.Background(), "last-cleanup")
	if err != nil {
		t.Fatalf("GetMeta() = %v", err)
	}
	if !ok || v == "" {
		t.Fatalf("expected last-cleanup to be recorded")
	}
	if _, ok, err := st.GetMeta(context.Background(), "last-usage-bytes"); err != nil || !ok {
		t.Fatalf("expected last-usage-bytes to be recorded, ok=%v err=%v", ok, err)
	}
}

func TestTriggerCoalescesConcurrentRequests(t *testing.T) {
	m, _, _ := newTestManager(t)

	done := make(chan struct{})
	go func() {
		m.Trigger(context.Background())
		close(done)
	}()
	m.Trigger(context.Background())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for trigger goroutine")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		running := m.running
		m.mu.Unlock()
		if !running {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected running to settle to false")
}

func TestBufferSpanEmptyStoreReturnsNils(t *testing.T) {
	m, _, _ := newTestManager(t)
	oldest, newest, duration, err := m.BufferSpan(context.Background())
	if err != nil {
		t.Fatalf("BufferSpan() = %v", err)
	}
	if oldest != nil || newest != nil || duration != 0 {
		t.Fatalf("expected nil span on empty store, got oldest=%v newest=%v duration=%d", oldest, newest, duration)
	}
}

func TestClassifyPressureThresholds(t *testing.T) {
	cases := []struct {
		usage, cap int64
		want       Pressure
	}{
		{50, 100, PressureNormal},
		{80, 100, PressureWarning},
		{95, 100, PressureCritical},
		{0, 0, PressureNormal},
	}
	for _, c := range cases {
		if got := classifyPressure(c.usage, c.cap); got != c.want {
			t.Errorf("classifyPressure(%d, %d) = %q, want %q", c.usage, c.cap, got, c.want)
		}
	}
}
