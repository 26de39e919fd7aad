package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dgnsrekt/clipengine/internal/codes"
	"github.com/dgnsrekt/clipengine/internal/types"
)

func mustOpen(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seqID(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return prefix + string(rune('0'+n))
	}
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	s := mustOpen(t)
	ctx := context.Background()
	gen := seqID("h")

	env, err := s.Append(ctx, types.StreamHTTP, types.Envelope{TabID: 1, Hostname: "example.com"}, types.HTTPEntry{}, 1000, gen)
	if err != nil {
		t.Fatalf("Append() = %v", err)
	}
	if env.ID == "" {
		t.Fatalf("expected assigned id")
	}
	if env.Timestamp != 1000 {
		t.Fatalf("expected timestamp filled from now, got %d", env.Timestamp)
	}
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	s := mustOpen(t)
	ctx := context.Background()
	env := types.Envelope{ID: "fixed", TabID: 1, Hostname: "example.com", Timestamp: 1}

	if _, err := s.Append(ctx, types.StreamHTTP, env, types.HTTPEntry{}, 1, seqID("x")); err != nil {
		t.Fatalf("first append: %v", err)
	}
	_, err := s.Append(ctx, types.StreamHTTP, env, types.HTTPEntry{}, 2, seqID("x"))
	if !codes.Is(err, codes.DuplicateId) {
		t.Fatalf("expected DuplicateId, got %v", err)
	}
}

func TestScanOrdersByTimestampAndFiltersByTab(t *testing.T) {
	s := mustOpen(t)
	ctx := context.Background()

	records := []types.Envelope{
		{ID: "a", Timestamp: 300, TabID: 1, Hostname: "a.com"},
		{ID: "b", Timestamp: 100, TabID: 2, Hostname: "b.com"},
		{ID: "c", Timestamp: 200, TabID: 1, Hostname: "c.com"},
	}
	for _, env := range records {
		if _, err := s.Append(ctx, types.StreamHTTP, env, types.HTTPEntry{Envelope: env}, 0, seqID("x")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rows, err := s.Scan(ctx, types.StreamHTTP, 0, 1000, types.TabFilter{})
	if err != nil {
		t.Fatalf("Scan() = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	wantOrder := []string{"b", "c", "a"}
	for i, w := range wantOrder {
		if rows[i].Envelope.ID != w {
			t.Fatalf("rows[%d].ID = %q, want %q", i, rows[i].Envelope.ID, w)
		}
	}

	filtered, err := s.Scan(ctx, types.StreamHTTP, 0, 1000, types.TabFilter{Tabs: []int{1}})
	if err != nil {
		t.Fatalf("Scan() filtered = %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 filtered rows, got %d", len(filtered))
	}
}

func TestDeleteOlderThanRemovesAgedRecords(t *testing.T) {
	s := mustOpen(t)
	ctx := context.Background()

	ids := seqID("t")
	for i, ts := range []int64{100, 200, 300} {
		env := types.Envelope{ID: ids(), Timestamp: ts, TabID: i}
		if _, err := s.Append(ctx, types.StreamHTTP, env, types.HTTPEntry{}, 0, seqID("g")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	n, err := s.DeleteOlderThan(ctx, types.StreamHTTP, 200)
	if err != nil {
		t.Fatalf("DeleteOlderThan() = %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
	count, err := s.Count(ctx, types.StreamHTTP)
	if err != nil {
		t.Fatalf("Count() = %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 remaining, got %d", count)
	}
}

func TestDeleteOldestRemovesSmallestTimestampsFirst(t *testing.T) {
	s := mustOpen(t)
	ctx := context.Background()

	gen := seqID("w")
	for _, ts := range []int64{50, 10, 30, 20, 40} {
		env := types.Envelope{ID: gen(), Timestamp: ts}
		if _, err := s.Append(ctx, types.StreamWS, env, types.WSFrame{}, 0, seqID("g")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	n, err := s.DeleteOldest(ctx, types.StreamWS, 2)
	if err != nil {
		t.Fatalf("DeleteOldest() = %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}

	min, _, err := s.Extremes(ctx, types.StreamWS)
	if err != nil {
		t.Fatalf("Extremes() = %v", err)
	}
	if min == nil || *min != 30 {
		t.Fatalf("expected new min 30, got %v", min)
	}
}

func TestExtremesEmptyStreamReturnsNil(t *testing.T) {
	s := mustOpen(t)
	min, max, err := s.Extremes(context.Background(), types.StreamSSE)
	if err != nil {
		t.Fatalf("Extremes() = %v", err)
	}
	if min != nil || max != nil {
		t.Fatalf("expected nil extremes for empty stream, got min=%v max=%v", min, max)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	s := mustOpen(t)
	ctx := context.Background()

	if _, ok, err := s.GetMeta(ctx, "last-cleanup"); err != nil || ok {
		t.Fatalf("expected absent key, ok=%v err=%v", ok, err)
	}
	if err := s.PutMeta(ctx, "last-cleanup", "1000"); err != nil {
		t.Fatalf("PutMeta() = %v", err)
	}
	v, ok, err := s.GetMeta(ctx, "last-cleanup")
	if err != nil || !ok || v != "1000" {
		t.Fatalf("GetMeta() = %q, %v, %v", v, ok, err)
	}
	if err := s.PutMeta(ctx, "last-cleanup", "2000"); err != nil {
		t.Fatalf("PutMeta() overwrite = %v", err)
	}
	v, _, _ = s.GetMeta(ctx, "last-cleanup")
	if v != "2000" {
		t.Fatalf("expected overwritten value 2000, got %q", v)
	}
}

func TestClearAllWipesAllStreams(t *testing.T) {
	s := mustOpen(t)
	ctx := context.Background()

	for _, stream := range []types.Stream{types.StreamHTTP, types.StreamWS, types.StreamSSE} {
		env := types.Envelope{ID: string(stream), Timestamp: 1}
		if _, err := s.Append(ctx, stream, env, struct{}{}, 0, seqID("g")); err != nil {
			t.Fatalf("append %s: %v", stream, err)
		}
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() = %v", err)
	}
	for _, stream := range []types.Stream{types.StreamHTTP, types.StreamWS, types.StreamSSE} {
		n, err := s.Count(ctx, stream)
		if err != nil || n != 0 {
			t.Fatalf("expected empty %s after ClearAll, got n=%d err=%v", stream, n, err)
		}
	}
}

func TestOperationsAfterCloseReturnStoreClosed(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	_, err = s.Append(context.Background(), types.StreamHTTP, types.Envelope{}, types.HTTPEntry{}, 1, seqID("g"))
	if !codes.Is(err, codes.StoreClosed) {
		t.Fatalf("expected StoreClosed, got %v", err)
	}
}

func TestRowPayloadRoundTripsConcreteType(t *testing.T) {
	s := mustOpen(t)
	ctx := context.Background()

	entry := types.HTTPEntry{
		Envelope:  types.Envelope{ID: "e1", Timestamp: 10, TabID: 7, Hostname: "api.example.com"},
		RequestID: "req-1",
		Request:   types.HTTPRequest{Method: "GET", URL: "https://api.example.com/x"},
	}
	if _, err := s.Append(ctx, types.StreamHTTP, entry.Envelope, entry, 0, seqID("g")); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows, err := s.Scan(ctx, types.StreamHTTP, 0, 100, types.TabFilter{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	var got types.HTTPEntry
	if err := json.Unmarshal(rows[0].Payload, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.RequestID != "req-1" || got.Request.Method != "GET" {
		t.Fatalf("unexpected round-tripped entry: %+v", got)
	}
}
