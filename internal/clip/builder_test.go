package clip

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dgnsrekt/clipengine/internal/store"
	"github.com/dgnsrekt/clipengine/internal/types"
)

func mustOpenStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open() = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestBuildProducesOneEntryWithinRange(t *testing.T) {
	st := mustOpenStore(t)
	ctx := context.Background()

	env := types.Envelope{ID: "e1", Timestamp: 1000, TabID: 1, Hostname: "api.example.com"}
	entry := types.HTTPEntry{
		Envelope:  env,
		StartedAt: formatISO(1000),
		Request: types.HTTPRequest{
			Method: "GET", URL: "https://api.example.com/users?token=abc&page=1",
			Headers: []types.Header{{Name: "Authorization", Value: "Bearer x"}},
			QueryString: []types.QueryParam{{Name: "token", Value: "abc"}, {Name: "page", Value: "1"}},
		},
		Response: types.HTTPResponse{Status: 200, Content: types.HTTPContent{Size: 500, Text: `{"users":[]}`}},
	}
	if _, err := st.Append(ctx, types.StreamHTTP, env, entry, env.Timestamp, func() string { return "e1" }); err != nil {
		t.Fatalf("Append() = %v", err)
	}

	doc, count, err := Build(ctx, st, Request{StartMS: 0, EndMS: 2000})
	if err != nil {
		t.Fatalf("Build() = %v", err)
	}
	if count != 1 {
		t.Fatalf("expected entry_count 1, got %d", count)
	}
	if len(doc.Log.Entries) != 1 {
		t.Fatalf("expected 1 har entry, got %d", len(doc.Log.Entries))
	}
}

func TestBuildEmptyRangeProducesEmptySkeleton(t *testing.T) {
	st := mustOpenStore(t)
	doc, count, err := Build(context.Background(), st, Request{StartMS: 0, EndMS: 1000})
	if err != nil {
		t.Fatalf("Build() = %v", err)
	}
	if count != 0 {
		t.Fatalf("expected entry_count 0, got %d", count)
	}
	if doc.Log.Version != harVersion {
		t.Fatalf("expected har version %q, got %q", harVersion, doc.Log.Version)
	}
	if len(doc.Log.Entries) != 0 || len(doc.Log.WSEvents) != 0 || len(doc.Log.SSEItems) != 0 {
		t.Fatalf("expected empty skeleton, got %+v", doc.Log)
	}
}

func TestBuildSortsEntriesAscendingByTimestamp(t *testing.T) {
	st := mustOpenStore(t)
	ctx := context.Background()

	for _, ts := range []int64{3000, 1000, 2000} {
		env := types.Envelope{ID: formatISO(ts), Timestamp: ts, TabID: 1, Hostname: "x.test"}
		entry := types.HTTPEntry{Envelope: env, StartedAt: formatISO(ts)}
		id := env.ID
		if _, err := st.Append(ctx, types.StreamHTTP, env, entry, ts, func() string { return id }); err != nil {
			t.Fatalf("Append() = %v", err)
		}
	}

	doc, _, err := Build(ctx, st, Request{StartMS: 0, EndMS: 4000})
	if err != nil {
		t.Fatalf("Build() = %v", err)
	}
	if len(doc.Log.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(doc.Log.Entries))
	}
	for i := 1; i < len(doc.Log.Entries); i++ {
		if doc.Log.Entries[i-1].StartedDateTime > doc.Log.Entries[i].StartedDateTime {
			t.Fatalf("expected ascending order, got %v", doc.Log.Entries)
		}
	}
}

func TestBuildRoundTripsThroughJSON(t *testing.T) {
	st := mustOpenStore(t)
	ctx := context.Background()
	env := types.Envelope{ID: "ws1", Timestamp: 500, TabID: 2, Hostname: "x.test"}
	frame := types.WSFrame{Envelope: env, Direction: "send", Opcode: 1, Data: "hello"}
	if _, err := st.Append(ctx, types.StreamWS, env, frame, env.Timestamp, func() string { return "ws1" }); err != nil {
		t.Fatalf("Append() = %v", err)
	}

	doc, _, err := Build(ctx, st, Request{StartMS: 0, EndMS: 1000})
	if err != nil {
		t.Fatalf("Build() = %v", err)
	}
	b, err := marshalForCompare(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(doc.Log.WSEvents) != 1 {
		t.Fatalf("expected 1 ws message, got %d", len(doc.Log.WSEvents))
	}
	if len(b) == 0 {
		t.Fatalf("expected non-empty serialized document")
	}
	var back Document
	if err := json.Unmarshal([]byte(b), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.Log.WSEvents) != 1 || back.Log.WSEvents[0].Data != "hello" {
		t.Fatalf("expected ws message to survive the round trip, got %+v", back.Log.WSEvents)
	}
}
