package clip

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgnsrekt/clipengine/internal/store"
	"github.com/dgnsrekt/clipengine/internal/types"
)

func formatISO(tsMS int64) string {
	return time.UnixMilli(tsMS).UTC().Format(time.RFC3339Nano)
}

// Request is one create_clip invocation (spec §4.4).
type Request struct {
	StartMS  int64
	EndMS    int64
	Tabs     types.TabFilter
	ClipName string
	Browser  Browser
}

// Result is create_clip's return contract (spec §4.4: {success, clip_id?,
// entry_count, size_bytes, error?}).
type Result struct {
	Success    bool   `json:"success"`
	ClipID     string `json:"clip_id,omitempty"`
	EntryCount int    `json:"entry_count"`
	SizeBytes  int    `json:"size_bytes"`
	Error      string `json:"error,omitempty"`
}

// Build materializes an immutable snapshot of the store for the given
// time range and tab filter into an extended HAR document, sorted
// ascending by timestamp across all three streams (spec §4.4).
func Build(ctx context.Context, st *store.Store, req Request) (*Document, int, error) {
	httpRows, err := st.Scan(ctx, types.StreamHTTP, req.StartMS, req.EndMS, req.Tabs)
	if err != nil {
		return nil, 0, fmt.Errorf("scan http: %w", err)
	}
	wsRows, err := st.Scan(ctx, types.StreamWS, req.StartMS, req.EndMS, req.Tabs)
	if err != nil {
		return nil, 0, fmt.Errorf("scan ws: %w", err)
	}
	sseRows, err := st.Scan(ctx, types.StreamSSE, req.StartMS, req.EndMS, req.Tabs)
	if err != nil {
		return nil, 0, fmt.Errorf("scan sse: %w", err)
	}

	entries := make([]Entry, 0, len(httpRows))
	pageFirstSeen := make(map[string]types.HTTPEntry)
	var pageOrder []string
	for _, row := range httpRows {
		var e types.HTTPEntry
		if err := json.Unmarshal(row.Payload, &e); err != nil {
			return nil, 0, fmt.Errorf("decode http entry: %w", err)
		}
		entries = append(entries, entryFrom(e))
		if _, seen := pageFirstSeen[e.Hostname]; !seen {
			pageFirstSeen[e.Hostname] = e
			pageOrder = append(pageOrder, e.Hostname)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		ti, _ := time.Parse(time.RFC3339Nano, entries[i].StartedDateTime)
		tj, _ := time.Parse(time.RFC3339Nano, entries[j].StartedDateTime)
		return ti.Before(tj)
	})

	wsMessages := make([]WSMessage, 0, len(wsRows))
	for _, row := range wsRows {
		var f types.WSFrame
		if err := json.Unmarshal(row.Payload, &f); err != nil {
			return nil, 0, fmt.Errorf("decode ws frame: %w", err)
		}
		wsMessages = append(wsMessages, wsMessageFrom(f))
	}
	sort.SliceStable(wsMessages, func(i, j int) bool {
		ti, _ := time.Parse(time.RFC3339Nano, wsMessages[i].Timestamp)
		tj, _ := time.Parse(time.RFC3339Nano, wsMessages[j].Timestamp)
		return ti.Before(tj)
	})

	sseItems := make([]SSEItem, 0, len(sseRows))
	for _, row := range sseRows {
		var e types.SSEEvent
		if err := json.Unmarshal(row.Payload, &e); err != nil {
			return nil, 0, fmt.Errorf("decode sse event: %w", err)
		}
		sseItems = append(sseItems, sseItemFrom(e))
	}
	sort.SliceStable(sseItems, func(i, j int) bool {
		ti, _ := time.Parse(time.RFC3339Nano, sseItems[i].Timestamp)
		tj, _ := time.Parse(time.RFC3339Nano, sseItems[j].Timestamp)
		return ti.Before(tj)
	})

	pages := make([]Page, 0, len(pageOrder))
	for _, host := range pageOrder {
		e := pageFirstSeen[host]
		pages = append(pages, Page{
			StartedDateTime: e.StartedAt,
			ID:              host,
			Title:           host,
			PageTimings:     PageTimings{OnContentLoad: -1, OnLoad: -1},
		})
	}

	browser := req.Browser
	if browser.Name == "" {
		browser = Browser{Name: "unknown", Version: "unknown"}
	}

	doc := &Document{Log: Log{
		Version:  harVersion,
		Creator:  Creator{Name: "Browser Clip", Version: creatorVersion},
		Browser:  browser,
		Pages:    pages,
		Entries:  entries,
		WSEvents: wsMessages,
		SSEItems: sseItems,
	}}

	entryCount := len(entries) + len(wsMessages) + len(sseItems)
	return doc, entryCount, nil
}
