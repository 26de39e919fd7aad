package capture

import (
	"context"
	"log/slog"

	"github.com/dgnsrekt/clipengine/internal/types"
)

const sseEventCeiling = 256 * 1024

// OnSSEMessage emits a server-sent event directly; there is no pending
// state for SSE (spec §4.2). When the tap's request id matches a live
// pending-HTTP transaction (the EventSource's own upgrade request), the
// hostname is resolved from it; otherwise it is resolved from the
// event's own URL.
func (p *Pipeline) OnSSEMessage(ctx context.Context, ev SSEMessage) {
	hostname := hostnameOf(ev.URL)

	p.mu.Lock()
	if pend, ok := p.pending[ev.RequestID]; ok {
		hostname = pend.hostname
	}
	p.mu.Unlock()

	eventType := ev.EventName
	if eventType == "" {
		eventType = "message"
	}

	data, truncated, originalSize, hash := truncateStringBytes(ev.Data, sseEventCeiling)
	if truncated {
		slog.Warn("sse event truncated", "request_id", ev.RequestID, "original_size", originalSize, "sha256", hash)
	}

	event := types.SSEEvent{
		Envelope:  types.Envelope{TabID: ev.TabID, Hostname: hostname, Timestamp: p.now().UnixMilli()},
		URL:       ev.URL,
		EventType: eventType,
		Data:      data,
		EventID:   ev.EventID,
	}
	if _, err := p.st.Append(ctx, types.StreamSSE, event.Envelope, event, event.Envelope.Timestamp, p.genID); err != nil {
		slog.Error("failed to append sse event", "request_id", ev.RequestID, "error", err)
	}
}
