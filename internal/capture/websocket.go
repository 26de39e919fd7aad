package capture

import (
	"context"
	"log/slog"

	"github.com/dgnsrekt/clipengine/internal/types"
)

const wsFrameCeiling = 1 * 1024 * 1024

// OnWSCreated opens a connection slot keyed by the tap's request id
// (spec §4.2's WS state: OPEN on ws_created).
func (p *Pipeline) OnWSCreated(ev WSCreated) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openWS[ev.RequestID] = &openWS{tabID: ev.TabID, hostname: hostnameOf(ev.URL), url: ev.URL}
}

// OnWSClosed removes the connection slot without emitting a record.
func (p *Pipeline) OnWSClosed(ev WSClosed) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.openWS, ev.RequestID)
}

func (p *Pipeline) onWSFrame(ctx context.Context, ev WSFrame, direction string) {
	p.mu.Lock()
	conn, ok := p.openWS[ev.RequestID]
	p.mu.Unlock()
	if !ok {
		// Frames received before OPEN are dropped (spec §4.2).
		return
	}

	data, truncated, originalSize, hash := truncateStringBytes(ev.PayloadData, wsFrameCeiling)
	if truncated {
		slog.Warn("ws frame truncated", "request_id", ev.RequestID, "original_size", originalSize, "sha256", hash)
	}

	frame := types.WSFrame{
		Envelope:  types.Envelope{TabID: conn.tabID, Hostname: conn.hostname, Timestamp: p.now().UnixMilli()},
		ConnID:    ev.RequestID,
		URL:       conn.url,
		Direction: direction,
		Opcode:    ev.Opcode,
		Data:      data,
		Size:      len(ev.PayloadData),
	}
	if _, err := p.st.Append(ctx, types.StreamWS, frame.Envelope, frame, frame.Envelope.Timestamp, p.genID); err != nil {
		slog.Error("failed to append ws frame", "request_id", ev.RequestID, "error", err)
	}
}

// OnWSFrameSent records an outgoing frame.
func (p *Pipeline) OnWSFrameSent(ctx context.Context, ev WSFrame) {
	p.onWSFrame(ctx, ev, "send")
}

// OnWSFrameReceived records an incoming frame.
func (p *Pipeline) OnWSFrameReceived(ctx context.Context, ev WSFrame) {
	p.onWSFrame(ctx, ev, "receive")
}
