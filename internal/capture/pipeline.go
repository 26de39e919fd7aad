// Package capture converts the tap's raw network events into normalized
// store records (spec §4.2). It is the only mutator of the pending-HTTP
// and open-WS maps; the teacher's HTTPCapture/WebSocketCapture pair
// (internal/capture/http.go, websocket.go) is the model for the split
// between the two streams, generalized here into a single Pipeline that
// also owns the SSE path and the finite HTTP state machine the teacher
// never needed.
package capture

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/idna"

	"github.com/dgnsrekt/clipengine/internal/store"
	"github.com/dgnsrekt/clipengine/internal/types"
)

// pendingHTTP is the in-memory, per-transaction state kept between
// request_will_be_sent and the terminal loading_finished/loading_failed
// event (spec §4.2's HTTP state machine).
type pendingHTTP struct {
	state       httpState
	tabID       int
	hostname    string
	requestedAt time.Time
	request     types.HTTPRequest
	response    types.HTTPResponse
	resourceType string
}

type httpState int

const (
	httpPending httpState = iota
	httpPendingWithResponse
)

// openWS is the in-memory state of a WebSocket connection between
// ws_created and ws_closed.
type openWS struct {
	tabID    int
	hostname string
	url      string
}

// Pipeline is the capture-and-normalize stage between the tap and the
// Store. A single Pipeline is shared by all attached tabs; the
// dispatcher that feeds it events is expected to be single-threaded per
// spec §5, but the maps are still guarded because body-retrieval and SSE
// callbacks can interleave with other tabs' events.
type Pipeline struct {
	st *store.Store

	mu      sync.Mutex
	pending map[string]*pendingHTTP
	openWS  map[string]*openWS

	genID func() string
	now   func() time.Time
}

// New builds a Pipeline backed by st.
func New(st *store.Store) *Pipeline {
	return &Pipeline{
		st:      st,
		pending: make(map[string]*pendingHTTP),
		openWS:  make(map[string]*openWS),
		genID:   uuid.NewString,
		now:     time.Now,
	}
}

// hostnameOf extracts and normalizes the host component of a captured
// URL. Non-ASCII hosts are converted to their IDNA ASCII ("punycode")
// form so the hostname index column stays comparable regardless of how
// a given tab's address bar rendered it.
func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		return ascii
	}
	return host
}

// DropTab discards any in-flight HTTP transactions and open WebSocket
// connections belonging to tabID without emitting records (spec §3, I4;
// §4.2 "any state --[owning tab closed]--> DROP without emit").
func (p *Pipeline) DropTab(tabID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, pend := range p.pending {
		if pend.tabID == tabID {
			delete(p.pending, id)
		}
	}
	for id, ws := range p.openWS {
		if ws.tabID == tabID {
			delete(p.openWS, id)
		}
	}
}

// PendingCount reports the number of in-flight HTTP transactions, for
// status reporting.
func (p *Pipeline) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// OpenWSCount reports the number of open WebSocket connections.
func (p *Pipeline) OpenWSCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.openWS)
}

func (p *Pipeline) emitHTTP(ctx context.Context, env types.Envelope, entry types.HTTPEntry) {
	if _, err := p.st.Append(ctx, types.StreamHTTP, env, entry, env.Timestamp, p.genID); err != nil {
		slog.Error("failed to append http entry", "request_id", entry.RequestID, "error", err)
	}
}

// logBodyFetchFailed is the spec §7 TapBodyUnavailable policy: log and
// continue, never abort the owning transaction.
func logBodyFetchFailed(requestID string, err error) {
	slog.Debug("response body retrieval failed", "request_id", requestID, "error", err)
}
