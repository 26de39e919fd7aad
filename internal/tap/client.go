package tap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/clipengine/internal/capture"
	"github.com/dgnsrekt/clipengine/internal/codes"
	"github.com/dgnsrekt/clipengine/internal/config"
)

// attachedTab is the live chromedp context for one attached target.
type attachedTab struct {
	ctx    context.Context
	cancel context.CancelFunc
	url    string
}

// Tap owns the CDP connection to a remote Chromium instance, attaches to
// every capturable tab, and decodes network/page events into
// capture.Pipeline calls. It is modeled on the teacher's internal/cdp.Client
// (single remote allocator, per-tab chromedp.NewContext + ListenTarget),
// generalized with the spec's attach/detach-on-pause policy and integer
// tab ids (registry.go).
type Tap struct {
	pipeline *capture.Pipeline
	reactive *config.Reactive

	allocCtx    context.Context
	allocCancel context.CancelFunc

	reg *registry

	mu   sync.Mutex
	tabs map[target.ID]*attachedTab

	unsubscribe func()
}

// New builds an unconnected Tap that feeds pipeline and follows reactive's
// pause flag; Connect supplies the browser's debugging address.
func New(pipeline *capture.Pipeline, reactive *config.Reactive) *Tap {
	return &Tap{
		pipeline: pipeline,
		reactive: reactive,
		reg:      newRegistry(),
		tabs:     make(map[target.ID]*attachedTab),
	}
}

// Connect opens the remote allocator and attaches to every capturable,
// currently open tab, then starts watching pause/resume transitions. It
// does not watch for new targets: a tab opened after Connect is attached
// only when a later resume re-enumerates the open tabs.
func (t *Tap) Connect(ctx context.Context, cdpURL string) error {
	slog.Info("tap connecting to browser", "url", cdpURL)
	t.allocCtx, t.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cdpURL)

	probeCtx, probeCancel := chromedp.NewContext(t.allocCtx)
	defer probeCancel()
	if err := chromedp.Run(probeCtx); err != nil {
		return codes.Wrap(codes.TapAttachFailed, "connect to browser", err)
	}

	if !t.reactive.Paused() {
		if err := t.attachAll(probeCtx); err != nil {
			return err
		}
	}

	ch, unsubscribe := t.reactive.Subscribe()
	t.unsubscribe = unsubscribe
	go t.watchPause(ctx, ch)

	return nil
}

func (t *Tap) watchPause(ctx context.Context, ch <-chan config.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-ch:
			if !ok {
				return
			}
			if change.Key != "paused" {
				continue
			}
			paused, _ := change.Value.(bool)
			if paused {
				t.detachAll()
			} else {
				probeCtx, cancel := chromedp.NewContext(t.allocCtx)
				if err := t.attachAll(probeCtx); err != nil {
					slog.Error("re-attach on resume failed", "error", err)
				}
				cancel()
			}
		}
	}
}

func (t *Tap) attachAll(probeCtx context.Context) error {
	targets, err := chromedp.Targets(probeCtx)
	if err != nil {
		return codes.Wrap(codes.TapAttachFailed, "enumerate targets", err)
	}
	for _, tgt := range targets {
		if tgt.Type != "page" {
			continue
		}
		if !IsCapturable(tgt.URL) {
			continue
		}
		if err := t.attach(tgt.TargetID, tgt.URL); err != nil {
			slog.Warn("tab attach failed", "target_id", tgt.TargetID, "url", tgt.URL, "error", err)
		}
	}
	return nil
}

func (t *Tap) attach(targetID target.ID, url string) error {
	t.mu.Lock()
	if _, already := t.tabs[targetID]; already {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	tabID := t.reg.idFor(targetID, url)

	tabCtx, cancel := chromedp.NewContext(t.allocCtx, chromedp.WithTargetID(targetID))
	if err := chromedp.Run(tabCtx, network.Enable(), network.SetCacheDisabled(true), page.Enable()); err != nil {
		cancel()
		return fmt.Errorf("enable network/page domains: %w", err)
	}

	t.mu.Lock()
	t.tabs[targetID] = &attachedTab{ctx: tabCtx, cancel: cancel, url: url}
	t.mu.Unlock()

	chromedp.ListenTarget(tabCtx, t.eventHandler(targetID, tabID, tabCtx))
	slog.Info("tap attached to tab", "tab_id", tabID, "target_id", targetID)
	return nil
}

// Detach releases one tab's attachment and drops its in-flight state
// (spec §4.4: "any state --[owning tab closed]--> DROP without emit").
func (t *Tap) Detach(targetID target.ID) {
	t.mu.Lock()
	tab, ok := t.tabs[targetID]
	if ok {
		delete(t.tabs, targetID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	tab.cancel()
	if tabID, ok := t.reg.lookup(targetID); ok {
		t.pipeline.DropTab(tabID)
	}
	t.reg.forget(targetID)
}

func (t *Tap) detachAll() {
	t.mu.Lock()
	ids := make([]target.ID, 0, len(t.tabs))
	for id := range t.tabs {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	for _, id := range ids {
		t.Detach(id)
	}
}

// AttachedCount reports how many tabs are currently attached.
func (t *Tap) AttachedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tabs)
}

// Close tears down every attachment and the underlying allocator.
func (t *Tap) Close() error {
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
	t.detachAll()
	if t.allocCancel != nil {
		t.allocCancel()
	}
	return nil
}

func (t *Tap) eventHandler(targetID target.ID, tabID int, tabCtx context.Context) func(ev interface{}) {
	ctx := context.Background()
	return func(raw interface{}) {
		switch ev := raw.(type) {
		case *page.EventFrameNavigated:
			if ev.Frame.ParentID == "" && !IsCapturable(ev.Frame.URL) {
				go t.Detach(targetID)
			}
		case *network.EventRequestWillBeSent:
			t.pipeline.OnRequestWillBeSent(ctx, decodeRequestWillBeSent(tabID, ev))
		case *network.EventResponseReceived:
			t.pipeline.OnResponseReceived(decodeResponseReceived(ev))
		case *network.EventLoadingFinished:
			t.pipeline.OnLoadingFinished(ctx, decodeLoadingFinished(ev), t.responseBodyFetcher(tabCtx))
		case *network.EventLoadingFailed:
			t.pipeline.OnLoadingFailed(ctx, decodeLoadingFailed(ev))
		case *network.EventWebSocketCreated:
			t.pipeline.OnWSCreated(decodeWSCreated(tabID, ev))
		case *network.EventWebSocketFrameSent:
			t.pipeline.OnWSFrameSent(ctx, decodeWSFrame(ev))
		case *network.EventWebSocketFrameReceived:
			t.pipeline.OnWSFrameReceived(ctx, decodeWSFrameReceived(ev))
		case *network.EventWebSocketClosed:
			t.pipeline.OnWSClosed(decodeWSClosed(ev))
		case *network.EventEventSourceMessageReceived:
			t.pipeline.OnSSEMessage(ctx, decodeEventSourceMessage(tabID, t.reg.urlFor(targetID), ev))
		}
	}
}

// responseBodyFetcher returns the capture.GetResponseBody closure bound to
// one tab's chromedp context, mirroring the teacher's inline ActionFunc
// call to network.GetResponseBody. cdproto decodes a base64-encoded body
// into body itself, so the capture layer never sees the encoded form.
func (t *Tap) responseBodyFetcher(tabCtx context.Context) capture.GetResponseBody {
	return func(requestID string) ([]byte, bool, error) {
		bodyCtx, cancel := context.WithTimeout(tabCtx, 10*time.Second)
		defer cancel()
		var body []byte
		err := chromedp.Run(bodyCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			body, err = network.GetResponseBody(network.RequestID(requestID)).Do(ctx)
			return err
		}))
		return body, false, err
	}
}
