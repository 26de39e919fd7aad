// Package tap connects to a remote Chromium instance over CDP and feeds
// capture.Pipeline the request/response/frame events it observes. It is
// modeled on the teacher's internal/cdp package (client.go), generalized
// to the spec's integer tab identifiers and pause/resume attach policy
// instead of the teacher's fixed single-filtered-tab setup.
package tap

import (
	"strings"
	"sync"

	"github.com/chromedp/cdproto/target"
)

// nonCapturablePrefixes are the schemes a tab must not start with to be
// eligible for attach (spec §4.4 attach policy).
var nonCapturablePrefixes = []string{
	"chrome://",
	"chrome-extension://",
	"edge://",
	"about:",
	"devtools://",
	"chrome-devtools://",
}

// IsCapturable reports whether a tab's URL is eligible for attach.
func IsCapturable(url string) bool {
	lower := strings.ToLower(url)
	for _, p := range nonCapturablePrefixes {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}
	return true
}

// registry assigns stable, sequential integer tab identifiers to chromedp
// target IDs (spec §3's "integer tab identifier" model, bridged onto
// cdproto's string target.ID).
type registry struct {
	mu   sync.Mutex
	next int
	ids  map[target.ID]int
	urls map[target.ID]string
}

func newRegistry() *registry {
	return &registry{ids: make(map[target.ID]int), urls: make(map[target.ID]string), next: 1}
}

// idFor returns the integer id for targetID, assigning a fresh one on
// first sight.
func (r *registry) idFor(targetID target.ID, url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ids[targetID]
	if !ok {
		id = r.next
		r.next++
		r.ids[targetID] = id
	}
	r.urls[targetID] = url
	return id
}

func (r *registry) lookup(targetID target.ID) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ids[targetID]
	return id, ok
}

func (r *registry) urlFor(targetID target.ID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.urls[targetID]
}

func (r *registry) forget(targetID target.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, targetID)
	delete(r.urls, targetID)
}
