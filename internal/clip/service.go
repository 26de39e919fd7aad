package clip

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/clipengine/internal/codes"
	"github.com/dgnsrekt/clipengine/internal/config"
	"github.com/dgnsrekt/clipengine/internal/store"
	"github.com/dgnsrekt/clipengine/internal/types"
)

// ClipStatus names a clip's lifecycle stage. CreateClip does not record
// these stages; it reports only its final Result.
type ClipStatus string

const (
	ClipBuilding  ClipStatus = "building"
	ClipUploading ClipStatus = "uploading"
	ClipDone      ClipStatus = "done"
	ClipFailed    ClipStatus = "failed"
	ClipCancelled ClipStatus = "cancelled"
)

// Record is an in-memory bookkeeping shape for one create_clip call.
// CreateClip does not build one, and getStatus does not report clips in
// flight.
type Record struct {
	ID         string
	Status     ClipStatus
	Name       string
	EntryCount int
	SizeBytes  int
	Error      string
	CreatedAt  time.Time
}

// Service wires the Builder, Sanitizer and Uploader together to satisfy
// create_clip (spec §4.4). It is the single entry point the control plane
// calls.
type Service struct {
	st       *store.Store
	reactive *config.Reactive
	uploader *Uploader
	genID    func() string
}

// NewService builds a Service backed by st and reactive, uploading through
// uploader.
func NewService(st *store.Store, reactive *config.Reactive, uploader *Uploader) *Service {
	return &Service{st: st, reactive: reactive, uploader: uploader, genID: uuid.NewString}
}

// CreateClip runs the full build -> sanitize -> upload pipeline. A
// snapshot read error is fatal (spec §4.4); a ctx cancellation before
// upload short-circuits without a partial write.
func (s *Service) CreateClip(ctx context.Context, start, end int64, tabs types.TabFilter, name string) Result {
	if start > end {
		return Result{Error: "start_ms must be <= end_ms"}
	}

	doc, entryCount, err := Build(ctx, s.st, Request{StartMS: start, EndMS: end, Tabs: tabs, ClipName: name})
	if err != nil {
		return Result{Error: err.Error()}
	}

	select {
	case <-ctx.Done():
		return Result{Error: codes.New(codes.CancelledByUser, "clip request cancelled before sanitize").Error()}
	default:
	}

	sanitizer := Sanitizer{
		SanitizeURLParams: s.reactive.SanitizeURLParams(),
		CustomPatterns:    s.reactive.CustomHeaderPatterns(),
	}
	sanitizer.Sanitize(doc)

	if entryCount == 0 {
		return Result{Success: true, ClipID: s.genID(), EntryCount: 0, SizeBytes: emptySkeletonSize(doc)}
	}

	select {
	case <-ctx.Done():
		return Result{Error: codes.New(codes.CancelledByUser, "clip request cancelled before upload").Error()}
	default:
	}

	endpointURL, endpointKey := s.reactive.Endpoint()
	if endpointURL == "" || endpointKey == "" {
		return Result{Error: codes.New(codes.ConfigMissing, "remote endpoint not configured").Error()}
	}

	clipID := s.genID()
	row := Row{
		ClipName:        name,
		TimeRangeStart:  formatISO(start),
		TimeRangeEnd:    formatISO(end),
		DurationSeconds: float64(end-start) / 1000,
		TabFilter:       NewTabFilterWire(tabs.Tabs),
		EntryCount:      entryCount,
	}
	_, sizeBytes, err := s.uploader.Upload(ctx, endpointURL, endpointKey, row, doc)
	if err != nil {
		return Result{Error: err.Error()}
	}

	return Result{Success: true, ClipID: clipID, EntryCount: entryCount, SizeBytes: sizeBytes}
}

func emptySkeletonSize(doc *Document) int {
	b, err := json.Marshal(doc)
	if err != nil {
		return 0
	}
	return len(b)
}
