// Package buffermanager enforces the Store's two retention invariants: no
// record older than 24 hours survives, and total on-disk usage stays below
// the configured cap (spec §4.3). It runs on a fixed period, on an
// explicit storage-cap-class change, and on demand, following the same
// re-entrancy-guarded background-worker shape the teacher applies to its
// periodic scan jobs.
package buffermanager

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/dgnsrekt/clipengine/internal/config"
	"github.com/dgnsrekt/clipengine/internal/store"
	"github.com/dgnsrekt/clipengine/internal/types"
)

const (
	maxAge             = 24 * time.Hour
	evictionByteEst    = 2000 // coarse per-record size estimate (spec §4.3)
	streamCount        = 3
	targetUtilization  = 0.9
	warningThreshold   = 0.8
	criticalThreshold  = 0.95
)

var allStreams = [streamCount]types.Stream{types.StreamHTTP, types.StreamWS, types.StreamSSE}

// Pressure reports the Store's fill state relative to its cap (spec §4.3).
type Pressure string

const (
	PressureNormal   Pressure = "normal"
	PressureWarning  Pressure = "warning"
	PressureCritical Pressure = "critical"
)

// Status is the buffer's point-in-time health summary, surfaced by the
// control plane's getBufferStatus.
type Status struct {
	OldestTimestamp *int64
	NewestTimestamp *int64
	DurationMS      int64
	UsageBytes      int64
	QuotaBytes      int64
	Pressure        Pressure
	Truncated       bool
	LastCleanupAt   time.Time
	LastUsageBytes  int64
}

// Manager periodically trims the Store to satisfy the age and cap
// invariants. A pass in progress suppresses new triggers beyond a single
// coalesced follow-up (spec §5, "Cancellation & timeouts").
type Manager struct {
	st       *store.Store
	reactive *config.Reactive

	now func() time.Time

	mu       sync.Mutex
	running  bool
	queued   bool
	stopCh   chan struct{}
	unsub    func()
	interval time.Duration
}

// New builds a Manager backed by st, reading the storage cap from reactive.
func New(st *store.Store, reactive *config.Reactive, interval time.Duration) *Manager {
	return &Manager{st: st, reactive: reactive, now: time.Now, interval: interval}
}

// Start launches the periodic timer and subscribes to storage_cap_class
// changes, which trigger an immediate pass (spec §4.5).
func (m *Manager) Start(ctx context.Context) {
	m.stopCh = make(chan struct{})
	ch, unsub := m.reactive.Subscribe()
	m.unsub = unsub

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.Trigger(ctx)
			case change, ok := <-ch:
				if !ok {
					return
				}
				if change.Key == "storage_cap_class" {
					m.Trigger(ctx)
				}
			}
		}
	}()
}

// Stop halts the periodic timer and unsubscribes from config changes.
func (m *Manager) Stop() {
	if m.stopCh != nil {
		close(m.stopCh)
	}
	if m.unsub != nil {
		m.unsub()
	}
}

// Trigger requests a pass. If one is already running, the request is
// coalesced into at most one queued follow-up rather than running
// concurrently.
func (m *Manager) Trigger(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.queued = true
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go m.runLoop(ctx)
}

func (m *Manager) runLoop(ctx context.Context) {
	for {
		if err := m.Pass(ctx); err != nil {
			slog.Error("buffer manager pass failed", "error", err)
		}
		m.mu.Lock()
		if !m.queued {
			m.running = false
			m.mu.Unlock()
			return
		}
		m.queued = false
		m.mu.Unlock()
	}
}

// Pass runs one enforcement cycle: age-based eviction, then cap-based
// eviction if usage still exceeds the configured cap, then records
// last-cleanup/last-usage-bytes metadata (spec §4.3 steps 1-4).
func (m *Manager) Pass(ctx context.Context) error {
	now := m.now()
	tCut := now.Add(-maxAge).UnixMilli()

	for _, stream := range allStreams {
		n, err := m.st.DeleteOlderThan(ctx, stream, tCut)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("buffer manager evicted aged records", "stream", stream, "count", n)
		}
	}

	usage, _, err := m.st.EstimateUsage(ctx)
	if err != nil {
		return err
	}
	capBytes := m.reactive.StorageCapClass().Bytes()

	if usage > capBytes {
		target := int64(float64(capBytes) * targetUtilization)
		toEvictBytes := usage - target
		perStreamN := int64(math.Ceil(math.Ceil(float64(toEvictBytes)/float64(evictionByteEst)) / float64(streamCount)))
		for _, stream := range allStreams {
			n, err := m.st.DeleteOldest(ctx, stream, perStreamN)
			if err != nil {
				return err
			}
			if n > 0 {
				slog.Info("buffer manager evicted for cap pressure", "stream", stream, "count", n)
			}
		}
	}

	usage, _, err = m.st.EstimateUsage(ctx)
	if err != nil {
		return err
	}
	if err := m.st.PutMeta(ctx, "last-cleanup", now.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := m.st.PutMeta(ctx, "last-usage-bytes", formatInt64(usage)); err != nil {
		return err
	}
	return nil
}

// BufferSpan computes the min across streams of oldest timestamp, the max
// across streams of newest, and the resulting duration (spec §4.3).
func (m *Manager) BufferSpan(ctx context.Context) (oldest, newest *int64, durationMS int64, err error) {
	for _, stream := range allStreams {
		lo, hi, err := m.st.Extremes(ctx, stream)
		if err != nil {
			return nil, nil, 0, err
		}
		if lo != nil && (oldest == nil || *lo < *oldest) {
			oldest = lo
		}
		if hi != nil && (newest == nil || *hi > *newest) {
			newest = hi
		}
	}
	if oldest != nil && newest != nil {
		durationMS = *newest - *oldest
	}
	return oldest, newest, durationMS, nil
}

// classifyPressure classifies usage relative to cap at the 80% and 95% thresholds.
func classifyPressure(usage, capBytes int64) Pressure {
	if capBytes <= 0 {
		return PressureNormal
	}
	ratio := float64(usage) / float64(capBytes)
	switch {
	case ratio >= criticalThreshold:
		return PressureCritical
	case ratio >= warningThreshold:
		return PressureWarning
	default:
		return PressureNormal
	}
}

// GetStatus assembles the Store's current health summary (spec §4.3,
// surfaced by getBufferStatus/getStatus).
func (m *Manager) GetStatus(ctx context.Context) (Status, error) {
	usage, quota, err := m.st.EstimateUsage(ctx)
	if err != nil {
		return Status{}, err
	}
	capBytes := m.reactive.StorageCapClass().Bytes()
	oldest, newest, durationMS, err := m.BufferSpan(ctx)
	if err != nil {
		return Status{}, err
	}

	truncated := durationMS < int64(maxAge/time.Millisecond) && float64(usage) > warningThreshold*float64(capBytes)

	lastCleanupStr, _, err := m.st.GetMeta(ctx, "last-cleanup")
	if err != nil {
		return Status{}, err
	}
	var lastCleanup time.Time
	if lastCleanupStr != "" {
		lastCleanup, _ = time.Parse(time.RFC3339, lastCleanupStr)
	}
	lastUsageStr, _, err := m.st.GetMeta(ctx, "last-usage-bytes")
	if err != nil {
		return Status{}, err
	}
	var lastUsage int64
	if lastUsageStr != "" {
		lastUsage = parseInt64(lastUsageStr)
	}

	return Status{
		OldestTimestamp: oldest,
		NewestTimestamp: newest,
		DurationMS:      durationMS,
		UsageBytes:      usage,
		QuotaBytes:      quota,
		Pressure:        classifyPressure(usage, capBytes),
		Truncated:       truncated,
		LastCleanupAt:   lastCleanup,
		LastUsageBytes:  lastUsage,
	}, nil
}
