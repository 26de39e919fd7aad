// Package engine wires the capture pipeline, buffer manager, clip
// service, tap and reactive config into the single Service the control
// plane dispatches to, the way the teacher's internal/controller package
// wires a cdpcontrol.Client into api.Service.
package engine

import (
	"context"
	"errors"

	"github.com/dgnsrekt/clipengine/internal/api"
	"github.com/dgnsrekt/clipengine/internal/buffermanager"
	"github.com/dgnsrekt/clipengine/internal/capture"
	"github.com/dgnsrekt/clipengine/internal/clip"
	"github.com/dgnsrekt/clipengine/internal/codes"
	"github.com/dgnsrekt/clipengine/internal/config"
	"github.com/dgnsrekt/clipengine/internal/store"
	"github.com/dgnsrekt/clipengine/internal/tap"
	"github.com/dgnsrekt/clipengine/internal/types"
)

// attacher narrows *tap.Tap to the one method the Service depends on, so
// tests can substitute a stub instead of a live CDP connection.
type attacher interface {
	AttachedCount() int
}

// Service implements api.Service over the running engine's components.
type Service struct {
	st       *store.Store
	reactive *config.Reactive
	pipeline *capture.Pipeline
	manager  *buffermanager.Manager
	clips    *clip.Service
	uploader *clip.Uploader
	tap      attacher
}

// New builds the control-plane Service from the engine's already-started
// components.
func New(st *store.Store, reactive *config.Reactive, pipeline *capture.Pipeline, manager *buffermanager.Manager, clips *clip.Service, uploader *clip.Uploader, t *tap.Tap) *Service {
	return &Service{st: st, reactive: reactive, pipeline: pipeline, manager: manager, clips: clips, uploader: uploader, tap: t}
}

var _ api.Service = (*Service)(nil)

func (s *Service) GetStatus(ctx context.Context) (api.StatusOverview, error) {
	bufStatus, err := s.manager.GetStatus(ctx)
	if err != nil {
		return api.StatusOverview{}, err
	}
	url, _ := s.reactive.Endpoint()
	return api.StatusOverview{
		Paused:             s.reactive.Paused(),
		AttachedTabs:       s.tap.AttachedCount(),
		PendingHTTP:        s.pipeline.PendingCount(),
		OpenWS:             s.pipeline.OpenWSCount(),
		Buffer:             bufStatus,
		StorageCapClass:    string(s.reactive.StorageCapClass()),
		EndpointConfigured: url != "",
	}, nil
}

func (s *Service) CreateClip(ctx context.Context, in api.CreateClipInput) (clip.Result, error) {
	tabs := types.TabFilter{Tabs: in.TabIDs}
	result := s.clips.CreateClip(ctx, in.StartMS, in.EndMS, tabs, in.ClipName)
	if !result.Success {
		return result, codedFromMessage(result.Error)
	}
	return result, nil
}

// codedFromMessage reconstructs a CodedError from clip.Service's flattened
// error string, which starts with "<Code>: " when clip.Service returned a
// codes.CodedError directly (see CodedError.Error). A message with no such
// prefix maps to a plain error, which mapErr defaults to a 500: that covers
// validation messages (e.g. "start_ms must be <= end_ms") and Build's
// snapshot errors, whose "scan <stream>: " prefix precedes any store code.
func codedFromMessage(msg string) error {
	for _, code := range []codes.Code{
		codes.StoreClosed, codes.DuplicateId, codes.QuotaExceeded,
		codes.TapAttachFailed, codes.TapBodyUnavailable, codes.ConfigMissing,
		codes.RemoteStoreError, codes.BlobOrphaned, codes.CancelledByUser,
	} {
		if prefix := string(code) + ": "; len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
			return codes.New(code, msg[len(prefix):])
		}
	}
	return errors.New(msg)
}

func (s *Service) PauseCapture(ctx context.Context) error {
	s.reactive.SetPaused(true)
	return nil
}

func (s *Service) ResumeCapture(ctx context.Context) error {
	s.reactive.SetPaused(false)
	return nil
}

func (s *Service) ClearBuffer(ctx context.Context) error {
	return s.st.ClearAll(ctx)
}

func (s *Service) TestSupabaseConnection(ctx context.Context, url, key string) error {
	return s.uploader.TestConnection(ctx, url, key)
}

func (s *Service) GetCaptureStatus(ctx context.Context) (api.CaptureStatus, error) {
	return api.CaptureStatus{
		Paused:       s.reactive.Paused(),
		AttachedTabs: s.tap.AttachedCount(),
		PendingHTTP:  s.pipeline.PendingCount(),
		OpenWS:       s.pipeline.OpenWSCount(),
	}, nil
}

func (s *Service) GetBufferStatus(ctx context.Context) (buffermanager.Status, error) {
	return s.manager.GetStatus(ctx)
}

func (s *Service) GetStorageStatus(ctx context.Context) (api.StorageStatus, error) {
	usage, quota, err := s.st.EstimateUsage(ctx)
	if err != nil {
		return api.StorageStatus{}, err
	}
	capClass := s.reactive.StorageCapClass()
	return api.StorageStatus{
		UsageBytes: usage,
		DiskFree:   quota,
		CapClass:   string(capClass),
		CapBytes:   capClass.Bytes(),
	}, nil
}

func (s *Service) RunCleanup(ctx context.Context) error {
	s.manager.Trigger(ctx)
	return nil
}
