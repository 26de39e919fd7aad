// Package api exposes the capture-and-clip engine's control plane as a
// documented HTTP API, following the teacher's humachi/chi wiring in
// internal/api/server.go.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/clipengine/internal/buffermanager"
	"github.com/dgnsrekt/clipengine/internal/clip"
	"github.com/dgnsrekt/clipengine/internal/codes"
	"github.com/dgnsrekt/clipengine/internal/relay"
)

// StatusOverview is the getStatus aggregate: enough for a popup UI to
// render without three round trips.
type StatusOverview struct {
	Paused             bool                 `json:"paused"`
	AttachedTabs       int                  `json:"attached_tabs"`
	PendingHTTP        int                  `json:"pending_http"`
	OpenWS             int                  `json:"open_ws"`
	Buffer             buffermanager.Status `json:"buffer"`
	StorageCapClass    string               `json:"storage_cap_class"`
	EndpointConfigured bool                 `json:"endpoint_configured"`
}

// CreateClipInput mirrors the spec's createClip control-plane message.
type CreateClipInput struct {
	StartMS  int64  `json:"startTime"`
	EndMS    int64  `json:"endTime"`
	TabIDs   []int  `json:"tabIds,omitempty"`
	ClipName string `json:"clipName,omitempty"`
}

// Service is the control-plane surface the HTTP API dispatches to. A
// concrete implementation wires together the capture pipeline, buffer
// manager, clip service, tap and reactive config (see internal/engine).
type Service interface {
	GetStatus(ctx context.Context) (StatusOverview, error)
	CreateClip(ctx context.Context, in CreateClipInput) (clip.Result, error)
	PauseCapture(ctx context.Context) error
	ResumeCapture(ctx context.Context) error
	ClearBuffer(ctx context.Context) error
	TestSupabaseConnection(ctx context.Context, url, key string) error
	GetCaptureStatus(ctx context.Context) (CaptureStatus, error)
	GetBufferStatus(ctx context.Context) (buffermanager.Status, error)
	GetStorageStatus(ctx context.Context) (StorageStatus, error)
	RunCleanup(ctx context.Context) error
}

// CaptureStatus reports the tap's live attachment state.
type CaptureStatus struct {
	Paused       bool `json:"paused"`
	AttachedTabs int  `json:"attached_tabs"`
	PendingHTTP  int  `json:"pending_http"`
	OpenWS       int  `json:"open_ws"`
}

// StorageStatus reports the store's on-disk usage against the host
// filesystem and the configured cap class.
type StorageStatus struct {
	UsageBytes int64  `json:"usage_bytes"`
	DiskFree   int64  `json:"disk_free_bytes"`
	CapClass   string `json:"storage_cap_class"`
	CapBytes   int64  `json:"cap_bytes"`
}

// NewServer wires svc into a chi router under huma, mirroring the
// teacher's NewServer(svc Service) shape, plus a status-stream SSE route
// fed by broker.
func NewServer(svc Service, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Clip Engine Control API", "1.0.0")
	cfg.DocsPath = ""
	humaAPI := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	if broker != nil {
		router.Get("/api/v1/status/stream", relay.SSEHandler(broker))
	}

	registerStatusHandlers(humaAPI, svc)
	registerClipHandlers(humaAPI, svc)
	registerCaptureControlHandlers(humaAPI, svc)
	registerStorageHandlers(humaAPI, svc)

	return router
}

// mapErr translates a CodedError into the matching huma HTTP status,
// following the teacher's mapErr in internal/api/server.go.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *codes.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case codes.DuplicateId:
			return huma.Error409Conflict(coded.Message)
		case codes.QuotaExceeded:
			return huma.Error400BadRequest(coded.Message)
		case codes.ConfigMissing:
			return huma.Error400BadRequest(coded.Message)
		case codes.CancelledByUser:
			return huma.Error400BadRequest(coded.Message)
		case codes.StoreClosed:
			return huma.Error409Conflict(coded.Message)
		case codes.TapAttachFailed, codes.TapBodyUnavailable:
			return huma.Error502BadGateway(coded.Message)
		case codes.RemoteStoreError, codes.BlobOrphaned:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
