package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/clipengine/internal/api"
	"github.com/dgnsrekt/clipengine/internal/buffermanager"
	"github.com/dgnsrekt/clipengine/internal/capture"
	"github.com/dgnsrekt/clipengine/internal/clip"
	"github.com/dgnsrekt/clipengine/internal/config"
	"github.com/dgnsrekt/clipengine/internal/engine"
	"github.com/dgnsrekt/clipengine/internal/netutil"
	"github.com/dgnsrekt/clipengine/internal/relay"
	"github.com/dgnsrekt/clipengine/internal/store"
	"github.com/dgnsrekt/clipengine/internal/tap"
)

func main() {
	cfg, err := config.LoadStatic()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("clipengine config loaded",
		"bind_addr", cfg.BindAddr,
		"bind_fallback_addrs", cfg.BindFallbackAddrs,
		"bind_auto_fallback", cfg.BindAutoFallback,
		"cdp_url", cfg.CDPURL(),
		"db_path", cfg.DBPath,
		"log_level", cfg.LogLevel,
		"buffer_pass_interval_s", cfg.BufferPassInterval,
		"remote_bucket", cfg.RemoteBucket,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.BindFallbackAddrs, cfg.BindAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	reactive, err := config.NewReactive(cfg.ConfigYAMLPath)
	if err != nil {
		slog.Error("failed to load reactive config", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open store", "db_path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	pipeline := capture.New(st)

	cdpTap := tap.New(pipeline, reactive)
	if err := cdpTap.Connect(context.Background(), cfg.CDPURL()); err != nil {
		slog.Error("failed to connect tap to browser", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() { _ = cdpTap.Close() }()

	manager := buffermanager.New(st, reactive, time.Duration(cfg.BufferPassInterval)*time.Second)
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	manager.Start(bgCtx)

	uploader := clip.New(cfg.RemoteBucket, 30*time.Second)
	clips := clip.NewService(st, reactive, uploader)

	broker := relay.NewBroker()
	publisher := relay.NewPublisher(broker, statusSource{manager: manager, pipeline: pipeline, reactive: reactive, tap: cdpTap}, 5*time.Second)
	publisher.Start(bgCtx)

	svc := engine.New(st, reactive, pipeline, manager, clips, uploader, cdpTap)
	h := api.NewServer(svc, broker)

	srv := &http.Server{Addr: bindAddr, Handler: h}

	go func() {
		slog.Info("clipengine listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("clipengine server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("clipengine shutdown failed", "error", err)
	}
}

// statusSource adapts the running engine's components to relay.StatusSource
// for the publisher's periodic SSE broadcasts.
type statusSource struct {
	manager  *buffermanager.Manager
	pipeline *capture.Pipeline
	reactive *config.Reactive
	tap      *tap.Tap
}

func (s statusSource) CaptureStatus() any {
	return api.CaptureStatus{
		Paused:       s.reactive.Paused(),
		AttachedTabs: s.tap.AttachedCount(),
		PendingHTTP:  s.pipeline.PendingCount(),
		OpenWS:       s.pipeline.OpenWSCount(),
	}
}

func (s statusSource) BufferStatus(ctx context.Context) (any, error) {
	return s.manager.GetStatus(ctx)
}

// setupLogger rotates into filename with rollover sizing the caller
// controls: a tap attached to a busy tab logs WS/SSE/HTTP activity
// continuously, at a volume the teacher's on-demand controller never
// produces, so unlike a fixed rollover policy this is driven by
// CLIPENGINE_LOG_MAX_* rather than constants.
func setupLogger(level, filename string, maxSizeMB, maxBackups, maxAgeDays int) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h).With("component", "clipengine"))
	return nil
}
