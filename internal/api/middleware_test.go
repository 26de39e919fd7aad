package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func withCapturedLog(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return buf
}

func TestRequestLoggerLogsOrdinaryRoutesAtInfo(t *testing.T) {
	buf := withCapturedLog(t, slog.LevelInfo)
	h := requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), "level=INFO") {
		t.Fatalf("expected an INFO log line for an ordinary route, got %q", buf.String())
	}
}

func TestRequestLoggerLogsStatusStreamAtDebug(t *testing.T) {
	buf := withCapturedLog(t, slog.LevelDebug)
	h := requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	req := httptest.NewRequest(http.MethodGet, statusStreamPath, nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, "level=DEBUG") {
		t.Fatalf("expected a DEBUG log line for the status stream route, got %q", out)
	}
	if strings.Contains(out, "level=INFO") {
		t.Fatalf("expected no INFO log line for the status stream route, got %q", out)
	}
}
