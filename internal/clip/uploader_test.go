package clip

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestUploadInlinesSmallDocument(t *testing.T) {
	var gotPath string
	var gotRowBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Header.Get("apikey") != "k" {
			t.Errorf("expected apikey header, got %q", r.Header.Get("apikey"))
		}
		body, _ := io.ReadAll(r.Body)
		gotRowBody = string(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	u := New("clips", 5*time.Second)
	doc := &Document{Log: Log{Version: harVersion}}
	path, sizeBytes, err := u.Upload(context.Background(), srv.URL, "k", Row{ClipName: "c1"}, doc)
	if err != nil {
		t.Fatalf("Upload() = %v", err)
	}
	if path != "" {
		t.Fatalf("expected no storage path for inline upload, got %q", path)
	}
	if sizeBytes <= 0 {
		t.Fatalf("expected sizeBytes to reflect serialized document size, got %d", sizeBytes)
	}
	if gotPath != "/rest/v1/clips" {
		t.Fatalf("expected row post to /rest/v1/clips, got %q", gotPath)
	}
	if !strings.Contains(gotRowBody, `"clip_name":"c1"`) {
		t.Fatalf("expected row body to carry clip_name, got %q", gotRowBody)
	}
}

func TestUploadRoutesLargeDocumentToBlobThenRow(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u := New("clips", 5*time.Second)
	bigText := strings.Repeat("x", InlineThreshold+10)
	doc := &Document{Log: Log{Version: harVersion, Entries: []Entry{{Request: HARRequest{PostData: &PostData{Text: bigText}}}}}}

	path, sizeBytes, err := u.Upload(context.Background(), srv.URL, "k", Row{ClipName: "big"}, doc)
	if err != nil {
		t.Fatalf("Upload() = %v", err)
	}
	if path == "" {
		t.Fatalf("expected a storage path for large document")
	}
	if sizeBytes <= InlineThreshold {
		t.Fatalf("expected sizeBytes to reflect the large serialized document, got %d", sizeBytes)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 requests (blob then row), got %d: %v", len(calls), calls)
	}
	if !strings.Contains(calls[0], "/storage/v1/object/clips/") {
		t.Fatalf("expected first call to be blob write, got %q", calls[0])
	}
	if calls[1] != "/rest/v1/clips" {
		t.Fatalf("expected second call to be row write, got %q", calls[1])
	}
}

func TestUploadSurfacesNon2xxAsRemoteStoreError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("forbidden"))
	}))
	defer srv.Close()

	u := New("clips", 5*time.Second)
	doc := &Document{Log: Log{Version: harVersion}}
	_, _, err := u.Upload(context.Background(), srv.URL, "k", Row{}, doc)
	if err == nil {
		t.Fatalf("expected error on 403 response")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected error to mention status code, got %v", err)
	}
}

func TestUploadMissingEndpointReturnsConfigMissing(t *testing.T) {
	u := New("clips", time.Second)
	doc := &Document{Log: Log{Version: harVersion}}
	_, _, err := u.Upload(context.Background(), "", "", Row{}, doc)
	if err == nil {
		t.Fatalf("expected error when endpoint not configured")
	}
}
