package clip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dgnsrekt/clipengine/internal/codes"
)

// InlineThreshold is the serialized-size cutoff below which a clip's HAR
// document is embedded directly in the row rather than uploaded as a
// blob (spec §4.4; boundary is strict "<").
const InlineThreshold = 1 * 1024 * 1024

// TabFilterWire is the discriminated tab-filter shape the remote store
// expects on the clips row: {type: "all" | "tabs", tabs?: [int]}.
type TabFilterWire struct {
	Type string `json:"type"`
	Tabs []int  `json:"tabs,omitempty"`
}

// NewTabFilterWire derives the wire shape from a tab set: an empty set
// means "all", otherwise the explicit tab id list.
func NewTabFilterWire(tabs []int) TabFilterWire {
	if len(tabs) == 0 {
		return TabFilterWire{Type: "all"}
	}
	return TabFilterWire{Type: "tabs", Tabs: tabs}
}

// Row is the JSON body posted to the remote store's clips table.
type Row struct {
	ClipName        string        `json:"clip_name"`
	TimeRangeStart  string        `json:"time_range_start"`
	TimeRangeEnd    string        `json:"time_range_end"`
	DurationSeconds float64       `json:"duration_seconds"`
	TabFilter       TabFilterWire `json:"tab_filter"`
	EntryCount      int           `json:"entry_count"`
	TotalSizeBytes  int           `json:"total_size_bytes"`
	HARData         *Document     `json:"har_data"`
	StoragePath     *string       `json:"storage_path"`
}

// Uploader is a stateless HTTPS client for the remote object/row store
// (spec §4.5). One instance is reused across requests; no per-call state
// is kept, matching the teacher's preference for plain http.Client calls
// over a stickier session object.
type Uploader struct {
	client *http.Client
	bucket string
}

// New builds an Uploader with the given bucket name and request timeout.
func New(bucket string, timeout time.Duration) *Uploader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Uploader{client: &http.Client{Timeout: timeout}, bucket: bucket}
}

// Upload routes the serialized document to either an inline row write or a
// blob write followed by a row write, depending on serialized size (spec
// §4.4 "Upload routing"). storagePath is empty when the document was
// inlined. sizeBytes is the serialized HAR document's size, for the
// caller's Result.SizeBytes.
func (u *Uploader) Upload(ctx context.Context, endpointURL, endpointKey string, row Row, doc *Document) (storagePath string, sizeBytes int, err error) {
	if endpointURL == "" || endpointKey == "" {
		return "", 0, codes.New(codes.ConfigMissing, "remote endpoint not configured")
	}

	serialized, err := json.Marshal(doc)
	if err != nil {
		return "", 0, fmt.Errorf("serialize har document: %w", err)
	}
	row.TotalSizeBytes = len(serialized)

	if len(serialized) < InlineThreshold {
		row.HARData = doc
		row.StoragePath = nil
		if err := u.postRow(ctx, endpointURL, endpointKey, row); err != nil {
			return "", 0, err
		}
		return "", row.TotalSizeBytes, nil
	}

	path := blobPath(time.Now())
	if err := u.putBlob(ctx, endpointURL, endpointKey, path, serialized); err != nil {
		return "", 0, err
	}
	row.HARData = nil
	row.StoragePath = &path
	if err := u.postRow(ctx, endpointURL, endpointKey, row); err != nil {
		return "", 0, codes.Wrap(codes.BlobOrphaned, "row write failed after successful blob write", err)
	}
	return path, row.TotalSizeBytes, nil
}

func blobPath(t time.Time) string {
	iso := t.UTC().Format(time.RFC3339Nano)
	sanitized := strings.NewReplacer(":", "-", ".", "-").Replace(iso)
	return fmt.Sprintf("clip-%s.json", sanitized)
}

func (u *Uploader) putBlob(ctx context.Context, endpointURL, key, path string, body []byte) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", strings.TrimRight(endpointURL, "/"), u.bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build blob request: %w", err)
	}
	u.setHeaders(req, key, false)
	req.Header.Set("x-upsert", "true")
	return u.do(req)
}

func (u *Uploader) postRow(ctx context.Context, endpointURL, key string, row Row) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("serialize row: %w", err)
	}
	url := fmt.Sprintf("%s/rest/v1/clips", strings.TrimRight(endpointURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build row request: %w", err)
	}
	u.setHeaders(req, key, true)
	return u.do(req)
}

func (u *Uploader) setHeaders(req *http.Request, key string, isRow bool) {
	req.Header.Set("apikey", key)
	req.Header.Set("Authorization", "Bearer "+key)
	if isRow {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}
}

func (u *Uploader) do(req *http.Request) error {
	resp, err := u.client.Do(req)
	if err != nil {
		return codes.Wrap(codes.RemoteStoreError, "remote store request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return codes.New(codes.RemoteStoreError, fmt.Sprintf("remote store returned %d: %s", resp.StatusCode, string(body)))
	}
	return nil
}

// TestConnection issues a lightweight probe against the endpoint, used by
// the control plane's testSupabaseConnection command.
func (u *Uploader) TestConnection(ctx context.Context, endpointURL, endpointKey string) error {
	if endpointURL == "" || endpointKey == "" {
		return codes.New(codes.ConfigMissing, "endpoint url/key not provided")
	}
	url := fmt.Sprintf("%s/rest/v1/clips?select=clip_name&limit=1", strings.TrimRight(endpointURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	u.setHeaders(req, endpointKey, false)
	return u.do(req)
}
