// Package store is the durable, time-indexed repository of the three
// capture streams (HTTP entries, WS frames, SSE events) plus a small
// metadata keyspace (spec §4.1). It is backed by SQLite, following the
// same database/sql + mattn/go-sqlite3 shape the retrieval pack's event
// store (writerslogic-witnessd/internal/store) uses: one table per
// entity, envelope columns indexed directly, and the record's
// variable-shaped remainder kept as a JSON blob column.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dgnsrekt/clipengine/internal/codes"
	"github.com/dgnsrekt/clipengine/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS http_entries (
    id        TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    tab_id    INTEGER NOT NULL,
    hostname  TEXT NOT NULL,
    payload   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_http_ts ON http_entries(timestamp);
CREATE INDEX IF NOT EXISTS idx_http_host ON http_entries(hostname);
CREATE INDEX IF NOT EXISTS idx_http_tab ON http_entries(tab_id);

CREATE TABLE IF NOT EXISTS ws_frames (
    id        TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    tab_id    INTEGER NOT NULL,
    hostname  TEXT NOT NULL,
    payload   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ws_ts ON ws_frames(timestamp);
CREATE INDEX IF NOT EXISTS idx_ws_host ON ws_frames(hostname);
CREATE INDEX IF NOT EXISTS idx_ws_tab ON ws_frames(tab_id);

CREATE TABLE IF NOT EXISTS sse_events (
    id        TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    tab_id    INTEGER NOT NULL,
    hostname  TEXT NOT NULL,
    payload   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sse_ts ON sse_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_sse_host ON sse_events(hostname);
CREATE INDEX IF NOT EXISTS idx_sse_tab ON sse_events(tab_id);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Store is the SQLite-backed implementation of the rolling buffer.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Open opens or creates the SQLite database at path and applies the
// schema, the way writerslogic-witnessd/internal/store.Open does.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create store directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply store schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close tears down the underlying database handle. Any subsequent
// operation returns StoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) table(stream types.Stream) (string, error) {
	switch stream {
	case types.StreamHTTP:
		return "http_entries", nil
	case types.StreamWS:
		return "ws_frames", nil
	case types.StreamSSE:
		return "sse_events", nil
	default:
		return "", codes.New(codes.StoreClosed, fmt.Sprintf("unknown stream %q", stream))
	}
}

func (s *Store) checkOpen() error {
	if s.closed {
		return codes.New(codes.StoreClosed, "store is closed")
	}
	return nil
}

// Append writes one record to stream, filling envelope.ID with a fresh
// identifier when absent and envelope.Timestamp with wall-clock time when
// zero (spec §4.1). It rejects duplicate identifiers.
func (s *Store) Append(ctx context.Context, stream types.Stream, env types.Envelope, record any, nowMS int64, genID func() string) (types.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return env, err
	}

	table, err := s.table(stream)
	if err != nil {
		return env, err
	}
	if env.ID == "" {
		env.ID = genID()
	}
	if env.Timestamp == 0 {
		env.Timestamp = nowMS
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return env, fmt.Errorf("marshal %s record: %w", stream, err)
	}

	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, timestamp, tab_id, hostname, payload) VALUES (?, ?, ?, ?, ?)`, table),
		env.ID, env.Timestamp, env.TabID, env.Hostname, string(payload),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return env, codes.Wrap(codes.DuplicateId, fmt.Sprintf("duplicate id %q in stream %s", env.ID, stream), err)
		}
		if isQuotaError(err) {
			return env, codes.Wrap(codes.QuotaExceeded, "store rejected write", err)
		}
		return env, fmt.Errorf("append %s record: %w", stream, err)
	}
	return env, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "PRIMARY KEY"))
}

func isQuotaError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "disk") || strings.Contains(err.Error(), "full") || strings.Contains(err.Error(), "quota"))
}

// Row is one scanned record: its envelope plus the raw JSON payload the
// caller unmarshals into the stream's concrete record type.
type Row struct {
	Envelope types.Envelope
	Payload  []byte
}

// Scan yields records with tLo <= timestamp <= tHi in ascending timestamp
// order, optionally narrowed by tab filter (spec §4.1). The returned slice
// is a finite, already-materialized snapshot — restartable per call.
func (s *Store) Scan(ctx context.Context, stream types.Stream, tLo, tHi int64, filter types.TabFilter) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	table, err := s.table(stream)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT id, timestamp, tab_id, hostname, payload FROM %s WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC, id ASC`, table)
	rows, err := s.db.QueryContext(ctx, query, tLo, tHi)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", stream, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var payload string
		if err := rows.Scan(&r.Envelope.ID, &r.Envelope.Timestamp, &r.Envelope.TabID, &r.Envelope.Hostname, &payload); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", stream, err)
		}
		if !filter.Matches(r.Envelope.TabID) {
			continue
		}
		r.Payload = []byte(payload)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", stream, err)
	}
	return out, nil
}

// DeleteOlderThan removes every record with timestamp <= tCut and returns
// the count removed (spec §4.1, I1).
func (s *Store) DeleteOlderThan(ctx context.Context, stream types.Stream, tCut int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	table, err := s.table(stream)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE timestamp <= ?`, table), tCut)
	if err != nil {
		return 0, fmt.Errorf("delete_older_than %s: %w", stream, err)
	}
	return res.RowsAffected()
}

// DeleteOldest removes the n records with smallest timestamp, ascending,
// and returns the count removed (spec §4.1).
func (s *Store) DeleteOldest(ctx context.Context, stream types.Stream, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, nil
	}
	table, err := s.table(stream)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id IN (SELECT id FROM %s ORDER BY timestamp ASC LIMIT ?)`, table, table),
		n,
	)
	if err != nil {
		return 0, fmt.Errorf("delete_oldest %s: %w", stream, err)
	}
	return res.RowsAffected()
}

// Count returns the number of records currently held in stream.
func (s *Store) Count(ctx context.Context, stream types.Stream) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	table, err := s.table(stream)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", stream, err)
	}
	return n, nil
}

// Extremes returns the min and max timestamp currently held in stream,
// or nil pointers when the stream is empty.
func (s *Store) Extremes(ctx context.Context, stream types.Stream) (min, max *int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, nil, err
	}
	table, terr := s.table(stream)
	if terr != nil {
		return nil, nil, terr
	}
	var minV, maxV sql.NullInt64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT MIN(timestamp), MAX(timestamp) FROM %s`, table)).Scan(&minV, &maxV); err != nil {
		return nil, nil, fmt.Errorf("extremes %s: %w", stream, err)
	}
	if minV.Valid {
		v := minV.Int64
		min = &v
	}
	if maxV.Valid {
		v := maxV.Int64
		max = &v
	}
	return min, max, nil
}

// EstimateUsage returns a best-effort on-disk byte cost for the store and
// a host-provided ceiling, mirroring the browser's storage.estimate()
// contract (spec §4.1). For the :memory: database used in tests, usage is
// the sum of payload lengths across streams.
func (s *Store) EstimateUsage(ctx context.Context) (usageBytes, quotaBytes int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, 0, err
	}

	if s.path != ":memory:" {
		if info, statErr := os.Stat(s.path); statErr == nil {
			usageBytes = info.Size()
		}
		if walInfo, statErr := os.Stat(s.path + "-wal"); statErr == nil {
			usageBytes += walInfo.Size()
		}
	}
	if usageBytes == 0 {
		for _, table := range []string{"http_entries", "ws_frames", "sse_events"} {
			var sum sql.NullInt64
			if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT SUM(LENGTH(payload)) FROM %s`, table)).Scan(&sum); err != nil {
				return 0, 0, fmt.Errorf("estimate usage: %w", err)
			}
			usageBytes += sum.Int64
		}
	}

	quotaBytes = diskQuota(s.path)
	return usageBytes, quotaBytes, nil
}

// PutMeta upserts a key/value pair in the metadata keyspace.
func (s *Store) PutMeta(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("put_meta %s: %w", key, err)
	}
	return nil
}

// GetMeta reads a key from the metadata keyspace. ok is false when the
// key is absent.
func (s *Store) GetMeta(ctx context.Context, key string) (value string, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return "", false, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get_meta %s: %w", key, err)
	}
	return value, true, nil
}

// ClearAll wipes the three streams, each in its own statement so a crash
// mid-clear leaves at most a partially-cleared set of streams rather than
// a torn single stream.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	for _, table := range []string{"http_entries", "ws_frames", "sse_events"} {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
			return fmt.Errorf("clear_all %s: %w", table, err)
		}
	}
	return nil
}
