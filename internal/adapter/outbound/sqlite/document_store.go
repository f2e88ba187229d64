// Package sqlite provides a realtime document store persisted to SQLite
// (pure-Go modernc.org/sqlite driver).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/Commandability/commandability-web-sub001/internal/adapter/outbound/realtime"
	"github.com/Commandability/commandability-web-sub001/internal/domain/document"
	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	path        TEXT PRIMARY KEY,
	parent      TEXT NOT NULL,
	data        TEXT NOT NULL,
	update_time INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_parent ON documents(parent);
`

// DocumentStore is a realtime document store backed by one SQLite database.
// Change notification covers writes made through this process only.
type DocumentStore struct {
	db     *sql.DB
	hub    *realtime.Hub
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, logger *slog.Logger, hubOpts ...realtime.Option) (*DocumentStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection: SQLite serializes writers anyway, and ":memory:"
	// databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite %s: %w", path, err)
	}

	s := &DocumentStore{db: db, logger: logger, now: time.Now}
	s.hub = realtime.NewHub(s.load, logger, hubOpts...)
	logger.Debug("sqlite document store opened", "path", path)
	return s, nil
}

func (s *DocumentStore) load(ctx context.Context, ref document.Reference) (document.Snapshot, error) {
	if ref.Kind() == document.KindDocument {
		doc, ok, err := s.get(ctx, ref)
		if err != nil || !ok {
			return document.Snapshot{}, err
		}
		return document.Snapshot{Exists: true, Data: doc.Data}, nil
	}
	docs, err := s.children(ctx, ref)
	if err != nil {
		return document.Snapshot{}, err
	}
	return document.Snapshot{Docs: docs}, nil
}

func (s *DocumentStore) get(ctx context.Context, ref document.Reference) (document.Document, bool, error) {
	var (
		raw     string
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, update_time FROM documents WHERE path = ?`, ref.Path()).Scan(&raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, false, nil
	}
	if err != nil {
		return document.Document{}, false, fmt.Errorf("get %s: %w", ref, err)
	}
	data, err := decodeData(raw)
	if err != nil {
		return document.Document{}, false, fmt.Errorf("decode %s: %w", ref, err)
	}
	return document.Document{Ref: ref, Data: data, UpdateTime: time.Unix(0, updated).UTC()}, true, nil
}

func (s *DocumentStore) children(ctx context.Context, ref document.Reference) ([]document.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, data, update_time FROM documents WHERE parent = ? ORDER BY path`, ref.Path())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", ref, err)
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		var (
			path, raw string
			updated   int64
		)
		if err := rows.Scan(&path, &raw, &updated); err != nil {
			return nil, fmt.Errorf("scan %s: %w", ref, err)
		}
		child, err := document.Parse(path)
		if err != nil {
			return nil, err
		}
		data, err := decodeData(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		docs = append(docs, document.Document{Ref: child, Data: data, UpdateTime: time.Unix(0, updated).UTC()})
	}
	return docs, rows.Err()
}

func decodeData(raw string) (document.Data, error) {
	var data document.Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	return data, nil
}

// Subscribe implements outbound.DocumentStore.
func (s *DocumentStore) Subscribe(ref document.Reference, opts document.Options, onNext func(document.Snapshot), onError func(error)) func() {
	return s.hub.Subscribe(ref, opts, onNext, onError)
}

// ListChildren implements outbound.DocumentStore.
func (s *DocumentStore) ListChildren(ctx context.Context, ref document.Reference) ([]document.Reference, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM documents WHERE parent = ? ORDER BY path`, ref.Path())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", ref, err)
	}
	defer rows.Close()

	var refs []document.Reference
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan %s: %w", ref, err)
		}
		child, err := document.Parse(path)
		if err != nil {
			return nil, err
		}
		refs = append(refs, child)
	}
	return refs, rows.Err()
}

// Get returns one document.
func (s *DocumentStore) Get(ctx context.Context, ref document.Reference) (document.Document, bool, error) {
	return s.get(ctx, ref)
}

// Set implements outbound.DocumentWriter.
func (s *DocumentStore) Set(ctx context.Context, ref document.Reference, data document.Data) error {
	if ref.Kind() != document.KindDocument {
		return fmt.Errorf("%w: %s", outbound.ErrNotDocument, ref)
	}
	if data == nil {
		data = document.Data{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ref, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (path, parent, data, update_time) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET data = excluded.data, update_time = excluded.update_time`,
		ref.Path(), ref.Parent().Path(), string(raw), s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("set %s: %w", ref, err)
	}
	s.hub.Notify(ref.Path())
	return nil
}

// BeginBatch implements outbound.DocumentStore.
func (s *DocumentStore) BeginBatch() outbound.Batch {
	return &sqliteBatch{store: s}
}

// Listeners returns the number of live listeners.
func (s *DocumentStore) Listeners() int {
	return s.hub.Listeners()
}

// Health pings the database.
func (s *DocumentStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close ends every listener and closes the database.
func (s *DocumentStore) Close() error {
	s.hub.Close()
	return s.db.Close()
}

type sqliteBatch struct {
	store     *DocumentStore
	mu        sync.Mutex
	deletes   []document.Reference
	committed bool
}

func (b *sqliteBatch) Delete(ref document.Reference) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes = append(b.deletes, ref)
}

// Commit deletes every queued document inside one transaction.
func (b *sqliteBatch) Commit(ctx context.Context) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.committed {
		return outbound.ErrBatchCommitted
	}
	for _, ref := range b.deletes {
		if ref.Kind() != document.KindDocument {
			return fmt.Errorf("%w: %s", outbound.ErrNotDocument, ref)
		}
	}

	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM documents WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	var paths []string
	for _, ref := range b.deletes {
		res, err := stmt.ExecContext(ctx, ref.Path())
		if err != nil {
			return fmt.Errorf("delete %s: %w", ref, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			paths = append(paths, ref.Path())
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	b.committed = true

	if len(paths) > 0 {
		b.store.hub.Notify(paths...)
	}
	return nil
}

var (
	_ outbound.DocumentStore  = (*DocumentStore)(nil)
	_ outbound.DocumentWriter = (*DocumentStore)(nil)
)
