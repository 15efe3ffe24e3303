package liststore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// DefaultPollInterval bounds how long a blocking pop can miss an item pushed
// by another process.
const DefaultPollInterval = 100 * time.Millisecond

// SQLiteStore is a durable Store in a single SQLite table. List order is
// the AUTOINCREMENT row id, so an appended row always sorts last.
type SQLiteStore struct {
	db           *sql.DB
	path         string
	pollInterval time.Duration

	mu     sync.Mutex
	closed bool
	wake   chan struct{}
}

var _ Store = (*SQLiteStore)(nil)

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithPollInterval sets how often blocking pops re-check the table.
func WithPollInterval(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// NewSQLiteStore opens (creating if needed) the store at path.
func NewSQLiteStore(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; pragmas below apply to this one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{
		db:           db,
		path:         path,
		pollInterval: DefaultPollInterval,
		wake:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS list_items (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		list TEXT NOT NULL,
		item BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_list_items_list ON list_items(list, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// notify wakes in-process blocked pops after a push.
func (s *SQLiteStore) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.wake)
	s.wake = make(chan struct{})
}

func (s *SQLiteStore) wakeChan() (<-chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wake, s.closed
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s.isClosed() {
		return errClosed()
	}
	if err := s.db.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// PushTail implements Store.
func (s *SQLiteStore) PushTail(ctx context.Context, list string, item []byte) error {
	if s.isClosed() {
		return errClosed()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO list_items(list, item) VALUES (?, ?)`, list, item); err != nil {
		return storeErr("push", err)
	}
	s.notify()
	return nil
}

// PopHead implements Store.
func (s *SQLiteStore) PopHead(ctx context.Context, list string, timeout time.Duration) ([]byte, error) {
	return s.pop(ctx, list, "", timeout)
}

// PopHeadPushTail implements Store.
func (s *SQLiteStore) PopHeadPushTail(ctx context.Context, src, dst string, timeout time.Duration) ([]byte, error) {
	return s.pop(ctx, src, dst, timeout)
}

func (s *SQLiteStore) pop(ctx context.Context, src, dst string, timeout time.Duration) ([]byte, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		wake, closed := s.wakeChan()
		if closed {
			return nil, errClosed()
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item, err := s.tryPop(ctx, src, dst)
		if err != nil && s.isClosed() {
			return nil, errClosed()
		}
		if err != nil || item != nil {
			return item, err
		}
		if deadline == nil {
			return nil, nil
		}

		poll := time.NewTimer(s.pollInterval)
		select {
		case <-wake:
		case <-poll.C:
		case <-deadline:
			poll.Stop()
			return nil, nil
		case <-ctx.Done():
			poll.Stop()
			return nil, ctx.Err()
		}
		poll.Stop()
	}
}

// tryPop pops one item in a single transaction. Returns nil when src is empty.
func (s *SQLiteStore) tryPop(ctx context.Context, src, dst string) ([]byte, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("pop", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id   int64
		item []byte
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, item FROM list_items WHERE list = ? ORDER BY id LIMIT 1`, src).Scan(&id, &item)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("pop", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM list_items WHERE id = ?`, id); err != nil {
		return nil, storeErr("pop", err)
	}
	if dst != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO list_items(list, item) VALUES (?, ?)`, dst, item); err != nil {
			return nil, storeErr("pop", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("pop", err)
	}

	if dst != "" {
		s.notify()
	}
	return item, nil
}

// RemoveFirst implements Store.
func (s *SQLiteStore) RemoveFirst(ctx context.Context, list string, item []byte) (bool, error) {
	return s.move(ctx, list, "", item, nil)
}

// MoveFirst implements Store.
func (s *SQLiteStore) MoveFirst(ctx context.Context, src, dst string, item, replacement []byte) (bool, error) {
	return s.move(ctx, src, dst, item, replacement)
}

func (s *SQLiteStore) move(ctx context.Context, src, dst string, item, replacement []byte) (bool, error) {
	if s.isClosed() {
		return false, errClosed()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storeErr("move", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM list_items WHERE list = ? AND item = ? ORDER BY id LIMIT 1`, src, item).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeErr("move", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM list_items WHERE id = ?`, id); err != nil {
		return false, storeErr("move", err)
	}
	if dst != "" {
		if replacement == nil {
			replacement = item
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO list_items(list, item) VALUES (?, ?)`, dst, replacement); err != nil {
			return false, storeErr("move", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, storeErr("move", err)
	}

	if dst != "" {
		s.notify()
	}
	return true, nil
}

// Length implements Store.
func (s *SQLiteStore) Length(ctx context.Context, list string) (int, error) {
	if s.isClosed() {
		return 0, errClosed()
	}
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM list_items WHERE list = ?`, list).Scan(&n); err != nil {
		return 0, storeErr("length", err)
	}
	return n, nil
}

// DeleteList implements Store.
func (s *SQLiteStore) DeleteList(ctx context.Context, list string) (int, error) {
	if s.isClosed() {
		return 0, errClosed()
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM list_items WHERE list = ?`, list)
	if err != nil {
		return 0, storeErr("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("delete", err)
	}
	return int(n), nil
}

// ListAll implements Store.
func (s *SQLiteStore) ListAll(ctx context.Context, list string) ([][]byte, error) {
	if s.isClosed() {
		return nil, errClosed()
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT item FROM list_items WHERE list = ? ORDER BY id`, list)
	if err != nil {
		return nil, storeErr("list", err)
	}
	defer rows.Close()

	items := [][]byte{}
	for rows.Next() {
		var item []byte
		if err := rows.Scan(&item); err != nil {
			return nil, storeErr("list", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list", err)
	}
	return items, nil
}

// Close implements Store. It checkpoints the WAL before closing.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.wake)
	s.mu.Unlock()

	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
