package source

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	serrors "github.com/Aman-CERP/indexsync/internal/errors"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteSource scans entity tables of a SQLite system of record. The
// database is opened read-only.
type SQLiteSource struct {
	db     *sql.DB
	tables map[string]string
}

var (
	_ Scanner = (*SQLiteSource)(nil)
	_ Counter = (*SQLiteSource)(nil)
)

// NewSQLiteSource opens path read-only. tables maps entity names to table
// names; both must be plain identifiers.
func NewSQLiteSource(path string, tables map[string]string) (*SQLiteSource, error) {
	if len(tables) == 0 {
		return nil, serrors.ValidationError("source has no tables configured", nil)
	}
	for entity, table := range tables {
		if !identRe.MatchString(table) {
			return nil, serrors.ValidationError(
				fmt.Sprintf("invalid table name %q for entity %q", table, entity), nil)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, sourceErr("open", err)
	}
	db.SetMaxOpenConns(2)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, sourceErr("open", err)
	}

	cp := make(map[string]string, len(tables))
	for k, v := range tables {
		cp[k] = v
	}
	return &SQLiteSource{db: db, tables: cp}, nil
}

func sourceErr(op string, err error) *serrors.SyncError {
	return serrors.New(serrors.ErrCodeSourceFailed, "source "+op+" failed", err)
}

// Ping checks that the database can be read.
func (s *SQLiteSource) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return sourceErr("ping", err)
	}
	return nil
}

// Entities implements Scanner.
func (s *SQLiteSource) Entities() []string {
	out := make([]string, 0, len(s.tables))
	for e := range s.tables {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func (s *SQLiteSource) table(entity string) (string, error) {
	t, ok := s.tables[entity]
	if !ok {
		return "", serrors.UnknownEntity(entity)
	}
	return t, nil
}

// ScanPage implements Scanner. Rows are ordered by rowid.
func (s *SQLiteSource) ScanPage(ctx context.Context, entity string, offset, limit int) ([]Record, error) {
	table, err := s.table(entity)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT * FROM "%s" ORDER BY rowid LIMIT ? OFFSET ?`, table), limit, offset)
	if err != nil {
		return nil, sourceErr("scan", err).WithDetail("entity", entity)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, sourceErr("scan", err)
	}

	out := []Record{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, sourceErr("scan", err)
		}

		rec := make(Record, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[col] = string(b)
				continue
			}
			rec[col] = values[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, sourceErr("scan", err)
	}
	return out, nil
}

// Count implements Counter.
func (s *SQLiteSource) Count(ctx context.Context, entity string) (int, error) {
	table, err := s.table(entity)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, table)).Scan(&n); err != nil {
		return 0, sourceErr("count", err).WithDetail("entity", entity)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
