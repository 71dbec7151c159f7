package verlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/mickamy/verlog/internal/query"
)

// Execer is the subset of *sql.DB and *sql.Tx used to run statements.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Execer = (*sql.DB)(nil)
	_ Execer = (*sql.Tx)(nil)
)

// Store persists origin rows and log entries. Keys and values are keyed by column name.
type Store interface {
	// Insert stores a new row and returns it as stored, including generated values.
	Insert(ctx context.Context, t *Table, values map[string]any) (map[string]any, error)
	Update(ctx context.Context, t *Table, key, values map[string]any) error
	Delete(ctx context.Context, t *Table, key map[string]any) error
	// Find returns ErrNotFound when no row matches key.
	Find(ctx context.Context, t *Table, key map[string]any) (map[string]any, error)
	// MaxVersion returns the highest version stored for key, 0 when there is none.
	MaxVersion(ctx context.Context, t *Table, versionColumn string, key map[string]any) (int64, error)
}

// VersionAppender is implemented by stores that can compute the next version and
// store the entry in a single statement.
type VersionAppender interface {
	AppendVersion(ctx context.Context, t *Table, versionColumn string, key, values map[string]any) (int64, error)
}

// SQLStore is a Store over a PostgreSQL connection or transaction.
type SQLStore struct {
	ex Execer
}

var (
	_ Store           = (*SQLStore)(nil)
	_ VersionAppender = (*SQLStore)(nil)
)

// NewSQLStore returns a store running its statements on ex.
func NewSQLStore(ex Execer) *SQLStore {
	return &SQLStore{ex: ex}
}

func (s *SQLStore) Insert(ctx context.Context, t *Table, values map[string]any) (map[string]any, error) {
	st := query.InsertReturning(t.Ident(), assignments(t, values))
	rows, err := s.ex.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("verlog: failed to insert into %q: %w", t.Name, err)
	}
	m, err := scanOne(rows)
	if err != nil {
		return nil, fmt.Errorf("verlog: failed to insert into %q: %w", t.Name, err)
	}
	return m, nil
}

func (s *SQLStore) Update(ctx context.Context, t *Table, key, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	st := query.Update(t.Ident(), assignments(t, values), assignments(t, key))
	if _, err := s.ex.ExecContext(ctx, st.SQL, st.Args...); err != nil {
		return fmt.Errorf("verlog: failed to update %q: %w", t.Name, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, t *Table, key map[string]any) error {
	st := query.Delete(t.Ident(), assignments(t, key))
	if _, err := s.ex.ExecContext(ctx, st.SQL, st.Args...); err != nil {
		return fmt.Errorf("verlog: failed to delete from %q: %w", t.Name, err)
	}
	return nil
}

func (s *SQLStore) Find(ctx context.Context, t *Table, key map[string]any) (map[string]any, error) {
	st := query.SelectOne(t.Ident(), assignments(t, key))
	rows, err := s.ex.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("verlog: failed to select from %q: %w", t.Name, err)
	}
	m, err := scanOne(rows)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("verlog: failed to scan %q: %w", t.Name, err)
	}
	return m, nil
}

func (s *SQLStore) MaxVersion(ctx context.Context, t *Table, versionColumn string, key map[string]any) (int64, error) {
	st := query.MaxVersion(t.Ident(), versionColumn, assignments(t, key))
	var v int64
	if err := s.ex.QueryRowContext(ctx, st.SQL, st.Args...).Scan(&v); err != nil {
		return 0, fmt.Errorf("verlog: failed to read max version of %q: %w", t.Name, err)
	}
	return v, nil
}

func (s *SQLStore) AppendVersion(ctx context.Context, t *Table, versionColumn string, key, values map[string]any) (int64, error) {
	st := query.AppendVersion(t.Ident(), versionColumn, assignments(t, key), assignments(t, values))
	var v int64
	if err := s.ex.QueryRowContext(ctx, st.SQL, st.Args...).Scan(&v); err != nil {
		return 0, fmt.Errorf("verlog: failed to append version to %q: %w", t.Name, err)
	}
	return v, nil
}

// assignments orders m by the table's column order. Names the table does not
// declare follow in lexical order so the database reports them.
func assignments(t *Table, m map[string]any) query.Assignments {
	var a query.Assignments
	seen := make(map[string]bool, len(m))
	for _, c := range t.Columns() {
		if v, ok := m[c.Name]; ok {
			a.Add(c.Name, v)
			seen[c.Name] = true
		}
	}
	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	for _, k := range rest {
		a.Add(k, m[k])
	}
	return a
}

// scanOne consumes exactly one row from *sql.Rows into a map.
func scanOne(rows *sql.Rows) (map[string]any, error) {
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return rowToMap(cols, vals), nil
}

// rowToMap converts a single row (columns + values) to a map.
func rowToMap(cols []string, vals []any) map[string]any {
	m := make(map[string]any, len(cols))
	for i, c := range cols {
		v := vals[i]
		if b, ok := v.([]byte); ok {
			// JSON documents decode; anything else is kept as a string
			if len(b) > 0 && (b[0] == '{' || b[0] == '[') {
				var js any
				if json.Unmarshal(b, &js) == nil {
					m[c] = js
					continue
				}
			}
			m[c] = string(b)
			continue
		}
		m[c] = v
	}
	return m
}
