// Package memstore is an in-memory verlog.Store. It enforces primary keys, foreign
// keys and their cascading actions from the table definitions, so it behaves like the
// relational store the log tables are designed for.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"sync"

	"github.com/mickamy/verlog"
	"github.com/mickamy/verlog/internal/value"
)

// ErrForeignKeyViolation is returned when a row references a missing row or a
// referenced row is removed under a restricting relation.
var ErrForeignKeyViolation = errors.New("memstore: foreign key violation")

// Store keeps rows per table in insertion order.
type Store struct {
	mu   sync.RWMutex
	db   *verlog.Database
	rows map[string][]map[string]any
	seq  map[string]int64
}

var _ verlog.Store = (*Store)(nil)

// New returns an empty store for the tables of db.
func New(db *verlog.Database) *Store {
	return &Store{
		db:   db,
		rows: map[string][]map[string]any{},
		seq:  map[string]int64{},
	}
}

func (s *Store) Insert(_ context.Context, t *verlog.Table, values map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := make(map[string]any, len(t.Columns()))
	for _, c := range t.Columns() {
		row[c.Name] = value.Normalize(values[c.Name])
	}
	for k := range values {
		if !t.HasColumn(k) {
			return nil, fmt.Errorf("memstore: table %q has no column %q", t.Name, k)
		}
	}
	for _, c := range t.Columns() {
		if c.AutoIncrement && row[c.Name] == nil {
			s.seq[t.Name]++
			row[c.Name] = s.seq[t.Name]
		}
	}
	if err := s.checkInsert(t, row); err != nil {
		return nil, err
	}
	s.rows[t.Name] = append(s.rows[t.Name], row)
	return maps.Clone(row), nil
}

func (s *Store) checkInsert(t *verlog.Table, row map[string]any) error {
	pk := t.PrimaryKeyNames()
	if len(pk) > 0 {
		key := pick(row, pk)
		if s.index(t.Name, key) >= 0 {
			return fmt.Errorf("memstore: insert into %q key %v: %w", t.Name, key, verlog.ErrDuplicateKey)
		}
	}
	return s.checkReferences(t, row)
}

func (s *Store) checkReferences(t *verlog.Table, row map[string]any) error {
	for _, fk := range t.ForeignKeys() {
		key := make(map[string]any, len(fk.LocalColumns))
		for i, c := range fk.LocalColumns {
			if row[c] == nil {
				key = nil
				break
			}
			key[fk.ForeignColumns[i]] = row[c]
		}
		if key == nil {
			continue
		}
		if s.index(fk.ForeignTable, key) < 0 {
			return fmt.Errorf("memstore: %q references missing %q row %v: %w", t.Name, fk.ForeignTable, key, ErrForeignKeyViolation)
		}
	}
	return nil
}

// Update returns verlog.ErrNotFound when no row matches key. A primary key change
// is propagated to referencing rows whose relation cascades on update.
func (s *Store) Update(_ context.Context, t *verlog.Table, key, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(t.Name, key)
	if i < 0 {
		return fmt.Errorf("memstore: update %q key %v: %w", t.Name, key, verlog.ErrNotFound)
	}
	old := s.rows[t.Name][i]
	row := maps.Clone(old)
	for k, v := range values {
		if !t.HasColumn(k) {
			return fmt.Errorf("memstore: table %q has no column %q", t.Name, k)
		}
		row[k] = value.Normalize(v)
	}
	pk := t.PrimaryKeyNames()
	oldKey, newKey := pick(old, pk), pick(row, pk)
	if !sameKey(oldKey, newKey) {
		if s.index(t.Name, newKey) >= 0 {
			return fmt.Errorf("memstore: update %q key %v: %w", t.Name, newKey, verlog.ErrDuplicateKey)
		}
	}
	if err := s.checkReferences(t, row); err != nil {
		return err
	}
	s.rows[t.Name][i] = row
	if !sameKey(oldKey, newKey) {
		s.cascadeUpdate(t, old, row)
	}
	return nil
}

func (s *Store) cascadeUpdate(t *verlog.Table, old, row map[string]any) {
	for _, ref := range s.db.Tables() {
		for _, fk := range ref.ForeignKeysReferencingTable(t.Name) {
			if fk.OnUpdate != verlog.ActionCascade {
				continue
			}
			match := make(map[string]any, len(fk.LocalColumns))
			for i, c := range fk.LocalColumns {
				match[c] = old[fk.ForeignColumns[i]]
			}
			for _, r := range s.rows[ref.Name] {
				if !matches(r, match) {
					continue
				}
				for i, c := range fk.LocalColumns {
					r[c] = row[fk.ForeignColumns[i]]
				}
			}
		}
	}
}

// Delete removes the row and, through cascading relations, the rows referencing it.
// Deleting a missing row is not an error.
func (s *Store) Delete(_ context.Context, t *verlog.Table, key map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delete(t, key)
}

func (s *Store) delete(t *verlog.Table, key map[string]any) error {
	i := s.index(t.Name, key)
	if i < 0 {
		return nil
	}
	row := s.rows[t.Name][i]
	for _, ref := range s.db.Tables() {
		for _, fk := range ref.ForeignKeysReferencingTable(t.Name) {
			match := make(map[string]any, len(fk.LocalColumns))
			for i, c := range fk.LocalColumns {
				match[c] = row[fk.ForeignColumns[i]]
			}
			if err := s.deleteReferencing(ref, fk, match); err != nil {
				return err
			}
		}
	}
	rows := s.rows[t.Name]
	if i = s.index(t.Name, key); i >= 0 {
		s.rows[t.Name] = append(rows[:i:i], rows[i+1:]...)
	}
	return nil
}

func (s *Store) deleteReferencing(ref *verlog.Table, fk *verlog.ForeignKey, match map[string]any) error {
	var hits []map[string]any
	for _, r := range s.rows[ref.Name] {
		if matches(r, match) {
			hits = append(hits, r)
		}
	}
	if len(hits) == 0 {
		return nil
	}
	switch fk.OnDelete {
	case verlog.ActionCascade:
		pk := ref.PrimaryKeyNames()
		for _, r := range hits {
			if len(pk) == 0 {
				s.removeExact(ref.Name, r)
				continue
			}
			if err := s.delete(ref, pick(r, pk)); err != nil {
				return err
			}
		}
	case verlog.ActionSetNull:
		for _, r := range hits {
			for _, c := range fk.LocalColumns {
				r[c] = nil
			}
		}
	default:
		return fmt.Errorf("memstore: %q rows still reference the deleted row: %w", ref.Name, ErrForeignKeyViolation)
	}
	return nil
}

func (s *Store) removeExact(table string, target map[string]any) {
	rows := s.rows[table]
	for i, r := range rows {
		if reflect.ValueOf(r).Pointer() == reflect.ValueOf(target).Pointer() {
			s.rows[table] = append(rows[:i:i], rows[i+1:]...)
			return
		}
	}
}

func (s *Store) Find(_ context.Context, t *verlog.Table, key map[string]any) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.index(t.Name, key)
	if i < 0 {
		return nil, verlog.ErrNotFound
	}
	return maps.Clone(s.rows[t.Name][i]), nil
}

func (s *Store) MaxVersion(_ context.Context, t *verlog.Table, versionColumn string, key map[string]any) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest int64
	for _, r := range s.rows[t.Name] {
		if !matches(r, key) {
			continue
		}
		v, ok := value.Normalize(r[versionColumn]).(int64)
		if !ok {
			return 0, fmt.Errorf("memstore: %q.%q holds %T, want an integer", t.Name, versionColumn, r[versionColumn])
		}
		latest = max(latest, v)
	}
	return latest, nil
}

// Rows returns copies of the rows of table in insertion order.
func (s *Store) Rows(table string) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]map[string]any, len(s.rows[table]))
	for i, r := range s.rows[table] {
		out[i] = maps.Clone(r)
	}
	return out
}

// Count returns the number of rows of table.
func (s *Store) Count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows[table])
}

func (s *Store) index(table string, key map[string]any) int {
	if len(key) == 0 {
		return -1
	}
	for i, r := range s.rows[table] {
		if matches(r, key) {
			return i
		}
	}
	return -1
}

func pick(row map[string]any, columns []string) map[string]any {
	out := make(map[string]any, len(columns))
	for _, c := range columns {
		out[c] = row[c]
	}
	return out
}

func matches(row, key map[string]any) bool {
	for k, v := range key {
		if !value.Equal(row[k], v) {
			return false
		}
	}
	return true
}

func sameKey(a, b map[string]any) bool { return matches(a, b) && matches(b, a) }
