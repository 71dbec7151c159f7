package verlog

import (
	"context"
	"fmt"

	"github.com/mickamy/verlog/internal/value"
)

// Session saves origin rows through a Store and records versions of their tracked
// columns as part of each save.
type Session struct {
	db        *Database
	store     Store
	s         settings
	recorders map[string]*Recorder

	// onRecorded receives entries once they are durable.
	onRecorded func([]LogEntry)
	// onSaved receives each saved record with its state from before the save.
	onSaved func(*Record, recordState)
}

// NewSession returns a session over the tables of db. Tables without an entry in
// schemas are saved without logging.
func NewSession(db *Database, schemas Schemas, store Store, opts ...Option) *Session {
	s := &Session{
		db:        db,
		store:     store,
		s:         newSettings(opts),
		recorders: make(map[string]*Recorder, len(schemas)),
	}
	for name, ls := range schemas {
		s.recorders[name] = &Recorder{schema: ls, store: store, s: s.s}
	}
	s.onRecorded = s.s.report
	return s
}

// Recorder returns the recorder of an origin table, nil when it is not logged.
func (s *Session) Recorder(table string) *Recorder { return s.recorders[table] }

// Save inserts a new record or updates its modified columns, then appends a version
// for every tracked column the save changed. Per-column actor and comment values are
// cleared once the save completes. A failed save leaves the record as it was, so the
// caller can retry it.
func (s *Session) Save(ctx context.Context, rec *Record) (entries []LogEntry, err error) {
	t, err := s.table(rec.TableName())
	if err != nil {
		return nil, err
	}
	rc := s.recorders[t.Name]

	var flags ChangeFlags
	if rc != nil {
		flags = rc.CaptureChangeFlags(rec)
	}

	st := rec.snapshot()
	defer func() {
		if err != nil {
			rec.restore(st)
			return
		}
		if s.onSaved != nil {
			s.onSaved(rec, st)
		}
		rec.clearTransients()
	}()

	if rec.IsNew() {
		stored, err := s.store.Insert(ctx, t, rec.Values())
		if err != nil {
			return nil, err
		}
		for k, v := range stored {
			rec.values[k] = value.Normalize(v)
		}
	} else if changed := rec.ModifiedColumns(); len(changed) > 0 {
		key, err := persistedKey(t, rec)
		if err != nil {
			return nil, err
		}
		values := make(map[string]any, len(changed))
		for _, c := range changed {
			values[c] = rec.values[c]
		}
		if err := s.store.Update(ctx, t, key, values); err != nil {
			return nil, err
		}
	}
	rec.markPersisted()

	if rc == nil {
		return nil, nil
	}
	entries, err = rc.RecordVersions(ctx, rec, flags)
	if err != nil {
		return nil, err
	}
	s.onRecorded(entries)
	return entries, nil
}

// Delete removes the stored row. Its versions go with it through the cascading
// relation of the log tables.
func (s *Session) Delete(ctx context.Context, rec *Record) error {
	if rec.IsNew() {
		return fmt.Errorf("verlog: cannot delete unsaved row of %q", rec.TableName())
	}
	t, err := s.table(rec.TableName())
	if err != nil {
		return err
	}
	key, err := persistedKey(t, rec)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, t, key)
}

// Find loads the row of table identified by key.
func (s *Session) Find(ctx context.Context, table string, key map[string]any) (*Record, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	normalized := make(map[string]any, len(key))
	for k, v := range key {
		normalized[k] = value.Normalize(v)
	}
	values, err := s.store.Find(ctx, t, normalized)
	if err != nil {
		return nil, err
	}
	return Load(t.Name, values), nil
}

// AddVersion appends a version of column with the record's current value, whether
// or not the value changed.
func (s *Session) AddVersion(ctx context.Context, rec *Record, column string) (LogEntry, error) {
	rc := s.recorders[rec.TableName()]
	if rc == nil {
		return LogEntry{}, &ConfigurationError{Table: rec.TableName(), Reason: "table is not logged"}
	}
	e, err := rc.AddVersion(ctx, rec, column)
	if err != nil {
		return LogEntry{}, err
	}
	s.onRecorded([]LogEntry{e})
	return e, nil
}

func (s *Session) table(name string) (*Table, error) {
	t := s.db.Table(name)
	if t == nil {
		return nil, fmt.Errorf("verlog: unknown table %q", name)
	}
	return t, nil
}

// persistedKey identifies the stored row, which differs from the in-memory key
// while a primary key change is pending.
func persistedKey(t *Table, rec *Record) (map[string]any, error) {
	pk := t.PrimaryKeyNames()
	if len(pk) == 0 {
		return nil, fmt.Errorf("verlog: table %q has no primary key to address stored rows", t.Name)
	}
	key := make(map[string]any, len(pk))
	for _, c := range pk {
		key[c] = rec.persisted[c]
	}
	return key, nil
}
