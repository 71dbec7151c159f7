// Package verlog keeps a per-column version history of database rows. Tracked columns
// of an origin table get log tables keyed by the origin primary key plus a version
// number, and every save that changes a tracked column appends the new value there.
package verlog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mickamy/verlog/internal/buffer"
)

// Config defines the runtime options of a Handler.
type Config struct {
	Logger  *zerolog.Logger // nil disables logging
	Metrics *Metrics        // optional
	Now     func() time.Time
}

// Handler is the main entry point that manages verlog behavior.
type Handler struct {
	cfg Config
}

// New creates a new Handler instance with sensible defaults.
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		l := zerolog.Nop()
		cfg.Logger = &l
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{cfg: cfg}
}

func (h *Handler) options() []Option {
	return []Option{WithLogger(*h.cfg.Logger), WithMetrics(h.cfg.Metrics), WithClock(h.cfg.Now)}
}

// NewSession returns a session over store configured by the handler.
func (h *Handler) NewSession(db *Database, schemas Schemas, store Store) *Session {
	return NewSession(db, schemas, store, h.options()...)
}

// DB wraps a *sql.DB instance to record versions inside transactions.
type DB struct {
	*sql.DB
	h       *Handler
	model   *Database
	schemas Schemas
}

// WrapDB attaches verlog to a *sql.DB connection.
func (h *Handler) WrapDB(db *sql.DB, model *Database, schemas Schemas) *DB {
	return &DB{DB: db, h: h, model: model, schemas: schemas}
}

// Tx wraps a *sql.Tx. Saves run inside the transaction and the versions they
// append are reported only once it commits. Records saved in a transaction that
// does not commit are put back to their state from before the transaction.
type Tx struct {
	*sql.Tx
	session *Session
	buf     *buffer.Buffer[LogEntry]
	report  func([]LogEntry)

	mu    sync.Mutex
	saved map[*Record]recordState
}

// BeginTx starts a wrapped transaction.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	t, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	s := db.h.NewSession(db.model, db.schemas, NewSQLStore(t))
	tx := &Tx{
		Tx:      t,
		session: s,
		buf:     buffer.NewBuffer[LogEntry](),
		report:  s.s.report,
		saved:   map[*Record]recordState{},
	}
	s.onRecorded = func(es []LogEntry) { tx.buf.Add(es...) }
	s.onSaved = tx.remember
	return tx, nil
}

// Save saves rec in a transaction of its own.
func (db *DB) Save(ctx context.Context, rec *Record) ([]LogEntry, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("verlog: failed to begin transaction: %w", err)
	}
	entries, err := tx.Save(ctx, rec)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.h.cfg.Logger.Error().Err(rbErr).Str("table", rec.TableName()).Msg("rollback failed")
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("verlog: failed to commit: %w", err)
	}
	return entries, nil
}

func (t *Tx) Save(ctx context.Context, rec *Record) ([]LogEntry, error) {
	return t.session.Save(ctx, rec)
}

func (t *Tx) Delete(ctx context.Context, rec *Record) error {
	return t.session.Delete(ctx, rec)
}

func (t *Tx) Find(ctx context.Context, table string, key map[string]any) (*Record, error) {
	return t.session.Find(ctx, table, key)
}

func (t *Tx) AddVersion(ctx context.Context, rec *Record, column string) (LogEntry, error) {
	return t.session.AddVersion(ctx, rec, column)
}

// Entries returns the versions appended so far in the transaction.
func (t *Tx) Entries() []LogEntry {
	return t.buf.Snapshot()
}

// Commit commits the transaction and reports the buffered versions.
func (t *Tx) Commit() error {
	if err := t.Tx.Commit(); err != nil {
		t.buf.Reset()
		t.restoreSaved()
		return err
	}
	t.mu.Lock()
	clear(t.saved)
	t.mu.Unlock()
	t.report(t.buf.Drain())
	return nil
}

// Rollback clears buffered versions, restores saved records and rolls back the
// transaction.
func (t *Tx) Rollback() error {
	t.buf.Reset()
	t.restoreSaved()
	return t.Tx.Rollback()
}

// remember keeps the state a record had before its first save in the transaction.
func (t *Tx) remember(rec *Record, st recordState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.saved[rec]; !ok {
		t.saved[rec] = st
	}
}

func (t *Tx) restoreSaved() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for rec, st := range t.saved {
		rec.restore(st)
	}
	clear(t.saved)
}
