package verlog

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mickamy/verlog"

type settings struct {
	now     func() time.Time
	logger  zerolog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

func newSettings(opts []Option) settings {
	s := settings{
		now:    time.Now,
		logger: zerolog.Nop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// Option configures a Recorder or a Session.
type Option func(*settings)

// WithClock sets the clock used for created-at timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithTracerProvider replaces the global otel tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *settings) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// ChangeFlags records, per tracked column, whether the pending save changes it.
type ChangeFlags map[string]bool

// Changed returns the flagged columns in the given order.
func (f ChangeFlags) Changed(order []string) []string {
	var out []string
	for _, c := range order {
		if f[c] {
			out = append(out, c)
		}
	}
	return out
}

// Recorder appends versions of the tracked columns of one origin table.
type Recorder struct {
	schema *LogSchema
	store  Store
	s      settings
}

// NewRecorder returns a recorder writing the log tables of schema to store.
func NewRecorder(schema *LogSchema, store Store, opts ...Option) *Recorder {
	return &Recorder{schema: schema, store: store, s: newSettings(opts)}
}

// Schema returns the log schema the recorder writes.
func (r *Recorder) Schema() *LogSchema { return r.schema }

// CaptureChangeFlags must run before the row is written. A row that was never
// persisted gets no flags: its first save is the baseline, not a version.
func (r *Recorder) CaptureChangeFlags(row Row) ChangeFlags {
	cols := r.schema.Columns()
	flags := make(ChangeFlags, len(cols))
	isNew := row.IsNew()
	for _, c := range cols {
		flags[c] = !isNew && row.IsModified(c)
	}
	return flags
}

// RecordVersions must run after the row is written. It appends one version per
// flagged column in tracked order and stops at the first failure.
func (r *Recorder) RecordVersions(ctx context.Context, row Row, flags ChangeFlags) ([]LogEntry, error) {
	if extractSkip(ctx) {
		return nil, nil
	}
	var out []LogEntry
	for _, c := range flags.Changed(r.schema.Columns()) {
		e, err := r.AddVersion(ctx, row, c)
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

// AddVersion stores the row's current value of column as the next version for the
// row's primary key. It may be called directly to force a version.
func (r *Recorder) AddVersion(ctx context.Context, row Row, column string) (LogEntry, error) {
	lt, ok := r.schema.Log(column)
	if !ok {
		return LogEntry{}, &ConfigurationError{Table: r.schema.Origin, Column: column, Reason: "column is not logged"}
	}
	if row.TableName() != r.schema.Origin {
		return LogEntry{}, fmt.Errorf("verlog: row of %q passed to the recorder of %q", row.TableName(), r.schema.Origin)
	}

	ctx, span := r.s.tracer.Start(ctx, "verlog.AddVersion", trace.WithAttributes(
		attribute.String("verlog.origin", r.schema.Origin),
		attribute.String("verlog.log_table", lt.Name),
		attribute.String("verlog.column", column),
	))
	defer span.End()

	e := LogEntry{
		Table:  lt.Name,
		Origin: r.schema.Origin,
		Column: column,
		Key:    make(map[string]any, len(lt.PrimaryKey)),
		Value:  row.Get(column),
		log:    lt,
	}
	for _, pk := range lt.PrimaryKey {
		v := row.Get(pk)
		if v == nil {
			return LogEntry{}, fmt.Errorf("verlog: row of %q has no value for primary key %q", r.schema.Origin, pk)
		}
		e.Key[pk] = v
	}

	m := extractMeta(ctx)
	if lt.CreatedAtColumn != "" {
		now := r.s.now()
		e.CreatedAt = &now
	}
	if lt.CreatedByColumn != "" {
		e.CreatedBy = firstNonEmpty(row.ChangeBy(column), m.actor)
	}
	if lt.CommentColumn != "" {
		e.Comment = firstNonEmpty(row.ChangeComment(column), m.comment)
	}

	v, err := r.append(ctx, lt, e)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append version")
		if IsVersionConflict(err) {
			r.s.metrics.observeConflict(lt.Name)
			r.s.logger.Warn().Err(err).Str("log_table", lt.Name).Msg("version conflict")
		}
		return LogEntry{}, err
	}
	e.Version = v
	span.SetAttributes(attribute.Int64("verlog.version", v))
	return e, nil
}

func (r *Recorder) append(ctx context.Context, lt *LogTable, e LogEntry) (int64, error) {
	values := e.valuesWithoutVersion()
	if app, ok := r.store.(VersionAppender); ok {
		return app.AppendVersion(ctx, lt.Table, lt.VersionColumn, e.Key, values)
	}
	latest, err := r.store.MaxVersion(ctx, lt.Table, lt.VersionColumn, e.Key)
	if err != nil {
		return 0, err
	}
	values = maps.Clone(values)
	values[lt.VersionColumn] = latest + 1
	if _, err := r.store.Insert(ctx, lt.Table, values); err != nil {
		return 0, err
	}
	return latest + 1, nil
}

// report logs and counts entries that are durable.
func (s settings) report(entries []LogEntry) {
	for _, e := range entries {
		s.metrics.observeRecorded(e.Table)
		s.logger.Debug().
			Str("log_table", e.Table).
			Str("column", e.Column).
			Int64("version", e.Version).
			Interface("key", e.Key).
			Msg("version recorded")
	}
}

func firstNonEmpty(vs ...string) *string {
	for _, v := range vs {
		if v != "" {
			return &v
		}
	}
	return nil
}
