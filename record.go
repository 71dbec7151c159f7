package verlog

import (
	"maps"
	"slices"

	"github.com/mickamy/verlog/internal/value"
)

// Row is the view of an origin row the recorder needs.
type Row interface {
	TableName() string
	Get(column string) any
	// IsModified reports whether the in-memory value differs from the last persisted one.
	IsModified(column string) bool
	// IsNew reports whether the row has never been persisted.
	IsNew() bool
	ChangeBy(column string) string
	ChangeComment(column string) string
}

// Record is an origin row held in memory between saves.
type Record struct {
	table     string
	values    map[string]any
	persisted map[string]any
	isNew     bool

	changeBy      map[string]string
	changeComment map[string]string
}

var _ Row = (*Record)(nil)

// NewRecord returns an unsaved row of table.
func NewRecord(table string) *Record {
	return &Record{
		table:     table,
		values:    map[string]any{},
		persisted: map[string]any{},
		isNew:     true,
	}
}

// Load returns a row whose values are known to match storage.
func Load(table string, values map[string]any) *Record {
	r := &Record{table: table, values: make(map[string]any, len(values))}
	for k, v := range values {
		r.values[k] = value.Normalize(v)
	}
	r.persisted = maps.Clone(r.values)
	return r
}

func (r *Record) TableName() string { return r.table }

// Set assigns a column value. Integers are widened to int64 and float32 to float64
// so values read back from storage compare equal.
func (r *Record) Set(column string, v any) *Record {
	r.values[column] = value.Normalize(v)
	return r
}

func (r *Record) Get(column string) any { return r.values[column] }

// Values returns a copy of the in-memory values.
func (r *Record) Values() map[string]any { return maps.Clone(r.values) }

func (r *Record) IsNew() bool { return r.isNew }

// IsModified compares by value; times match when they denote the same instant.
func (r *Record) IsModified(column string) bool {
	return !value.Equal(r.values[column], r.persisted[column])
}

// ModifiedColumns returns the sorted names of modified columns.
func (r *Record) ModifiedColumns() []string {
	var out []string
	for c := range r.values {
		if r.IsModified(c) {
			out = append(out, c)
		}
	}
	for c := range r.persisted {
		if _, ok := r.values[c]; !ok && r.IsModified(c) {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out
}

// SetChangeBy sets the actor stored with the next version of column.
func (r *Record) SetChangeBy(column, actor string) {
	if r.changeBy == nil {
		r.changeBy = map[string]string{}
	}
	r.changeBy[column] = actor
}

// ChangeBy returns the actor set for the next version of column.
func (r *Record) ChangeBy(column string) string { return r.changeBy[column] }

// SetChangeComment sets the comment stored with the next version of column.
func (r *Record) SetChangeComment(column, comment string) {
	if r.changeComment == nil {
		r.changeComment = map[string]string{}
	}
	r.changeComment[column] = comment
}

// ChangeComment returns the comment set for the next version of column.
func (r *Record) ChangeComment(column string) string { return r.changeComment[column] }

func (r *Record) markPersisted() {
	r.persisted = maps.Clone(r.values)
	r.isNew = false
}

func (r *Record) clearTransients() {
	r.changeBy = nil
	r.changeComment = nil
}

// recordState is the part of a Record a save changes.
type recordState struct {
	values        map[string]any
	persisted     map[string]any
	isNew         bool
	changeBy      map[string]string
	changeComment map[string]string
}

func (r *Record) snapshot() recordState {
	return recordState{
		values:        maps.Clone(r.values),
		persisted:     maps.Clone(r.persisted),
		isNew:         r.isNew,
		changeBy:      maps.Clone(r.changeBy),
		changeComment: maps.Clone(r.changeComment),
	}
}

// restore puts the record back to st, undoing a save whose writes did not last.
func (r *Record) restore(st recordState) {
	r.values = maps.Clone(st.values)
	r.persisted = maps.Clone(st.persisted)
	r.isNew = st.isNew
	r.changeBy = maps.Clone(st.changeBy)
	r.changeComment = maps.Clone(st.changeComment)
}
