package verlog

import (
	"maps"
	"time"
)

// LogEntry is one stored version of a tracked column.
type LogEntry struct {
	Table     string         // log table name
	Origin    string         // origin table name
	Column    string         // tracked column
	Key       map[string]any // origin primary key
	Value     any
	Version   int64
	CreatedAt *time.Time
	CreatedBy *string
	Comment   *string

	log *LogTable
}

// Values renders the entry as a row of its log table.
func (e LogEntry) Values() map[string]any {
	out := e.valuesWithoutVersion()
	if e.log != nil {
		out[e.log.VersionColumn] = e.Version
	}
	return out
}

func (e LogEntry) valuesWithoutVersion() map[string]any {
	out := maps.Clone(e.Key)
	if out == nil {
		out = map[string]any{}
	}
	out[e.Column] = e.Value
	if e.log == nil {
		return out
	}
	if e.log.CreatedAtColumn != "" {
		out[e.log.CreatedAtColumn] = deref(e.CreatedAt)
	}
	if e.log.CreatedByColumn != "" {
		out[e.log.CreatedByColumn] = deref(e.CreatedBy)
	}
	if e.log.CommentColumn != "" {
		out[e.log.CommentColumn] = deref(e.Comment)
	}
	return out
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
