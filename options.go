package verlog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/mickamy/verlog/internal/ident"
)

// Behavior is the name change logging parameters are registered under in a model.
const Behavior = "change_logger"

// Parameter keys recognized by ParseOptions.
const (
	ParamLog             = "log"
	ParamCreatedAt       = "created_at"
	ParamCreatedBy       = "created_by"
	ParamComment         = "comment"
	ParamCreatedAtColumn = "created_at_column"
	ParamCreatedByColumn = "created_by_column"
	ParamCommentColumn   = "comment_column"
	ParamVersionColumn   = "version_column"
	ParamLogTable        = "log_table"
)

// Default column names.
const (
	DefaultCreatedAtColumn = "log_created_at"
	DefaultCreatedByColumn = "log_created_by"
	DefaultCommentColumn   = "log_comment"
	DefaultVersionColumn   = "version"
)

// Parameters are raw behavior parameters as written in a model definition.
type Parameters map[string]string

// Options configures change logging for one origin table.
type Options struct {
	Log []string // tracked column names

	CreatedAt bool
	CreatedBy bool
	Comment   bool

	CreatedAtColumn string
	CreatedByColumn string
	CommentColumn   string
	VersionColumn   string

	// LogTable names log tables; {table} and {column} are substituted.
	// Columns whose pattern expands to the same name share one log table.
	LogTable string
}

// TrackedColumn is a validated reference to a logged column.
type TrackedColumn struct {
	Name     string
	Accessor string
}

// ParseOptions converts raw parameters into Options. Unknown keys and malformed
// booleans are configuration errors; the tracked columns are not resolved here.
func ParseOptions(p Parameters) (Options, error) {
	var o Options
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := strings.TrimSpace(p[k])
		var err error
		switch k {
		case ParamLog:
			o.Log = ParseColumnList(v)
		case ParamCreatedAt:
			o.CreatedAt, err = parseFlag(k, v)
		case ParamCreatedBy:
			o.CreatedBy, err = parseFlag(k, v)
		case ParamComment:
			o.Comment, err = parseFlag(k, v)
		case ParamCreatedAtColumn:
			o.CreatedAtColumn = v
		case ParamCreatedByColumn:
			o.CreatedByColumn = v
		case ParamCommentColumn:
			o.CommentColumn = v
		case ParamVersionColumn:
			o.VersionColumn = v
		case ParamLogTable:
			o.LogTable = v
		default:
			err = &ConfigurationError{Reason: fmt.Sprintf("unknown %s parameter %q", Behavior, k)}
		}
		if err != nil {
			return Options{}, err
		}
	}
	return o.withDefaults(), nil
}

func parseFlag(key, v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, &ConfigurationError{Reason: fmt.Sprintf("parameter %q expects a boolean, got %q", key, v)}
	}
	return b, nil
}

// ParseColumnList splits a comma separated list of column names. Blank entries are
// dropped and duplicates collapsed, keeping first occurrence order.
func ParseColumnList(s string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func (o Options) withDefaults() Options {
	if o.CreatedAtColumn == "" {
		o.CreatedAtColumn = DefaultCreatedAtColumn
	}
	if o.CreatedByColumn == "" {
		o.CreatedByColumn = DefaultCreatedByColumn
	}
	if o.CommentColumn == "" {
		o.CommentColumn = DefaultCommentColumn
	}
	if o.VersionColumn == "" {
		o.VersionColumn = DefaultVersionColumn
	}
	if o.LogTable == "" {
		o.LogTable = ident.DefaultLogPattern
	}
	return o
}

// Tracked resolves the configured column names against t.
func (o Options) Tracked(t *Table) ([]TrackedColumn, error) {
	names := ParseColumnList(strings.Join(o.Log, ","))
	if len(names) == 0 {
		return nil, &ConfigurationError{
			Table:  t.Name,
			Reason: fmt.Sprintf("%s needs at least one column in the %q parameter", Behavior, ParamLog),
		}
	}
	out := make([]TrackedColumn, 0, len(names))
	for _, name := range names {
		c := t.Column(name)
		if c == nil {
			return nil, &ConfigurationError{Table: t.Name, Column: name, Reason: "column does not exist"}
		}
		out = append(out, TrackedColumn{Name: c.Name, Accessor: c.GoName()})
	}
	return out, nil
}
