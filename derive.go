package verlog

import (
	"errors"
	"fmt"

	"github.com/mickamy/verlog/internal/ident"
)

// OriginRelation is the name of the foreign key from a log table to its origin table.
const OriginRelation = "Origin"

// Sizes of the string metadata columns.
const (
	CreatedBySize = 100
	CommentSize   = 255
)

// LogTable describes where the history of one tracked column is stored.
// Metadata column names are empty when the feature is disabled.
type LogTable struct {
	Name            string
	Column          string
	Accessor        string
	PrimaryKey      []string // origin primary key columns, copied into every entry
	VersionColumn   string
	CreatedAtColumn string
	CreatedByColumn string
	CommentColumn   string

	Table *Table
}

// Ident returns the schema-qualified identifier parts of the log table.
func (l *LogTable) Ident() []string { return l.Table.Ident() }

// LogSchema is the outcome of deriving change logging for one origin table.
type LogSchema struct {
	Origin     string
	OriginRef  []string // schema-qualified identifier parts of the origin table
	PrimaryKey []string
	Options    Options
	Tracked    []TrackedColumn

	logs map[string]*LogTable
}

// Log returns the log table of a tracked column.
func (s *LogSchema) Log(column string) (*LogTable, bool) {
	l, ok := s.logs[column]
	return l, ok
}

// Columns returns the tracked column names in configuration order.
func (s *LogSchema) Columns() []string {
	out := make([]string, len(s.Tracked))
	for i, tc := range s.Tracked {
		out[i] = tc.Name
	}
	return out
}

// Tables returns the distinct log tables in configuration order.
func (s *LogSchema) Tables() []*Table {
	var out []*Table
	seen := map[*Table]bool{}
	for _, tc := range s.Tracked {
		t := s.logs[tc.Name].Table
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Derive adds a log table for every tracked column of origin to origin's database
// and returns the descriptors the recorder works from. Deriving twice, or for
// several columns sharing one log table name, reuses the existing table.
func Derive(origin *Table, opts Options) (*LogSchema, error) {
	opts = opts.withDefaults()
	db := origin.Database()
	if db == nil {
		return nil, &ConfigurationError{Table: origin.Name, Reason: "table is not registered in a database"}
	}
	tracked, err := opts.Tracked(origin)
	if err != nil {
		return nil, err
	}
	pk := origin.PrimaryKey()
	if len(pk) == 0 {
		return nil, &ConfigurationError{Table: origin.Name, Reason: "change logging needs a primary key"}
	}

	db.buildMu.Lock()
	defer db.buildMu.Unlock()

	s := &LogSchema{
		Origin:     origin.Name,
		OriginRef:  origin.Ident(),
		PrimaryKey: origin.PrimaryKeyNames(),
		Options:    opts,
		Tracked:    tracked,
		logs:       make(map[string]*LogTable, len(tracked)),
	}
	for _, tc := range tracked {
		column := origin.Column(tc.Name)
		name := ident.LogTableName(opts.LogTable, origin.Name, column.Name)
		if name == origin.Name {
			return nil, &ConfigurationError{Table: origin.Name, Column: column.Name, Reason: "log table name equals the origin table"}
		}

		lt, err := resolveLogTable(db, origin, name)
		if err != nil {
			return nil, err
		}
		if err := addPrimaryKey(lt, origin, opts.VersionColumn); err != nil {
			return nil, err
		}
		if err := addForeignKey(lt, origin); err != nil {
			return nil, err
		}
		if err := addColumnToLog(lt, column); err != nil {
			return nil, err
		}
		if err := addLogColumns(lt, opts); err != nil {
			return nil, err
		}

		desc := &LogTable{
			Name:          lt.Name,
			Column:        column.Name,
			Accessor:      tc.Accessor,
			PrimaryKey:    s.PrimaryKey,
			VersionColumn: opts.VersionColumn,
			Table:         lt,
		}
		if opts.CreatedAt {
			desc.CreatedAtColumn = opts.CreatedAtColumn
		}
		if opts.CreatedBy {
			desc.CreatedByColumn = opts.CreatedByColumn
		}
		if opts.Comment {
			desc.CommentColumn = opts.CommentColumn
		}
		s.logs[column.Name] = desc
	}
	return s, nil
}

func resolveLogTable(db *Database, origin *Table, name string) (*Table, error) {
	if t := db.Table(name); t != nil {
		return t, nil
	}
	t := NewTable(name)
	t.Package = origin.Package
	t.Schema = origin.Schema
	t.Namespace = origin.Namespace
	t.SkipSQL = origin.SkipSQL
	if err := db.AddTable(t); err != nil {
		return nil, err
	}
	return t, nil
}

// addPrimaryKey mirrors the origin primary key and appends the version column.
func addPrimaryKey(lt, origin *Table, versionColumn string) error {
	for _, pk := range origin.PrimaryKey() {
		if lt.HasColumn(pk.Name) {
			continue
		}
		c := pk.Clone()
		c.AutoIncrement = false
		c.PrimaryString = false
		c.ClearReferrers()
		if err := lt.AddColumn(c); err != nil {
			return err
		}
	}
	if lt.HasColumn(versionColumn) {
		return nil
	}
	return lt.AddColumn(&Column{
		Name:       versionColumn,
		Type:       TypeInteger,
		PrimaryKey: true,
		Required:   true,
		Default:    "0",
	})
}

// addForeignKey relates the log table to its origin row. A log table shared by
// several tracked columns keeps a single relation.
func addForeignKey(lt, origin *Table) error {
	if len(lt.ForeignKeysReferencingTable(origin.Name)) > 0 {
		return nil
	}
	fk := &ForeignKey{
		Name:          OriginRelation,
		ForeignTable:  origin.Name,
		ForeignSchema: origin.Schema,
		OnDelete:      ActionCascade,
		OnUpdate:      ActionCascade,
	}
	for _, c := range origin.PrimaryKey() {
		fk.AddReference(c.Name, c.Name)
	}
	return lt.AddForeignKey(fk)
}

// addColumnToLog adds the tracked column without identity, key or relation flags.
func addColumnToLog(lt *Table, column *Column) error {
	if lt.HasColumn(column.Name) {
		return nil
	}
	c := column.Clone()
	if c.HasReferrers() {
		c.ClearReferrers()
	}
	c.AutoIncrement = false
	c.PrimaryKey = false
	return lt.AddColumn(c)
}

func addLogColumns(lt *Table, opts Options) error {
	cols := []struct {
		enabled bool
		column  Column
	}{
		{opts.CreatedAt, Column{Name: opts.CreatedAtColumn, Type: TypeTimestamp}},
		{opts.CreatedBy, Column{Name: opts.CreatedByColumn, Type: TypeVarchar, Size: CreatedBySize}},
		{opts.Comment, Column{Name: opts.CommentColumn, Type: TypeVarchar, Size: CommentSize}},
	}
	for _, mc := range cols {
		if !mc.enabled || lt.HasColumn(mc.column.Name) {
			continue
		}
		c := mc.column
		if err := lt.AddColumn(&c); err != nil {
			return fmt.Errorf("verlog: add %q to %q: %w", c.Name, lt.Name, err)
		}
	}
	return nil
}

// Schemas maps origin table names to their derived log schema.
type Schemas map[string]*LogSchema

// For returns the log schema of an origin table, nil when it is not logged.
func (s Schemas) For(table string) *LogSchema { return s[table] }

// Build derives change logging for every table of db that has parameters in params.
// Tables are processed in database order so shared log tables are built deterministically.
func Build(db *Database, params map[string]Parameters) (Schemas, error) {
	for name := range params {
		if !db.HasTable(name) {
			return nil, &ConfigurationError{Table: name, Reason: "table does not exist"}
		}
	}
	out := Schemas{}
	for _, t := range db.Tables() {
		p, ok := params[t.Name]
		if !ok {
			continue
		}
		opts, err := ParseOptions(p)
		if err != nil {
			var ce *ConfigurationError
			if errors.As(err, &ce) && ce.Table == "" {
				ce.Table = t.Name
			}
			return nil, err
		}
		s, err := Derive(t, opts)
		if err != nil {
			return nil, err
		}
		out[t.Name] = s
	}
	return out, nil
}
