package verlog

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mickamy/verlog/internal/ident"
)

// ColumnType is the SQL type family of a column.
type ColumnType string

const (
	TypeInteger   ColumnType = "INTEGER"
	TypeBigInt    ColumnType = "BIGINT"
	TypeSmallInt  ColumnType = "SMALLINT"
	TypeBoolean   ColumnType = "BOOLEAN"
	TypeVarchar   ColumnType = "VARCHAR"
	TypeChar      ColumnType = "CHAR"
	TypeText      ColumnType = "TEXT"
	TypeTimestamp ColumnType = "TIMESTAMP"
	TypeDate      ColumnType = "DATE"
	TypeDouble    ColumnType = "DOUBLE"
	TypeFloat     ColumnType = "FLOAT"
	TypeDecimal   ColumnType = "DECIMAL"
	TypeUUID      ColumnType = "UUID"
	TypeJSON      ColumnType = "JSON"
)

// Referential actions for foreign keys.
const (
	ActionCascade  = "CASCADE"
	ActionSetNull  = "SET NULL"
	ActionRestrict = "RESTRICT"
)

// Column describes one column of a table.
type Column struct {
	Name          string
	Type          ColumnType
	Size          int
	PrimaryKey    bool
	AutoIncrement bool
	Required      bool
	Default       string // SQL literal, empty for none
	PrimaryString bool   // display column of the table

	table     *Table
	referrers []*ForeignKey
}

// Table returns the table the column belongs to, nil when detached.
func (c *Column) Table() *Table { return c.table }

// GoName is the accessor name derived from the column name.
func (c *Column) GoName() string { return ident.Camel(c.Name) }

// Clone copies the column, referrers included, detached from any table.
func (c *Column) Clone() *Column {
	cp := *c
	cp.table = nil
	cp.referrers = append([]*ForeignKey(nil), c.referrers...)
	return &cp
}

// Referrers returns the foreign keys of other tables pointing at this column.
func (c *Column) Referrers() []*ForeignKey { return c.referrers }

func (c *Column) HasReferrers() bool { return len(c.referrers) > 0 }

func (c *Column) ClearReferrers() { c.referrers = nil }

// ForeignKey is a relation from the owning table's LocalColumns to ForeignTable.
type ForeignKey struct {
	Name           string
	ForeignTable   string
	ForeignSchema  string
	OnDelete       string
	OnUpdate       string
	LocalColumns   []string
	ForeignColumns []string

	table *Table
}

// AddReference maps a local column onto a column of the foreign table.
func (fk *ForeignKey) AddReference(local, foreign string) {
	fk.LocalColumns = append(fk.LocalColumns, local)
	fk.ForeignColumns = append(fk.ForeignColumns, foreign)
}

// Table returns the table holding the foreign key.
func (fk *ForeignKey) Table() *Table { return fk.table }

// Table is a node of the schema graph.
type Table struct {
	Name      string
	Package   string
	Schema    string
	Namespace string
	SkipSQL   bool

	db      *Database
	columns []*Column
	byName  map[string]*Column
	fks     []*ForeignKey
}

func NewTable(name string) *Table {
	return &Table{Name: name, byName: map[string]*Column{}}
}

// Database returns the database the table is registered in, nil when detached.
func (t *Table) Database() *Database { return t.db }

// GoName is the entity name derived from the table name.
func (t *Table) GoName() string { return ident.Camel(t.Name) }

// Ident returns the schema-qualified identifier parts of the table.
func (t *Table) Ident() []string { return ident.Qualify(t.Schema, t.Name) }

// AddColumn attaches c to the table. Column names are unique per table.
func (t *Table) AddColumn(c *Column) error {
	if c == nil || strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("verlog: column without name on table %q", t.Name)
	}
	if t.byName == nil {
		t.byName = map[string]*Column{}
	}
	if _, ok := t.byName[c.Name]; ok {
		return fmt.Errorf("verlog: column %q already exists on table %q", c.Name, t.Name)
	}
	c.table = t
	t.columns = append(t.columns, c)
	t.byName[c.Name] = c
	return nil
}

// Column looks a column up by name.
func (t *Table) Column(name string) *Column { return t.byName[name] }

func (t *Table) HasColumn(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Columns returns the columns in declaration order.
func (t *Table) Columns() []*Column {
	return append([]*Column(nil), t.columns...)
}

// PrimaryKey returns the primary key columns in declaration order.
func (t *Table) PrimaryKey() []*Column {
	var pk []*Column
	for _, c := range t.columns {
		if c.PrimaryKey {
			pk = append(pk, c)
		}
	}
	return pk
}

// PrimaryKeyNames returns the names of the primary key columns.
func (t *Table) PrimaryKeyNames() []string {
	pk := t.PrimaryKey()
	names := make([]string, len(pk))
	for i, c := range pk {
		names[i] = c.Name
	}
	return names
}

// AddForeignKey attaches fk to the table and registers it as referrer on the
// referenced columns when the foreign table is known to the database.
func (t *Table) AddForeignKey(fk *ForeignKey) error {
	if len(fk.LocalColumns) == 0 || len(fk.LocalColumns) != len(fk.ForeignColumns) {
		return fmt.Errorf("verlog: foreign key %q on table %q has mismatched references", fk.Name, t.Name)
	}
	for _, c := range fk.LocalColumns {
		if !t.HasColumn(c) {
			return fmt.Errorf("verlog: foreign key %q references unknown column %q on table %q", fk.Name, c, t.Name)
		}
	}
	fk.table = t
	t.fks = append(t.fks, fk)
	if t.db == nil {
		return nil
	}
	if ft := t.db.Table(fk.ForeignTable); ft != nil {
		for _, name := range fk.ForeignColumns {
			if fc := ft.Column(name); fc != nil {
				fc.referrers = append(fc.referrers, fk)
			}
		}
	}
	return nil
}

// ForeignKeys returns the foreign keys held by the table.
func (t *Table) ForeignKeys() []*ForeignKey {
	return append([]*ForeignKey(nil), t.fks...)
}

// ForeignKeysReferencingTable returns the foreign keys pointing at the named table.
func (t *Table) ForeignKeysReferencingTable(name string) []*ForeignKey {
	var out []*ForeignKey
	for _, fk := range t.fks {
		if fk.ForeignTable == name {
			out = append(out, fk)
		}
	}
	return out
}

// Database is the registry of tables a model is built from.
type Database struct {
	Name   string
	Schema string

	mu      sync.RWMutex
	tables  []*Table
	byName  map[string]*Table
	buildMu sync.Mutex
}

func NewDatabase(name string) *Database {
	return &Database{Name: name, byName: map[string]*Table{}}
}

// AddTable registers t. Table names are unique per database.
func (d *Database) AddTable(t *Table) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.byName == nil {
		d.byName = map[string]*Table{}
	}
	if _, ok := d.byName[t.Name]; ok {
		return fmt.Errorf("verlog: table %q already exists in database %q", t.Name, d.Name)
	}
	t.db = d
	d.tables = append(d.tables, t)
	d.byName[t.Name] = t
	return nil
}

// Table looks a table up by name.
func (d *Database) Table(name string) *Table {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byName[name]
}

func (d *Database) HasTable(name string) bool {
	return d.Table(name) != nil
}

// Tables returns the tables in registration order.
func (d *Database) Tables() []*Table {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Table(nil), d.tables...)
}
