package verlog

import (
	"context"
	"fmt"
	"strings"

	"github.com/mickamy/verlog/internal/ident"
)

// CreateTableSQL renders an idempotent PostgreSQL CREATE TABLE statement for t.
func CreateTableSQL(t *Table) string {
	var defs []string
	for _, c := range t.Columns() {
		defs = append(defs, columnDefinition(c))
	}
	if pk := t.PrimaryKeyNames(); len(pk) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", ident.QuoteAll(pk)))
	}
	for _, fk := range t.ForeignKeys() {
		defs = append(defs, foreignKeyDefinition(t, fk))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n);",
		ident.QuoteQualified(t.Ident()), strings.Join(defs, ",\n    "))
}

func columnDefinition(c *Column) string {
	var b strings.Builder
	b.WriteString(ident.Quote(c.Name))
	b.WriteByte(' ')
	b.WriteString(sqlType(c))
	if c.AutoIncrement {
		b.WriteString(" GENERATED BY DEFAULT AS IDENTITY")
	}
	if c.Required || c.PrimaryKey {
		b.WriteString(" NOT NULL")
	}
	if c.Default != "" && !c.AutoIncrement {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}
	return b.String()
}

func sqlType(c *Column) string {
	switch ColumnType(strings.ToUpper(string(c.Type))) {
	case TypeVarchar:
		if c.Size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", c.Size)
		}
		return "VARCHAR"
	case TypeChar:
		if c.Size > 0 {
			return fmt.Sprintf("CHAR(%d)", c.Size)
		}
		return "CHAR"
	case TypeDecimal:
		if c.Size > 0 {
			return fmt.Sprintf("NUMERIC(%d)", c.Size)
		}
		return "NUMERIC"
	case TypeDouble:
		return "DOUBLE PRECISION"
	case TypeFloat:
		return "REAL"
	case TypeJSON:
		return "JSONB"
	case "":
		return string(TypeText)
	default:
		return strings.ToUpper(string(c.Type))
	}
}

func foreignKeyDefinition(t *Table, fk *ForeignKey) string {
	name := fmt.Sprintf("fk_%s_%s", t.Name, strings.ToLower(fk.Name))
	def := fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		ident.Quote(name),
		ident.QuoteAll(fk.LocalColumns),
		ident.QuoteQualified(ident.Qualify(fk.ForeignSchema, fk.ForeignTable)),
		ident.QuoteAll(fk.ForeignColumns),
	)
	if fk.OnDelete != "" {
		def += " ON DELETE " + fk.OnDelete
	}
	if fk.OnUpdate != "" {
		def += " ON UPDATE " + fk.OnUpdate
	}
	return def
}

// DDL renders CREATE TABLE statements for every table of db not flagged SkipSQL.
// Referenced tables come before the tables referencing them.
func DDL(db *Database) []string {
	var out []string
	for _, t := range dependencyOrder(db) {
		if t.SkipSQL {
			continue
		}
		out = append(out, CreateTableSQL(t))
	}
	return out
}

func dependencyOrder(db *Database) []*Table {
	tables := db.Tables()
	var ordered []*Table
	state := map[string]int{} // 1 visiting, 2 done
	var visit func(t *Table)
	visit = func(t *Table) {
		if state[t.Name] != 0 {
			return
		}
		state[t.Name] = 1
		for _, fk := range t.ForeignKeys() {
			if fk.ForeignTable == t.Name {
				continue
			}
			if ft := db.Table(fk.ForeignTable); ft != nil {
				visit(ft)
			}
		}
		state[t.Name] = 2
		ordered = append(ordered, t)
	}
	for _, t := range tables {
		visit(t)
	}
	return ordered
}

// Migrate creates every table of db that does not exist yet.
func Migrate(ctx context.Context, ex Execer, db *Database) error {
	for _, stmt := range DDL(db) {
		if _, err := ex.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("verlog: failed to create table: %w", err)
		}
	}
	return nil
}
