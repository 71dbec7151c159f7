// Package query renders the PostgreSQL statements used to persist origin rows and
// append log entries. Column order is always the order given by the caller.
package query

import (
	"fmt"
	"strings"

	"github.com/mickamy/verlog/internal/ident"
)

// Stmt is a rendered statement with its positional arguments.
type Stmt struct {
	SQL  string
	Args []any
}

// Assignments is an ordered list of column/value pairs.
type Assignments struct {
	Columns []string
	Values  []any
}

// Add appends a column/value pair.
func (a *Assignments) Add(column string, v any) {
	a.Columns = append(a.Columns, column)
	a.Values = append(a.Values, v)
}

// Len reports the number of pairs.
func (a Assignments) Len() int { return len(a.Columns) }

type placeholders struct {
	args []any
}

func (p *placeholders) next(v any) string {
	p.args = append(p.args, v)
	return fmt.Sprintf("$%d", len(p.args))
}

func (p *placeholders) where(key Assignments) string {
	conds := make([]string, key.Len())
	for i, c := range key.Columns {
		conds[i] = ident.Quote(c) + " = " + p.next(key.Values[i])
	}
	return strings.Join(conds, " AND ")
}

// Insert renders INSERT INTO table (cols) VALUES (...).
func Insert(table []string, values Assignments) Stmt {
	var p placeholders
	ph := make([]string, values.Len())
	for i, v := range values.Values {
		ph[i] = p.next(v)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ident.QuoteQualified(table), ident.QuoteAll(values.Columns), strings.Join(ph, ", "))
	return Stmt{SQL: sql, Args: p.args}
}

// InsertReturning renders an INSERT that returns the stored row, so defaults and
// identity values come back to the caller. An empty values list inserts DEFAULT VALUES.
func InsertReturning(table []string, values Assignments) Stmt {
	if values.Len() == 0 {
		return Stmt{SQL: fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", ident.QuoteQualified(table))}
	}
	st := Insert(table, values)
	st.SQL += " RETURNING *"
	return st
}

// Update renders UPDATE table SET ... WHERE key.
func Update(table []string, values, key Assignments) Stmt {
	var p placeholders
	sets := make([]string, values.Len())
	for i, c := range values.Columns {
		sets[i] = ident.Quote(c) + " = " + p.next(values.Values[i])
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		ident.QuoteQualified(table), strings.Join(sets, ", "), p.where(key))
	return Stmt{SQL: sql, Args: p.args}
}

// Delete renders DELETE FROM table WHERE key.
func Delete(table []string, key Assignments) Stmt {
	var p placeholders
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", ident.QuoteQualified(table), p.where(key))
	return Stmt{SQL: sql, Args: p.args}
}

// SelectOne renders SELECT * FROM table WHERE key LIMIT 1.
func SelectOne(table []string, key Assignments) Stmt {
	var p placeholders
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT 1", ident.QuoteQualified(table), p.where(key))
	return Stmt{SQL: sql, Args: p.args}
}

// MaxVersion renders the lookup of the highest version stored for an origin key.
// The statement yields 0 when no version exists.
func MaxVersion(table []string, versionColumn string, key Assignments) Stmt {
	var p placeholders
	sql := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s WHERE %s",
		ident.Quote(versionColumn), ident.QuoteQualified(table), p.where(key))
	return Stmt{SQL: sql, Args: p.args}
}

// AppendVersion renders a single INSERT that computes the next version from the rows
// already stored for the origin key and returns it. key columns must also appear in values.
func AppendVersion(table []string, versionColumn string, key, values Assignments) Stmt {
	var p placeholders
	ph := make([]string, values.Len())
	for i, v := range values.Values {
		ph[i] = p.next(v)
	}
	qt := ident.QuoteQualified(table)
	qv := ident.Quote(versionColumn)
	columns := append(append([]string{}, values.Columns...), versionColumn)
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s, (SELECT COALESCE(MAX(%s), 0) + 1 FROM %s WHERE %s)) RETURNING %s",
		qt, ident.QuoteAll(columns), strings.Join(ph, ", "), qv, qt, p.where(key), qv,
	)
	return Stmt{SQL: sql, Args: p.args}
}
