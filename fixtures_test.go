package verlog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mickamy/verlog"
)

// bookModel returns a database with a book(id, title, age) table logged with params.
func bookModel(t *testing.T, params verlog.Parameters) (*verlog.Database, verlog.Schemas) {
	t.Helper()

	db := verlog.NewDatabase("bookstore")
	book := verlog.NewTable("book")
	for _, c := range []*verlog.Column{
		{Name: "id", Type: verlog.TypeInteger, PrimaryKey: true, AutoIncrement: true, Required: true},
		{Name: "title", Type: verlog.TypeVarchar, Size: 255},
		{Name: "age", Type: verlog.TypeInteger},
	} {
		require.NoError(t, book.AddColumn(c))
	}
	require.NoError(t, db.AddTable(book))

	schemas, err := verlog.Build(db, map[string]verlog.Parameters{"book": params})
	require.NoError(t, err)
	return db, schemas
}
