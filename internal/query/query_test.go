package query_test

import (
	"reflect"
	"testing"

	"github.com/mickamy/verlog/internal/query"
)

func assign(pairs ...any) query.Assignments {
	var a query.Assignments
	for i := 0; i+1 < len(pairs); i += 2 {
		a.Add(pairs[i].(string), pairs[i+1])
	}
	return a
}

func TestStatements(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name     string
		stmt     query.Stmt
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "insert",
			stmt:     query.Insert([]string{"book"}, assign("id", 1, "title", "Teschd")),
			wantSQL:  `INSERT INTO "book" ("id", "title") VALUES ($1, $2)`,
			wantArgs: []any{1, "Teschd"},
		},
		{
			name:     "update",
			stmt:     query.Update([]string{"library", "book"}, assign("title", "Changed"), assign("id", 1)),
			wantSQL:  `UPDATE "library"."book" SET "title" = $1 WHERE "id" = $2`,
			wantArgs: []any{"Changed", 1},
		},
		{
			name:     "delete composite key",
			stmt:     query.Delete([]string{"book"}, assign("shelf", "a", "id", 1)),
			wantSQL:  `DELETE FROM "book" WHERE "shelf" = $1 AND "id" = $2`,
			wantArgs: []any{"a", 1},
		},
		{
			name:     "select one",
			stmt:     query.SelectOne([]string{"book"}, assign("id", 7)),
			wantSQL:  `SELECT * FROM "book" WHERE "id" = $1 LIMIT 1`,
			wantArgs: []any{7},
		},
		{
			name:     "max version",
			stmt:     query.MaxVersion([]string{"book_title_log"}, "version", assign("id", 7)),
			wantSQL:  `SELECT COALESCE(MAX("version"), 0) FROM "book_title_log" WHERE "id" = $1`,
			wantArgs: []any{7},
		},
		{
			name: "append version",
			stmt: query.AppendVersion([]string{"book_title_log"}, "version",
				assign("id", 7), assign("id", 7, "title", "Teschd")),
			wantSQL: `INSERT INTO "book_title_log" ("id", "title", "version") VALUES ($1, $2, ` +
				`(SELECT COALESCE(MAX("version"), 0) + 1 FROM "book_title_log" WHERE "id" = $3)) RETURNING "version"`,
			wantArgs: []any{7, "Teschd", 7},
		},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if tc.stmt.SQL != tc.wantSQL {
				t.Fatalf("SQL = %q, want %q", tc.stmt.SQL, tc.wantSQL)
			}
			if !reflect.DeepEqual(tc.stmt.Args, tc.wantArgs) {
				t.Fatalf("Args = %#v, want %#v", tc.stmt.Args, tc.wantArgs)
			}
		})
	}
}
