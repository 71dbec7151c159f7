package verlog_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/verlog"
	"github.com/mickamy/verlog/internal/memstore"
)

func TestSession_Save_FirstChangeAfterInsert(t *testing.T) {
	t.Parallel()

	db, schemas := bookModel(t, verlog.Parameters{"log": "title"})
	store := memstore.New(db)
	s := verlog.NewSession(db, schemas, store)
	ctx := context.Background()

	rec := verlog.NewRecord("book")
	entries, err := s.Save(ctx, rec)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, store.Count("book_title_log"))
	assert.Equal(t, int64(1), rec.Get("id"))

	rec.Set("title", "Teschd")
	entries, err = s.Save(ctx, rec)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].Version)
	assert.Equal(t, "Teschd", entries[0].Value)

	rows := store.Rows("book_title_log")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, int64(1), rows[0]["version"])
	assert.Equal(t, "Teschd", rows[0]["title"])

	rec.Set("age", 2)
	entries, err = s.Save(ctx, rec)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1, store.Count("book_title_log"))

	rec.Set("title", "Changed")
	_, err = s.Save(ctx, rec)
	require.NoError(t, err)

	rows = store.Rows("book_title_log")
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[1]["version"])
	assert.Equal(t, "Changed", rows[1]["title"])
}

func TestSession_Save_LogsNewValueWithMetadata(t *testing.T) {
	t.Parallel()

	db, schemas := bookModel(t, verlog.Parameters{"log": "title", "created_by": "true", "comment": "true"})
	store := memstore.New(db)
	s := verlog.NewSession(db, schemas, store)
	ctx := context.Background()

	rec := verlog.NewRecord("book").Set("title", "Initial")
	_, err := s.Save(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Count("book_title_log"))

	rec.Set("title", "Teschd")
	rec.SetChangeComment("title", "Sohalt.")
	rec.SetChangeBy("title", "Me")
	_, err = s.Save(ctx, rec)
	require.NoError(t, err)

	rows := store.Rows("book_title_log")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["version"])
	assert.Equal(t, "Teschd", rows[0]["title"])
	assert.Equal(t, "Sohalt.", rows[0]["log_comment"])
	assert.Equal(t, "Me", rows[0]["log_created_by"])
	assert.NotContains(t, rows[0], "log_created_at")

	// metadata does not leak into the next version
	assert.Empty(t, rec.ChangeBy("title"))
	rec.Set("title", "Third")
	_, err = s.Save(ctx, rec)
	require.NoError(t, err)

	rows = store.Rows("book_title_log")
	require.Len(t, rows, 2)
	assert.Nil(t, rows[1]["log_comment"])
	assert.Nil(t, rows[1]["log_created_by"])
}

func TestSession_Save_IsolatesTrackedColumns(t *testing.T) {
	t.Parallel()

	db, schemas := bookModel(t, verlog.Parameters{"log": "title, age"})
	store := memstore.New(db)
	s := verlog.NewSession(db, schemas, store)
	ctx := context.Background()

	rec := verlog.NewRecord("book").Set("title", "A")
	_, err := s.Save(ctx, rec)
	require.NoError(t, err)

	rec.Set("title", "B")
	_, err = s.Save(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count("book_title_log"))
	assert.Equal(t, 0, store.Count("book_age_log"))

	rec.Set("age", 2)
	entries, err := s.Save(ctx, rec)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "age", entries[0].Column)
	assert.Equal(t, int64(1), entries[0].Version)
	assert.Equal(t, 1, store.Count("book_title_log"))
	assert.Equal(t, 1, store.Count("book_age_log"))
}

func TestSession_Save_ReadsLatestVersionFromStore(t *testing.T) {
	t.Parallel()

	db, schemas := bookModel(t, verlog.Parameters{"log": "title"})
	store := memstore.New(db)
	ctx := context.Background()

	first := verlog.NewSession(db, schemas, store)
	rec := verlog.NewRecord("book").Set("title", "A")
	_, err := first.Save(ctx, rec)
	require.NoError(t, err)
	rec.Set("title", "B")
	_, err = first.Save(ctx, rec)
	require.NoError(t, err)

	second := verlog.NewSession(db, schemas, store)
	fetched, err := second.Find(ctx, "book", map[string]any{"id": rec.Get("id")})
	require.NoError(t, err)
	assert.Equal(t, "B", fetched.Get("title"))

	fetched.Set("title", "C")
	entries, err := second.Save(ctx, fetched)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].Version)

	// the stale instance still continues the sequence
	rec.Set("title", "D")
	entries, err = first.Save(ctx, rec)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].Version)
}

func TestSession_Save_ContiguousVersions(t *testing.T) {
	t.Parallel()

	db, schemas := bookModel(t, verlog.Parameters{"log": "title"})
	store := memstore.New(db)
	s := verlog.NewSession(db, schemas, store)
	ctx := context.Background()

	rec := verlog.NewRecord("book")
	_, err := s.Save(ctx, rec)
	require.NoError(t, err)

	titles := []string{"a", "b", "c", "d", "e"}
	for _, title := range titles {
		rec.Set("title", title)
		_, err := s.Save(ctx, rec)
		require.NoError(t, err)
	}

	rows := store.Rows("book_title_log")
	require.Len(t, rows, len(titles))
	for i, row := range rows {
		assert.Equal(t, int64(i+1), row["version"])
		assert.Equal(t, titles[i], row["title"])
	}
}

func TestSession_Save_UnchangedValueIsNoop(t *testing.T) {
	t.Parallel()

	db, schemas := bookModel(t, verlog.Parameters{"log": "title"})
	store := memstore.New(db)
	s := verlog.NewSession(db, schemas, store)
	ctx := context.Background()

	rec := verlog.NewRecord("book").Set("title", "Same")
	_, err := s.Save(ctx, rec)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rec.Set("title", "Same").Set("age", i)
		entries, err := s.Save(ctx, rec)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
	_, err = s.Save(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Count("book_title_log"))
}

func TestSession_Delete_CascadesToLogTables(t *testing.T) {
	t.Parallel()

	db, schemas := bookModel(t, verlog.Parameters{"log": "title, age"})
	store := memstore.New(db)
	s := verlog.NewSession(db, schemas, store)
	ctx := context.Background()

	doomed := verlog.NewRecord("book").Set("title", "A").Set("age", 1)
	kept := verlog.NewRecord("book").Set("title", "X")
	for _, rec := range []*verlog.Record{doomed, kept} {
		_, err := s.Save(ctx, rec)
		require.NoError(t, err)
	}
	doomed.Set("title", "B").Set("age", 2)
	_, err := s.Save(ctx, doomed)
	require.NoError(t, err)
	kept.Set("title", "Y")
	_, err = s.Save(ctx, kept)
	require.NoError(t, err)
	require.Equal(t, 2, store.Count("book_title_log"))
	require.Equal(t, 1, store.Count("book_age_log"))

	require.NoError(t, s.Delete(ctx, doomed))

	assert.Equal(t, 0, store.Count("book_age_log"))
	rows := store.Rows("book_title_log")
	require.Len(t, rows, 1)
	assert.Equal(t, kept.Get("id"), rows[0]["id"])

	_, err = s.Find(ctx, "book", map[string]any{"id": doomed.Get("id")})
	require.ErrorIs(t, err, verlog.ErrNotFound)
}

func TestSession_Delete_UnsavedRecord(t *testing.T) {
	t.Parallel()

	db, schemas := bookModel(t, verlog.Parameters{"log": "title"})
	s := verlog.NewSession(db, schemas, memstore.New(db))

	err := s.Delete(context.Background(), verlog.NewRecord("book"))
	require.Error(t, err)
}

func TestSession_Save_PrimaryKeyChangeMovesHistory(t *testing.T) {
	t.Parallel()

	db, schemas := bookModel(t, verlog.Parameters{"log": "title"})
	store := memstore.New(db)
	s := verlog.NewSession(db, schemas, store)
	ctx := context.Background()

	rec := verlog.NewRecord("book").Set("title", "A")
	_, err := s.Save(ctx, rec)
	require.NoError(t, err)
	rec.Set("title", "B")
	_, err = s.Save(ctx, rec)
	require.NoError(t, err)

	rec.Set("id", 100)
	_, err = s.Save(ctx, rec)
	require.NoError(t, err)

	rows := store.Rows("book_title_log")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(100), rows[0]["id"])

	rec.Set("title", "C")
	entries, err := s.Save(ctx, rec)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].Version)
	assert.Equal(t, map[string]any{"id": int64(100)}, entries[0].Key)
}

func TestSession_Save_Skip(t *testing.T) {
	t.Parallel()

	db, schemas := bookModel(t, verlog.Parameters{"log": "title"})
	store := memstore.New(db)
	s := verlog.NewSession(db, schemas, store)
	ctx := context.Background()

	rec := verlog.NewRecord("book").Set("title", "A")
	_, err := s.Save(ctx, rec)
	require.NoError(t, err)

	rec.Set("title", "B")
	entries, err := s.Save(verlog.WithSkip(ctx), rec)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, store.Count("book_title_log"))

	stored, err := s.Find(ctx, "book", map[string]any{"id": rec.Get("id")})
	require.NoError(t, err)
	assert.Equal(t, "B", stored.Get("title"))
}

func TestSession_Save_ContextMetadata(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	db, schemas := bookModel(t, verlog.Parameters{
		"log":        "title",
		"created_at": "true",
		"created_by": "true",
		"comment":    "true",
	})
	store := memstore.New(db)
	s := verlog.NewSession(db, schemas, store, verlog.WithClock(func() time.Time { return now }))
	ctx := verlog.WithComment(verlog.WithActor(context.Background(), "ctx-user"), "bulk fix")

	rec := verlog.NewRecord("book").Set("title", "A")
	_, err := s.Save(ctx, rec)
	require.NoError(t, err)

	rec.Set("title", "B")
	_, err = s.Save(ctx, rec)
	require.NoError(t, err)

	rec.Set("title", "C")
	rec.SetChangeBy("title", "row-user")
	_, err = s.Save(ctx, rec)
	require.NoError(t, err)

	rows := store.Rows("book_title_log")
	require.Len(t, rows, 2)
	assert.Equal(t, "ctx-user", rows[0]["log_created_by"])
	assert.Equal(t, "bulk fix", rows[0]["log_comment"])
	assert.Equal(t, now, rows[0]["log_created_at"])
	assert.Equal(t, "row-user", rows[1]["log_created_by"])
	assert.Equal(t, "bulk fix", rows[1]["log_comment"])
}

func TestSession_AddVersion(t *testing.T) {
	t.Parallel()

	db, schemas := bookModel(t, verlog.Parameters{"log": "title"})
	store := memstore.New(db)
	s := verlog.NewSession(db, schemas, store)
	ctx := context.Background()

	rec := verlog.NewRecord("book").Set("title", "A")
	_, err := s.Save(ctx, rec)
	require.NoError(t, err)

	for want := int64(1); want <= 2; want++ {
		e, err := s.AddVersion(ctx, rec, "title")
		require.NoError(t, err)
		assert.Equal(t, want, e.Version)
		assert.Equal(t, "A", e.Value)
	}

	_, err = s.AddVersion(ctx, rec, "age")
	require.Error(t, err)
	assert.True(t, verlog.IsConfigurationError(err))
}

func TestSession_Save_UnloggedTable(t *testing.T) {
	t.Parallel()

	db, schemas := bookModel(t, verlog.Parameters{"log": "title"})
	author := verlog.NewTable("author")
	require.NoError(t, author.AddColumn(&verlog.Column{Name: "id", Type: verlog.TypeInteger, PrimaryKey: true, AutoIncrement: true}))
	require.NoError(t, author.AddColumn(&verlog.Column{Name: "name", Type: verlog.TypeVarchar}))
	require.NoError(t, db.AddTable(author))

	s := verlog.NewSession(db, schemas, memstore.New(db))
	ctx := context.Background()

	rec := verlog.NewRecord("author").Set("name", "Ann")
	_, err := s.Save(ctx, rec)
	require.NoError(t, err)
	rec.Set("name", "Bob")
	entries, err := s.Save(ctx, rec)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.Save(ctx, verlog.NewRecord("missing"))
	require.Error(t, err)
}

func TestSession_Save_CompositeKey(t *testing.T) {
	t.Parallel()

	db := verlog.NewDatabase("bookstore")
	edition := verlog.NewTable("edition")
	for _, c := range []*verlog.Column{
		{Name: "book_id", Type: verlog.TypeInteger, PrimaryKey: true},
		{Name: "number", Type: verlog.TypeInteger, PrimaryKey: true},
		{Name: "price", Type: verlog.TypeDecimal},
	} {
		require.NoError(t, edition.AddColumn(c))
	}
	require.NoError(t, db.AddTable(edition))
	schemas, err := verlog.Build(db, map[string]verlog.Parameters{"edition": {"log": "price"}})
	require.NoError(t, err)

	store := memstore.New(db)
	s := verlog.NewSession(db, schemas, store)
	ctx := context.Background()

	first := verlog.NewRecord("edition").Set("book_id", 1).Set("number", 1).Set("price", 10.0)
	second := verlog.NewRecord("edition").Set("book_id", 1).Set("number", 2).Set("price", 12.0)
	for _, rec := range []*verlog.Record{first, second} {
		_, err := s.Save(ctx, rec)
		require.NoError(t, err)
	}

	first.Set("price", 11.0)
	_, err = s.Save(ctx, first)
	require.NoError(t, err)
	second.Set("price", 13.0)
	entries, err := s.Save(ctx, second)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].Version)
	assert.Equal(t, map[string]any{"book_id": int64(1), "number": int64(2)}, entries[0].Key)
	assert.Equal(t, 2, store.Count("edition_price_log"))
}

func TestSession_Save_UUIDKey(t *testing.T) {
	t.Parallel()

	type article struct {
		ID   uuid.UUID `verlog:"id,pk"`
		Body string    `verlog:"body,type=TEXT"`
	}
	db := verlog.NewDatabase("blog")
	tbl, err := verlog.TableFromStruct(article{})
	require.NoError(t, err)
	require.NoError(t, db.AddTable(tbl))
	schemas, err := verlog.Build(db, map[string]verlog.Parameters{"articles": {"log": "body"}})
	require.NoError(t, err)

	store := memstore.New(db)
	s := verlog.NewSession(db, schemas, store)
	ctx := context.Background()

	id := uuid.New()
	rec := verlog.NewRecord("articles").Set("id", id).Set("body", "draft")
	_, err = s.Save(ctx, rec)
	require.NoError(t, err)
	rec.Set("body", "final")
	_, err = s.Save(ctx, rec)
	require.NoError(t, err)

	rows := store.Rows("articles_body_log")
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0]["id"])
	assert.Equal(t, "final", rows[0]["body"])
}

func TestSession_Save_SameInstantOtherZone(t *testing.T) {
	t.Parallel()

	db := verlog.NewDatabase("calendar")
	event := verlog.NewTable("event")
	require.NoError(t, event.AddColumn(&verlog.Column{Name: "id", Type: verlog.TypeInteger, PrimaryKey: true, AutoIncrement: true}))
	require.NoError(t, event.AddColumn(&verlog.Column{Name: "at", Type: verlog.TypeTimestamp}))
	require.NoError(t, db.AddTable(event))
	schemas, err := verlog.Build(db, map[string]verlog.Parameters{"event": {"log": "at"}})
	require.NoError(t, err)

	store := memstore.New(db)
	s := verlog.NewSession(db, schemas, store)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err = s.Save(ctx, verlog.NewRecord("event").Set("at", at))
	require.NoError(t, err)

	rec, err := s.Find(ctx, "event", map[string]any{"id": 1})
	require.NoError(t, err)
	rec.Set("at", at.In(time.FixedZone("CET", 3600)))
	assert.False(t, rec.IsModified("at"))

	entries, err := s.Save(ctx, rec)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, store.Count("event_at_log"))

	rec.Set("at", at.Add(time.Hour))
	entries, err = s.Save(ctx, rec)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, store.Count("event_at_log"))
}

func TestSession_TableWithoutPrimaryKey(t *testing.T) {
	t.Parallel()

	db := verlog.NewDatabase("audit")
	note := verlog.NewTable("note")
	require.NoError(t, note.AddColumn(&verlog.Column{Name: "body", Type: verlog.TypeText}))
	require.NoError(t, db.AddTable(note))

	s := verlog.NewSession(db, verlog.Schemas{}, memstore.New(db))
	ctx := context.Background()

	rec := verlog.NewRecord("note").Set("body", "a")
	_, err := s.Save(ctx, rec)
	require.NoError(t, err)

	rec.Set("body", "b")
	_, err = s.Save(ctx, rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no primary key")
	assert.True(t, rec.IsModified("body"))

	err = s.Delete(ctx, rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no primary key")
}
