package verlog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/verlog"
)

func TestParseOptions(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name string
		in   verlog.Parameters
		want verlog.Options
	}{
		{
			name: "defaults",
			in:   verlog.Parameters{"log": "title"},
			want: verlog.Options{
				Log:             []string{"title"},
				CreatedAtColumn: "log_created_at",
				CreatedByColumn: "log_created_by",
				CommentColumn:   "log_comment",
				VersionColumn:   "version",
				LogTable:        "{table}_{column}_log",
			},
		},
		{
			name: "flags and custom names",
			in: verlog.Parameters{
				"log":               " title ,, age, title ",
				"created_at":        "true",
				"created_by":        "false",
				"comment":           "",
				"comment_column":    "note",
				"version_column":    "rev",
				"created_at_column": "at",
				"log_table":         "{table}_history",
			},
			want: verlog.Options{
				Log:             []string{"title", "age"},
				CreatedAt:       true,
				CreatedAtColumn: "at",
				CreatedByColumn: "log_created_by",
				CommentColumn:   "note",
				VersionColumn:   "rev",
				LogTable:        "{table}_history",
			},
		},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := verlog.ParseOptions(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseOptions_Errors(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name string
		in   verlog.Parameters
	}{
		{name: "unknown key", in: verlog.Parameters{"log": "title", "colour": "red"}},
		{name: "malformed boolean", in: verlog.Parameters{"log": "title", "comment": "maybe"}},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := verlog.ParseOptions(tc.in)
			require.Error(t, err)
			assert.True(t, verlog.IsConfigurationError(err))
		})
	}
}

func TestParseColumnList(t *testing.T) {
	t.Parallel()

	assert.Nil(t, verlog.ParseColumnList(""))
	assert.Nil(t, verlog.ParseColumnList(" , ,"))
	assert.Equal(t, []string{"a", "b"}, verlog.ParseColumnList("a,b, a"))
}
