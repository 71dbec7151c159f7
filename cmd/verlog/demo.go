package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mickamy/verlog"
	"github.com/mickamy/verlog/internal/cli"
	"github.com/mickamy/verlog/internal/memstore"
)

var (
	demoDB       string
	demoPostgres bool
)

type book struct {
	ID    uuid.UUID `verlog:"id,pk"`
	Title string    `verlog:"title,size=255"`
}

// saver is implemented by *verlog.Session and *verlog.DB.
type saver interface {
	Save(ctx context.Context, rec *verlog.Record) ([]verlog.LogEntry, error)
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Save a row three times and print its versions",
	Long: `Save a book, change its title twice and print the versions recorded.
Runs in memory unless --postgres is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db := verlog.NewDatabase("demo")
		t, err := verlog.TableFromStruct(&book{})
		if err != nil {
			return cli.GeneralError("building model", err)
		}
		if err := db.AddTable(t); err != nil {
			return cli.GeneralError("building model", err)
		}
		schemas, err := verlog.Build(db, map[string]verlog.Parameters{
			t.Name: {
				verlog.ParamLog:       "title",
				verlog.ParamCreatedAt: "true",
				verlog.ParamCreatedBy: "true",
				verlog.ParamComment:   "true",
			},
		})
		if err != nil {
			return cli.GeneralError("deriving log tables", err)
		}

		metrics := verlog.NewMetrics()
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics)
		h := verlog.New(verlog.Config{Logger: &logger, Metrics: metrics})

		ctx := cmd.Context()
		var s saver
		if demoPostgres {
			sqlDB, err := openDB(ctx, demoDB)
			if err != nil {
				return err
			}
			defer func() { _ = sqlDB.Close() }()
			if err := runMigrate(ctx, sqlDB, db); err != nil {
				return cli.GeneralError("migrating", err)
			}
			s = h.WrapDB(sqlDB, db, schemas)
		} else {
			s = h.NewSession(db, schemas, memstore.New(db))
		}

		if err := runDemo(ctx, cmd.OutOrStdout(), s, t.Name); err != nil {
			return cli.GeneralError("running demo", err)
		}
		return printCounters(cmd.OutOrStdout(), reg)
	},
}

func init() {
	demoCmd.Flags().BoolVar(&demoPostgres, "postgres", false, "run against PostgreSQL instead of memory")
	demoCmd.Flags().StringVar(&demoDB, "db", "", "database URL (with --postgres)")
}

func runDemo(ctx context.Context, out io.Writer, s saver, table string) error {
	rec := verlog.NewRecord(table).Set("id", uuid.New()).Set("title", "Initial")
	if _, err := s.Save(ctx, rec); err != nil {
		return err
	}

	rec.Set("title", "Teschd")
	rec.SetChangeBy("title", "Me")
	rec.SetChangeComment("title", "Sohalt.")
	entries, err := s.Save(ctx, rec)
	if err != nil {
		return err
	}

	rec.Set("title", "Final")
	more, err := s.Save(verlog.WithActor(ctx, "demo-user"), rec)
	if err != nil {
		return err
	}

	for _, e := range append(entries, more...) {
		fmt.Fprintf(out, "%s v%d %s=%v by=%s comment=%s\n",
			e.Table, e.Version, e.Column, e.Value, deref(e.CreatedBy), deref(e.Comment))
	}
	return nil
}

func printCounters(out io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return cli.GeneralError("gathering metrics", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				fmt.Fprintf(out, "%s{%s=%q} %v\n", mf.GetName(), l.GetName(), l.GetValue(), m.GetCounter().GetValue())
			}
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return "-"
	}
	return *p
}
