package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/mickamy/verlog"
	"github.com/mickamy/verlog/internal/cli"
)

var (
	migrateDB     string
	migrateDryRun bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the model tables in PostgreSQL",
	Long:  `Create every table of the model, log tables included, that does not exist yet.`,
	Example: `  # Create tables
  verlog migrate --db postgres://localhost/mydb

  # Preview the statements without applying them
  verlog migrate --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadModel()
		if err != nil {
			return err
		}
		if _, err := m.Build(); err != nil {
			return cli.ModelParseError("deriving log tables", err)
		}

		if resolveBool(migrateDryRun, cfg.Migrate.DryRun) {
			for _, stmt := range verlog.DDL(m.DB) {
				fmt.Fprintln(cmd.OutOrStdout(), stmt)
			}
			return nil
		}

		db, err := openDB(cmd.Context(), migrateDB)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		if err := runMigrate(cmd.Context(), db, m.DB); err != nil {
			return cli.GeneralError("migrating", err)
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d tables.\n", len(verlog.DDL(m.DB)))
		}
		return nil
	},
}

func init() {
	f := migrateCmd.Flags()
	f.StringVar(&migrateDB, "db", "", "database URL")
	f.BoolVar(&migrateDryRun, "dry-run", false, "output the SQL without applying it")
}

func runMigrate(ctx context.Context, db *sql.DB, model *verlog.Database) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := verlog.Migrate(ctx, tx, model); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	return tx.Commit()
}

// resolveDSN gets the database DSN from flag or config.
func resolveDSN(flagDSN string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}

	dsn, err := cfg.DSN()
	if err != nil {
		return "", cli.ConfigError("database configuration", err)
	}
	if dsn == "" {
		return "", cli.ConfigError("database URL is required (use --db or set in config)", nil)
	}
	return dsn, nil
}

// openDB opens and pings the configured database.
func openDB(ctx context.Context, flagDSN string) (*sql.DB, error) {
	dsn, err := resolveDSN(flagDSN)
	if err != nil {
		return nil, err
	}
	driver, err := cfg.DriverName()
	if err != nil {
		return nil, cli.ConfigError("database configuration", err)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, cli.DBConnectError("connecting to database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, cli.DBConnectError("connecting to database", err)
	}
	logger.Debug().Str("driver", driver).Msg("database connected")
	return db, nil
}
