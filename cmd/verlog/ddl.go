package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mickamy/verlog"
	"github.com/mickamy/verlog/internal/cli"
)

var ddlCmd = &cobra.Command{
	Use:   "ddl",
	Short: "Print CREATE TABLE statements",
	Long:  `Print the PostgreSQL CREATE TABLE statements of the model, log tables included.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadModel()
		if err != nil {
			return err
		}
		if _, err := m.Build(); err != nil {
			return cli.ModelParseError("deriving log tables", err)
		}
		for _, stmt := range verlog.DDL(m.DB) {
			fmt.Fprintln(cmd.OutOrStdout(), stmt)
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return nil
	},
}
