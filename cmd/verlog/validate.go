package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mickamy/verlog/internal/cli"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a model file",
	Long:  `Parse a model file, derive its log tables and report configuration errors.`,
	Example: `  # Validate the model named in verlog.yaml
  verlog validate

  # Validate a specific model file
  verlog validate --model models/bookstore.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadModel()
		if err != nil {
			return err
		}
		schemas, err := m.Build()
		if err != nil {
			return cli.ModelParseError("deriving log tables", err)
		}
		if quiet {
			return nil
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Model is valid. Found %d tables, %d logged:\n", len(m.DB.Tables()), len(schemas))
		for _, t := range m.DB.Tables() {
			s := schemas.For(t.Name)
			if s == nil {
				continue
			}
			fmt.Fprintf(out, "  - %s\n", t.Name)
			for _, c := range s.Columns() {
				lt, _ := s.Log(c)
				var meta []string
				for _, name := range []string{lt.CreatedAtColumn, lt.CreatedByColumn, lt.CommentColumn} {
					if name != "" {
						meta = append(meta, name)
					}
				}
				fmt.Fprintf(out, "      %s -> %s (%s)\n", c, lt.Name, strings.Join(append([]string{lt.VersionColumn}, meta...), ", "))
			}
		}
		return nil
	},
}
