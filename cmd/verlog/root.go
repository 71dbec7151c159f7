package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mickamy/verlog/internal/cli"
	"github.com/mickamy/verlog/internal/modelfile"
)

var (
	// Global state set during PersistentPreRunE
	cfg        *cli.Config
	configPath string
	logger     zerolog.Logger

	// Persistent flags
	cfgFile   string
	modelFlag string
	verbose   bool
	quiet     bool
)

var rootCmd = &cobra.Command{
	Use:   "verlog",
	Short: "Per-column version history for database rows",
	Long: `verlog - per-column version history for database rows

verlog derives log tables for the tracked columns of a model and appends a
new version row every time a save changes one of them.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, configPath, err = cli.LoadConfig(cfgFile)
		if err != nil {
			return cli.ConfigError("loading configuration", err)
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		logger = cli.InitLogger(cfg.Log, cmd.ErrOrStderr())
		if configPath != "" {
			logger.Debug().Str("path", configPath).Msg("configuration loaded")
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

const (
	groupModel   = "model"
	groupUtility = "utility"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: auto-discover verlog.yaml)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "model file (default: from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupModel, Title: "Model:"},
		&cobra.Group{ID: groupUtility, Title: "Utility:"},
	)

	validateCmd.GroupID = groupModel
	ddlCmd.GroupID = groupModel
	migrateCmd.GroupID = groupModel
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(ddlCmd)
	rootCmd.AddCommand(migrateCmd)

	demoCmd.GroupID = groupUtility
	versionCmd.GroupID = groupUtility
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		cli.ExitWithError(err)
	}
}

// loadModel reads the model file named by flag or config and derives its log tables.
func loadModel() (*modelfile.Model, error) {
	path := resolveString(modelFlag, cfg.Model)
	m, err := modelfile.Load(path)
	if err != nil {
		return nil, cli.ModelParseError("loading model", err)
	}
	return m, nil
}

// resolveString returns the first non-empty string from the provided values.
// Used to implement precedence: flag > config > default.
func resolveString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// resolveBool returns true if any of the provided values is true.
func resolveBool(values ...bool) bool {
	for _, v := range values {
		if v {
			return true
		}
	}
	return false
}
