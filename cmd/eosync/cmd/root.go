// Package cmd provides the command structure for the eosync CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/clovenbradshaw-ctrl/eosync/internal/config"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/logging"
)

// NewRootCmd builds the root command and all subcommands. State is
// carried on an app instance handed to each subcommand; there are no
// package-level singletons.
func NewRootCmd(version, commit, date string) *cobra.Command {
	a := &app{}

	var (
		configFile string
		logLevel   string
		logFormat  string
	)

	root := &cobra.Command{
		Use:   "eosync",
		Short: "Reconcile a local workspace with a remote tabular store",
		Long: `eosync keeps a local entity workspace and a remote tabular store in
agreement. Edits are tracked with undo history, conflicting values can be
held in superposition instead of silently overwritten, and every change
lands in an append-only activity log that supports rewinding any entity
to a past state.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env files are convenience for local use; absence is fine.
			_ = godotenv.Load()

			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if logFormat != "" {
				cfg.LogFormat = logFormat
			}

			switch cfg.LogFormat {
			case "json":
				logging.SetDefault(logging.NewJSON(os.Stderr))
			case "console":
				logging.SetDefault(logging.NewConsole())
			}
			logging.SetLevel(cfg.LogLevel)

			a.cfg = cfg
			a.logger = logging.Default()
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (auto, json, console)")

	root.AddCommand(
		newSyncCmd(a),
		newStatusCmd(a),
		newTimelineCmd(a),
		newRewindCmd(a),
		newDiffCmd(a),
	)
	return root
}
