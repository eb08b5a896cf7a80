package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/syncer"
)

func newSyncCmd(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a reconciliation pass against the remote store",
		Example: `  eosync sync
  eosync sync --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.build(true)
			if err != nil {
				return err
			}
			defer s.Close()

			if watch {
				a.logger.Info().
					Dur("interval", s.orch.Interval()).
					Msg("watching for changes")
				return s.orch.Run(cmd.Context())
			}

			res, err := s.orch.Sync(cmd.Context())
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep syncing at the configured interval")
	return cmd
}

func printResult(cmd *cobra.Command, res *syncer.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Synced %d entities in %s\n", res.EntitiesDiffed, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  remote records:  %d\n", res.RemoteRecords)
	fmt.Fprintf(out, "  fields carried:  %d\n", res.FieldsCarried)
	fmt.Fprintf(out, "  conflicts:       %d (%d overridden, %d superposed)\n",
		res.Conflicts, res.Overrides, res.Superposed)
	fmt.Fprintf(out, "  applied:         %d local, %d remote\n", res.AppliedLocal, res.AppliedRemote)
	fmt.Fprintf(out, "  records logged:  %d\n", res.RecordsLogged)
}
