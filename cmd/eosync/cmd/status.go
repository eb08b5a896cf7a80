package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/activity"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show workspace and activity log status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.build(false)
			if err != nil {
				return err
			}
			defer s.Close()

			entities, err := s.ws.Entities(cmd.Context())
			if err != nil {
				return err
			}
			all, err := s.log.Records(cmd.Context(), activity.Query{})
			if err != nil {
				return err
			}
			recent := all
			if len(recent) > 5 {
				recent = recent[len(recent)-5:]
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Direction:     %s\n", a.cfg.Direction)
			fmt.Fprintf(out, "Strategy:      %s\n", a.cfg.Strategy)
			fmt.Fprintf(out, "Sync interval: %s\n", a.cfg.SyncInterval)
			fmt.Fprintf(out, "Entities:      %d\n", len(entities))

			if len(recent) == 0 {
				fmt.Fprintln(out, "No recorded activity.")
				return nil
			}
			fmt.Fprintln(out, "Recent activity:")
			for _, rec := range recent {
				target := rec.EntityID
				if rec.Field != "" {
					target += "." + rec.Field
				}
				fmt.Fprintf(out, "  %s  %-7s %-24s %s\n",
					rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Action, target, rec.Agent.Name)
			}
			return nil
		},
	}
}
