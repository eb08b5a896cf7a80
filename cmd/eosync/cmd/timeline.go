package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTimelineCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "timeline <entity-id>",
		Short: "Show an entity's change history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.build(false)
			if err != nil {
				return err
			}
			defer s.Close()

			events, err := s.engine.Timeline(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No history for %s.\n", args[0])
				return nil
			}

			out := cmd.OutOrStdout()
			for _, ev := range events {
				fields := strings.Join(ev.Fields, ", ")
				if fields == "" {
					fields = "-"
				}
				fmt.Fprintf(out, "%s  %-7s %-30s %s\n",
					ev.At.Format("2006-01-02 15:04:05"), ev.Action, fields, ev.Agent.Name)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of entries (0 = all)")
	return cmd
}
