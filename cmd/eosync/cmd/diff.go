package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/errors"
)

func newDiffCmd(a *app) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "diff <entity-id>",
		Short: "Compare an entity's state between two instants",
		Example: `  eosync diff rec_1 --from 2025-06-01T00:00:00Z --to 2025-06-02T00:00:00Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t1, err := time.Parse(time.RFC3339, from)
			if err != nil {
				return errors.NewValidationError("from", from, "must be an RFC 3339 timestamp")
			}
			t2, err := time.Parse(time.RFC3339, to)
			if err != nil {
				return errors.NewValidationError("to", to, "must be an RFC 3339 timestamp")
			}

			s, err := a.build(false)
			if err != nil {
				return err
			}
			defer s.Close()

			changes, err := s.engine.CompareStates(cmd.Context(), args[0], t1, t2)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(changes) == 0 {
				fmt.Fprintln(out, "No differences.")
				return nil
			}
			for _, ch := range changes {
				fmt.Fprintf(out, "%-8s %-20s %v -> %v\n", ch.Type, ch.Field, ch.Before, ch.After)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "earlier instant, RFC 3339 (required)")
	cmd.Flags().StringVar(&to, "to", "", "later instant, RFC 3339 (required)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
