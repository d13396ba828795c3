package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(c *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every submission and where it stands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.ensureLedger()
			if err != nil {
				return err
			}
			subs, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(subs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no submissions yet")
				return nil
			}

			rows := make([][]string, 0, len(subs))
			for _, sub := range subs {
				detail := sub.RunID
				if sub.ErrorMessage != "" {
					detail = sub.ErrorMessage
				}
				rows = append(rows, []string{
					sub.ID,
					sub.SourceName,
					string(sub.Status),
					fmt.Sprintf("%d", sub.SizeBytes),
					detail,
				})
			}
			out := renderTable(
				[]string{"Submission", "Source", "Status", "Bytes", "Run / Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
