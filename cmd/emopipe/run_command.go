package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// resolveSubmission picks the clip a command operates on: an explicit
// argument wins, otherwise the single in-flight ledger entry. This is how
// a scheduler-started run finds its work without being passed an ID.
func resolveSubmission(ctx context.Context, c *commandContext, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	store, err := c.ensureLedger()
	if err != nil {
		return "", err
	}
	sub, err := store.InFlight(ctx)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return "", errors.New("no submission in flight; pass a submission ID")
	}
	return sub.ID, nil
}

func newRunCommand(c *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run [submission-id]",
		Short: "Run every pipeline stage for one submission",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveSubmission(cmd.Context(), c, args)
			if err != nil {
				return err
			}
			runner, err := c.ensureRunner()
			if err != nil {
				return err
			}
			if err := runner.Run(cmd.Context(), id); err != nil {
				return fmt.Errorf("pipeline for %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pipeline finished for %s\n", id)
			return nil
		},
	}
}

func newStageCommands(c *commandContext) []*cobra.Command {
	// Stage names double as subcommand names so a scheduler can address
	// one step at a time.
	names := []string{
		"extract-metadata",
		"normalize",
		"run-inference",
		"evaluate",
		"retrain",
		"publish",
	}

	cmds := make([]*cobra.Command, 0, len(names))
	for _, name := range names {
		name := name
		cmds = append(cmds, &cobra.Command{
			Use:   name + " [submission-id]",
			Short: "Run only the " + name + " stage",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := resolveSubmission(cmd.Context(), c, args)
				if err != nil {
					return err
				}
				runner, err := c.ensureRunner()
				if err != nil {
					return err
				}
				stage := runner.Stage(name)
				if stage == nil {
					return fmt.Errorf("unknown stage %q", name)
				}
				if err := stage.Run(cmd.Context(), id); err != nil {
					return fmt.Errorf("%s for %s: %w", name, id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s finished for %s\n", name, id)
				return nil
			},
		})
	}
	return cmds
}
