package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the agent graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			d := a.engine.Graph()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "entry: %s\n", d.Entry)
			for _, e := range d.Edges {
				if e.Label != "" {
					fmt.Fprintf(out, "  %s --%s--> %s\n", e.From, e.Label, e.To)
				} else {
					fmt.Fprintf(out, "  %s --> %s\n", e.From, e.To)
				}
			}
			for _, id := range d.Interrupts {
				fmt.Fprintf(out, "interrupt before: %s\n", id)
			}
			return nil
		},
	}
}

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state <session-id>",
		Short: "Print a session's state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			state, err := a.engine.Snapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <session-id>",
		Short: "Decide a session's pending action and resume it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			deny, _ := cmd.Flags().GetBool("deny")
			if err := a.engine.Approve(cmd.Context(), args[0], !deny); err != nil {
				return err
			}
			res, err := a.engine.Process(cmd.Context(), args[0], "")
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().Bool("deny", false, "Reject instead of approve")
	return cmd
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <session-id>...",
		Short: "Discard one or more sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			for _, id := range args {
				if err := a.engine.Reset(cmd.Context(), id); err != nil {
					return fmt.Errorf("reset %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed session %s\n", id)
			}
			return nil
		},
	}
}
