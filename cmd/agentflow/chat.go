package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/agentflow/pkg/agent"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent in the terminal",
		Long: `Starts an interactive session. Besides ordinary messages the prompt accepts:

  state     print the session state
  approve   approve the pending action
  reject    reject the pending action
  reset     start over
  quit      leave`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(cmd.Context()))

			session, _ := cmd.Flags().GetString("session")
			if session == "" {
				session = uuid.NewString()
			}
			return runChat(cmd.Context(), a.engine, session, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringP("session", "s", "", "Session ID to continue (default: a new one)")
	return cmd
}

// runChat reads lines from in until EOF or quit and prints the agent's
// replies to out.
func runChat(ctx context.Context, engine *agent.Engine, session string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Session %s. Type 'quit' to leave.\n", session)
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		var (
			res agent.Result
			err error
		)
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			fmt.Fprintln(out, agent.GoodbyeMessage)
			return nil
		case "state":
			if err := printState(ctx, engine, session, out); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			continue
		case "reset":
			if err := engine.Reset(ctx, session); err != nil {
				return err
			}
			fmt.Fprintln(out, "Session reset.")
			continue
		case "approve", "reject":
			if err := engine.Approve(ctx, session, strings.EqualFold(line, "approve")); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			res, err = engine.Process(ctx, session, "")
		default:
			res, err = engine.Process(ctx, session, line)
		}

		if err != nil {
			fmt.Fprintln(out, "Something went wrong; the details are in the session state.")
			continue
		}
		printResult(out, res)
	}
}

func printResult(out io.Writer, res agent.Result) {
	if res.Status == agent.StatusAwaitingApproval {
		fmt.Fprintf(out, "The action %q needs your approval (confidence %.2f). Type 'approve' or 'reject'.\n",
			res.Action, res.Confidence)
		return
	}
	fmt.Fprintln(out, res.FinalResponse)
}

func printState(ctx context.Context, engine *agent.Engine, session string, out io.Writer) error {
	state, err := engine.Snapshot(ctx, session)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(data))
	return nil
}
