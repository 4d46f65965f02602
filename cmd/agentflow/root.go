package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agentflow",
		Short:         "Conversational agent on a checkpointed workflow graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to a YAML or JSON config file")
	root.PersistentFlags().String("log-level", "", "Override the configured log level")

	root.AddCommand(
		newChatCmd(),
		newServeCmd(),
		newGraphCmd(),
		newStateCmd(),
		newApproveCmd(),
		newResetCmd(),
	)
	return root
}
