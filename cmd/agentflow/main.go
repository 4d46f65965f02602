// Command agentflow runs the conversational agent from a terminal or over
// HTTP.
//
//	agentflow chat                  interactive session
//	agentflow serve                 HTTP API
//	agentflow graph                 print the agent graph
//	agentflow state <session>       print a session's state
//	agentflow approve <session>     approve (or --deny) a pending action
//	agentflow reset <session>       discard a session
//
// Settings come from --config (YAML or JSON) and AGENTFLOW_* environment
// variables.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
