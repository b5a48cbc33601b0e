// agentbridge: hosts an agent CLI in a console window and types prompts into it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/agentbridge/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "agentbridge",
		Short: "Drive an interactive agent CLI from your editor",
		Long: `agentbridge starts an agent CLI (Claude Code, Codex, Cursor Agent, Qwen Code,
OpenCode) in its own console window and delivers prompts to it the way a user
would: the text goes through the clipboard, is pasted with a right-click and
submitted with Enter. The user's clipboard is put back afterwards.

Run "agentbridge serve" once per editor session. The other commands talk to it
over a local socket (a named pipe on Windows), or over TLS with --server.

Config file search order (first found wins):
  /etc/agentbridge/agentbridge.toml
  $HOME/.config/agentbridge/agentbridge.toml
  path supplied via --config

All flags can be set via AGENTBRIDGE_<FLAG> env vars or config-file keys.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newSendCmd(),
		newWorkspaceCmd(),
		newSelectCmd(),
		newProvidersCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("agentbridge %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	logging.Setup(logging.Options{
		Format: logging.ParseFormat(formatStr),
		Level:  logging.ParseLevel(levelStr, interactive),
	})
}
