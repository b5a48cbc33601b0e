package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/agentbridge/internal/control"
	"go.klb.dev/agentbridge/internal/logging"
)

// sendTimeout covers staging, the settle waits and the clipboard restore.
const sendTimeout = 30 * time.Second

func newSendCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "send [prompt...]",
		Short: "Type a prompt into the running agent",
		Long: `Sends a prompt to the agent running in the bridge console. The prompt is the
arguments joined by spaces, or stdin when there are none and stdin is not a
terminal.

Attachments are copied to a staging directory and their paths are put ahead
of the prompt, one per line.`,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, args []string) error { return runSend(cmd, v, args) },
	}

	f := cmd.Flags()
	f.StringArrayP("attach", "a", nil, "file to attach (repeatable)")
	addClientFlags(cmd)

	return cmd
}

func runSend(cmd *cobra.Command, v *viper.Viper, args []string) error {
	prompt, err := promptText(args, os.Stdin)
	if err != nil {
		return err
	}
	// Read from the flag set: viper splits array flags on commas.
	raw, _ := cmd.Flags().GetStringArray("attach")
	attachments, err := absPaths(raw)
	if err != nil {
		return err
	}

	c, err := dialControl(cmd, v)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	resp, err := c.Send(ctx, &control.SendRequest{Prompt: prompt, Attachments: attachments})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "sent to %s\n", resp.Provider)
	return nil
}

// promptText joins args, or reads stdin when there are no args and stdin is
// redirected.
func promptText(args []string, stdin *os.File) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if logging.IsTTY(stdin) {
		// Attachments alone are a valid send.
		return "", nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// absPaths resolves attachments against the caller's directory; the bridge
// may run elsewhere.
func absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("attachment %s: %w", p, err)
		}
		out = append(out, abs)
	}
	return out, nil
}
