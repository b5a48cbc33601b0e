package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/agentbridge/internal/control"
)

// restartTimeout covers a console launch and the window search.
const restartTimeout = 30 * time.Second

func newWorkspaceCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "workspace [dir]",
		Short: "Report the editor's workspace directory",
		Long: `Tells the bridge which directory the editor has open (default: the current
directory). The first call starts the console there; a different directory
restarts it and resets the change baseline. Repeating the current directory
only refreshes the change list unless --force-reset is given.`,
		Args:    cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, args []string) error { return runWorkspace(cmd, v, args) },
	}

	cmd.Flags().Bool("force-reset", false, "restart and reset the baseline even if the directory is unchanged")
	addClientFlags(cmd)

	return cmd
}

func runWorkspace(cmd *cobra.Command, v *viper.Viper, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	c, err := dialControl(cmd, v)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), restartTimeout)
	defer cancel()
	resp, err := c.Workspace(ctx, &control.WorkspaceRequest{Dir: dir, ForceReset: v.GetBool("force-reset")})
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.State, resp.Running)
	return nil
}
