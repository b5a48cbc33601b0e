package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/agentbridge/internal/control"
	"go.klb.dev/agentbridge/internal/provider"
)

func newSelectCmd() *cobra.Command {
	v := viper.New()

	var names []string
	for _, id := range provider.All() {
		names = append(names, id.String())
	}

	cmd := &cobra.Command{
		Use:   "select <provider>",
		Short: "Pick the agent CLI and restart the console with it",
		Long: `Selects the agent CLI. The choice is saved to the config file. When the
console is already running, it is restarted in the same directory with the new
provider (or a plain shell when it is not installed).`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		PreRunE:   func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:      func(cmd *cobra.Command, args []string) error { return runSelect(cmd, v, args[0]) },
	}
	addClientFlags(cmd)

	return cmd
}

func runSelect(cmd *cobra.Command, v *viper.Viper, name string) error {
	if _, err := provider.Parse(name); err != nil {
		return err
	}

	c, err := dialControl(cmd, v)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), restartTimeout)
	defer cancel()
	resp, err := c.SelectProvider(ctx, &control.SelectProviderRequest{Provider: name})
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "selected %s (running: %s, %s)\n", resp.Selected, resp.Running, resp.State)
	return nil
}
