package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/agentbridge/internal/control"
)

func newProvidersCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "providers [provider]",
		Short: "List agent CLIs and whether they are installed",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindViper(cmd, v)
		},
		RunE: func(cmd *cobra.Command, args []string) error { return runProviders(cmd, v, args) },
	}

	cmd.Flags().Bool("json", false, "output raw JSON")
	addClientFlags(cmd)

	return cmd
}

func runProviders(cmd *cobra.Command, v *viper.Viper, args []string) error {
	req := &control.AvailableRequest{}
	if len(args) == 1 {
		req.Provider = args[0]
	}

	c, err := dialControl(cmd, v)
	if err != nil {
		return err
	}
	defer c.Close()

	// Probing WSL can take a few seconds on a cold start.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	resp, err := c.Available(ctx, req)
	if err != nil {
		return fmt.Errorf("providers: %w", err)
	}

	if v.GetBool("json") {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	printProviders(cmd.OutOrStdout(), resp.Providers)
	return nil
}

func printProviders(out io.Writer, providers []control.ProviderInfo) {
	tw := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "NAME\tDISPLAY\tINSTALLED\tPASTE\tSUBMIT\n")
	_, _ = fmt.Fprintf(tw, "----\t-------\t---------\t-----\t------\n")
	for _, p := range providers {
		installed := "no"
		if p.Available {
			installed = "yes"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.DisplayName, installed, p.Paste, p.Submit)
	}
	_ = tw.Flush()

	for _, p := range providers {
		if p.InstallHint != "" {
			fmt.Fprintf(out, "\n%s: %s", p.DisplayName, p.InstallHint)
		}
	}
	fmt.Fprintln(out)
}
