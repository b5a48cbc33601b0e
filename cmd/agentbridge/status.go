package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.klb.dev/agentbridge/internal/baseline"
	"go.klb.dev/agentbridge/internal/control"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the console and the files changed since the baseline",
		Long: `Displays the selected and running provider, the console window and the files
changed in the workspace since the last baseline reset.

If a local bridge is running, the request is sent over the local socket. Pass
--server to target a remote bridge over TLS. --watch keeps the connection open
and prints a line per console change.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runStatus(cmd, v) },
	}

	f := cmd.Flags()
	f.Bool("json", false, "output raw JSON")
	f.Bool("watch", false, "stream changes until interrupted")
	addClientFlags(cmd)

	return cmd
}

func runStatus(cmd *cobra.Command, v *viper.Viper) error {
	c, err := dialControl(cmd, v)
	if err != nil {
		return err
	}
	defer c.Close()

	out := cmd.OutOrStdout()
	jsonOut := v.GetBool("json")

	if v.GetBool("watch") {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return watchStatus(ctx, c, out, jsonOut)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Status(ctx, &control.StatusRequest{})
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	if jsonOut {
		return printJSON(out, resp)
	}
	printStatus(out, resp, c.transport)
	return nil
}

func watchStatus(ctx context.Context, c *conn, out io.Writer, jsonOut bool) error {
	w, err := c.Watch(ctx, &control.WatchRequest{})
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	for {
		resp, err := w.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
		if jsonOut {
			b, _ := json.Marshal(resp)
			fmt.Fprintln(out, string(b))
			continue
		}
		fmt.Fprintf(out, "%s  %-12s %-14s %s\n",
			time.Now().Format("15:04:05"), resp.State, resp.Running, resp.Title)
	}
}

func printStatus(out io.Writer, resp *control.StatusResponse, transport string) {
	w := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Transport:\t%s\n", transport)
	if resp.Version != "" {
		fmt.Fprintf(w, "Version:\t%s\n", resp.Version)
	}
	fmt.Fprintf(w, "State:\t%s\n", resp.State)
	fmt.Fprintf(w, "Selected:\t%s\n", resp.Selected)
	fmt.Fprintf(w, "Running:\t%s\n", resp.Running)
	if resp.Window != 0 {
		fmt.Fprintf(w, "Window:\t%#x\n", resp.Window)
	}
	fmt.Fprintf(w, "Title:\t%s\n", resp.Title)
	if resp.Dir != "" {
		fmt.Fprintf(w, "Workspace:\t%s\n", resp.Dir)
	}
	if resp.Busy {
		fmt.Fprintf(w, "Busy:\tsending\n")
	}
	fmt.Fprintln(w)
	_ = w.Flush()

	if len(resp.Changes) == 0 {
		fmt.Fprintln(out, "No changes since baseline.")
		return
	}

	tw := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "STATUS\tPATH\t+\t-\n")
	_, _ = fmt.Fprintf(tw, "------\t----\t-\t-\n")
	for _, ch := range resp.Changes {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ch.Kind, ch.Path, lineCount(ch, ch.Added), lineCount(ch, ch.Removed))
	}
	_ = tw.Flush()
}

// lineCount renders an added/removed count; deleted files only remove lines
// and added files only add them, so the other side prints as "-".
func lineCount(ch baseline.Change, n int) string {
	if n == 0 && ch.Kind != baseline.Modified.String() {
		return "-"
	}
	return fmt.Sprint(n)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
