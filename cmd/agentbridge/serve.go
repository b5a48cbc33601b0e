package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"go.klb.dev/agentbridge/internal/attach"
	"go.klb.dev/agentbridge/internal/baseline"
	"go.klb.dev/agentbridge/internal/clip"
	"go.klb.dev/agentbridge/internal/console"
	"go.klb.dev/agentbridge/internal/control"
	"go.klb.dev/agentbridge/internal/delivery"
	"go.klb.dev/agentbridge/internal/inject"
	"go.klb.dev/agentbridge/internal/ipc"
	"go.klb.dev/agentbridge/internal/provider"
	"go.klb.dev/agentbridge/internal/session"
	"go.klb.dev/agentbridge/internal/settings"
	"go.klb.dev/agentbridge/internal/tlsconf"
	"go.klb.dev/agentbridge/internal/workspace"
)

func newServeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the agent console and accept prompts",
		Long: `Starts the bridge. The console is launched on the first workspace change
(--workspace, or "agentbridge workspace" from the editor) with the selected
provider, or a plain shell when that provider is not installed.

The local socket is always served without auth. --addr additionally serves
gRPC and a read-only HTTP status endpoint over TLS keyed from --token.

Precedence (lowest → highest): defaults → config file → AGENTBRIDGE_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runServe(cmd.Context(), v) },
	}

	f := cmd.Flags()
	f.String("workspace", "", "workspace directory to open on start")
	f.String(settings.KeyProvider, settings.DefaultProvider.String(), "agent CLI to start: claude|claude-wsl|codex|cursor-agent|qwen|opencode")
	f.String("addr", "", "TCP listen address for remote clients (empty = local socket only)")
	f.String("token", "", "shared secret for the TCP listener")
	f.String("staging-dir", "", "where attachments are copied before sending (default: system temp dir)")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	setupLogging(v)

	st := settings.New(v)
	sess := session.New(st.Provider(), st)

	slog.Info("agentbridge starting",
		"version", Version,
		"provider", sess.Selected(),
		"settings", st.Path(),
	)

	backend := clip.New()
	defer backend.Close()
	slog.Info("clipboard backend", "name", backend.Name())

	con := console.New()
	defer con.Stop()

	var trackers trackerHolder
	defer trackers.close()

	inj := inject.New(st.Delays())

	coord := workspace.New(workspace.Config{
		Session:      sess,
		Availability: provider.NewAvailability(provider.DefaultProbes()),
		Terminal:     con,
		Baselines:    trackers.open,
		Notifier:     installNotifier{},
		Selection:    st,
		Windows:      inj,
	})

	pipe := delivery.New(delivery.Config{
		Clipboard: backend,
		Injector:  inj,
		Target:    sess,
		Gestures:  st.Gestures(),
		Timing:    st.Timing(),
		Stager:    attach.Stager{Root: v.GetString("staging-dir")},
	})

	unsubscribe := sess.Subscribe(func(snap session.Snapshot) {
		if err := con.SetTitle(snap.Window, snap.Title()); err != nil {
			slog.Warn("set console title failed", "err", err)
		}
	})
	defer unsubscribe()

	b := control.Backend{
		Session:        sess,
		Sender:         pipe,
		Coordinator:    coord,
		Changes:        trackers.changes,
		MaxAttachments: st.AttachmentsMax(),
		Version:        Version,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ipcLn, err := ipc.Listen()
	if err != nil {
		return fmt.Errorf("ipc listen: %w", err)
	}
	slog.Info("IPC listening", "path", ipc.SocketPath())

	g, gctx := errgroup.WithContext(ctx)

	local := grpc.NewServer()
	control.Register(local, control.New(b, ""))
	g.Go(func() error { return local.Serve(ipcLn) })
	g.Go(func() error {
		<-gctx.Done()
		local.Stop()
		return nil
	})

	if addr := v.GetString("addr"); addr != "" {
		token := v.GetString("token")
		ln, fp, err := listenTLS(addr, token)
		if err != nil {
			return err
		}
		svc := control.New(b, token)
		remote := grpc.NewServer()
		control.Register(remote, svc)
		slog.Info("listening", "addr", ln.Addr(), "fingerprint", fp, "auth", token != "")
		g.Go(func() error { return control.ServeTCP(gctx, ln, remote, control.StatusHandler(svc)) })
	}

	if dir := v.GetString("workspace"); dir != "" {
		if err := coord.OnWorkspaceDirectoryChanged(ctx, dir, false); err != nil {
			slog.Error("initial workspace failed", "dir", dir, "err", err)
		}
	}

	err = g.Wait()
	slog.Info("agentbridge stopped")
	return err
}

// listenTLS opens the TCP listener with the identity derived from token.
func listenTLS(addr, token string) (net.Listener, string, error) {
	id, err := tlsconf.Derive(token)
	if err != nil {
		return nil, "", err
	}
	cfg, err := id.ServerConfig()
	if err != nil {
		return nil, "", err
	}
	raw, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("listen %s: %w", addr, err)
	}
	return tls.NewListener(raw, cfg), id.Fingerprint(), nil
}

// trackerHolder owns the current workspace's baseline tracker so the status
// view can read its changes.
type trackerHolder struct {
	mu  sync.Mutex
	cur *baseline.Tracker
}

func (h *trackerHolder) open(dir string) (workspace.Baseline, error) {
	t, err := baseline.New(dir)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	old := h.cur
	h.cur = t
	h.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return t, nil
}

func (h *trackerHolder) changes() []baseline.Change {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cur == nil {
		return nil
	}
	return h.cur.Changes()
}

func (h *trackerHolder) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cur != nil {
		_ = h.cur.Close()
		h.cur = nil
	}
}

// installNotifier tells the user how to install a provider that could not be
// started. The console is already running a plain shell at this point.
type installNotifier struct{}

func (installNotifier) ShowInstallInstructions(id provider.ID) {
	slog.Warn("provider not installed, started a plain shell",
		"provider", id.DisplayName(),
		"install", id.InstallHint(),
	)
	fmt.Fprintf(os.Stderr, "%s is not installed. To install it:\n  %s\n", id.DisplayName(), id.InstallHint())
}
