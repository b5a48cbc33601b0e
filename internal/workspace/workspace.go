// Package workspace decides when the embedded console must be restarted:
// when the workspace directory changes or the user picks another provider.
// It falls back to a plain shell when the selected provider is not installed
// and keeps the diff baseline in step with the workspace.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"go.klb.dev/agentbridge/internal/inject"
	"go.klb.dev/agentbridge/internal/provider"
	"go.klb.dev/agentbridge/internal/session"
)

// State is the coordinator's view of the console.
type State int

const (
	Uninitialized State = iota
	Running
	RunningPlainShell
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Running:
		return "running"
	case RunningPlainShell:
		return "plain-shell"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal (re)starts the embedded console. A nil provider starts a plain
// shell. It returns the new console window.
type Terminal interface {
	Start(ctx context.Context, p *provider.ID, dir string) (inject.Handle, error)
}

// Baseline is the diff-baseline collaborator.
type Baseline interface {
	EnsureStarted(ctx context.Context) error
	ResetBaseline(ctx context.Context, refreshView bool) error
	Refresh(ctx context.Context) error
}

// BaselineFactory creates a baseline tracker rooted at dir.
type BaselineFactory func(dir string) (Baseline, error)

// Notifier shows the one-shot installation instructions for a provider.
type Notifier interface {
	ShowInstallInstructions(id provider.ID)
}

// Availability answers provider probes, memoized until Reset.
type Availability interface {
	Reset()
	ResolveAll(ctx context.Context) map[provider.ID]bool
	IsAvailable(ctx context.Context, id provider.ID) bool
}

// SelectionStore persists the user's provider choice.
type SelectionStore interface {
	SaveSelected(id provider.ID) error
}

// Windows reports whether a console window is still alive.
type Windows interface {
	IsWindow(h inject.Handle) bool
}

// ErrNoDirectory is returned for an empty workspace directory.
var ErrNoDirectory = errors.New("workspace directory is empty")

// Config wires a Coordinator. Selection and Windows may be nil.
type Config struct {
	Session      *session.Session
	Availability Availability
	Terminal     Terminal
	Baselines    BaselineFactory
	Notifier     Notifier
	Selection    SelectionStore
	Windows      Windows
}

// Coordinator serializes every transition; it is the only writer of the
// session's running provider.
type Coordinator struct {
	sess      *session.Session
	avail     Availability
	term      Terminal
	baselines BaselineFactory
	notifier  Notifier
	selection SelectionStore
	windows   Windows

	mu          sync.Mutex
	state       State
	baseline    Baseline
	baselineDir string
}

// New returns an Uninitialized coordinator.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		sess:      cfg.Session,
		avail:     cfg.Availability,
		term:      cfg.Terminal,
		baselines: cfg.Baselines,
		notifier:  cfg.Notifier,
		selection: cfg.Selection,
		windows:   cfg.Windows,
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsProviderAvailable answers from the current workspace cycle's probes.
func (c *Coordinator) IsProviderAvailable(ctx context.Context, id provider.ID) bool {
	return c.avail.IsAvailable(ctx, id)
}

// OnWorkspaceDirectoryChanged handles a workspace open/close or an explicit
// reset request. The console is restarted when dir differs from the running
// one, when nothing runs yet, or when the console window has died. A
// directory change always rebuilds the baseline for the new root. A forced
// baseline reset always wins over an incremental refresh.
func (c *Coordinator) OnWorkspaceDirectoryChanged(ctx context.Context, dir string, forceReset bool) error {
	if strings.TrimSpace(dir) == "" {
		return ErrNoDirectory
	}
	dir = filepath.Clean(dir)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == Uninitialized:
		if err := c.restart(ctx, dir, true); err != nil {
			return err
		}
		if forceReset {
			c.recreateBaseline(dir)
			c.resetBaseline(ctx)
		} else {
			c.ensureBaseline(ctx, dir)
		}

	case samePath(c.sess.Dir(), dir):
		if !c.windowAlive() {
			slog.Warn("console window gone, restarting", "dir", dir, "window", uintptr(c.sess.Window()))
			if err := c.restart(ctx, dir, true); err != nil {
				return err
			}
		} else {
			slog.Debug("workspace unchanged", "dir", dir, "force_reset", forceReset)
		}
		if forceReset {
			c.resetBaseline(ctx)
		} else {
			c.refreshBaseline(ctx)
		}

	default:
		if err := c.restart(ctx, dir, true); err != nil {
			return err
		}
		c.recreateBaseline(dir)
		c.resetBaseline(ctx)
	}
	return nil
}

// SelectProvider records the user's choice and, when a console is already
// up, restarts it in the same directory under the same fallback rules.
func (c *Coordinator) SelectProvider(ctx context.Context, id provider.ID) error {
	if !id.Valid() {
		return fmt.Errorf("select provider: %w", errors.New("unknown provider"))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sess.SetSelected(id)
	if c.selection != nil {
		if err := c.selection.SaveSelected(id); err != nil {
			slog.Warn("persisting provider selection failed", "provider", id, "err", err)
		}
	}
	if c.state == Uninitialized {
		return nil
	}
	if r := c.sess.Running(); r != nil && *r == id {
		return nil
	}
	return c.restart(ctx, c.sess.Dir(), false)
}

// restart starts the selected provider in dir, or a plain shell when it is
// unavailable. fresh re-probes every provider first; the restart decision is
// made only after all probes have answered.
func (c *Coordinator) restart(ctx context.Context, dir string, fresh bool) error {
	selected := c.sess.Selected()

	var available bool
	if fresh {
		c.avail.Reset()
		available = c.avail.ResolveAll(ctx)[selected]
	} else {
		available = c.avail.IsAvailable(ctx, selected)
	}

	if available {
		h, err := c.term.Start(ctx, &selected, dir)
		if err != nil {
			c.stopped(dir)
			return fmt.Errorf("start %s in %s: %w", selected, dir, err)
		}
		c.sess.SetRunning(&selected, h, dir)
		c.state = Running
		slog.Info("console started", "provider", selected, "dir", dir)
		return nil
	}

	slog.Warn("selected provider unavailable, starting plain shell", "provider", selected, "dir", dir)
	if c.sess.MarkNotified(selected) && c.notifier != nil {
		c.notifier.ShowInstallInstructions(selected)
	}
	h, err := c.term.Start(ctx, nil, dir)
	if err != nil {
		c.stopped(dir)
		return fmt.Errorf("start shell in %s: %w", dir, err)
	}
	c.sess.SetRunning(nil, h, dir)
	c.state = RunningPlainShell
	return nil
}

// stopped records a failed start. Terminal.Start has already torn down the
// previous console, so the session must not keep pointing at it; the next
// workspace event starts from scratch.
func (c *Coordinator) stopped(dir string) {
	c.sess.SetRunning(nil, 0, dir)
	c.state = Uninitialized
}

// windowAlive reports whether the session's console window still exists. A
// zero handle means the platform gave us none to check.
func (c *Coordinator) windowAlive() bool {
	h := c.sess.Window()
	if c.windows == nil || h == 0 {
		return true
	}
	return c.windows.IsWindow(h)
}

func (c *Coordinator) recreateBaseline(dir string) {
	if c.baselines == nil {
		return
	}
	b, err := c.baselines(dir)
	if err != nil {
		slog.Warn("diff baseline unavailable", "dir", dir, "err", err)
		c.baseline, c.baselineDir = nil, ""
		return
	}
	c.baseline, c.baselineDir = b, dir
}

func (c *Coordinator) ensureBaseline(ctx context.Context, dir string) {
	if c.baseline == nil || !samePath(c.baselineDir, dir) {
		c.recreateBaseline(dir)
	}
	if c.baseline == nil {
		return
	}
	if err := c.baseline.EnsureStarted(ctx); err != nil {
		slog.Warn("diff baseline start failed", "err", err)
	}
}

func (c *Coordinator) resetBaseline(ctx context.Context) {
	if c.baseline == nil {
		return
	}
	if err := c.baseline.ResetBaseline(ctx, true); err != nil {
		slog.Warn("diff baseline reset failed", "err", err)
	}
}

func (c *Coordinator) refreshBaseline(ctx context.Context) {
	if c.baseline == nil {
		return
	}
	if err := c.baseline.Refresh(ctx); err != nil {
		slog.Warn("diff baseline refresh failed", "err", err)
	}
}

// samePath compares directories the way Windows does: case-insensitively.
func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(filepath.Clean(a), filepath.Clean(b))
}
