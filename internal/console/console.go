// Package console starts the embedded console: the selected provider's CLI,
// or a plain shell, in its own window rooted at the workspace directory.
package console

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.klb.dev/agentbridge/internal/inject"
	"go.klb.dev/agentbridge/internal/provider"
)

// DefaultFindTimeout bounds the wait for a new console window to appear.
const DefaultFindTimeout = 10 * time.Second

// ErrWindowNotFound is returned when the console started but its window
// never showed up.
var ErrWindowNotFound = errors.New("console window not found")

// Console implements the workspace coordinator's Terminal. Only one console
// process is alive at a time; Start stops the previous one.
type Console struct {
	FindTimeout time.Duration

	mu   sync.Mutex
	proc process

	launch func(marker string, argv []string, dir string) (process, error)
	find   func(ctx context.Context, marker string) (inject.Handle, error)
}

// New returns a Console with the default find timeout.
func New() *Console {
	return &Console{FindTimeout: DefaultFindTimeout, launch: launch, find: findWindow}
}

// Start launches p (nil for a plain shell) in dir and returns the new
// window's handle.
func (c *Console) Start(ctx context.Context, p *provider.ID, dir string) (inject.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	var argv []string
	if p != nil {
		argv = p.Command()
	}
	marker := "agentbridge-" + uuid.NewString()

	proc, err := c.launch(marker, argv, dir)
	if err != nil {
		return 0, err
	}
	c.proc = proc
	slog.Debug("console launched", "provider", provider.Name(p), "dir", dir, "marker", marker)

	timeout := c.FindTimeout
	if timeout <= 0 {
		timeout = DefaultFindTimeout
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	h, err := c.find(fctx, marker)
	if err != nil {
		// A console we cannot address is useless and would outlive us.
		c.stopLocked()
		return 0, err
	}
	return h, nil
}

// SetTitle renames the console window. The session title collaborator calls
// it after every restart.
func (c *Console) SetTitle(h inject.Handle, title string) error {
	if h == 0 {
		return nil
	}
	return setTitle(h, title)
}

// Stop terminates the running console, if any.
func (c *Console) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Console) stopLocked() {
	if c.proc == nil {
		return
	}
	if err := c.proc.stop(); err != nil {
		slog.Debug("stopping previous console", "err", err)
	}
	c.proc = nil
}

// process is a started console and everything it spawned.
type process interface {
	stop() error
}

// commandLine joins argv for a shell that takes one command string.
func commandLine(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\"") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}
