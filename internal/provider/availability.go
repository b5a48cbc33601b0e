package provider

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Probe reports whether a provider can be launched in the current
// environment. Probes must not have side effects.
type Probe func(ctx context.Context) (bool, error)

const probeTimeout = 10 * time.Second

// LookPath returns a probe that succeeds when cli is found on PATH.
func LookPath(cli string) Probe {
	return func(_ context.Context) (bool, error) {
		_, err := exec.LookPath(cli)
		return err == nil, nil
	}
}

// WSLCommand returns a probe that succeeds when wsl.exe is installed and cli
// resolves inside the default distribution's login shell.
func WSLCommand(cli string) Probe {
	return func(ctx context.Context) (bool, error) {
		wsl, err := exec.LookPath("wsl.exe")
		if err != nil {
			return false, nil
		}
		ctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		cmd := exec.CommandContext(ctx, wsl, "--", "bash", "-lc", "command -v "+cli)
		if err := cmd.Run(); err != nil {
			if _, ok := err.(*exec.ExitError); ok {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
}

// DefaultProbes returns the probe for every provider: PATH lookups for
// native CLIs, a WSL round-trip for compat ones.
func DefaultProbes() map[ID]Probe {
	probes := make(map[ID]Probe, len(launches))
	for _, id := range All() {
		if id.Compat() {
			probes[id] = WSLCommand(id.CLI())
		} else {
			probes[id] = LookPath(id.CLI())
		}
	}
	return probes
}

// Availability memoizes probe results until Reset is called. The workspace
// coordinator resets it on every workspace change so each cycle sees fresh
// results.
type Availability struct {
	probes map[ID]Probe

	mu    sync.Mutex
	cache map[ID]bool
}

// NewAvailability returns an Availability over probes. Providers without a
// probe are reported unavailable.
func NewAvailability(probes map[ID]Probe) *Availability {
	return &Availability{
		probes: probes,
		cache:  make(map[ID]bool),
	}
}

// Reset forgets every memoized result.
func (a *Availability) Reset() {
	a.mu.Lock()
	a.cache = make(map[ID]bool)
	a.mu.Unlock()
}

// IsAvailable returns the memoized result for id, probing on first use.
func (a *Availability) IsAvailable(ctx context.Context, id ID) bool {
	a.mu.Lock()
	v, ok := a.cache[id]
	a.mu.Unlock()
	if ok {
		return v
	}
	v = a.probe(ctx, id)
	a.mu.Lock()
	a.cache[id] = v
	a.mu.Unlock()
	return v
}

// ResolveAll probes every provider concurrently and returns only once all of
// them have answered, so a decision is never made on partial results.
func (a *Availability) ResolveAll(ctx context.Context) map[ID]bool {
	ids := All()
	results := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = a.IsAvailable(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[ID]bool, len(ids))
	for i, id := range ids {
		out[id] = results[i]
	}
	return out
}

func (a *Availability) probe(ctx context.Context, id ID) bool {
	p, ok := a.probes[id]
	if !ok {
		return false
	}
	v, err := p(ctx)
	if err != nil {
		slog.Warn("provider probe failed", "provider", id, "err", err)
		return false
	}
	slog.Debug("provider probed", "provider", id, "available", v)
	return v
}
