package workspace

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"go.klb.dev/agentbridge/internal/inject"
	"go.klb.dev/agentbridge/internal/provider"
	"go.klb.dev/agentbridge/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type start struct {
	provider string
	dir      string
}

type fakeTerminal struct {
	next   inject.Handle
	starts []start
	err    error
}

func (f *fakeTerminal) Start(_ context.Context, p *provider.ID, dir string) (inject.Handle, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.next++
	f.starts = append(f.starts, start{provider.Name(p), dir})
	return f.next, nil
}

type fakeBaseline struct {
	dir   string
	calls []string
}

func (b *fakeBaseline) EnsureStarted(context.Context) error {
	b.calls = append(b.calls, "ensure")
	return nil
}

func (b *fakeBaseline) ResetBaseline(_ context.Context, refreshView bool) error {
	if refreshView {
		b.calls = append(b.calls, "reset(refresh)")
	} else {
		b.calls = append(b.calls, "reset")
	}
	return nil
}

func (b *fakeBaseline) Refresh(context.Context) error {
	b.calls = append(b.calls, "refresh")
	return nil
}

type fakeNotifier struct{ shown []provider.ID }

func (n *fakeNotifier) ShowInstallInstructions(id provider.ID) { n.shown = append(n.shown, id) }

type fakeSelection struct{ saved []provider.ID }

func (s *fakeSelection) SaveSelected(id provider.ID) error {
	s.saved = append(s.saved, id)
	return nil
}

type fakeWindows struct{ dead map[inject.Handle]bool }

func (w *fakeWindows) IsWindow(h inject.Handle) bool { return !w.dead[h] }

type probeCounter struct {
	mu    sync.Mutex
	calls map[provider.ID]int
	ok    map[provider.ID]bool
}

func (p *probeCounter) probes() map[provider.ID]provider.Probe {
	out := make(map[provider.ID]provider.Probe)
	for _, id := range provider.All() {
		out[id] = func(context.Context) (bool, error) {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.calls[id]++
			return p.ok[id], nil
		}
	}
	return out
}

type harness struct {
	sess      *session.Session
	term      *fakeTerminal
	notifier  *fakeNotifier
	selection *fakeSelection
	windows   *fakeWindows
	probes    *probeCounter
	baselines []*fakeBaseline
	c         *Coordinator
}

func newHarness(selected provider.ID, available ...provider.ID) *harness {
	h := &harness{
		sess:      session.New(selected, nil),
		term:      &fakeTerminal{},
		notifier:  &fakeNotifier{},
		selection: &fakeSelection{},
		windows:   &fakeWindows{dead: map[inject.Handle]bool{}},
		probes:    &probeCounter{calls: map[provider.ID]int{}, ok: map[provider.ID]bool{}},
	}
	for _, id := range available {
		h.probes.ok[id] = true
	}
	h.c = New(Config{
		Session:      h.sess,
		Availability: provider.NewAvailability(h.probes.probes()),
		Terminal:     h.term,
		Baselines: func(dir string) (Baseline, error) {
			b := &fakeBaseline{dir: dir}
			h.baselines = append(h.baselines, b)
			return b, nil
		},
		Notifier:  h.notifier,
		Selection: h.selection,
		Windows:   h.windows,
	})
	return h
}

func (h *harness) lastBaseline() *fakeBaseline {
	if len(h.baselines) == 0 {
		return nil
	}
	return h.baselines[len(h.baselines)-1]
}

func TestFirstWorkspaceStartsSelectedProvider(t *testing.T) {
	h := newHarness(provider.Codex, provider.Codex)
	ctx := context.Background()

	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/a", false))

	assert.Equal(t, Running, h.c.State())
	assert.Equal(t, []start{{"codex", "/src/a"}}, h.term.starts)
	require.NotNil(t, h.sess.Running())
	assert.Equal(t, provider.Codex, *h.sess.Running())
	assert.Equal(t, inject.Handle(1), h.sess.Window())
	require.Len(t, h.baselines, 1)
	assert.Equal(t, []string{"ensure"}, h.lastBaseline().calls)
}

func TestFirstWorkspaceWithForcedReset(t *testing.T) {
	h := newHarness(provider.Codex, provider.Codex)
	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(context.Background(), "/src/a", true))
	require.Len(t, h.baselines, 1)
	assert.Equal(t, []string{"reset(refresh)"}, h.lastBaseline().calls)
}

func TestDirectoryChangeRestartsCompatProvider(t *testing.T) {
	h := newHarness(provider.CursorAgent, provider.CursorAgent)
	ctx := context.Background()

	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/a", false))
	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/b", false))

	assert.Equal(t, Running, h.c.State())
	assert.Equal(t, []start{
		{"cursor-agent", "/src/a"},
		{"cursor-agent", "/src/b"},
	}, h.term.starts)
	assert.Equal(t, "/src/b", h.sess.Dir())
	require.NotNil(t, h.sess.Running())
	assert.Equal(t, provider.CursorAgent, *h.sess.Running())
	require.Len(t, h.baselines, 2)
	assert.Equal(t, "/src/a", h.baselines[0].dir)
	assert.Equal(t, []string{"ensure"}, h.baselines[0].calls)
	assert.Equal(t, "/src/b", h.lastBaseline().dir)
	assert.Equal(t, []string{"reset(refresh)"}, h.lastBaseline().calls)
	assert.Empty(t, h.notifier.shown)
}

func TestDirectoryChangeReprobes(t *testing.T) {
	h := newHarness(provider.Codex, provider.Codex)
	ctx := context.Background()

	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/a", false))
	assert.True(t, h.c.IsProviderAvailable(ctx, provider.Codex))
	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/a", false))
	assert.Equal(t, 1, h.probes.calls[provider.Codex], "same directory reuses the cycle's answers")

	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/b", false))
	assert.Equal(t, 2, h.probes.calls[provider.Codex])
	for _, id := range provider.All() {
		assert.Equal(t, 2, h.probes.calls[id], "every provider is probed each cycle: %s", id)
	}
}

func TestUnchangedDirectoryDoesNotRestart(t *testing.T) {
	tests := []struct {
		name  string
		force bool
		want  []string
	}{
		{"refresh", false, []string{"ensure", "refresh"}},
		{"forced reset wins", true, []string{"ensure", "reset(refresh)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(provider.Codex, provider.Codex)
			ctx := context.Background()
			require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/a", false))
			require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/a/", tt.force))

			assert.Len(t, h.term.starts, 1)
			assert.Equal(t, tt.want, h.lastBaseline().calls)
		})
	}
}

func TestUnavailableProviderFallsBackToShell(t *testing.T) {
	h := newHarness(provider.QwenCode)
	ctx := context.Background()

	var titles []string
	h.sess.Subscribe(func(s session.Snapshot) { titles = append(titles, s.Title()) })

	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/a", false))

	assert.Equal(t, RunningPlainShell, h.c.State())
	assert.Nil(t, h.sess.Running())
	assert.Equal(t, provider.QwenCode, h.sess.Selected())
	assert.Equal(t, []start{{"shell", "/src/a"}}, h.term.starts)
	assert.Equal(t, []provider.ID{provider.QwenCode}, h.notifier.shown)
	assert.Equal(t, []string{"Terminal - a"}, titles)
}

func TestInstallNotificationIsOneShot(t *testing.T) {
	h := newHarness(provider.QwenCode)
	ctx := context.Background()

	for _, dir := range []string{"/src/a", "/src/b", "/src/c", "/src/a"} {
		require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, dir, false))
	}
	assert.Equal(t, []provider.ID{provider.QwenCode}, h.notifier.shown)
	assert.Len(t, h.term.starts, 4)
}

func TestSelectProviderRestartsInPlace(t *testing.T) {
	h := newHarness(provider.Codex, provider.Codex, provider.OpenCode)
	ctx := context.Background()
	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/a", false))

	require.NoError(t, h.c.SelectProvider(ctx, provider.OpenCode))
	require.NotNil(t, h.sess.Running())
	assert.Equal(t, provider.OpenCode, *h.sess.Running())
	assert.Equal(t, []start{{"codex", "/src/a"}, {"opencode", "/src/a"}}, h.term.starts)
	assert.Equal(t, []provider.ID{provider.OpenCode}, h.selection.saved)

	require.NoError(t, h.c.SelectProvider(ctx, provider.OpenCode))
	assert.Len(t, h.term.starts, 2, "selecting the running provider is a no-op")
}

func TestSelectProviderBeforeWorkspace(t *testing.T) {
	h := newHarness(provider.Codex, provider.Codex)
	require.NoError(t, h.c.SelectProvider(context.Background(), provider.ClaudeCode))
	assert.Empty(t, h.term.starts)
	assert.Equal(t, provider.ClaudeCode, h.sess.Selected())
	assert.Equal(t, Uninitialized, h.c.State())
}

func TestSelectUnavailableProvider(t *testing.T) {
	h := newHarness(provider.Codex, provider.Codex)
	ctx := context.Background()
	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/a", false))

	require.NoError(t, h.c.SelectProvider(ctx, provider.ClaudeCodeWSL))
	assert.Equal(t, RunningPlainShell, h.c.State())
	assert.Nil(t, h.sess.Running())
	assert.Equal(t, []provider.ID{provider.ClaudeCodeWSL}, h.notifier.shown)
}

func TestSelectInvalidProvider(t *testing.T) {
	h := newHarness(provider.Codex)
	assert.Error(t, h.c.SelectProvider(context.Background(), provider.ID(99)))
	assert.Equal(t, provider.Codex, h.sess.Selected())
}

func TestStartFailureLeavesUninitialized(t *testing.T) {
	h := newHarness(provider.Codex, provider.Codex)
	h.term.err = errors.New("CreateProcess failed")

	err := h.c.OnWorkspaceDirectoryChanged(context.Background(), "/src/a", false)
	require.Error(t, err)
	assert.Equal(t, Uninitialized, h.c.State())
	assert.Empty(t, h.baselines)
}

func TestFailedRestartIsRetriedInSameDirectory(t *testing.T) {
	h := newHarness(provider.Codex, provider.Codex, provider.OpenCode)
	ctx := context.Background()
	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/a", false))

	h.term.err = errors.New("window never appeared")
	require.Error(t, h.c.SelectProvider(ctx, provider.OpenCode))
	assert.Equal(t, Uninitialized, h.c.State())
	assert.Nil(t, h.sess.Running())
	assert.Equal(t, inject.Handle(0), h.sess.Window())

	h.term.err = nil
	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/a", false))
	assert.Equal(t, Running, h.c.State())
	assert.Equal(t, []start{{"codex", "/src/a"}, {"opencode", "/src/a"}}, h.term.starts)
	require.NotNil(t, h.sess.Running())
	assert.Equal(t, provider.OpenCode, *h.sess.Running())
	require.Len(t, h.baselines, 1, "same root keeps its tracker")
	assert.Equal(t, []string{"ensure", "ensure"}, h.lastBaseline().calls)
}

func TestFailedDirectoryChangeRebuildsBaselineOnRetry(t *testing.T) {
	h := newHarness(provider.Codex, provider.Codex)
	ctx := context.Background()
	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/a", false))

	h.term.err = errors.New("CreateProcess failed")
	require.Error(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/b", false))
	h.term.err = nil
	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/b", false))

	require.Len(t, h.baselines, 2)
	assert.Equal(t, "/src/b", h.lastBaseline().dir)
	assert.Equal(t, []string{"ensure"}, h.lastBaseline().calls)
}

func TestDeadWindowRestartsInSameDirectory(t *testing.T) {
	h := newHarness(provider.Codex, provider.Codex)
	ctx := context.Background()
	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/a", false))

	h.windows.dead[h.sess.Window()] = true
	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/a", false))

	assert.Equal(t, []start{{"codex", "/src/a"}, {"codex", "/src/a"}}, h.term.starts)
	assert.Equal(t, inject.Handle(2), h.sess.Window())
	require.Len(t, h.baselines, 1)
	assert.Equal(t, []string{"ensure", "refresh"}, h.lastBaseline().calls)

	require.NoError(t, h.c.OnWorkspaceDirectoryChanged(ctx, "/src/a", false))
	assert.Len(t, h.term.starts, 2, "a live window is left alone")
}

func TestEmptyDirectory(t *testing.T) {
	h := newHarness(provider.Codex)
	assert.ErrorIs(t, h.c.OnWorkspaceDirectoryChanged(context.Background(), " ", false), ErrNoDirectory)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", Uninitialized.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "plain-shell", RunningPlainShell.String())
}
