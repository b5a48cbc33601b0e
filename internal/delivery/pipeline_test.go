package delivery

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/agentbridge/internal/attach"
	"go.klb.dev/agentbridge/internal/clip"
	"go.klb.dev/agentbridge/internal/inject"
	"go.klb.dev/agentbridge/internal/provider"
)

const hwnd inject.Handle = 0x1234

var bounds = inject.Rect{Left: 0, Top: 0, Right: 800, Bottom: 600}

type fakeTarget struct {
	mu      sync.Mutex
	window  inject.Handle
	running *provider.ID
}

func (f *fakeTarget) Window() inject.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.window
}

func (f *fakeTarget) Running() *provider.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running == nil {
		return nil
	}
	id := *f.running
	return &id
}

func (f *fakeTarget) setRunning(id *provider.ID) {
	f.mu.Lock()
	f.running = id
	f.mu.Unlock()
}

type harness struct {
	clip   *clip.Memory
	inj    *inject.Recorder
	target *fakeTarget
	sleeps []time.Duration
	p      *Pipeline
}

func newHarness(t *testing.T, running *provider.ID, initial ...clip.Item) *harness {
	t.Helper()
	h := &harness{
		clip:   clip.NewMemory(initial...),
		inj:    inject.NewRecorder(hwnd, bounds),
		target: &fakeTarget{window: hwnd, running: running},
	}
	timing := DefaultTiming
	timing.Sleep = func(d time.Duration) { h.sleeps = append(h.sleeps, d) }
	h.p = New(Config{
		Clipboard: h.clip,
		Injector:  h.inj,
		Target:    h.target,
		Gestures:  provider.Table{},
		Timing:    timing,
		Stager:    attach.Stager{Root: t.TempDir()},
	})
	return h
}

func ptr(id provider.ID) *provider.ID { return &id }

func textItem(s string) clip.Item {
	return clip.Item{Format: clip.FormatUnicodeText, Value: clip.Text(s)}
}

func TestSendRestoresOriginalClipboard(t *testing.T) {
	h := newHarness(t, nil, textItem("foo"))

	var staged string
	h.inj.OnCall = func(c inject.Call) {
		if c.Op == inject.OpRightClick {
			staged = clip.ReadText(h.clip)
		}
	}

	require.NoError(t, h.p.Send("bar"))
	assert.Equal(t, "bar", staged, "prompt is on the clipboard when the paste lands")
	assert.Equal(t, "foo", clip.ReadText(h.clip))
}

func TestSendOnEmptyClipboardLeavesItEmpty(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.p.Send("bar"))
	assert.Empty(t, h.clip.Items())
}

func TestGestureSequencePerProvider(t *testing.T) {
	tests := []struct {
		name    string
		running *provider.ID
		want    []string
	}{
		{"shell", nil, []string{
			"activate", "rect", "move(400,300)", "right-click(400,300)", "char-enter",
		}},
		{"claude", ptr(provider.ClaudeCode), []string{
			"activate", "rect", "move(400,300)", "right-click(400,300)", "char-enter",
		}},
		{"claude-wsl", ptr(provider.ClaudeCodeWSL), []string{
			"activate", "rect", "move(400,300)", "right-click(400,300)", "keydown-up-enter x2",
		}},
		{"cursor-agent", ptr(provider.CursorAgent), []string{
			"activate", "rect", "move(400,300)", "right-click(400,300)", "keydown-up-enter x2",
		}},
		{"opencode", ptr(provider.OpenCode), []string{
			"activate", "rect", "move(400,300)", "shift+right-click(400,300)", "char-enter",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.running)
			require.NoError(t, h.p.Send("hello"))
			assert.Equal(t, tt.want, h.inj.Ops())
		})
	}
}

func TestEnterRepeatIsTunable(t *testing.T) {
	h := newHarness(t, ptr(provider.ClaudeCodeWSL))
	h.p.gestures = provider.Table{EnterRepeat: 3}
	require.NoError(t, h.p.Send("hello"))
	ops := h.inj.Ops()
	assert.Equal(t, "keydown-up-enter x3", ops[len(ops)-1])
}

func TestWaitOrder(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.p.Send("hello"))
	assert.Equal(t, []time.Duration{
		DefaultTiming.ClipboardSettle,
		DefaultTiming.FocusSettle,
		DefaultTiming.SubmitSettle,
		DefaultTiming.RestoreSettle,
	}, h.sleeps)
}

func TestGestureFollowsRunningNotSelected(t *testing.T) {
	h := newHarness(t, ptr(provider.ClaudeCode))

	// A restart into a WSL provider completes while the send is in flight.
	h.inj.OnCall = func(c inject.Call) {
		if c.Op == inject.OpActivate {
			h.target.setRunning(ptr(provider.CursorAgent))
		}
	}

	require.NoError(t, h.p.Send("hello"))
	ops := h.inj.Ops()
	assert.Equal(t, "char-enter", ops[len(ops)-1])
}

func TestTerminalUnavailableLeavesClipboardAlone(t *testing.T) {
	h := newHarness(t, nil, textItem("foo"))
	h.inj.SetAlive(false)

	err := h.p.Send("bar")
	require.Error(t, err)
	assert.True(t, IsKind(err, TerminalUnavailable))
	assert.Equal(t, 0, h.clip.Writes())
	assert.Equal(t, 0, h.clip.Clears())
	assert.Empty(t, h.inj.Calls())
	assert.Equal(t, "foo", clip.ReadText(h.clip))
}

func TestNoWindowHandle(t *testing.T) {
	h := newHarness(t, nil)
	h.target.window = 0
	assert.True(t, IsKind(h.p.Send("bar"), TerminalUnavailable))
}

func TestRestoreRunsExactlyOnceOnEveryFault(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		inject func(h *harness)
		kind   Kind
	}{
		{"clear", func(h *harness) { h.clip.ClearErr = boom }, ClipboardStageFailed},
		{"stage", func(h *harness) { h.clip.SetTextErr = boom }, ClipboardStageFailed},
		{"activate", func(h *harness) { h.inj.Fail(inject.OpActivate, boom) }, GestureDeliveryFailed},
		{"rect", func(h *harness) { h.inj.Fail(inject.OpWindowRect, boom) }, GestureDeliveryFailed},
		{"move", func(h *harness) { h.inj.Fail(inject.OpMoveCursor, boom) }, GestureDeliveryFailed},
		{"paste", func(h *harness) { h.inj.Fail(inject.OpRightClick, boom) }, GestureDeliveryFailed},
		{"submit", func(h *harness) { h.inj.Fail(inject.OpCharEnter, boom) }, GestureDeliveryFailed},
		{"window closed mid-send", func(h *harness) {
			h.inj.OnCall = func(c inject.Call) {
				if c.Op == inject.OpActivate {
					h.inj.SetAlive(false)
				}
			}
		}, GestureDeliveryFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil, textItem("foo"))
			tt.inject(h)

			err := h.p.Send("bar")
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind), "got %v", err)
			assert.Equal(t, 1, h.clip.Writes(), "restore must run exactly once")
			assert.Equal(t, "foo", clip.ReadText(h.clip))
			assert.False(t, h.p.Busy())
		})
	}
}

func TestGestureErrorWrapsCause(t *testing.T) {
	h := newHarness(t, nil)
	h.inj.OnCall = func(c inject.Call) {
		if c.Op == inject.OpActivate {
			h.inj.SetAlive(false)
		}
	}
	err := h.p.Send("bar")
	assert.ErrorIs(t, err, inject.ErrWindowGone)
}

type panicInjector struct{ *inject.Recorder }

func (panicInjector) SubmitSingleCharacter(inject.Handle) error { panic("user32 exploded") }

func TestPanicBecomesGestureError(t *testing.T) {
	h := newHarness(t, nil, textItem("foo"))
	h.p.inj = panicInjector{h.inj}

	err := h.p.Send("bar")
	assert.True(t, IsKind(err, GestureDeliveryFailed))
	assert.Equal(t, "foo", clip.ReadText(h.clip))
}

func TestRestoreFailureIsNotEscalated(t *testing.T) {
	h := newHarness(t, nil,
		textItem("foo"),
		clip.Item{Format: "HTML Format", Value: clip.Bytes([]byte("<b>foo</b>"))},
	)
	h.clip.WriteErr = map[clip.Format]error{"HTML Format": errors.New("denied")}

	require.NoError(t, h.p.Send("bar"))
	assert.Equal(t, "foo", clip.ReadText(h.clip))
}

func TestRestoreFailureDoesNotMaskDeliveryError(t *testing.T) {
	h := newHarness(t, nil, textItem("foo"))
	h.clip.WriteErr = map[clip.Format]error{clip.FormatUnicodeText: errors.New("denied")}
	h.inj.Fail(inject.OpRightClick, errors.New("click lost"))

	err := h.p.Send("bar")
	assert.True(t, IsKind(err, GestureDeliveryFailed))
	assert.Contains(t, err.Error(), "click lost")
}

func TestConcurrentSendIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	var inner error
	h.inj.OnCall = func(c inject.Call) {
		if c.Op == inject.OpActivate {
			inner = h.p.Send("second")
		}
	}
	require.NoError(t, h.p.Send("first"))
	assert.ErrorIs(t, inner, ErrBusy)
	assert.NoError(t, h.p.Send("third"), "busy flag is released")
}

func TestEmptyPrompt(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.p.Send("  \n"), ErrEmptyPrompt)
	assert.ErrorIs(t, h.p.SendPrompt("", attach.NewSet(3)), ErrEmptyPrompt)
	assert.Empty(t, h.inj.Calls())
}

func TestSendPromptWithCompatAttachments(t *testing.T) {
	src := t.TempDir()
	a := filepath.Join(src, "one.png")
	b := filepath.Join(src, "two.png")
	require.NoError(t, os.WriteFile(a, []byte("1"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("2"), 0o600))

	h := newHarness(t, ptr(provider.CursorAgent), textItem("foo"))
	set := attach.NewSet(5)
	set.Add(a)
	set.Add(b)

	var staged string
	h.inj.OnCall = func(c inject.Call) {
		if c.Op == inject.OpRightClick {
			staged = clip.ReadText(h.clip)
		}
	}

	require.NoError(t, h.p.SendPrompt("what is in these?", set))

	lines := strings.Split(staged, "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasSuffix(lines[0], "/one.png"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "/two.png"), lines[1])
	assert.NotContains(t, lines[0], `\`)
	assert.Equal(t, "", lines[2])
	assert.Equal(t, "what is in these?", lines[3])

	assert.Equal(t, 0, set.Len(), "attachments clear after a successful send")
	assert.Equal(t, "foo", clip.ReadText(h.clip))
}

func TestFailedSendKeepsAttachments(t *testing.T) {
	h := newHarness(t, nil)
	h.inj.Fail(inject.OpCharEnter, errors.New("lost"))
	set := attach.NewSet(5)
	set.Add(filepath.Join(t.TempDir(), "missing.png"))

	require.Error(t, h.p.SendPrompt("retry me", set))
	assert.Equal(t, 1, set.Len())
}
