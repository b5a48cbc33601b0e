// Package delivery sends a prompt into the console window: it stages the text
// on the clipboard, pastes it with the running provider's gesture, submits it,
// and puts the user's clipboard back.
package delivery

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.klb.dev/agentbridge/internal/attach"
	"go.klb.dev/agentbridge/internal/clip"
	"go.klb.dev/agentbridge/internal/inject"
	"go.klb.dev/agentbridge/internal/provider"
)

// Target is the console being driven. *session.Session implements it.
type Target interface {
	Window() inject.Handle
	Running() *provider.ID
}

// Timing holds the settle times between pipeline steps.
type Timing struct {
	ClipboardSettle time.Duration // after clearing, before staging text
	FocusSettle     time.Duration // after activating, before the paste click
	SubmitSettle    time.Duration // after the paste, before Enter
	RestoreSettle   time.Duration // before putting the user's clipboard back

	// Sleep replaces time.Sleep; tests use it to record waits.
	Sleep func(time.Duration)
}

// DefaultTiming works for conhost, Windows Terminal and the WSL-hosted CLIs.
var DefaultTiming = Timing{
	ClipboardSettle: 100 * time.Millisecond,
	FocusSettle:     300 * time.Millisecond,
	SubmitSettle:    500 * time.Millisecond,
	RestoreSettle:   200 * time.Millisecond,
}

func (t Timing) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if t.Sleep != nil {
		t.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Pipeline performs sends one at a time.
type Pipeline struct {
	clip     clip.Backend
	inj      inject.Injector
	target   Target
	gestures provider.Table
	timing   Timing
	stager   attach.Stager

	busy atomic.Bool
}

// Config wires a Pipeline.
type Config struct {
	Clipboard clip.Backend
	Injector  inject.Injector
	Target    Target
	Gestures  provider.Table
	Timing    Timing
	Stager    attach.Stager
}

// New returns a Pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		clip:     cfg.Clipboard,
		inj:      cfg.Injector,
		target:   cfg.Target,
		gestures: cfg.Gestures,
		timing:   cfg.Timing,
		stager:   cfg.Stager,
	}
}

// Busy reports whether a send is in flight.
func (p *Pipeline) Busy() bool { return p.busy.Load() }

// Send delivers text with no attachments.
func (p *Pipeline) Send(text string) error {
	return p.SendPrompt(text, nil)
}

// SendPrompt stages set's files, lists their paths ahead of text and
// delivers the result. set is cleared only when the delivery succeeds, so a
// failed send can be retried as is. Once started a send cannot be cancelled;
// it returns after the user's clipboard has been restored.
func (p *Pipeline) SendPrompt(text string, set *attach.Set) error {
	if strings.TrimSpace(text) == "" && (set == nil || set.Len() == 0) {
		return ErrEmptyPrompt
	}
	if !p.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer p.busy.Store(false)

	h := p.target.Window()
	if !p.inj.IsWindow(h) {
		return fail(TerminalUnavailable, fmt.Errorf("no live console window (hwnd %#x)", uintptr(h)))
	}

	// Read once: a provider switch that completes during this send must not
	// change the gestures half way through.
	running := p.target.Running()

	if set != nil && set.Len() > 0 {
		text = attach.Prefix(p.stager.Stage(set, running), text)
	}

	if err := p.deliver(h, running, text); err != nil {
		slog.Error("prompt delivery failed", "provider", provider.Name(running), "err", err)
		return err
	}
	if set != nil {
		set.Clear()
	}
	return nil
}

func (p *Pipeline) deliver(h inject.Handle, running *provider.ID, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fail(GestureDeliveryFailed, fmt.Errorf("panic: %v", r))
		}
	}()

	proto := p.gestures.Resolve(running)

	snapshot := clip.Capture(p.clip)
	if snapshot == nil {
		slog.Debug("clipboard snapshot empty, will clear on restore")
	}
	defer p.restore(snapshot)

	if err := p.clip.Clear(); err != nil {
		return fail(ClipboardStageFailed, err)
	}
	p.timing.sleep(p.timing.ClipboardSettle)
	if err := p.clip.SetText(text); err != nil {
		return fail(ClipboardStageFailed, err)
	}

	if err := p.inj.Activate(h); err != nil {
		return fail(GestureDeliveryFailed, fmt.Errorf("activate: %w", err))
	}
	p.timing.sleep(p.timing.FocusSettle)

	// The window may have moved or been resized since the last send.
	rect, err := p.inj.WindowRect(h)
	if err != nil {
		return fail(GestureDeliveryFailed, fmt.Errorf("window rect: %w", err))
	}
	x, y := rect.Center()
	if err := p.inj.MoveCursor(h, x, y); err != nil {
		return fail(GestureDeliveryFailed, fmt.Errorf("move cursor: %w", err))
	}
	if err := p.paste(h, proto, x, y); err != nil {
		return fail(GestureDeliveryFailed, fmt.Errorf("%s: %w", proto.Paste, err))
	}

	p.timing.sleep(p.timing.SubmitSettle)
	if err := p.submit(h, proto); err != nil {
		return fail(GestureDeliveryFailed, fmt.Errorf("%s: %w", proto.Submit, err))
	}

	slog.Info("prompt delivered",
		"provider", provider.Name(running),
		"paste", proto.Paste,
		"submit", proto.Submit,
		"chars", len(text),
	)
	return nil
}

func (p *Pipeline) paste(h inject.Handle, proto provider.Protocol, x, y int) error {
	switch proto.Paste {
	case provider.ModifierRightClick:
		return p.inj.ModifierRightClick(h, x, y)
	default:
		return p.inj.RightClick(h, x, y)
	}
}

func (p *Pipeline) submit(h inject.Handle, proto provider.Protocol) error {
	switch proto.Submit {
	case provider.DoubleKeyDownUpEnter:
		return p.inj.SubmitKeyDownUp(h, proto.SubmitRepeat)
	default:
		return p.inj.SubmitSingleCharacter(h)
	}
}

// restore always runs, whatever happened before it. Its failures are logged
// and never replace the delivery error.
func (p *Pipeline) restore(snapshot *clip.Payload) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("clipboard restore panicked", "panic", r)
		}
	}()
	p.timing.sleep(p.timing.RestoreSettle)
	if err := clip.Restore(p.clip, snapshot); err != nil {
		slog.Warn("clipboard restore incomplete", "formats", snapshot.Len(), "err", err)
		return
	}
	slog.Debug("clipboard restored", "formats", snapshot.Len())
}
