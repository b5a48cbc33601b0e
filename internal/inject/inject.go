// Package inject issues synthetic mouse and keyboard input to a console
// window addressed by its native handle.
//
// Handles are weak references: every Injector method re-checks that the
// handle still names a live window and returns ErrWindowGone without touching
// the OS otherwise.
package inject

import (
	"errors"
	"time"
)

var (
	// ErrWindowGone means the handle no longer refers to a live window.
	ErrWindowGone = errors.New("target window is gone")
	// ErrUnsupported is returned on platforms without synthetic input.
	ErrUnsupported = errors.New("input injection is not supported on this platform")
)

// Handle is an opaque native window handle. Zero is never valid.
type Handle uintptr

// Rect is a window's bounding rectangle in screen coordinates.
type Rect struct {
	Left, Top, Right, Bottom int32
}

// Center returns the midpoint of r.
func (r Rect) Center() (x, y int) {
	return int(r.Left+r.Right) / 2, int(r.Top+r.Bottom) / 2
}

// Injector drives one target window. Implementations are stateless apart
// from their delays.
type Injector interface {
	// IsWindow reports whether h names a live window.
	IsWindow(h Handle) bool
	// Activate restores, raises and focuses the window.
	Activate(h Handle) error
	// WindowRect returns the window's current bounds.
	WindowRect(h Handle) (Rect, error)
	// MoveCursor places the mouse cursor at screen coordinates.
	MoveCursor(h Handle, x, y int) error
	// RightClick presses and releases the right button at (x, y).
	RightClick(h Handle, x, y int) error
	// ModifierRightClick holds the modifier key around a RightClick.
	ModifierRightClick(h Handle, x, y int) error
	// SubmitSingleCharacter posts one WM_CHAR carrying Enter to the window's
	// queue; the window does not need input focus.
	SubmitSingleCharacter(h Handle) error
	// SubmitKeyDownUp posts repeat key-down/key-up Enter pairs with a pause
	// after each pair.
	SubmitKeyDownUp(h Handle, repeat int) error
}

// Delays are the pauses inside a single gesture. The console polls key
// state per event, so a modifier must be visibly down before the click and
// still down until after it.
type Delays struct {
	ClickGap    time.Duration // between button down and up
	ModifierGap time.Duration // after modifier down and before modifier up
	KeyPairGap  time.Duration // after each Enter down/up pair

	// Sleep replaces time.Sleep; tests use it to record pauses.
	Sleep func(time.Duration)
}

// DefaultDelays are tuned against conhost and Windows Terminal.
var DefaultDelays = Delays{
	ClickGap:    50 * time.Millisecond,
	ModifierGap: 50 * time.Millisecond,
	KeyPairGap:  100 * time.Millisecond,
}

func (d Delays) sleep(v time.Duration) {
	if v <= 0 {
		return
	}
	if d.Sleep != nil {
		d.Sleep(v)
		return
	}
	time.Sleep(v)
}
