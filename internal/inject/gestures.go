package inject

import "fmt"

// Message is a window message posted to a console's queue.
type Message int

const (
	MsgCharEnter Message = iota // WM_CHAR carrying Enter
	MsgEnterDown                // WM_KEYDOWN for Enter
	MsgEnterUp                  // WM_KEYUP for Enter
)

func (m Message) String() string {
	switch m {
	case MsgCharEnter:
		return "char-enter"
	case MsgEnterDown:
		return "enter-down"
	case MsgEnterUp:
		return "enter-up"
	default:
		return fmt.Sprintf("message(%d)", int(m))
	}
}

// rawInput is one OS event per call. Platforms implement it; gestures
// composes it into the Injector's multi-event gestures.
type rawInput interface {
	isWindow(h Handle) bool
	activate(h Handle) error
	windowRect(h Handle) (Rect, error)
	setCursor(x, y int) error
	rightButton(down bool)
	modifier(down bool)
	post(h Handle, m Message) error
}

// gestures is the Injector over a rawInput.
type gestures struct {
	raw rawInput
	d   Delays
}

func (g *gestures) IsWindow(h Handle) bool {
	return h != 0 && g.raw.isWindow(h)
}

func (g *gestures) Activate(h Handle) error {
	if !g.IsWindow(h) {
		return ErrWindowGone
	}
	return g.raw.activate(h)
}

func (g *gestures) WindowRect(h Handle) (Rect, error) {
	if !g.IsWindow(h) {
		return Rect{}, ErrWindowGone
	}
	return g.raw.windowRect(h)
}

func (g *gestures) MoveCursor(h Handle, x, y int) error {
	if !g.IsWindow(h) {
		return ErrWindowGone
	}
	return g.raw.setCursor(x, y)
}

func (g *gestures) RightClick(h Handle, x, y int) error {
	if err := g.MoveCursor(h, x, y); err != nil {
		return err
	}
	g.raw.rightButton(true)
	g.d.sleep(g.d.ClickGap)
	g.raw.rightButton(false)
	return nil
}

func (g *gestures) ModifierRightClick(h Handle, x, y int) error {
	if !g.IsWindow(h) {
		return ErrWindowGone
	}
	g.raw.modifier(true)
	g.d.sleep(g.d.ModifierGap)
	err := g.RightClick(h, x, y)
	g.d.sleep(g.d.ModifierGap)
	// Released even when the click failed, or the modifier stays stuck down.
	g.raw.modifier(false)
	return err
}

func (g *gestures) SubmitSingleCharacter(h Handle) error {
	if !g.IsWindow(h) {
		return ErrWindowGone
	}
	return g.raw.post(h, MsgCharEnter)
}

func (g *gestures) SubmitKeyDownUp(h Handle, repeat int) error {
	for i := 0; i < repeat; i++ {
		if !g.IsWindow(h) {
			return ErrWindowGone
		}
		if err := g.raw.post(h, MsgEnterDown); err != nil {
			return err
		}
		if err := g.raw.post(h, MsgEnterUp); err != nil {
			return err
		}
		g.d.sleep(g.d.KeyPairGap)
	}
	return nil
}
