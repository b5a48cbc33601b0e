package provider

// PasteGesture is the mouse action that makes the console consume the
// clipboard as typed input.
type PasteGesture int

const (
	PlainRightClick    PasteGesture = iota // conhost pastes on right-click
	ModifierRightClick                     // shift held so a mouse-capturing TUI lets the click through
)

func (g PasteGesture) String() string {
	switch g {
	case PlainRightClick:
		return "right-click"
	case ModifierRightClick:
		return "shift+right-click"
	default:
		return "unknown"
	}
}

// SubmitGesture is the keyboard action that executes the pasted text.
type SubmitGesture int

const (
	SingleCharacterEnter SubmitGesture = iota // one WM_CHAR carrying '\r'
	DoubleKeyDownUpEnter                      // WM_KEYDOWN/WM_KEYUP pairs, repeated
)

func (g SubmitGesture) String() string {
	switch g {
	case SingleCharacterEnter:
		return "char-enter"
	case DoubleKeyDownUpEnter:
		return "keydown-up-enter"
	default:
		return "unknown"
	}
}

// DefaultEnterRepeat is how many key-down/key-up Enter pairs are sent for
// providers using DoubleKeyDownUpEnter. The WSL-hosted input loops were
// observed to drop a single Enter right after a paste; two has been enough.
const DefaultEnterRepeat = 2

// Protocol is the paste/submit policy for one provider.
type Protocol struct {
	Paste        PasteGesture
	Submit       SubmitGesture
	SubmitRepeat int
}

// ShellProtocol is used when no agent is running in the console.
var ShellProtocol = Protocol{Paste: PlainRightClick, Submit: SingleCharacterEnter, SubmitRepeat: 1}

var protocols = map[ID]Protocol{
	ClaudeCode:    {Paste: PlainRightClick, Submit: SingleCharacterEnter, SubmitRepeat: 1},
	ClaudeCodeWSL: {Paste: PlainRightClick, Submit: DoubleKeyDownUpEnter, SubmitRepeat: DefaultEnterRepeat},
	Codex:         {Paste: PlainRightClick, Submit: SingleCharacterEnter, SubmitRepeat: 1},
	CursorAgent:   {Paste: PlainRightClick, Submit: DoubleKeyDownUpEnter, SubmitRepeat: DefaultEnterRepeat},
	QwenCode:      {Paste: PlainRightClick, Submit: SingleCharacterEnter, SubmitRepeat: 1},
	OpenCode:      {Paste: ModifierRightClick, Submit: SingleCharacterEnter, SubmitRepeat: 1},
}

// ResolveGesture returns the protocol for the provider that is actually
// running in the console. It must never be called with the selected provider:
// during a pending switch the two differ and the running one owns the input
// loop. A nil or unknown provider resolves to ShellProtocol.
func ResolveGesture(running *ID) Protocol {
	if running == nil {
		return ShellProtocol
	}
	if p, ok := protocols[*running]; ok {
		return p
	}
	return ShellProtocol
}

// Table resolves gestures with an overridden Enter repeat count.
type Table struct {
	EnterRepeat int
}

// Resolve is ResolveGesture with the configured repeat count applied to
// DoubleKeyDownUpEnter entries.
func (t Table) Resolve(running *ID) Protocol {
	p := ResolveGesture(running)
	if p.Submit == DoubleKeyDownUpEnter && t.EnterRepeat > 0 {
		p.SubmitRepeat = t.EnterRepeat
	}
	return p
}
