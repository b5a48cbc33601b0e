//go:build !windows

package inject

type unsupported struct{}

// New returns an injector that refuses every gesture. Only Windows consoles
// accept the paste-and-enter protocol.
func New(Delays) Injector { return unsupported{} }

func (unsupported) IsWindow(Handle) bool                      { return false }
func (unsupported) Activate(Handle) error                     { return ErrUnsupported }
func (unsupported) WindowRect(Handle) (Rect, error)           { return Rect{}, ErrUnsupported }
func (unsupported) MoveCursor(Handle, int, int) error         { return ErrUnsupported }
func (unsupported) RightClick(Handle, int, int) error         { return ErrUnsupported }
func (unsupported) ModifierRightClick(Handle, int, int) error { return ErrUnsupported }
func (unsupported) SubmitSingleCharacter(Handle) error        { return ErrUnsupported }
func (unsupported) SubmitKeyDownUp(Handle, int) error         { return ErrUnsupported }
