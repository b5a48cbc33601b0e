//go:build windows

package inject

import (
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procIsWindow            = user32.NewProc("IsWindow")
	procIsIconic            = user32.NewProc("IsIconic")
	procShowWindow          = user32.NewProc("ShowWindow")
	procSetForegroundWindow = user32.NewProc("SetForegroundWindow")
	procBringWindowToTop    = user32.NewProc("BringWindowToTop")
	procSetFocus            = user32.NewProc("SetFocus")
	procGetWindowRect       = user32.NewProc("GetWindowRect")
	procSetCursorPos        = user32.NewProc("SetCursorPos")
	procMouseEvent          = user32.NewProc("mouse_event")
	procKeybdEvent          = user32.NewProc("keybd_event")
	procPostMessageW        = user32.NewProc("PostMessageW")
)

const (
	swRestore = 9

	mouseeventfRightDown = 0x0008
	mouseeventfRightUp   = 0x0010

	keyeventfKeyUp = 0x0002
	vkShift        = 0x10
	vkReturn       = 0x0D

	wmKeyDown = 0x0100
	wmKeyUp   = 0x0101
	wmChar    = 0x0102

	// lParam for Enter: repeat 1, scan code 0x1C; key-up adds the
	// previous-state and transition bits.
	enterDownLParam = 0x001C0001
	enterUpLParam   = 0xC01C0001
)

// user32Input is the rawInput backed by user32.dll.
type user32Input struct{}

// New returns the user32-backed injector.
func New(d Delays) Injector {
	return &gestures{raw: user32Input{}, d: d}
}

func (user32Input) isWindow(h Handle) bool {
	r, _, _ := procIsWindow.Call(uintptr(h))
	return r != 0
}

func (user32Input) activate(h Handle) error {
	if r, _, _ := procIsIconic.Call(uintptr(h)); r != 0 {
		procShowWindow.Call(uintptr(h), swRestore)
	}
	if r, _, err := procSetForegroundWindow.Call(uintptr(h)); r == 0 {
		// The foreground lock can refuse us; the window is still raised below
		// and the click itself activates it.
		slog.Debug("SetForegroundWindow refused", "hwnd", uintptr(h), "err", err)
	}
	procBringWindowToTop.Call(uintptr(h))
	procSetFocus.Call(uintptr(h))
	return nil
}

type rect struct {
	Left, Top, Right, Bottom int32
}

func (user32Input) windowRect(h Handle) (Rect, error) {
	var r rect
	if ok, _, err := procGetWindowRect.Call(uintptr(h), uintptr(unsafe.Pointer(&r))); ok == 0 {
		return Rect{}, fmt.Errorf("GetWindowRect: %w", err)
	}
	return Rect(r), nil
}

func (user32Input) setCursor(x, y int) error {
	if ok, _, err := procSetCursorPos.Call(uintptr(x), uintptr(y)); ok == 0 {
		return fmt.Errorf("SetCursorPos: %w", err)
	}
	return nil
}

func (user32Input) rightButton(down bool) {
	flag := uintptr(mouseeventfRightUp)
	if down {
		flag = mouseeventfRightDown
	}
	procMouseEvent.Call(flag, 0, 0, 0, 0)
}

func (user32Input) modifier(down bool) {
	var flag uintptr
	if !down {
		flag = keyeventfKeyUp
	}
	procKeybdEvent.Call(vkShift, 0, flag, 0)
}

func (user32Input) post(h Handle, m Message) error {
	var msg, lparam uintptr
	switch m {
	case MsgCharEnter:
		msg = wmChar
	case MsgEnterDown:
		msg, lparam = wmKeyDown, enterDownLParam
	case MsgEnterUp:
		msg, lparam = wmKeyUp, enterUpLParam
	default:
		return fmt.Errorf("post %s: unsupported message", m)
	}
	if ok, _, err := procPostMessageW.Call(uintptr(h), msg, vkReturn, lparam); ok == 0 {
		return fmt.Errorf("PostMessage(0x%04x): %w", msg, err)
	}
	return nil
}
