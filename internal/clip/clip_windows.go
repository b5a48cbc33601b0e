//go:build windows

package clip

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procOpenClipboard            = user32.NewProc("OpenClipboard")
	procCloseClipboard           = user32.NewProc("CloseClipboard")
	procEmptyClipboard           = user32.NewProc("EmptyClipboard")
	procEnumClipboardFormats     = user32.NewProc("EnumClipboardFormats")
	procGetClipboardData         = user32.NewProc("GetClipboardData")
	procSetClipboardData         = user32.NewProc("SetClipboardData")
	procGetClipboardFormatNameW  = user32.NewProc("GetClipboardFormatNameW")
	procRegisterClipboardFormatW = user32.NewProc("RegisterClipboardFormatW")
	procGlobalAlloc              = kernel32.NewProc("GlobalAlloc")
	procGlobalFree               = kernel32.NewProc("GlobalFree")
	procGlobalLock               = kernel32.NewProc("GlobalLock")
	procGlobalUnlock             = kernel32.NewProc("GlobalUnlock")
	procGlobalSize               = kernel32.NewProc("GlobalSize")
)

const (
	cfUnicodeText = 13
	gmemMoveable  = 0x0002

	openAttempts = 10
	openBackoff  = 20 * time.Millisecond
)

var predefined = map[uint32]Format{
	1:  "CF_TEXT",
	2:  "CF_BITMAP",
	3:  "CF_METAFILEPICT",
	4:  "CF_SYLK",
	5:  "CF_DIF",
	6:  "CF_TIFF",
	7:  "CF_OEMTEXT",
	8:  "CF_DIB",
	9:  "CF_PALETTE",
	10: "CF_PENDATA",
	11: "CF_RIFF",
	12: "CF_WAVE",
	13: FormatUnicodeText,
	14: "CF_ENHMETAFILE",
	15: "CF_HDROP",
	16: "CF_LOCALE",
	17: "CF_DIBV5",
}

type windowsBackend struct{}

// New returns the Win32 clipboard backend. Unlike the golang.design backend
// it sees every format on the clipboard, which is what a faithful restore
// needs.
func New() Backend { return windowsBackend{} }

func (windowsBackend) Name() string { return "Windows Clipboard" }

// withClipboard runs fn with the clipboard open on a locked OS thread.
// OpenClipboard fails while another process holds the clipboard, so it is
// retried briefly.
func withClipboard(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var lastErr error
	for i := 0; i < openAttempts; i++ {
		r, _, err := procOpenClipboard.Call(0)
		if r != 0 {
			defer procCloseClipboard.Call()
			return fn()
		}
		lastErr = err
		time.Sleep(openBackoff)
	}
	return fmt.Errorf("open clipboard: %w", lastErr)
}

func (windowsBackend) Formats() ([]Format, error) {
	var out []Format
	err := withClipboard(func() error {
		var id uintptr
		for {
			id, _, _ = procEnumClipboardFormats.Call(id)
			if id == 0 {
				return nil
			}
			out = append(out, formatName(uint32(id)))
		}
	})
	return out, err
}

func (windowsBackend) Read(f Format) (Value, error) {
	id, err := formatID(f)
	if err != nil {
		return Value{}, err
	}
	var v Value
	err = withClipboard(func() error {
		h, _, callErr := procGetClipboardData.Call(uintptr(id))
		if h == 0 {
			return fmt.Errorf("GetClipboardData(%s): %w", f, callErr)
		}
		data, err := globalBytes(h)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		if id == cfUnicodeText {
			v = Text(utf16BytesToString(data))
		} else {
			v = Bytes(data)
		}
		return nil
	})
	return v, err
}

func (windowsBackend) Clear() error {
	return withClipboard(emptyClipboard)
}

func (windowsBackend) SetText(s string) error {
	return withClipboard(func() error {
		if err := emptyClipboard(); err != nil {
			return err
		}
		return setData(cfUnicodeText, textBytes(s))
	})
}

func (windowsBackend) Write(items []Item) error {
	var errs []error
	err := withClipboard(func() error {
		if err := emptyClipboard(); err != nil {
			return err
		}
		for _, it := range items {
			id, err := formatID(it.Format)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			data, err := encodeValue(id, it.Value)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", it.Format, err))
				continue
			}
			if err := setData(id, data); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", it.Format, err))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (windowsBackend) Close() {}

func emptyClipboard() error {
	if r, _, err := procEmptyClipboard.Call(); r == 0 {
		return fmt.Errorf("EmptyClipboard: %w", err)
	}
	return nil
}

// setData copies data into a movable global block and hands it to the
// clipboard, which owns it from then on.
func setData(id uint32, data []byte) error {
	size := len(data)
	if size == 0 {
		size = 1
	}
	h, _, err := procGlobalAlloc.Call(gmemMoveable, uintptr(size))
	if h == 0 {
		return fmt.Errorf("GlobalAlloc: %w", err)
	}
	p, _, err := procGlobalLock.Call(h)
	if p == 0 {
		procGlobalFree.Call(h)
		return fmt.Errorf("GlobalLock: %w", err)
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(p)), size), data)
	procGlobalUnlock.Call(h)

	if r, _, err := procSetClipboardData.Call(uintptr(id), h); r == 0 {
		procGlobalFree.Call(h)
		return fmt.Errorf("SetClipboardData: %w", err)
	}
	return nil
}

// globalBytes copies the contents of an HGLOBAL. Handle formats that are not
// global memory (bitmaps, palettes) report a zero size and fail here.
func globalBytes(h uintptr) ([]byte, error) {
	size, _, _ := procGlobalSize.Call(h)
	if size == 0 {
		return nil, errors.New("not a global memory handle")
	}
	p, _, err := procGlobalLock.Call(h)
	if p == 0 {
		return nil, fmt.Errorf("GlobalLock: %w", err)
	}
	defer procGlobalUnlock.Call(h)
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(p)), size))
	return out, nil
}

func encodeValue(id uint32, v Value) ([]byte, error) {
	switch v.Kind {
	case KindText:
		if id == cfUnicodeText {
			return textBytes(v.Text), nil
		}
		return append([]byte(v.Text), 0), nil
	case KindBytes:
		return v.Bytes, nil
	case KindStream:
		return io.ReadAll(v.Stream)
	}
	return nil, fmt.Errorf("unsupported value kind %s", v.Kind)
}

// textBytes encodes s as NUL-terminated UTF-16LE.
func textBytes(s string) []byte {
	u, err := windows.UTF16FromString(strings.ReplaceAll(s, "\x00", ""))
	if err != nil {
		return []byte{0, 0}
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&u[0])), len(u)*2)
}

func utf16BytesToString(b []byte) string {
	if len(b) < 2 {
		return ""
	}
	u := unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2)
	return windows.UTF16ToString(u)
}

func formatName(id uint32) Format {
	if f, ok := predefined[id]; ok {
		return f
	}
	buf := make([]uint16, 256)
	n, _, _ := procGetClipboardFormatNameW.Call(uintptr(id), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n == 0 {
		return Format("#" + strconv.FormatUint(uint64(id), 10))
	}
	return Format(windows.UTF16ToString(buf[:n]))
}

func formatID(f Format) (uint32, error) {
	for id, name := range predefined {
		if name == f {
			return id, nil
		}
	}
	if s, ok := strings.CutPrefix(string(f), "#"); ok {
		id, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("bad format %q: %w", f, err)
		}
		return uint32(id), nil
	}
	name, err := windows.UTF16PtrFromString(string(f))
	if err != nil {
		return 0, fmt.Errorf("bad format %q: %w", f, err)
	}
	id, _, callErr := procRegisterClipboardFormatW.Call(uintptr(unsafe.Pointer(name)))
	if id == 0 {
		return 0, fmt.Errorf("RegisterClipboardFormat(%s): %w", f, callErr)
	}
	return uint32(id), nil
}
