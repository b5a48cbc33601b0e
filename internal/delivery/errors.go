package delivery

import (
	"errors"
	"fmt"
)

// Kind classifies a failed delivery.
type Kind int

const (
	// TerminalUnavailable: no live console window. The clipboard was not touched.
	TerminalUnavailable Kind = iota + 1
	// ClipboardStageFailed: the prompt could not be put on the clipboard.
	ClipboardStageFailed
	// GestureDeliveryFailed: an OS input call failed or the window vanished
	// mid-send.
	GestureDeliveryFailed
)

func (k Kind) String() string {
	switch k {
	case TerminalUnavailable:
		return "terminal unavailable"
	case ClipboardStageFailed:
		return "clipboard stage failed"
	case GestureDeliveryFailed:
		return "gesture delivery failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by Send for every failed transaction. Clipboard capture
// and restore problems never surface here; they are logged.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func fail(k Kind, err error) *Error { return &Error{Kind: k, Err: err} }

// IsKind reports whether err is a delivery Error of kind k.
func IsKind(err error, k Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == k
}

var (
	// ErrBusy is returned when a send is already in flight. Sends are never
	// interleaved.
	ErrBusy = errors.New("a send is already in progress")
	// ErrEmptyPrompt is returned for a send with no text and no attachments.
	ErrEmptyPrompt = errors.New("nothing to send")
)
