package clip

import "errors"

// ErrHeadless is returned when staging text without a display clipboard.
var ErrHeadless = errors.New("no system clipboard available")

// headlessBackend stands in when no clipboard can be initialised (headless
// Linux servers, containers). It looks permanently empty and refuses writes
// that a delivery depends on.
type headlessBackend struct{}

func (headlessBackend) Name() string               { return "headless (no-op)" }
func (headlessBackend) Formats() ([]Format, error) { return nil, nil }
func (headlessBackend) Read(Format) (Value, error) { return Value{}, ErrHeadless }
func (headlessBackend) Clear() error               { return nil }
func (headlessBackend) SetText(string) error       { return ErrHeadless }
func (headlessBackend) Write(items []Item) error {
	if len(items) == 0 {
		return nil
	}
	return ErrHeadless
}
func (headlessBackend) Close() {}
