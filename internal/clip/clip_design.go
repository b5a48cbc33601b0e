//go:build !windows

package clip

import (
	"fmt"
	"io"
	"log/slog"

	"golang.design/x/clipboard"
)

type designBackend struct{}

// New returns the golang.design/x/clipboard backend, or a headless backend
// when no display is available. clipboard.Init is called here rather than in
// init() so sub-commands that never touch the clipboard stay quiet.
func New() Backend {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return headlessBackend{}
	}
	return designBackend{}
}

func (designBackend) Name() string { return "golang.design clipboard" }

func (designBackend) Formats() ([]Format, error) {
	var out []Format
	if clipboard.Read(clipboard.FmtText) != nil {
		out = append(out, FormatUnicodeText)
	}
	if clipboard.Read(clipboard.FmtImage) != nil {
		out = append(out, FormatPNG)
	}
	return out, nil
}

func (designBackend) Read(f Format) (Value, error) {
	switch f {
	case FormatUnicodeText:
		if b := clipboard.Read(clipboard.FmtText); b != nil {
			return Text(string(b)), nil
		}
	case FormatPNG:
		if b := clipboard.Read(clipboard.FmtImage); b != nil {
			return Bytes(b), nil
		}
	default:
		return Value{}, fmt.Errorf("unsupported format %s", f)
	}
	return Value{}, fmt.Errorf("format %s not on clipboard", f)
}

// Clear writes an empty text item; the library has no explicit empty call.
func (designBackend) Clear() error {
	clipboard.Write(clipboard.FmtText, []byte{})
	return nil
}

func (designBackend) SetText(s string) error {
	clipboard.Write(clipboard.FmtText, []byte(s))
	return nil
}

// Write installs a single item. The library replaces the whole clipboard on
// every write, so a multi-format snapshot comes back as its text only, or its
// PNG when it carries no text.
func (b designBackend) Write(items []Item) error {
	it, ok := writableItem(items)
	if !ok {
		if len(items) > 0 {
			slog.Warn("no restorable clipboard format", "items", len(items))
		}
		return b.Clear()
	}
	if len(items) > 1 {
		slog.Debug("restoring one of several clipboard formats", "format", it.Format, "dropped", len(items)-1)
	}
	data, err := valueBytes(it.Value)
	if err != nil {
		return fmt.Errorf("%s: %w", it.Format, err)
	}
	if it.Format == FormatPNG {
		clipboard.Write(clipboard.FmtImage, data)
	} else {
		clipboard.Write(clipboard.FmtText, data)
	}
	return nil
}

// writableItem picks the item Write installs: the first text item, else the
// first PNG.
func writableItem(items []Item) (Item, bool) {
	var png *Item
	for i := range items {
		switch items[i].Format {
		case FormatUnicodeText:
			return items[i], true
		case FormatPNG:
			if png == nil {
				png = &items[i]
			}
		}
	}
	if png != nil {
		return *png, true
	}
	return Item{}, false
}

func (designBackend) Close() {}

func valueBytes(v Value) ([]byte, error) {
	switch v.Kind {
	case KindText:
		return []byte(v.Text), nil
	case KindBytes:
		return v.Bytes, nil
	case KindStream:
		return io.ReadAll(v.Stream)
	}
	return nil, fmt.Errorf("unsupported value kind %s", v.Kind)
}
