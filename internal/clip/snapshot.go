package clip

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ExcludedFormats are never captured. Setting them back is either unsafe
// (OLE embedding and link descriptors reference the source application) or
// unsupported (device-independent bitmaps are resynthesized by the OS from
// the bitmap the source put up, and GDI handle formats are not memory blocks).
var ExcludedFormats = map[Format]struct{}{
	"Embed Source":           {},
	"Object Descriptor":      {},
	"Link Source":            {},
	"Link Source Descriptor": {},
	"CF_DIB":                 {},
	"CF_DIBV5":               {},
	"CF_BITMAP":              {},
	"CF_METAFILEPICT":        {},
	"CF_ENHMETAFILE":         {},
	"CF_PALETTE":             {},
}

// Excluded reports whether f is on the exclusion list.
func Excluded(f Format) bool {
	_, ok := ExcludedFormats[f]
	return ok
}

// Payload is a deep copy of the clipboard taken before an injection.
type Payload struct {
	Items []Item
}

// Len returns the number of captured formats.
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}

// Formats returns the captured formats in capture order.
func (p *Payload) Formats() []Format {
	if p == nil {
		return nil
	}
	out := make([]Format, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.Format
	}
	return out
}

// Capture copies every capturable format currently on the clipboard. It
// returns nil when the clipboard is empty or its format list cannot be read.
// Per-format failures are logged and that format is left out.
func Capture(b Backend) *Payload {
	formats, err := b.Formats()
	if err != nil {
		slog.Debug("clipboard capture: list formats failed", "backend", b.Name(), "err", err)
		return nil
	}
	if len(formats) == 0 {
		return nil
	}

	p := &Payload{Items: make([]Item, 0, len(formats))}
	for _, f := range formats {
		if Excluded(f) {
			slog.Debug("clipboard capture: skipping excluded format", "format", f)
			continue
		}
		v, err := readFormat(b, f)
		if err != nil {
			slog.Debug("clipboard capture: format omitted", "format", f, "err", err)
			continue
		}
		p.Items = append(p.Items, Item{Format: f, Value: v})
	}
	slog.Debug("clipboard captured", "backend", b.Name(), "formats", len(formats), "kept", len(p.Items))
	return p
}

// readFormat reads and deep-copies f, converting a backend panic into an
// error so one misbehaving format cannot abort the capture.
func readFormat(b Backend, f Format) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read panicked: %v", r)
		}
	}()
	raw, err := b.Read(f)
	if err != nil {
		return Value{}, err
	}
	return cloneValue(raw)
}

// Restore puts p back on the clipboard. A nil payload clears the clipboard,
// which is what the clipboard looked like before it was captured. Streams are
// rewound before being installed. The error is informational: the backend
// installs every format it can even when some fail.
func Restore(b Backend, p *Payload) error {
	if p == nil {
		if err := b.Clear(); err != nil {
			return fmt.Errorf("clear clipboard: %w", err)
		}
		return nil
	}

	var errs []error
	items := make([]Item, 0, len(p.Items))
	for _, it := range p.Items {
		if it.Value.Kind == KindStream {
			rs, ok := it.Value.Stream.(io.Seeker)
			if !ok {
				errs = append(errs, fmt.Errorf("%s: stream is not seekable", it.Format))
				continue
			}
			if _, err := rs.Seek(0, io.SeekStart); err != nil {
				errs = append(errs, fmt.Errorf("%s: rewind: %w", it.Format, err))
				continue
			}
		}
		items = append(items, it)
	}
	if err := b.Write(items); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
