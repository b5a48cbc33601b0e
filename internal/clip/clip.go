// Package clip reads, stages and restores the system clipboard around an
// input injection. Build constraints select the backend:
//
//	clip_windows.go    Win32 multi-format clipboard via golang.org/x/sys/windows
//	clip_design.go     golang.design/x/clipboard (text + PNG), headless fallback
//	memory.go          in-process clipboard for tests and dry runs
package clip

import (
	"bytes"
	"fmt"
	"io"
)

// Format names a clipboard format. Predefined Win32 formats use their CF_*
// constant name; registered formats use their registered name.
type Format string

const (
	FormatUnicodeText Format = "CF_UNICODETEXT"
	FormatPNG         Format = "PNG"
)

// Kind tells how a Value carries its data.
type Kind int

const (
	KindText Kind = iota
	KindBytes
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindStream:
		return "stream"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is the data stored under one format.
type Value struct {
	Kind   Kind
	Text   string
	Bytes  []byte
	Stream io.Reader
}

// Text returns a text Value.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// Bytes returns a byte-buffer Value. b is not copied.
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

// Stream returns a stream Value backed by r.
func Stream(r io.Reader) Value { return Value{Kind: KindStream, Stream: r} }

// Item is one format/value pair on the clipboard.
type Item struct {
	Format Format
	Value  Value
}

// Backend is implemented by every platform clipboard.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Formats lists the formats currently on the clipboard in enumeration order.
	Formats() ([]Format, error)

	// Read returns the data stored under f.
	Read(f Format) (Value, error)

	// Clear empties the clipboard.
	Clear() error

	// SetText replaces the clipboard contents with a single text item.
	SetText(s string) error

	// Write replaces the clipboard contents with items in one clipboard
	// transaction. It keeps going after a per-item failure and returns the
	// joined errors.
	Write(items []Item) error

	// Close releases any resources held by the backend.
	Close()
}

// ReadText returns the clipboard's text, or "" if there is none.
func ReadText(b Backend) string {
	v, err := b.Read(FormatUnicodeText)
	if err != nil {
		return ""
	}
	switch v.Kind {
	case KindText:
		return v.Text
	case KindBytes:
		return string(v.Bytes)
	case KindStream:
		if rs, ok := v.Stream.(io.ReadSeeker); ok {
			_, _ = rs.Seek(0, io.SeekStart)
		}
		data, _ := io.ReadAll(v.Stream)
		return string(data)
	}
	return ""
}

// cloneValue deep-copies v so it outlives whatever produced it. Streams are
// drained into a seekable buffer.
func cloneValue(v Value) (Value, error) {
	switch v.Kind {
	case KindText:
		return v, nil
	case KindBytes:
		return Bytes(bytes.Clone(v.Bytes)), nil
	case KindStream:
		if v.Stream == nil {
			return Value{}, fmt.Errorf("nil stream")
		}
		data, err := io.ReadAll(v.Stream)
		if err != nil {
			return Value{}, fmt.Errorf("drain stream: %w", err)
		}
		return Stream(bytes.NewReader(data)), nil
	default:
		return Value{}, fmt.Errorf("unsupported value kind %s", v.Kind)
	}
}
