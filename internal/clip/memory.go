package clip

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Memory is an in-process clipboard. It backs --dry-run and stands in for the
// OS clipboard in tests, where its fault fields let a test fail individual
// operations.
type Memory struct {
	mu    sync.Mutex
	items []Item

	// FormatsErr, when set, is returned by Formats.
	FormatsErr error
	// ReadErr fails Read for the listed formats.
	ReadErr map[Format]error
	// WriteErr fails Write for the listed formats; the others still land.
	WriteErr map[Format]error
	// SetTextErr, when set, is returned by SetText.
	SetTextErr error
	// ClearErr, when set, is returned by Clear.
	ClearErr error

	clears  int
	writes  int
	setText int
}

// NewMemory returns an empty in-memory clipboard holding items.
func NewMemory(items ...Item) *Memory {
	return &Memory{items: items}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Formats() ([]Format, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FormatsErr != nil {
		return nil, m.FormatsErr
	}
	out := make([]Format, len(m.items))
	for i, it := range m.items {
		out[i] = it.Format
	}
	return out, nil
}

func (m *Memory) Read(f Format) (Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ReadErr[f]; err != nil {
		return Value{}, err
	}
	for _, it := range m.items {
		if it.Format == f {
			return it.Value, nil
		}
	}
	return Value{}, fmt.Errorf("format %s not on clipboard", f)
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	if m.ClearErr != nil {
		return m.ClearErr
	}
	m.items = nil
	return nil
}

func (m *Memory) SetText(s string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setText++
	if m.SetTextErr != nil {
		return m.SetTextErr
	}
	m.items = []Item{{Format: FormatUnicodeText, Value: Text(s)}}
	return nil
}

// Write stores items like a real clipboard would: stream contents are read
// at install time, so a source that is later invalidated does not matter.
func (m *Memory) Write(items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	var errs []error
	next := make([]Item, 0, len(items))
	for _, it := range items {
		if err := m.WriteErr[it.Format]; err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", it.Format, err))
			continue
		}
		v := it.Value
		if v.Kind == KindStream {
			data, err := io.ReadAll(v.Stream)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", it.Format, err))
				continue
			}
			v = Stream(bytes.NewReader(data))
		}
		next = append(next, Item{Format: it.Format, Value: v})
	}
	m.items = next
	return errors.Join(errs...)
}

func (m *Memory) Close() {}

// Items returns a copy of the current contents.
func (m *Memory) Items() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Item(nil), m.items...)
}

// Writes returns how many times Write was called.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Clears returns how many times Clear was called.
func (m *Memory) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}
