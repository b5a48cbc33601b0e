// Package session holds the state of the one embedded console: which provider
// the user selected, which one is actually running, where, and in which
// window.
package session

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"go.klb.dev/agentbridge/internal/inject"
	"go.klb.dev/agentbridge/internal/provider"
)

// NotifiedStore persists the "installation instructions shown" flags across
// restarts of the host.
type NotifiedStore interface {
	Notified() []provider.ID
	MarkNotified(id provider.ID) error
}

// Snapshot is an immutable copy of the session.
type Snapshot struct {
	Selected provider.ID
	Running  *provider.ID // nil: plain shell
	Window   inject.Handle
	Dir      string
}

// Title renders the window title for the snapshot.
func (s Snapshot) Title() string {
	name := "Terminal"
	if s.Running != nil {
		name = s.Running.DisplayName()
	}
	if s.Dir == "" {
		return name
	}
	return fmt.Sprintf("%s - %s", name, filepath.Base(s.Dir))
}

// Session is the owned, mutex-guarded session object. There is exactly one
// per console; pass it by pointer.
type Session struct {
	store NotifiedStore

	mu       sync.Mutex
	selected provider.ID
	running  *provider.ID
	window   inject.Handle
	dir      string
	notified map[provider.ID]struct{}
	subs     []subscriber
	nextSub  int
}

// New returns a session with selected as the user's choice and nothing
// running yet. Previously persisted notification flags are loaded from store,
// which may be nil.
func New(selected provider.ID, store NotifiedStore) *Session {
	s := &Session{
		store:    store,
		selected: selected,
		notified: make(map[provider.ID]struct{}),
	}
	if store != nil {
		for _, id := range store.Notified() {
			s.notified[id] = struct{}{}
		}
	}
	return s
}

// Selected returns the user's provider choice. It must not be used to pick
// gestures; see Running.
func (s *Session) Selected() provider.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// SetSelected records a new user choice. Nothing changes in the console until
// a restart completes and SetRunning is called.
func (s *Session) SetSelected(id provider.ID) {
	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()
}

// Running returns a copy of the provider executing in the console right now,
// or nil for the plain shell. Gesture and Enter-key policy come from here.
func (s *Session) Running() *provider.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == nil {
		return nil
	}
	id := *s.running
	return &id
}

// Window returns the console's last known handle. It may already be stale.
func (s *Session) Window() inject.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

// Dir returns the console's working directory.
func (s *Session) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// SetRunning records a completed (re)start: provider (nil for shell), window
// and directory change together.
func (s *Session) SetRunning(running *provider.ID, window inject.Handle, dir string) {
	s.mu.Lock()
	changed := !sameProvider(s.running, running) || s.window != window || s.dir != dir
	if running != nil {
		id := *running
		running = &id
	}
	s.running = running
	s.window = window
	s.dir = dir
	snap := s.snapshotLocked()
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()

	if !changed {
		return
	}
	slog.Info("session changed", "running", provider.Name(running), "dir", dir, "hwnd", uintptr(window))
	for _, sub := range subs {
		sub.fn(snap)
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{Selected: s.selected, Window: s.window, Dir: s.dir}
	if s.running != nil {
		id := *s.running
		snap.Running = &id
	}
	return snap
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// Subscribe registers fn to run after every change of running provider,
// window or directory. Used by the window-title collaborator and by control
// watchers. The returned func unregisters fn.
func (s *Session) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subs = slices.DeleteFunc(s.subs, func(sub subscriber) bool { return sub.id == id })
	}
}

// MarkNotified records that the installation instructions for id were shown.
// It reports true only the first time for a given provider. A persistence
// failure is logged; the in-memory flag still holds for this session.
func (s *Session) MarkNotified(id provider.ID) bool {
	s.mu.Lock()
	if _, ok := s.notified[id]; ok {
		s.mu.Unlock()
		return false
	}
	s.notified[id] = struct{}{}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.MarkNotified(id); err != nil {
			slog.Warn("persisting notification flag failed", "provider", id, "err", err)
		}
	}
	return true
}

// WasNotified reports whether the instructions for id were already shown.
func (s *Session) WasNotified(id provider.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.notified[id]
	return ok
}

func sameProvider(a, b *provider.ID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
