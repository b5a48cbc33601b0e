// Package baseline tracks what the agent changed in the workspace. It
// snapshots the text files under a directory, watches the tree for writes and
// diffs the current contents against the snapshot on demand.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// MaxFileSize bounds the files kept in a snapshot.
const MaxFileSize = 1 << 20

// SkipDirs are never snapshotted or watched.
var SkipDirs = []string{".git", ".hg", ".svn", ".vs", ".idea", "node_modules", "bin", "obj"}

// Status of a changed file.
type Status int

const (
	Added Status = iota + 1
	Modified
	Deleted
)

func (s Status) String() string {
	switch s {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Change summarizes one file's difference from the baseline.
type Change struct {
	Path    string `json:"path"`
	Status  Status `json:"-"`
	Kind    string `json:"status"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("baseline tracker closed")

// Tracker implements the workspace coordinator's Baseline.
type Tracker struct {
	root string
	dmp  *diffmatchpatch.DiffMatchPatch

	mu      sync.Mutex
	base    map[string]string
	changes []Change
	pending map[string]struct{}
	watcher *fsnotify.Watcher
	done    chan struct{}
	closed  bool
}

// New returns an idle tracker for root. Nothing is read until EnsureStarted
// or ResetBaseline.
func New(root string) (*Tracker, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("baseline root: %w", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("baseline root: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("baseline root %s: not a directory", abs)
	}
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &Tracker{
		root:    abs,
		dmp:     dmp,
		pending: make(map[string]struct{}),
	}, nil
}

// Root returns the tracked directory.
func (t *Tracker) Root() string { return t.root }

// EnsureStarted takes the first snapshot and starts watching. It is a no-op
// once the tracker is running.
func (t *Tracker) EnsureStarted(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.base != nil {
		return nil
	}
	return t.resetLocked(ctx)
}

// ResetBaseline replaces the snapshot with the tree as it is now. With
// refreshView the change list is recomputed (and so emptied) right away.
func (t *Tracker) ResetBaseline(ctx context.Context, refreshView bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if err := t.resetLocked(ctx); err != nil {
		return err
	}
	if refreshView {
		return t.refreshLocked(ctx)
	}
	return nil
}

// Refresh diffs the tree against the snapshot.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.base == nil {
		if err := t.resetLocked(ctx); err != nil {
			return err
		}
	}
	return t.refreshLocked(ctx)
}

// Changes returns the result of the last refresh, sorted by path.
func (t *Tracker) Changes() []Change {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.changes)
}

// Pending returns the paths the watcher saw change since the last refresh.
func (t *Tracker) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.pending))
	for p := range t.pending {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Diff returns a patch for one file relative to the root.
func (t *Tracker) Diff(rel string) (string, error) {
	t.mu.Lock()
	old, ok := t.base[filepath.ToSlash(rel)]
	t.mu.Unlock()

	cur, err := readText(filepath.Join(t.root, filepath.FromSlash(rel)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	if !ok && err != nil {
		return "", fmt.Errorf("%s: %w", rel, fs.ErrNotExist)
	}
	patches := t.dmp.PatchMake(old, cur)
	return t.dmp.PatchToText(patches), nil
}

// Close stops the watcher.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	w, done := t.watcher, t.done
	t.watcher, t.done = nil, nil
	t.mu.Unlock()

	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return err
}

func (t *Tracker) resetLocked(ctx context.Context) error {
	base, dirs, err := t.snapshot(ctx)
	if err != nil {
		return err
	}
	t.base = base
	t.changes = nil
	clear(t.pending)
	slog.Debug("diff baseline taken", "root", t.root, "files", len(base))

	if t.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Warn("file watcher unavailable", "root", t.root, "err", err)
			return nil
		}
		t.watcher = w
		t.done = make(chan struct{})
		go t.watch(w, t.done)
	}
	for _, d := range dirs {
		if err := t.watcher.Add(d); err != nil {
			slog.Debug("watch failed", "dir", d, "err", err)
		}
	}
	return nil
}

func (t *Tracker) refreshLocked(ctx context.Context) error {
	cur, _, err := t.snapshot(ctx)
	if err != nil {
		return err
	}
	var changes []Change
	for rel, now := range cur {
		old, ok := t.base[rel]
		switch {
		case !ok:
			changes = append(changes, t.change(rel, Added, "", now))
		case old != now:
			changes = append(changes, t.change(rel, Modified, old, now))
		}
	}
	for rel, old := range t.base {
		if _, ok := cur[rel]; !ok {
			changes = append(changes, t.change(rel, Deleted, old, ""))
		}
	}
	slices.SortFunc(changes, func(a, b Change) int { return strings.Compare(a.Path, b.Path) })
	t.changes = changes
	clear(t.pending)
	return nil
}

func (t *Tracker) change(rel string, s Status, old, cur string) Change {
	added, removed := t.lineCounts(old, cur)
	return Change{Path: rel, Status: s, Kind: s.String(), Added: added, Removed: removed}
}

func (t *Tracker) lineCounts(old, cur string) (added, removed int) {
	a, b, lines := t.dmp.DiffLinesToChars(old, cur)
	diffs := t.dmp.DiffMain(a, b, false)
	diffs = t.dmp.DiffCharsToLines(diffs, lines)
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}
	return added, removed
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// snapshot reads every text file under the root. It returns the files keyed
// by slash-separated relative path and the directories to watch.
func (t *Tracker) snapshot(ctx context.Context) (map[string]string, []string, error) {
	files := make(map[string]string)
	var dirs []string
	err := filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == t.root {
				return err
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != t.root && slices.Contains(SkipDirs, d.Name()) {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		text, err := readText(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(t.root, path)
		if err != nil {
			return nil
		}
		files[filepath.ToSlash(rel)] = text
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot %s: %w", t.root, err)
	}
	return files, dirs, nil
}

var errNotText = errors.New("not a text file")

func readText(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if fi.Size() > MaxFileSize {
		return "", errNotText
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if slices.Contains(data, 0) {
		return "", errNotText
	}
	return string(data), nil
}

func (t *Tracker) watch(w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			t.handle(w, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Warn("file watcher error", "root", t.root, "err", err)
		}
	}
}

func (t *Tracker) handle(w *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	rel, err := filepath.Rel(t.root, ev.Name)
	if err != nil || rel == "." {
		return
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if slices.Contains(SkipDirs, part) {
			return
		}
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := w.Add(ev.Name); err != nil {
				slog.Debug("watch failed", "dir", ev.Name, "err", err)
			}
			return
		}
	}
	t.mu.Lock()
	t.pending[filepath.ToSlash(rel)] = struct{}{}
	t.mu.Unlock()
}
