package inject

import (
	"fmt"
	"sync"
)

// Op names the recorded gesture.
type Op string

const (
	OpActivate           Op = "activate"
	OpWindowRect         Op = "rect"
	OpMoveCursor         Op = "move"
	OpRightClick         Op = "right-click"
	OpModifierRightClick Op = "shift+right-click"
	OpCharEnter          Op = "char-enter"
	OpKeyDownUpEnter     Op = "keydown-up-enter"
)

// Call is one recorded Injector call.
type Call struct {
	Op     Op
	X, Y   int
	Repeat int
}

func (c Call) String() string {
	switch c.Op {
	case OpMoveCursor, OpRightClick, OpModifierRightClick:
		return fmt.Sprintf("%s(%d,%d)", c.Op, c.X, c.Y)
	case OpKeyDownUpEnter:
		return fmt.Sprintf("%s x%d", c.Op, c.Repeat)
	default:
		return string(c.Op)
	}
}

// Recorder is an Injector that records calls instead of touching the OS.
// It honours the same liveness rule as the real injector: calls against a
// dead or unknown handle return ErrWindowGone and are not recorded.
type Recorder struct {
	mu     sync.Mutex
	window Handle
	alive  bool
	bounds Rect
	calls  []Call
	fail   map[Op]error

	// OnCall, when set, runs after each recorded call. Tests use it to change
	// state in the middle of a gesture sequence.
	OnCall func(Call)
}

// NewRecorder returns a Recorder with one live window h of the given bounds.
func NewRecorder(h Handle, bounds Rect) *Recorder {
	return &Recorder{window: h, alive: h != 0, bounds: bounds, fail: make(map[Op]error)}
}

// SetAlive marks the window live or destroyed.
func (r *Recorder) SetAlive(alive bool) {
	r.mu.Lock()
	r.alive = alive
	r.mu.Unlock()
}

// Fail makes op return err from now on.
func (r *Recorder) Fail(op Op, err error) {
	r.mu.Lock()
	r.fail[op] = err
	r.mu.Unlock()
}

// Calls returns the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Ops returns just the recorded ops, rendered with their arguments.
func (r *Recorder) Ops() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

func (r *Recorder) record(h Handle, c Call) error {
	r.mu.Lock()
	if !r.alive || h != r.window {
		r.mu.Unlock()
		return ErrWindowGone
	}
	if err := r.fail[c.Op]; err != nil {
		r.mu.Unlock()
		return err
	}
	r.calls = append(r.calls, c)
	hook := r.OnCall
	r.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	return nil
}

func (r *Recorder) IsWindow(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alive && h != 0 && h == r.window
}

func (r *Recorder) Activate(h Handle) error {
	return r.record(h, Call{Op: OpActivate})
}

func (r *Recorder) WindowRect(h Handle) (Rect, error) {
	if err := r.record(h, Call{Op: OpWindowRect}); err != nil {
		return Rect{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bounds, nil
}

func (r *Recorder) MoveCursor(h Handle, x, y int) error {
	return r.record(h, Call{Op: OpMoveCursor, X: x, Y: y})
}

func (r *Recorder) RightClick(h Handle, x, y int) error {
	return r.record(h, Call{Op: OpRightClick, X: x, Y: y})
}

func (r *Recorder) ModifierRightClick(h Handle, x, y int) error {
	return r.record(h, Call{Op: OpModifierRightClick, X: x, Y: y})
}

func (r *Recorder) SubmitSingleCharacter(h Handle) error {
	return r.record(h, Call{Op: OpCharEnter})
}

func (r *Recorder) SubmitKeyDownUp(h Handle, repeat int) error {
	return r.record(h, Call{Op: OpKeyDownUpEnter, Repeat: repeat})
}
