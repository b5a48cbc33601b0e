package inject

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRectCenter(t *testing.T) {
	x, y := Rect{Left: 100, Top: 50, Right: 900, Bottom: 650}.Center()
	assert.Equal(t, 500, x)
	assert.Equal(t, 350, y)

	x, y = Rect{Left: -1920, Top: 0, Right: 0, Bottom: 1080}.Center()
	assert.Equal(t, -960, x)
	assert.Equal(t, 540, y)
}

func TestDelaysSleep(t *testing.T) {
	var got []time.Duration
	d := Delays{Sleep: func(v time.Duration) { got = append(got, v) }}
	d.sleep(0)
	d.sleep(-time.Second)
	d.sleep(5 * time.Millisecond)
	assert.Equal(t, []time.Duration{5 * time.Millisecond}, got)
}

func TestRecorderRecordsInOrder(t *testing.T) {
	r := NewRecorder(7, Rect{Right: 200, Bottom: 100})
	require.NoError(t, r.Activate(7))
	rc, err := r.WindowRect(7)
	require.NoError(t, err)
	x, y := rc.Center()
	require.NoError(t, r.ModifierRightClick(7, x, y))
	require.NoError(t, r.SubmitKeyDownUp(7, 2))

	assert.Equal(t, []string{
		"activate", "rect", "shift+right-click(100,50)", "keydown-up-enter x2",
	}, r.Ops())
}

func TestRecorderRejectsDeadOrForeignHandles(t *testing.T) {
	r := NewRecorder(7, Rect{})
	assert.False(t, r.IsWindow(8))
	assert.ErrorIs(t, r.Activate(8), ErrWindowGone)

	r.SetAlive(false)
	assert.False(t, r.IsWindow(7))
	assert.ErrorIs(t, r.SubmitSingleCharacter(7), ErrWindowGone)
	assert.Empty(t, r.Calls())

	assert.False(t, NewRecorder(0, Rect{}).IsWindow(0))
}

func TestRecorderFaults(t *testing.T) {
	boom := errors.New("boom")
	r := NewRecorder(1, Rect{})
	r.Fail(OpRightClick, boom)
	assert.ErrorIs(t, r.RightClick(1, 0, 0), boom)
	assert.NoError(t, r.SubmitSingleCharacter(1))
	assert.Equal(t, []string{"char-enter"}, r.Ops())
}
