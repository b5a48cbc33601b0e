package console

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"go.klb.dev/agentbridge/internal/inject"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCommandLine(t *testing.T) {
	tests := []struct {
		argv []string
		want string
	}{
		{[]string{"claude"}, "claude"},
		{[]string{"wsl.exe", "--", "bash", "-lic", "cursor-agent"}, "wsl.exe -- bash -lic cursor-agent"},
		{[]string{"tool", "two words"}, `tool "two words"`},
		{[]string{"tool", `say "hi"`}, `tool "say \"hi\""`},
		{[]string{"tool", ""}, `tool ""`},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, commandLine(tt.argv))
		})
	}
}

func TestSetTitleIgnoresZeroHandle(t *testing.T) {
	assert.NoError(t, New().SetTitle(0, "Terminal"))
}

type fakeProcess struct{ stops int }

func (p *fakeProcess) stop() error {
	p.stops++
	return nil
}

func TestStartStopsConsoleWithoutWindow(t *testing.T) {
	var procs []*fakeProcess
	c := New()
	c.launch = func(string, []string, string) (process, error) {
		p := &fakeProcess{}
		procs = append(procs, p)
		return p, nil
	}
	c.find = func(context.Context, string) (inject.Handle, error) {
		return 0, fmt.Errorf("%w: timed out", ErrWindowNotFound)
	}

	_, err := c.Start(context.Background(), nil, "/src/a")
	require.ErrorIs(t, err, ErrWindowNotFound)
	require.Len(t, procs, 1)
	assert.Equal(t, 1, procs[0].stops)
	assert.Nil(t, c.proc)

	c.find = func(context.Context, string) (inject.Handle, error) { return 42, nil }
	h, err := c.Start(context.Background(), nil, "/src/a")
	require.NoError(t, err)
	assert.Equal(t, inject.Handle(42), h)
	assert.Equal(t, 1, procs[0].stops, "the failed console is not stopped twice")

	c.Stop()
	assert.Equal(t, 1, procs[1].stops)
}
