//go:build !windows

package console

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"go.klb.dev/agentbridge/internal/inject"
)

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *execProcess) stop() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	err := p.cmd.Process.Kill()
	<-p.done
	return err
}

// launch runs the command under $SHELL. There is no window to drive outside
// Windows; the process is kept so the CLI can still be tried by hand.
func launch(marker string, argv []string, dir string) (process, error) {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	line := ":"
	if len(argv) > 0 {
		line = commandLine(argv)
	}
	cmd := exec.Command(shell, "-c", line)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "AGENTBRIDGE_CONSOLE="+marker)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start console: %w", err)
	}
	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func findWindow(context.Context, string) (inject.Handle, error) {
	return 0, nil
}

func setTitle(inject.Handle, string) error { return nil }
