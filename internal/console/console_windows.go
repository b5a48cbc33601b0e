//go:build windows

package console

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"go.klb.dev/agentbridge/internal/inject"
)

const pollInterval = 50 * time.Millisecond

type jobProcess struct {
	cmd *exec.Cmd
	job windows.Handle
}

// stop closes the job object; KILL_ON_JOB_CLOSE takes the provider CLI down
// with cmd.exe.
func (p *jobProcess) stop() error {
	err := windows.CloseHandle(p.job)
	_ = p.cmd.Process.Kill()
	go func() { _ = p.cmd.Wait() }()
	return err
}

func launch(marker string, argv []string, dir string) (process, error) {
	line := fmt.Sprintf(`cmd.exe /k title %s`, marker)
	if len(argv) > 0 {
		line += " && " + commandLine(argv)
	}

	cmd := exec.Command("cmd.exe")
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine:       line,
		CreationFlags: windows.CREATE_NEW_CONSOLE,
	}

	job, err := newKillOnCloseJob()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		_ = windows.CloseHandle(job)
		return nil, fmt.Errorf("start console: %w", err)
	}
	if err := assign(job, cmd.Process.Pid); err != nil {
		_ = windows.CloseHandle(job)
		_ = cmd.Process.Kill()
		return nil, err
	}
	return &jobProcess{cmd: cmd, job: job}, nil
}

func newKillOnCloseJob() (windows.Handle, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return 0, fmt.Errorf("create job object: %w", err)
	}
	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		_ = windows.CloseHandle(job)
		return 0, fmt.Errorf("configure job object: %w", err)
	}
	return job, nil
}

func assign(job windows.Handle, pid int) error {
	h, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("open console process: %w", err)
	}
	defer windows.CloseHandle(h)
	if err := windows.AssignProcessToJobObject(job, h); err != nil {
		return fmt.Errorf("assign console to job: %w", err)
	}
	return nil
}

var (
	enumMu     sync.Mutex
	enumPrefix string
	enumFound  windows.HWND
	enumProc   = windows.NewCallback(enumWindow)
)

// enumWindow matches by prefix: cmd.exe appends " - <program>" to the title
// while the provider CLI runs.
func enumWindow(h windows.HWND, _ uintptr) uintptr {
	buf := make([]uint16, 512)
	n, _ := windows.GetWindowText(h, &buf[0], int32(len(buf)))
	if n > 0 && strings.HasPrefix(windows.UTF16ToString(buf[:n]), enumPrefix) {
		enumFound = h
		return 0
	}
	return 1
}

func findWindow(ctx context.Context, marker string) (inject.Handle, error) {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		if h := lookup(marker); h != 0 {
			return inject.Handle(h), nil
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %s", ErrWindowNotFound, marker)
		case <-t.C:
		}
	}
}

func lookup(marker string) windows.HWND {
	enumMu.Lock()
	defer enumMu.Unlock()
	enumPrefix, enumFound = marker, 0
	// EnumWindows reports an error when the callback stops early.
	_ = windows.EnumWindows(enumProc, nil)
	return enumFound
}

var procSetWindowTextW = windows.NewLazySystemDLL("user32.dll").NewProc("SetWindowTextW")

func setTitle(h inject.Handle, title string) error {
	p, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return err
	}
	r, _, err := procSetWindowTextW.Call(uintptr(h), uintptr(unsafe.Pointer(p)))
	if r == 0 {
		return fmt.Errorf("SetWindowTextW: %w", err)
	}
	return nil
}
