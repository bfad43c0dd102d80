package supervise

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

// ProcessManager abstracts every external process interaction the supervisor
// performs, so unit behavior can be tested against a mock.
type ProcessManager interface {
	// Run executes a command and returns its combined output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// StartDetached launches a command in its own session with stdout and
	// stderr redirected to logPath. The child outlives the caller.
	StartDetached(ctx context.Context, logPath, name string, args ...string) (int, error)
	// IsRunning pattern-matches running process command lines and returns
	// the first matching pid.
	IsRunning(ctx context.Context, pattern string) (bool, int, error)
	// Signal sends sig to every process whose command line matches pattern.
	Signal(ctx context.Context, pattern string, sig syscall.Signal) error
}

// DefaultProcessManager shells out to the host.
type DefaultProcessManager struct{}

func NewDefaultProcessManager() *DefaultProcessManager { return &DefaultProcessManager{} }

func (pm *DefaultProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

func (pm *DefaultProcessManager) StartDetached(ctx context.Context, logPath, name string, args ...string) (int, error) {
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open log %s: %w", logPath, err)
	}
	defer logFile.Close()

	// Deliberately not CommandContext: the child must survive the
	// supervisor's own exit.
	cmd := exec.Command(name, args...)
	cmd.Env = os.Environ()
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", name, err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}

func (pm *DefaultProcessManager) IsRunning(ctx context.Context, pattern string) (bool, int, error) {
	cmd := exec.CommandContext(ctx, "pgrep", "-f", pattern)
	out, err := cmd.Output()
	if err != nil {
		// pgrep exits 1 when nothing matched
		if ee, ok := err.(*exec.ExitError); ok && ee.ExitCode() == 1 {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("pgrep -f %s: %w", pattern, err)
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return false, 0, fmt.Errorf("parsing pgrep output %q: %w", first, err)
	}
	return true, pid, nil
}

func (pm *DefaultProcessManager) Signal(ctx context.Context, pattern string, sig syscall.Signal) error {
	cmd := exec.CommandContext(ctx, "pkill", fmt.Sprintf("-%d", int(sig)), "-f", pattern)
	if err := cmd.Run(); err != nil {
		if ee, ok := err.(*exec.ExitError); ok && ee.ExitCode() == 1 {
			return nil // nothing matched; already gone
		}
		return fmt.Errorf("pkill -f %s: %w", pattern, err)
	}
	return nil
}

// MockProcessManager records calls and answers from configurable functions.
// Any unset function falls back to a benign default.
type MockProcessManager struct {
	mu    sync.Mutex
	Calls []string

	RunFunc           func(ctx context.Context, name string, args ...string) ([]byte, error)
	StartDetachedFunc func(ctx context.Context, logPath, name string, args ...string) (int, error)
	IsRunningFunc     func(ctx context.Context, pattern string) (bool, int, error)
	SignalFunc        func(ctx context.Context, pattern string, sig syscall.Signal) error
}

func (m *MockProcessManager) record(call string) {
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	m.mu.Unlock()
}

func (m *MockProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.record("run " + name + " " + strings.Join(args, " "))
	if m.RunFunc != nil {
		return m.RunFunc(ctx, name, args...)
	}
	return nil, nil
}

func (m *MockProcessManager) StartDetached(ctx context.Context, logPath, name string, args ...string) (int, error) {
	m.record("spawn " + name + " " + strings.Join(args, " "))
	if m.StartDetachedFunc != nil {
		return m.StartDetachedFunc(ctx, logPath, name, args...)
	}
	return 12345, nil
}

func (m *MockProcessManager) IsRunning(ctx context.Context, pattern string) (bool, int, error) {
	m.record("isrunning " + pattern)
	if m.IsRunningFunc != nil {
		return m.IsRunningFunc(ctx, pattern)
	}
	return false, 0, nil
}

func (m *MockProcessManager) Signal(ctx context.Context, pattern string, sig syscall.Signal) error {
	m.record(fmt.Sprintf("signal %d %s", int(sig), pattern))
	if m.SignalFunc != nil {
		return m.SignalFunc(ctx, pattern, sig)
	}
	return nil
}

// CallList returns a copy of the recorded calls.
func (m *MockProcessManager) CallList() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}
