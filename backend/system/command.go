package system

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

type CommandExecutor interface {
	Execute(command string, args ...string) (string, error)
	LookPath(command string) (string, error)
	GetOS() string
}

type RealExecutor struct {
	Timeout time.Duration
}

func (e *RealExecutor) Execute(command string, args ...string) (string, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, command, args...).CombinedOutput()
	return string(out), err
}

func (e *RealExecutor) LookPath(command string) (string, error) {
	return exec.LookPath(command)
}

func (e *RealExecutor) GetOS() string {
	return runtime.GOOS
}

// MockExecutor answers from canned output, keyed by the full command line
// ("tshark -D") or, failing that, by the command name.
type MockExecutor struct {
	Outputs map[string]string
	Missing map[string]bool
	Calls   []string
}

func (e *MockExecutor) Execute(command string, args ...string) (string, error) {
	call := strings.TrimSpace(command + " " + strings.Join(args, " "))
	e.Calls = append(e.Calls, call)
	if e.Missing[command] {
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", command)
	}
	if out, ok := e.Outputs[call]; ok {
		return out, nil
	}
	if out, ok := e.Outputs[command]; ok {
		return out, nil
	}
	return "Mock Success", nil
}

func (e *MockExecutor) LookPath(command string) (string, error) {
	if e.Missing[command] {
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", command)
	}
	return command, nil
}

func (e *MockExecutor) GetOS() string {
	return "mock-" + runtime.GOOS
}

func NewExecutor() CommandExecutor {
	return &RealExecutor{}
}
