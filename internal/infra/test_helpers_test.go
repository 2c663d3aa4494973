package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// mockProcessManager is a test double for domain.ProcessManager
type mockProcessManager struct {
	runningPIDs map[int]bool
	names       map[int]string
	killedPIDs  []int
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: make(map[int]bool),
		names:       make(map[int]string),
	}
}

func (m *mockProcessManager) FindByName(pattern string) ([]int, error) {
	var found []int
	for pid, name := range m.names {
		if strings.Contains(name, strings.ToLower(pattern)) {
			found = append(found, pid)
		}
	}
	return found, nil
}

func (m *mockProcessManager) NameOf(pid int) (string, error) {
	name, ok := m.names[pid]
	if !ok {
		return "", fmt.Errorf("no process %d", pid)
	}
	return name, nil
}

func (m *mockProcessManager) Kill(pid int) error {
	m.killedPIDs = append(m.killedPIDs, pid)
	delete(m.runningPIDs, pid)
	return nil
}

func (m *mockProcessManager) Terminate(pid int) error {
	delete(m.runningPIDs, pid)
	return nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessManager) SetRunning(pid int, running bool) {
	m.runningPIDs[pid] = running
}

// runCall records one command invocation.
type runCall struct {
	name string
	args []string
}

func (c runCall) String() string {
	return strings.TrimSpace(c.name + " " + strings.Join(c.args, " "))
}

// mockCommandRunner is a test double for CommandRunner. Outputs and errors
// are keyed by the command line.
type mockCommandRunner struct {
	mu       sync.Mutex
	calls    []runCall
	outputs  map[string][]byte
	errs     map[string]error
	onRun    func(name string, args []string) error
	started  []*mockProcess
	startErr error
}

func newMockCommandRunner() *mockCommandRunner {
	return &mockCommandRunner{
		outputs: make(map[string][]byte),
		errs:    make(map[string]error),
	}
}

func (m *mockCommandRunner) record(name string, args []string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := runCall{name: name, args: args}
	m.calls = append(m.calls, c)
	return c.String()
}

func (m *mockCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	line := m.record(name, args)
	if m.onRun != nil {
		if err := m.onRun(name, args); err != nil {
			return err
		}
	}
	return m.errs[line]
}

func (m *mockCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	line := m.record(name, args)
	if err := m.errs[line]; err != nil {
		return nil, err
	}
	return m.outputs[line], nil
}

func (m *mockCommandRunner) Start(name string, args ...string) (StartedProcess, error) {
	m.record(name, args)
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &mockProcess{pid: 4242 + len(m.started), exited: make(chan struct{})}
	m.started = append(m.started, p)
	return p, nil
}

func (m *mockCommandRunner) commandLines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := make([]string, len(m.calls))
	for i, c := range m.calls {
		lines[i] = c.String()
	}
	return lines
}

// mockProcess is a started process that exits when terminated unless
// ignoreTerm is set.
type mockProcess struct {
	pid        int
	ignoreTerm bool
	terminated bool
	killed     bool
	exited     chan struct{}
	once       sync.Once
}

func (p *mockProcess) Pid() int { return p.pid }

func (p *mockProcess) Terminate() error {
	p.terminated = true
	if !p.ignoreTerm {
		p.once.Do(func() { close(p.exited) })
	}
	return nil
}

func (p *mockProcess) Kill() error {
	p.killed = true
	p.once.Do(func() { close(p.exited) })
	return nil
}

func (p *mockProcess) Wait() error {
	<-p.exited
	return errors.New("signal: terminated")
}

var _ CommandRunner = (*mockCommandRunner)(nil)
