package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
	"github.com/eliteGoblin/focusd/lockin/internal/infra"
)

// mockProbe returns whatever window is currently set.
type mockProbe struct {
	mu     sync.Mutex
	window domain.ForegroundWindow
	err    error
}

func (m *mockProbe) Set(process, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = domain.ForegroundWindow{ProcessName: process, Title: title}
	m.err = nil
}

func (m *mockProbe) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockProbe) Foreground(ctx context.Context) (domain.ForegroundWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window, m.err
}

// mockCapturer returns fixed paths.
type mockCapturer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockCapturer) CaptureBurst(ctx context.Context, count int, duration time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	paths := make([]string, count)
	for i := range paths {
		paths[i] = fmt.Sprintf("/tmp/shot_%d_%d.png", m.calls, i)
	}
	return paths, nil
}

// mockAnalyzer returns a scripted result. With waitForCancel it polls
// CancelCheck until it fires; with release it blocks until closed.
type mockAnalyzer struct {
	mu            sync.Mutex
	calls         int
	requests      []domain.AnalyzeRequest
	result        *domain.AnalysisResult
	waitForCancel bool
	release       chan struct{}
	started       chan struct{}
}

func (m *mockAnalyzer) Analyze(ctx context.Context, req domain.AnalyzeRequest) *domain.AnalysisResult {
	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	result := m.result
	m.mu.Unlock()

	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	if m.waitForCancel {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if req.CancelCheck() {
				return &domain.AnalysisResult{Cancelled: true}
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	if result == nil {
		return &domain.AnalysisResult{Errors: []string{"no scripted result"}}
	}
	return result
}

func (m *mockAnalyzer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func verdict(distracted bool, confidence int, reasoning string) *domain.AnalysisResult {
	return &domain.AnalysisResult{
		Stage1: domain.Stage1Result{Descriptions: []string{"a web page"}},
		Stage2: domain.Stage2Result{
			Distracted: &distracted,
			Confidence: &confidence,
			Reasoning:  &reasoning,
		},
	}
}

// mockCache is an in-memory distraction cache.
type mockCache struct {
	mu      sync.Mutex
	entries map[domain.DistractionKey]bool
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[domain.DistractionKey]bool)}
}

func (m *mockCache) IsDistracting(process, title string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[domain.NewDistractionKey(process, title)]
}

func (m *mockCache) Add(process, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[domain.NewDistractionKey(process, title)] = true
	return nil
}

func (m *mockCache) Remove(process, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, domain.NewDistractionKey(process, title))
	return nil
}

func (m *mockCache) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[domain.DistractionKey]bool)
	return nil
}

func (m *mockCache) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *mockCache) Entries() []domain.DistractionKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []domain.DistractionKey
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

// mockFS records deletions.
type mockFS struct {
	mu      sync.Mutex
	deleted []string
}

func (m *mockFS) Exists(path string) bool { return true }

func (m *mockFS) Delete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, path)
	return nil
}

func (m *mockFS) ExpandHome(path string) string { return path }

func (m *mockFS) Prune(dir string, cutoff time.Time) (int, error) { return 0, nil }

func (m *mockFS) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// mockSink records alerts.
type mockSink struct {
	mu     sync.Mutex
	alerts []domain.Alert
	err    error
}

func (m *mockSink) Notify(ctx context.Context, alert domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return m.err
}

func (m *mockSink) Alerts() []domain.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Alert(nil), m.alerts...)
}

// mockSessionStore records saved sessions.
type mockSessionStore struct {
	saved   []domain.Session
	saveErr error
}

func (m *mockSessionStore) Save(session domain.Session) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, session)
	return nil
}

func (m *mockSessionStore) Get(id string) (*domain.Session, error) {
	for _, s := range m.saved {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockSessionStore) List(limit int) ([]domain.Session, error) {
	return m.saved, nil
}

func (m *mockSessionStore) Close() error { return nil }

// mockProcessManager tracks running PIDs. Processes in ignoreTerm survive SIGTERM.
type mockProcessManager struct {
	mu         sync.Mutex
	running    map[int]bool
	names      map[int]string
	ignoreTerm map[int]bool
	terminated []int
	killed     []int
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		running:    make(map[int]bool),
		names:      make(map[int]string),
		ignoreTerm: make(map[int]bool),
	}
}

func (m *mockProcessManager) FindByName(pattern string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []int
	for pid, name := range m.names {
		if strings.Contains(name, pattern) {
			found = append(found, pid)
		}
	}
	return found, nil
}

func (m *mockProcessManager) NameOf(pid int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name, ok := m.names[pid]; ok {
		return name, nil
	}
	return "", errors.New("no such process")
}

func (m *mockProcessManager) Kill(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killed = append(m.killed, pid)
	delete(m.running, pid)
	return nil
}

func (m *mockProcessManager) Terminate(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = append(m.terminated, pid)
	if !m.ignoreTerm[pid] {
		delete(m.running, pid)
	}
	return nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[pid]
}

func (m *mockProcessManager) GetCurrentPID() int { return 1 }

// mockRegistry keeps one record in memory.
type mockRegistry struct {
	pm      domain.ProcessManager
	record  *domain.DaemonRecord
	cleared bool
}

func (m *mockRegistry) Register(record domain.DaemonRecord) error {
	m.record = &record
	return nil
}

func (m *mockRegistry) Get() (*domain.DaemonRecord, error) {
	return m.record, nil
}

func (m *mockRegistry) IsAlive() (bool, error) {
	if m.record == nil {
		return false, nil
	}
	return m.pm.IsRunning(m.record.PID), nil
}

func (m *mockRegistry) Clear() error {
	m.record = nil
	m.cleared = true
	return nil
}

func (m *mockRegistry) Path() string { return "/tmp/daemon.json" }

// mockRunner records commands.
type mockRunner struct {
	mu      sync.Mutex
	runs    [][]string
	started [][]string
	err     error
}

func (m *mockRunner) Run(ctx context.Context, name string, args ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, append([]string{name}, args...))
	return m.err
}

func (m *mockRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return nil, m.Run(ctx, name, args...)
}

func (m *mockRunner) Start(name string, args ...string) (infra.StartedProcess, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.started = append(m.started, append([]string{name}, args...))
	return &mockProcess{pid: 4242}, nil
}

type mockProcess struct {
	pid int
}

func (p *mockProcess) Pid() int         { return p.pid }
func (p *mockProcess) Terminate() error { return nil }
func (p *mockProcess) Kill() error      { return nil }
func (p *mockProcess) Wait() error      { return nil }

// mockPinger fails while down is set.
type mockPinger struct {
	mu    sync.Mutex
	down  bool
	calls int
}

func (m *mockPinger) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.down {
		return errors.New("connection refused")
	}
	return nil
}

func (m *mockPinger) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

// mockLauncher brings the pinger back up.
type mockLauncher struct {
	pinger *mockPinger
	calls  int
	err    error
}

func (m *mockLauncher) EnsureRunning(ctx context.Context) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.pinger.SetDown(false)
	return nil
}

var (
	_ domain.ForegroundProbe   = (*mockProbe)(nil)
	_ domain.ScreenCapturer    = (*mockCapturer)(nil)
	_ domain.Analyzer          = (*mockAnalyzer)(nil)
	_ domain.DistractionCache  = (*mockCache)(nil)
	_ domain.FileSystemManager = (*mockFS)(nil)
	_ domain.AlertSink         = (*mockSink)(nil)
	_ domain.SessionStore      = (*mockSessionStore)(nil)
	_ domain.ProcessManager    = (*mockProcessManager)(nil)
	_ domain.DaemonRegistry    = (*mockRegistry)(nil)
	_ infra.CommandRunner      = (*mockRunner)(nil)
)
