package infra

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// frontmostScript prints "<pid>\t<window title>" for the frontmost app.
const frontmostScript = `tell application "System Events"
	set proc to first application process whose frontmost is true
	set pidText to unix id of proc as text
	set winTitle to ""
	try
		set winTitle to name of front window of proc
	end try
	return pidText & tab & winTitle
end tell`

// CommandProbe implements domain.ForegroundProbe by shelling out to
// xdotool on X11 and osascript on macOS. The PID is resolved to a process
// name through the process manager.
type CommandProbe struct {
	goos   string
	runner CommandRunner
	pm     domain.ProcessManager
}

// NewForegroundProbe creates a probe for the running OS.
func NewForegroundProbe(pm domain.ProcessManager) *CommandProbe {
	return NewForegroundProbeWithDeps(runtime.GOOS, &RealCommandRunner{}, pm)
}

// NewForegroundProbeWithDeps creates a probe with injected dependencies (for testing).
func NewForegroundProbeWithDeps(goos string, runner CommandRunner, pm domain.ProcessManager) *CommandProbe {
	return &CommandProbe{goos: goos, runner: runner, pm: pm}
}

// Foreground returns the focused window. Unsupported platforms fail with
// domain.ErrUnsupportedPlatform.
func (p *CommandProbe) Foreground(ctx context.Context) (domain.ForegroundWindow, error) {
	var pid int
	var title string
	var err error

	switch p.goos {
	case "linux":
		pid, title, err = p.probeX11(ctx)
	case "darwin":
		pid, title, err = p.probeDarwin(ctx)
	default:
		return domain.ForegroundWindow{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedPlatform, p.goos)
	}
	if err != nil {
		return domain.ForegroundWindow{}, err
	}

	name, err := p.pm.NameOf(pid)
	if err != nil {
		return domain.ForegroundWindow{}, fmt.Errorf("failed to resolve pid %d: %w", pid, err)
	}

	return domain.ForegroundWindow{PID: pid, ProcessName: name, Title: title}, nil
}

func (p *CommandProbe) probeX11(ctx context.Context) (int, string, error) {
	out, err := p.runner.Output(ctx, "xdotool", "getactivewindow", "getwindowpid")
	if err != nil {
		return 0, "", fmt.Errorf("xdotool getwindowpid: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, "", fmt.Errorf("unexpected pid %q: %w", strings.TrimSpace(string(out)), err)
	}

	// a window without a title is still a valid foreground window
	titleOut, err := p.runner.Output(ctx, "xdotool", "getactivewindow", "getwindowname")
	if err != nil {
		return pid, "", nil
	}
	return pid, strings.TrimRight(string(titleOut), "\r\n"), nil
}

func (p *CommandProbe) probeDarwin(ctx context.Context) (int, string, error) {
	out, err := p.runner.Output(ctx, "osascript", "-e", frontmostScript)
	if err != nil {
		return 0, "", fmt.Errorf("osascript: %w", err)
	}

	pidText, title, _ := strings.Cut(strings.TrimRight(string(out), "\r\n"), "\t")
	pid, err := strconv.Atoi(strings.TrimSpace(pidText))
	if err != nil {
		return 0, "", fmt.Errorf("unexpected pid %q: %w", pidText, err)
	}
	return pid, title, nil
}

var _ domain.ForegroundProbe = (*CommandProbe)(nil)
