package daemon

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
	"github.com/eliteGoblin/focusd/lockin/internal/infra"
)

var (
	// ErrAlreadyRunning is returned by StartDetached when a monitor is alive.
	ErrAlreadyRunning = errors.New("monitor already running")

	// ErrNotRunning is returned by Stop when no live monitor is registered.
	ErrNotRunning = errors.New("monitor not running")
)

const stopPollInterval = 100 * time.Millisecond

// StartDetached spawns `lockin run <args>` in its own session. The child
// registers itself once it is up.
func StartDetached(registry domain.DaemonRegistry, runner infra.CommandRunner, args []string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, err
	}
	return StartDetachedWithPath(executable, registry, runner, args)
}

// StartDetachedWithPath spawns the monitor from a given binary.
func StartDetachedWithPath(executable string, registry domain.DaemonRegistry, runner infra.CommandRunner, args []string) (int, error) {
	alive, err := registry.IsAlive()
	if err != nil {
		return 0, err
	}
	if alive {
		rec, _ := registry.Get()
		if rec != nil {
			return rec.PID, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, rec.PID)
		}
		return 0, ErrAlreadyRunning
	}

	proc, err := runner.Start(executable, append([]string{"run"}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("failed to spawn monitor: %w", err)
	}
	return proc.Pid(), nil
}

// Stop asks the registered monitor to exit, killing it if it has not gone
// within timeout. The registry record is cleared either way.
func Stop(registry domain.DaemonRegistry, pm domain.ProcessManager, timeout time.Duration) (*domain.DaemonRecord, error) {
	rec, err := registry.Get()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotRunning
	}
	if !pm.IsRunning(rec.PID) {
		_ = registry.Clear()
		return rec, ErrNotRunning
	}

	if err := pm.Terminate(rec.PID); err != nil {
		return rec, fmt.Errorf("failed to signal pid %d: %w", rec.PID, err)
	}

	deadline := time.Now().Add(timeout)
	for pm.IsRunning(rec.PID) && time.Now().Before(deadline) {
		time.Sleep(stopPollInterval)
	}
	if pm.IsRunning(rec.PID) {
		if err := pm.Kill(rec.PID); err != nil {
			return rec, fmt.Errorf("failed to kill pid %d: %w", rec.PID, err)
		}
	}

	return rec, registry.Clear()
}
