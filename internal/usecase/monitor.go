package usecase

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// MixedProcessMonitor tracks how long a mixed or unknown process has been
// in the foreground, so content analysis only runs after a sustained dwell.
// The timer is running iff a current process is set.
type MixedProcessMonitor struct {
	mu      sync.Mutex
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger

	current     string
	startedAt   time.Time
	tracking    bool
	lastChecked string
	hasLast     bool
}

// NewMixedProcessMonitor creates a monitor with the given dwell timeout.
func NewMixedProcessMonitor(timeout time.Duration, logger *zap.Logger) *MixedProcessMonitor {
	return NewMixedProcessMonitorWithClock(timeout, time.Now, logger)
}

// NewMixedProcessMonitorWithClock creates a monitor with a custom clock (for testing).
func NewMixedProcessMonitorWithClock(timeout time.Duration, now func() time.Time, logger *zap.Logger) *MixedProcessMonitor {
	return &MixedProcessMonitor{
		timeout: timeout,
		now:     now,
		logger:  logger,
	}
}

// UpdateProcess records the latest foreground process.
// Seeing the same process again never restarts the timer. A different
// mixed/unknown process restarts it; a work or entertainment process
// clears tracking.
func (m *MixedProcessMonitor) UpdateProcess(processName string, class domain.Classification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasLast && processName == m.lastChecked {
		return
	}
	m.lastChecked = processName
	m.hasLast = true

	if class.NeedsScrutiny() {
		if !m.tracking || processName != m.current {
			m.current = processName
			m.startedAt = m.now()
			m.tracking = true
			m.logger.Debug("mixed process timer started",
				zap.String("process", processName),
				zap.String("classification", string(class)))
		}
		return
	}

	if m.tracking {
		m.logger.Debug("mixed process tracking cleared",
			zap.String("process", m.current),
			zap.String("replaced_by", processName))
	}
	m.clearTracking()
}

// ShouldCheck reports whether the tracked process has dwelt for at least
// the timeout. It does not change state; call Reset after acting on it.
func (m *MixedProcessMonitor) ShouldCheck() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.tracking {
		return false
	}
	if m.now().Sub(m.startedAt) >= m.timeout {
		m.logger.Info("mixed process dwell timeout reached",
			zap.String("process", m.current),
			zap.Duration("timeout", m.timeout))
		return true
	}
	return false
}

// Reset clears all tracking state.
func (m *MixedProcessMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearTracking()
	m.lastChecked = ""
	m.hasLast = false
}

// ElapsedTime returns the dwell time of the tracked process, false when idle.
func (m *MixedProcessMonitor) ElapsedTime() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.tracking {
		return 0, false
	}
	return m.now().Sub(m.startedAt), true
}

// CurrentProcess returns the tracked process name, empty when idle.
func (m *MixedProcessMonitor) CurrentProcess() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetTimeout changes the dwell timeout, e.g. after a config reload.
func (m *MixedProcessMonitor) SetTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
}

func (m *MixedProcessMonitor) clearTracking() {
	m.current = ""
	m.startedAt = time.Time{}
	m.tracking = false
}
