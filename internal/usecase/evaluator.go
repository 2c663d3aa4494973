// Package usecase contains application business logic.
package usecase

import (
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
	"github.com/eliteGoblin/focusd/lockin/internal/policy"
)

// Evaluator decides what to do with one foreground sample.
// Order: whitelist, blacklist, distraction cache, then the classification
// table, with mixed and unknown processes going through the dwell monitor.
type Evaluator struct {
	mu      sync.RWMutex
	profile *domain.Profile
	table   domain.ClassificationTable
	cache   domain.DistractionCache
	monitor *MixedProcessMonitor
	logger  *zap.Logger
}

// NewEvaluator creates an evaluator for profile. The profile's own table
// wins over global when it has one. cache may be nil.
func NewEvaluator(
	profile *domain.Profile,
	global domain.ClassificationTable,
	cache domain.DistractionCache,
	logger *zap.Logger,
) *Evaluator {
	table := policy.ResolveTable(profile, global)
	return &Evaluator{
		profile: profile,
		table:   table,
		cache:   cache,
		monitor: NewMixedProcessMonitor(table.Timeout(), logger),
		logger:  logger,
	}
}

// NewEvaluatorWithMonitor creates an evaluator with a custom monitor (for testing).
func NewEvaluatorWithMonitor(
	profile *domain.Profile,
	global domain.ClassificationTable,
	cache domain.DistractionCache,
	monitor *MixedProcessMonitor,
	logger *zap.Logger,
) *Evaluator {
	return &Evaluator{
		profile: profile,
		table:   policy.ResolveTable(profile, global),
		cache:   cache,
		monitor: monitor,
		logger:  logger,
	}
}

// SetGlobalTable swaps in a reloaded global table. A profile override
// still wins.
func (e *Evaluator) SetGlobalTable(global domain.ClassificationTable) {
	e.mu.Lock()
	e.table = policy.ResolveTable(e.profile, global)
	timeout := e.table.Timeout()
	e.mu.Unlock()

	e.monitor.SetTimeout(timeout)
	e.logger.Info("classification table reloaded",
		zap.Int("work", len(global.WorkProcesses)),
		zap.Int("entertainment", len(global.EntertainmentProcesses)),
		zap.Int("mixed", len(global.MixedProcesses)),
		zap.Duration("timeout", timeout))
}

// Table returns the table currently in effect.
func (e *Evaluator) Table() domain.ClassificationTable {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table
}

// Monitor exposes the dwell monitor.
func (e *Evaluator) Monitor() *MixedProcessMonitor {
	return e.monitor
}

// Evaluate classifies window and advances the dwell monitor.
// ActionAnalyze is returned at most once per dwell episode: the monitor is
// reset before returning it.
func (e *Evaluator) Evaluate(window domain.ForegroundWindow) domain.Decision {
	e.mu.RLock()
	table := e.table
	e.mu.RUnlock()

	name := window.ProcessName
	class := policy.Classify(name, &table)

	if e.profile != nil {
		if policy.IsInWhitelist(name, e.profile.Whitelist) {
			e.monitor.UpdateProcess(name, domain.ClassWork)
			return domain.Decision{Action: domain.ActionAllow, Classification: class}
		}
		if policy.IsInBlacklist(name, e.profile.Blacklist) {
			e.monitor.UpdateProcess(name, domain.ClassEntertainment)
			e.logger.Debug("blacklisted process in foreground", zap.String("process", name))
			return domain.Decision{Action: domain.ActionAlert, Reason: domain.AlertBlacklist, Classification: class}
		}
	}

	e.monitor.UpdateProcess(name, class)

	if e.cache != nil && e.cache.IsDistracting(name, window.Title) {
		e.logger.Debug("cached distraction in foreground",
			zap.String("process", name),
			zap.String("title", window.Title))
		return domain.Decision{Action: domain.ActionAlert, Reason: domain.AlertCache, Classification: class}
	}

	switch class {
	case domain.ClassWork:
		return domain.Decision{Action: domain.ActionAllow, Classification: class}
	case domain.ClassEntertainment:
		return domain.Decision{Action: domain.ActionAlert, Reason: domain.AlertEntertainment, Classification: class}
	}

	if e.monitor.ShouldCheck() {
		e.monitor.Reset()
		return domain.Decision{Action: domain.ActionAnalyze, Classification: class}
	}
	return domain.Decision{Action: domain.ActionTrack, Classification: class}
}
