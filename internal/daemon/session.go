package daemon

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
	"github.com/eliteGoblin/focusd/lockin/internal/infra"
)

// SessionTracker collects statistics for the running focus session.
type SessionTracker struct {
	mu      sync.Mutex
	session domain.Session
	store   domain.SessionStore
	now     func() time.Time
	logger  *zap.Logger
}

// NewSessionTracker starts a session. store may be nil, in which case
// Finish only returns the totals.
func NewSessionTracker(profile, workTopic string, store domain.SessionStore, logger *zap.Logger) *SessionTracker {
	return NewSessionTrackerWithClock(profile, workTopic, store, time.Now, logger)
}

// NewSessionTrackerWithClock creates a tracker with a custom clock (for testing).
func NewSessionTrackerWithClock(
	profile, workTopic string,
	store domain.SessionStore,
	now func() time.Time,
	logger *zap.Logger,
) *SessionTracker {
	return &SessionTracker{
		session: domain.Session{
			ID:        infra.NewSessionID(),
			Profile:   profile,
			WorkTopic: workTopic,
			StartedAt: now(),
		},
		store:  store,
		now:    now,
		logger: logger,
	}
}

// ID returns the session ID.
func (t *SessionTracker) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.ID
}

// RecordDistraction counts a distracted sample, including ones whose
// alert was suppressed by the cooldown.
func (t *SessionTracker) RecordDistraction(reason domain.AlertReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session.DistractionCount++
	if reason == domain.AlertCache {
		t.session.CacheHits++
	}
}

// RecordAlert counts a delivered alert.
func (t *SessionTracker) RecordAlert() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session.AlertCount++
}

// RecordAnalysis counts a finished analysis and whether it had errors.
func (t *SessionTracker) RecordAnalysis(result *domain.AnalysisResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session.AnalysisCount++
	if result != nil && len(result.Errors) > 0 {
		t.session.AnalysisErrors++
	}
}

// RecordAnalysisError counts an analysis that failed before reaching the model.
func (t *SessionTracker) RecordAnalysisError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session.AnalysisErrors++
}

// Snapshot returns the current totals.
func (t *SessionTracker) Snapshot() domain.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

// Finish stamps the end time and saves the session.
func (t *SessionTracker) Finish() (domain.Session, error) {
	t.mu.Lock()
	t.session.EndedAt = t.now()
	session := t.session
	t.mu.Unlock()

	t.logger.Info("session finished",
		zap.String("session_id", session.ID),
		zap.Duration("duration", session.Duration()),
		zap.Int("distractions", session.DistractionCount),
		zap.Int("alerts", session.AlertCount),
		zap.Int("analyses", session.AnalysisCount))

	if t.store == nil {
		return session, nil
	}
	if err := t.store.Save(session); err != nil {
		return session, err
	}
	return session, nil
}
