// Package daemon implements the monitoring loop and its companions: the
// model server guardian, alert sinks, session tracking and detached start.
package daemon

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
	"github.com/eliteGoblin/focusd/lockin/internal/policy"
	"github.com/eliteGoblin/focusd/lockin/internal/usecase"
)

const (
	safeVerdictCacheSize = 512
	alertHistorySize     = 512
)

// WatcherConfig holds monitoring loop configuration.
type WatcherConfig struct {
	PollInterval        time.Duration // How often the foreground window is sampled
	ScreenshotCount     int           // Screenshots per burst
	ScreenshotDuration  time.Duration // Time a burst is spread over
	AlertCooldown       time.Duration // Minimum gap between alerts for one window
	SafeVerdictTTL      time.Duration // How long a "not distracted" verdict is trusted
	ConfidenceThreshold int           // Minimum confidence for an analysis alert
	KeepScreenshots     bool
	WorkTopic           string
	AdditionalContext   string
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		PollInterval:        2 * time.Second,
		ScreenshotCount:     3,
		ScreenshotDuration:  5 * time.Second,
		AlertCooldown:       60 * time.Second,
		SafeVerdictTTL:      5 * time.Minute,
		ConfidenceThreshold: 60,
	}
}

// Watcher is the monitoring loop. It samples the foreground window, asks
// the evaluator what to do and runs at most one screenshot analysis at a time.
type Watcher struct {
	config    WatcherConfig
	probe     domain.ForegroundProbe
	evaluator *usecase.Evaluator
	analyzer  domain.Analyzer
	capturer  domain.ScreenCapturer
	cache     domain.DistractionCache
	fs        domain.FileSystemManager
	sinks     []domain.AlertSink
	tracker   *SessionTracker
	now       func() time.Time
	logger    *zap.Logger

	safe *expirable.LRU[domain.DistractionKey, struct{}]
	wg   sync.WaitGroup

	// last alert per window; entries outlive the cooldown only briefly
	lastAlert *expirable.LRU[domain.DistractionKey, time.Time]

	mu       sync.Mutex
	current  domain.DistractionKey
	inFlight bool
}

// NewWatcher creates a new monitoring loop.
func NewWatcher(
	config WatcherConfig,
	probe domain.ForegroundProbe,
	evaluator *usecase.Evaluator,
	analyzer domain.Analyzer,
	capturer domain.ScreenCapturer,
	cache domain.DistractionCache,
	fs domain.FileSystemManager,
	sinks []domain.AlertSink,
	tracker *SessionTracker,
	logger *zap.Logger,
) *Watcher {
	return &Watcher{
		config:    config,
		probe:     probe,
		evaluator: evaluator,
		analyzer:  analyzer,
		capturer:  capturer,
		cache:     cache,
		fs:        fs,
		sinks:     sinks,
		tracker:   tracker,
		now:       time.Now,
		logger:    logger,
		safe:      expirable.NewLRU[domain.DistractionKey, struct{}](safeVerdictCacheSize, nil, config.SafeVerdictTTL),
		lastAlert: expirable.NewLRU[domain.DistractionKey, time.Time](alertHistorySize, nil, config.AlertCooldown),
	}
}

// Run starts the monitoring loop.
// This blocks until context is canceled, then waits for a running analysis.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watcher started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("screenshot_count", w.config.ScreenshotCount),
		zap.Int("confidence_threshold", w.config.ConfidenceThreshold))

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping")
			w.wg.Wait()
			return ctx.Err()

		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// SetTable swaps in a reloaded global classification table.
func (w *Watcher) SetTable(table domain.ClassificationTable) {
	w.evaluator.SetGlobalTable(table)
}

// Wait blocks until a running analysis has finished.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

// poll handles one foreground sample.
func (w *Watcher) poll(ctx context.Context) {
	window, err := w.probe.Foreground(ctx)
	if err != nil {
		w.logger.Debug("foreground probe failed", zap.Error(err))
		return
	}

	key := window.Key()
	w.mu.Lock()
	w.current = key
	w.mu.Unlock()

	decision := w.evaluator.Evaluate(window)
	switch decision.Action {
	case domain.ActionAlert:
		w.raise(ctx, domain.Alert{
			Reason:   decision.Reason,
			Window:   window,
			RaisedAt: w.now(),
		})
	case domain.ActionAnalyze:
		w.startAnalysis(ctx, window)
	}
}

// startAnalysis launches an analysis unless one is running or the window
// was recently judged safe.
func (w *Watcher) startAnalysis(ctx context.Context, window domain.ForegroundWindow) {
	key := window.Key()
	if _, ok := w.safe.Get(key); ok {
		w.logger.Debug("recent safe verdict, skipping analysis",
			zap.String("process", key.Process),
			zap.String("title", key.Title))
		return
	}

	w.mu.Lock()
	if w.inFlight {
		w.mu.Unlock()
		w.logger.Debug("analysis already running", zap.String("process", key.Process))
		return
	}
	w.inFlight = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			w.inFlight = false
			w.mu.Unlock()
		}()
		w.analyze(ctx, window)
	}()
}

// analyze captures a burst and judges it.
func (w *Watcher) analyze(ctx context.Context, window domain.ForegroundWindow) {
	key := window.Key()
	log := w.logger.With(zap.String("process", key.Process), zap.String("title", window.Title))

	paths, err := w.capturer.CaptureBurst(ctx, w.config.ScreenshotCount, w.config.ScreenshotDuration)
	if err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			return
		}
		log.Warn("screenshot capture failed", zap.Error(err))
		w.tracker.RecordAnalysisError()
		return
	}
	defer w.discard(paths)

	log.Info("analyzing foreground", zap.Int("screenshots", len(paths)))
	result := w.analyzer.Analyze(ctx, domain.AnalyzeRequest{
		ImagePaths:        paths,
		WorkTopic:         w.config.WorkTopic,
		AdditionalContext: analysisContext(window, w.config.AdditionalContext),
		CancelCheck: func() bool {
			return ctx.Err() != nil || w.currentKey() != key
		},
	})
	w.tracker.RecordAnalysis(result)

	if result.Cancelled {
		log.Info("analysis cancelled, foreground changed")
		return
	}
	if len(result.Errors) > 0 {
		log.Warn("analysis reported errors", zap.Strings("errors", result.Errors))
	}

	if result.IsDistracted(w.config.ConfidenceThreshold) {
		if err := w.cache.Add(window.ProcessName, window.Title); err != nil {
			log.Warn("failed to cache distraction", zap.Error(err))
		}
		alert := domain.Alert{
			Reason:   domain.AlertAnalysis,
			Window:   window,
			RaisedAt: w.now(),
		}
		if result.Stage2.Confidence != nil {
			alert.Confidence = *result.Stage2.Confidence
		}
		if result.Stage2.Reasoning != nil {
			alert.Reasoning = *result.Stage2.Reasoning
		}
		w.raise(ctx, alert)
		return
	}

	if result.HasVerdict() {
		w.safe.Add(key, struct{}{})
		log.Info("foreground judged on task")
	}
}

// raise records a distraction and notifies the sinks unless the same
// window alerted within the cooldown.
func (w *Watcher) raise(ctx context.Context, alert domain.Alert) {
	w.tracker.RecordDistraction(alert.Reason)

	key := alert.Window.Key()
	w.mu.Lock()
	last, seen := w.lastAlert.Get(key)
	if seen && alert.RaisedAt.Sub(last) < w.config.AlertCooldown {
		w.mu.Unlock()
		return
	}
	w.lastAlert.Add(key, alert.RaisedAt)
	w.mu.Unlock()

	w.tracker.RecordAlert()
	w.logger.Info("distraction alert",
		zap.String("reason", string(alert.Reason)),
		zap.String("process", key.Process),
		zap.Int("confidence", alert.Confidence))

	var err error
	for _, sink := range w.sinks {
		err = multierr.Append(err, sink.Notify(ctx, alert))
	}
	if err != nil {
		w.logger.Warn("alert delivery failed", zap.Error(err))
	}
}

// discard removes burst screenshots unless configured to keep them.
func (w *Watcher) discard(paths []string) {
	if w.config.KeepScreenshots {
		return
	}
	for _, p := range paths {
		if err := w.fs.Delete(p); err != nil {
			w.logger.Debug("failed to remove screenshot", zap.String("path", p), zap.Error(err))
		}
	}
}

// analysisContext tells the judge which window the screenshots show. A
// browser title names the page, so it is labelled as such.
func analysisContext(window domain.ForegroundWindow, extra string) string {
	var lines []string
	if window.ProcessName != "" {
		lines = append(lines, "Process: "+window.ProcessName)
	}
	if title := strings.TrimSpace(window.Title); title != "" {
		if policy.IsBrowser(window.ProcessName) {
			lines = append(lines, "Browser tab: "+title)
		} else {
			lines = append(lines, "Window title: "+title)
		}
	}
	if extra = strings.TrimSpace(extra); extra != "" {
		lines = append(lines, extra)
	}
	return strings.Join(lines, "\n")
}

func (w *Watcher) currentKey() domain.DistractionKey {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}
