// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"strings"
	"time"
)

// Classification is the category a foreground process falls into.
type Classification string

const (
	ClassWork          Classification = "work"
	ClassEntertainment Classification = "entertainment"
	ClassMixed         Classification = "mixed"
	ClassUnknown       Classification = "unknown"
)

// NeedsScrutiny reports whether the process content must be inspected
// before a verdict can be given (mixed or unknown processes).
func (c Classification) NeedsScrutiny() bool {
	return c == ClassMixed || c == ClassUnknown
}

// ClassificationTable holds lowercase executable names per category.
// A profile may carry its own table; otherwise the global one applies.
type ClassificationTable struct {
	WorkProcesses          []string `json:"work_processes" yaml:"work_processes"`
	EntertainmentProcesses []string `json:"entertainment_processes" yaml:"entertainment_processes"`
	MixedProcesses         []string `json:"mixed_processes" yaml:"mixed_processes"`
	MonitorTimeout         int      `json:"monitor_timeout" yaml:"monitor_timeout"` // seconds
}

// Timeout returns the dwell time before a mixed process is analyzed.
func (t ClassificationTable) Timeout() time.Duration {
	return time.Duration(t.MonitorTimeout) * time.Second
}

// IsEmpty reports whether the table has no process entries at all.
func (t ClassificationTable) IsEmpty() bool {
	return len(t.WorkProcesses) == 0 && len(t.EntertainmentProcesses) == 0 && len(t.MixedProcesses) == 0
}

// DistractionKey is a normalized (process, window title) pair.
type DistractionKey struct {
	Process string
	Title   string
}

// NewDistractionKey lowercases and trims both parts.
func NewDistractionKey(process, title string) DistractionKey {
	return DistractionKey{
		Process: strings.ToLower(strings.TrimSpace(process)),
		Title:   strings.ToLower(strings.TrimSpace(title)),
	}
}

// ForegroundWindow describes the window the user is currently looking at.
type ForegroundWindow struct {
	PID         int
	ProcessName string // lowercase executable name
	Title       string
}

// Key returns the normalized cache key for this window.
func (w ForegroundWindow) Key() DistractionKey {
	return NewDistractionKey(w.ProcessName, w.Title)
}

// Profile is a user's focus configuration.
type Profile struct {
	Name      string            `json:"name"`
	WorkTopic string            `json:"work_topic"`
	Blacklist []string          `json:"blacklist"`
	Whitelist []string          `json:"whitelist"`
	Responses map[string]string `json:"responses,omitempty"` // setup questionnaire answers

	// Classification overrides the global table when set.
	Classification *ClassificationTable `json:"process_classification,omitempty"`
}

// GenerateOptions controls a single generation request.
type GenerateOptions struct {
	Stream        bool
	MaxTokens     int     // 0 = server default
	Temperature   float64 // 0 = server default
	TopP          float64 // 0 = server default
	RepeatPenalty float64 // 0 = not sent

	// CancelCheck is polled once per streamed chunk. Returning true aborts
	// the request with ErrCancelled.
	CancelCheck func() bool
}

// GenerateResult is the one canonical response shape of a VLM call.
type GenerateResult struct {
	Text            string
	Model           string
	EvalCount       int
	PromptEvalCount int
	TotalDuration   time.Duration
	LoadDuration    time.Duration
}

// DurationMs returns the total server-side duration in milliseconds.
func (r GenerateResult) DurationMs() int64 {
	return r.TotalDuration.Milliseconds()
}

// AnalyzeRequest is the input for one two-stage analysis.
type AnalyzeRequest struct {
	ImagePaths        []string
	WorkTopic         string
	AdditionalContext string
	CancelCheck       func() bool
}

// Stage1Result holds the per-image captions.
type Stage1Result struct {
	Descriptions    []string
	RawResponse     string
	Model           string
	EvalCount       int
	PromptEvalCount int
	DurationMs      int64
}

// Stage2Result holds the distraction verdict.
type Stage2Result struct {
	Distracted  *bool
	Confidence  *int
	Reasoning   *string
	RawResponse string
	Model       string
	EvalCount   int
	DurationMs  int64
}

// AnalysisResult captures what happened during a single analysis run.
type AnalysisResult struct {
	Stage1    Stage1Result
	Stage2    Stage2Result
	Errors    []string
	Cancelled bool
	StartedAt time.Time
}

// IsDistracted reports a positive verdict at or above the threshold.
func (r *AnalysisResult) IsDistracted(threshold int) bool {
	if r == nil || r.Stage2.Distracted == nil || !*r.Stage2.Distracted {
		return false
	}
	if r.Stage2.Confidence == nil {
		return true
	}
	return *r.Stage2.Confidence >= threshold
}

// HasVerdict reports whether stage 2 produced a decision.
func (r *AnalysisResult) HasVerdict() bool {
	return r != nil && r.Stage2.Distracted != nil
}

// Verdict is the outcome of a title-only check.
type Verdict string

const (
	VerdictNormal     Verdict = "Normal"
	VerdictDistracted Verdict = "Distracted"
)

// AlertReason names what triggered an alert.
type AlertReason string

const (
	AlertBlacklist     AlertReason = "blacklist"
	AlertCache         AlertReason = "cache"
	AlertEntertainment AlertReason = "entertainment"
	AlertAnalysis      AlertReason = "analysis"
)

// Alert is raised when the user is found distracted.
type Alert struct {
	Reason     AlertReason
	Window     ForegroundWindow
	Confidence int
	Reasoning  string
	RaisedAt   time.Time
}

// DecisionAction is what the monitoring loop should do after a poll.
type DecisionAction string

const (
	ActionAllow   DecisionAction = "allow"
	ActionAlert   DecisionAction = "alert"
	ActionTrack   DecisionAction = "track"
	ActionAnalyze DecisionAction = "analyze"
)

// Decision is the result of evaluating one foreground sample.
type Decision struct {
	Action         DecisionAction
	Reason         AlertReason
	Classification Classification
}

// Session stores statistics for one focus session.
type Session struct {
	ID               string
	Profile          string
	WorkTopic        string
	StartedAt        time.Time
	EndedAt          time.Time
	DistractionCount int
	AlertCount       int
	AnalysisCount    int
	AnalysisErrors   int
	CacheHits        int
}

// Duration returns how long the session lasted.
func (s Session) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// ModelInfo is one entry of the server's model listing.
type ModelInfo struct {
	Name       string
	Size       int64
	ModifiedAt time.Time
}

// CatalogEntry is one row of the known-process catalog.
type CatalogEntry struct {
	Exe      string
	Category string
	Product  string
	UseHint  string
}

// DaemonRecord describes the detached monitor started by `lockin start`.
type DaemonRecord struct {
	PID       int       `json:"pid"`
	Profile   string    `json:"profile"`
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version,omitempty"`
}
