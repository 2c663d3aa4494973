package daemon

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
	"github.com/eliteGoblin/focusd/lockin/internal/infra"
)

const alertTitle = "lockin"

// AlertMessage renders the human-readable text of an alert.
func AlertMessage(alert domain.Alert) string {
	name := alert.Window.ProcessName
	switch alert.Reason {
	case domain.AlertBlacklist:
		return fmt.Sprintf("%s is on your blacklist. Back to work.", name)
	case domain.AlertCache:
		return fmt.Sprintf("You've been distracted by %q before. Back to work.", alert.Window.Title)
	case domain.AlertEntertainment:
		return fmt.Sprintf("%s is an entertainment app. Back to work.", name)
	default:
		msg := fmt.Sprintf("This looks like a distraction (%d%% confidence).", alert.Confidence)
		if alert.Reasoning != "" {
			msg += " " + alert.Reasoning
		}
		return msg
	}
}

// LogSink writes alerts to the log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs every alert.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Notify logs the alert.
func (s *LogSink) Notify(ctx context.Context, alert domain.Alert) error {
	s.logger.Warn("distracted",
		zap.String("reason", string(alert.Reason)),
		zap.String("process", alert.Window.ProcessName),
		zap.String("title", alert.Window.Title),
		zap.Int("confidence", alert.Confidence),
		zap.String("message", AlertMessage(alert)))
	return nil
}

// DesktopSink shows alerts as desktop notifications.
type DesktopSink struct {
	goos   string
	runner infra.CommandRunner
}

// NewDesktopSink creates a sink for the current OS.
func NewDesktopSink(runner infra.CommandRunner) *DesktopSink {
	return NewDesktopSinkWithOS(runtime.GOOS, runner)
}

// NewDesktopSinkWithOS creates a sink for a given OS (for testing).
func NewDesktopSinkWithOS(goos string, runner infra.CommandRunner) *DesktopSink {
	return &DesktopSink{goos: goos, runner: runner}
}

// Notify shows the alert with notify-send on Linux and osascript on macOS.
func (s *DesktopSink) Notify(ctx context.Context, alert domain.Alert) error {
	msg := AlertMessage(alert)

	switch s.goos {
	case "linux":
		return s.runner.Run(ctx, "notify-send", "--app-name", alertTitle, "--urgency", "critical", alertTitle, msg)
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", msg, alertTitle)
		return s.runner.Run(ctx, "osascript", "-e", script)
	default:
		return fmt.Errorf("%w: desktop notifications on %s", domain.ErrUnsupportedPlatform, s.goos)
	}
}

var (
	_ domain.AlertSink = (*LogSink)(nil)
	_ domain.AlertSink = (*DesktopSink)(nil)
)
