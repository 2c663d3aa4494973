package infra

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// captureTool is one screenshot command; the output path is appended.
type captureTool struct {
	name string
	args []string
}

// captureTools lists the candidates per OS in preference order.
var captureTools = map[string][]captureTool{
	"darwin": {{name: "screencapture", args: []string{"-x"}}},
	"linux": {
		{name: "grim"},
		{name: "scrot", args: []string{"-o"}},
		{name: "import", args: []string{"-window", "root"}},
	},
}

// CommandCapturer implements domain.ScreenCapturer with the first capture
// tool found on PATH.
type CommandCapturer struct {
	dir      string
	goos     string
	runner   CommandRunner
	lookPath func(string) (string, error)
	now      func() time.Time
	logger   *zap.Logger
}

// NewScreenCapturer creates a capturer writing PNG files into dir.
func NewScreenCapturer(dir string, logger *zap.Logger) *CommandCapturer {
	return NewScreenCapturerWithDeps(dir, runtime.GOOS, &RealCommandRunner{}, exec.LookPath, logger)
}

// NewScreenCapturerWithDeps creates a capturer with injected dependencies (for testing).
func NewScreenCapturerWithDeps(dir, goos string, runner CommandRunner, lookPath func(string) (string, error), logger *zap.Logger) *CommandCapturer {
	return &CommandCapturer{
		dir:      dir,
		goos:     goos,
		runner:   runner,
		lookPath: lookPath,
		now:      time.Now,
		logger:   logger,
	}
}

func (c *CommandCapturer) tool() (captureTool, error) {
	candidates, ok := captureTools[c.goos]
	if !ok {
		return captureTool{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedPlatform, c.goos)
	}
	for _, t := range candidates {
		if _, err := c.lookPath(t.name); err == nil {
			return t, nil
		}
	}
	return captureTool{}, fmt.Errorf("no screenshot tool found for %s", c.goos)
}

// CaptureBurst takes count screenshots with duration/count between them
// (no pause after the last). Files captured before a failure are removed.
func (c *CommandCapturer) CaptureBurst(ctx context.Context, count int, duration time.Duration) ([]string, error) {
	if count < 1 {
		count = 1
	}
	tool, err := c.tool()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	var interval time.Duration
	if count > 1 {
		interval = duration / time.Duration(count)
	}

	paths := make([]string, 0, count)
	cleanup := func() {
		for _, p := range paths {
			_ = os.Remove(p)
		}
	}

	stamp := c.now().Format("20060102_150405")
	for i := 0; i < count; i++ {
		path := filepath.Join(c.dir, fmt.Sprintf("screenshot_%s_%d.png", stamp, i+1))
		args := append(append([]string{}, tool.args...), path)
		if err := c.runner.Run(ctx, tool.name, args...); err != nil {
			cleanup()
			return nil, fmt.Errorf("%s failed: %w", tool.name, err)
		}
		paths = append(paths, path)

		if i < count-1 {
			select {
			case <-ctx.Done():
				cleanup()
				return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
			case <-time.After(interval):
			}
		}
	}

	c.logger.Debug("captured screenshot burst", zap.Int("count", len(paths)), zap.String("tool", tool.name))
	return paths, nil
}

var _ domain.ScreenCapturer = (*CommandCapturer)(nil)
