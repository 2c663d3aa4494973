package infra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

const (
	// DefaultStartupAttempts is how many times a spawned server is polled.
	DefaultStartupAttempts = 30
	// DefaultStartupInterval is the pause between polls.
	DefaultStartupInterval = time.Second
	// stopGracePeriod is how long Stop waits after SIGTERM before killing.
	stopGracePeriod = 5 * time.Second
)

// Pinger reports whether the model server accepts connections.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerLauncher spawns `ollama serve` when the server is down and stops
// it again if it was the one that started it.
type ServerLauncher struct {
	binary   string
	pinger   Pinger
	runner   CommandRunner
	attempts int
	interval time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	proc StartedProcess
}

// NewServerLauncher creates a launcher for the given binary.
func NewServerLauncher(binary string, pinger Pinger, runner CommandRunner, logger *zap.Logger) *ServerLauncher {
	if binary == "" {
		binary = "ollama"
	}
	return &ServerLauncher{
		binary:   binary,
		pinger:   pinger,
		runner:   runner,
		attempts: DefaultStartupAttempts,
		interval: DefaultStartupInterval,
		logger:   logger,
	}
}

// WithPolling overrides the startup poll schedule (for testing).
func (l *ServerLauncher) WithPolling(attempts int, interval time.Duration) *ServerLauncher {
	l.attempts = attempts
	l.interval = interval
	return l
}

// EnsureRunning returns nil when the server answers, spawning it first if
// needed. A server that never comes up fails with domain.ErrServerStartup.
func (l *ServerLauncher) EnsureRunning(ctx context.Context) error {
	if err := l.pinger.Ping(ctx); err == nil {
		return nil
	}

	if _, err := l.runner.Output(ctx, l.binary, "--version"); err != nil {
		return fmt.Errorf("%w: %s not found: %v", domain.ErrServerStartup, l.binary, err)
	}

	l.mu.Lock()
	if l.proc == nil {
		proc, err := l.runner.Start(l.binary, "serve")
		if err != nil {
			l.mu.Unlock()
			return fmt.Errorf("%w: %v", domain.ErrServerStartup, err)
		}
		l.proc = proc
		l.logger.Info("started model server", zap.String("binary", l.binary), zap.Int("pid", proc.Pid()))
	}
	l.mu.Unlock()

	for i := 0; i < l.attempts; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domain.ErrServerStartup, ctx.Err())
		case <-time.After(l.interval):
		}

		if err := l.pinger.Ping(ctx); err == nil {
			l.logger.Info("model server is ready", zap.Int("attempts", i+1))
			return nil
		}
	}

	_ = l.Stop()
	return fmt.Errorf("%w: no response after %d attempts", domain.ErrServerStartup, l.attempts)
}

// Owned reports whether this launcher started a server that is still tracked.
func (l *ServerLauncher) Owned() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.proc != nil
}

// Stop terminates a server this launcher started. Servers started by
// someone else are left alone.
func (l *ServerLauncher) Stop() error {
	l.mu.Lock()
	proc := l.proc
	l.proc = nil
	l.mu.Unlock()

	if proc == nil {
		return nil
	}

	if err := proc.Terminate(); err != nil {
		l.logger.Debug("terminate failed, killing", zap.Error(err))
		return proc.Kill()
	}

	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()

	select {
	case <-done:
		l.logger.Info("model server stopped", zap.Int("pid", proc.Pid()))
		return nil
	case <-time.After(stopGracePeriod):
		l.logger.Warn("model server did not exit, killing", zap.Int("pid", proc.Pid()))
		return proc.Kill()
	}
}
