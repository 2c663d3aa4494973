package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// Pinger reports whether the model server answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Launcher brings the model server back up.
type Launcher interface {
	EnsureRunning(ctx context.Context) error
}

// GuardianConfig holds server guardian configuration.
type GuardianConfig struct {
	CheckInterval time.Duration // How often the server is pinged
	PingTimeout   time.Duration
	ProcessName   string // Server process name, for diagnostics
}

// DefaultGuardianConfig returns default guardian configuration.
func DefaultGuardianConfig() GuardianConfig {
	return GuardianConfig{
		CheckInterval: 30 * time.Second,
		PingTimeout:   2 * time.Second,
		ProcessName:   "ollama",
	}
}

// ServerGuardian keeps the model server reachable while monitoring runs.
type ServerGuardian struct {
	config         GuardianConfig
	pinger         Pinger
	launcher       Launcher
	processManager domain.ProcessManager
	logger         *zap.Logger

	down bool
}

// NewServerGuardian creates a new guardian. launcher may be nil when
// auto-start is off; outages are then only logged.
func NewServerGuardian(
	config GuardianConfig,
	pinger Pinger,
	launcher Launcher,
	pm domain.ProcessManager,
	logger *zap.Logger,
) *ServerGuardian {
	return &ServerGuardian{
		config:         config,
		pinger:         pinger,
		launcher:       launcher,
		processManager: pm,
		logger:         logger,
	}
}

// Run starts the guardian loop.
// This blocks until context is canceled.
func (g *ServerGuardian) Run(ctx context.Context) error {
	g.logger.Info("server guardian started", zap.Duration("interval", g.config.CheckInterval))

	ticker := time.NewTicker(g.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("server guardian stopping")
			return ctx.Err()

		case <-ticker.C:
			g.check(ctx)
		}
	}
}

// check pings the server and relaunches it if it went away.
func (g *ServerGuardian) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, g.config.PingTimeout)
	err := g.pinger.Ping(pingCtx)
	cancel()

	if err == nil {
		if g.down {
			g.logger.Info("model server reachable again")
			g.down = false
		}
		return
	}

	pids, _ := g.processManager.FindByName(g.config.ProcessName)
	g.logger.Warn("model server not responding",
		zap.Error(err),
		zap.Ints("server_pids", pids))
	g.down = true

	if g.launcher == nil {
		return
	}

	if err := g.launcher.EnsureRunning(ctx); err != nil {
		g.logger.Error("failed to restart model server", zap.Error(err))
		return
	}
	g.logger.Info("model server restarted")
	g.down = false
}
