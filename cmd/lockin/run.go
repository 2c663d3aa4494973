package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/lockin/internal/config"
	"github.com/eliteGoblin/focusd/lockin/internal/daemon"
	"github.com/eliteGoblin/focusd/lockin/internal/domain"
	"github.com/eliteGoblin/focusd/lockin/internal/infra"
	"github.com/eliteGoblin/focusd/lockin/internal/ui"
	"github.com/eliteGoblin/focusd/lockin/internal/usecase"
)

const stopTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Monitor the foreground window until interrupted",
	Long: `Runs the monitoring loop in the foreground. Press Ctrl-C to end the
session; its statistics are saved to the encrypted session store.`,
	RunE: runRun,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start monitoring in the background",
	Long:  `Spawns 'lockin run' detached from the terminal. Use 'lockin stop' to end the session.`,
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background monitor",
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background monitor is running",
	RunE:  runStatus,
}

var (
	topicFlag   string
	contextFlag string
)

func init() {
	for _, c := range []*cobra.Command{runCmd, startCmd} {
		c.Flags().StringVar(&topicFlag, "topic", "", "What you are working on (default from profile)")
		c.Flags().StringVar(&contextFlag, "context", "", "Extra context for the model")
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
}

// watcherConfig maps the monitoring and detection settings onto the loop.
func watcherConfig(cfg *config.Config, topic, extra string) daemon.WatcherConfig {
	return daemon.WatcherConfig{
		PollInterval:        cfg.Monitoring.PollEvery(),
		ScreenshotCount:     cfg.Monitoring.ScreenshotCount,
		ScreenshotDuration:  cfg.Monitoring.BurstDuration(),
		AlertCooldown:       cfg.Monitoring.Cooldown(),
		SafeVerdictTTL:      cfg.Monitoring.SafeTTL(),
		ConfidenceThreshold: cfg.Detection.ConfidenceThreshold,
		KeepScreenshots:     cfg.Monitoring.KeepScreenshots,
		WorkTopic:           topic,
		AdditionalContext:   extra,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(a.paths.RegistryPath, pm)
	if rec, _ := registry.Get(); rec != nil && rec.PID != os.Getpid() && pm.IsRunning(rec.PID) {
		return fmt.Errorf("%w (pid %d)", daemon.ErrAlreadyRunning, rec.PID)
	}

	profile, _, err := a.profile()
	if err != nil {
		return err
	}
	topic := topicFlag
	if topic == "" {
		topic = profile.WorkTopic
	}

	pool := infra.NewClientPool(logger)
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Warn("failed to stop model server", zap.Error(err))
		}
	}()
	client, err := a.client(ctx, pool)
	if err != nil {
		return err
	}

	analyzerConfig := a.cfg.Detection.Analyzer()
	if !client.CheckModelAvailable(ctx, analyzerConfig.Model) && !a.cfg.Ollama.AutoPull {
		ui.Warning(cmd.OutOrStdout(), "model %s is not installed; run 'lockin models pull %s'",
			analyzerConfig.Model, analyzerConfig.Model)
	}

	store, err := a.sessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	cache := a.cache(profile.Name)
	evaluator := usecase.NewEvaluator(profile, a.cfg.ProcessClassification, cache, logger)
	analyzer := usecase.NewAnalyzer(client, analyzerConfig, logger)
	tracker := daemon.NewSessionTracker(profile.Name, topic, store, logger)

	sinks := []domain.AlertSink{daemon.NewLogSink(logger)}
	if a.cfg.Monitoring.DesktopAlerts {
		sinks = append(sinks, daemon.NewDesktopSink(&infra.RealCommandRunner{}))
	}

	fs := infra.NewFileSystemManager()
	if n, err := fs.Prune(a.paths.ScreenshotDir, time.Now().Add(-time.Hour)); err != nil {
		logger.Warn("failed to prune stale screenshots", zap.Error(err))
	} else if n > 0 {
		logger.Info("pruned stale screenshots", zap.Int("count", n))
	}

	watcher := daemon.NewWatcher(
		watcherConfig(a.cfg, topic, contextFlag),
		infra.NewForegroundProbe(pm),
		evaluator,
		analyzer,
		infra.NewScreenCapturer(a.paths.ScreenshotDir, logger),
		cache,
		fs,
		sinks,
		tracker,
		logger,
	)

	var launcher daemon.Launcher
	if a.cfg.Ollama.AutoStart {
		launcher = client.Launcher()
	}
	guardianConfig := daemon.DefaultGuardianConfig()
	guardianConfig.CheckInterval = a.cfg.Monitoring.GuardianEvery()
	guardian := daemon.NewServerGuardian(guardianConfig, client, launcher, pm, logger)

	reloader := config.NewWatcher(a.configPath, func(c *config.Config) {
		watcher.SetTable(c.ProcessClassification)
	}, logger)

	if err := registry.Register(domain.DaemonRecord{
		PID:       os.Getpid(),
		Profile:   profile.Name,
		SessionID: tracker.ID(),
		StartedAt: time.Now(),
		Version:   Version,
	}); err != nil {
		logger.Warn("failed to register monitor", zap.Error(err))
	}
	defer func() { _ = registry.Clear() }()

	out := cmd.OutOrStdout()
	ui.Success(out, "monitoring as profile %s (session %s)", ui.Bold(profile.Name), tracker.ID())
	if topic != "" {
		fmt.Fprintf(out, "  topic: %s\n", topic)
	}
	fmt.Fprintf(out, "  cache: %d known distractions\n", cache.Count())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return guardian.Run(gctx) })
	g.Go(func() error {
		// a config that cannot be watched only disables reloading
		if err := reloader.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("config reload disabled", zap.Error(err))
		}
		return nil
	})
	runErr := g.Wait()

	session, err := tracker.Finish()
	if err != nil {
		logger.Error("failed to save session", zap.Error(err))
		ui.Warning(out, "session not saved: %v", err)
	}
	printSessionSummary(cmd, session)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func printSessionSummary(cmd *cobra.Command, s domain.Session) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\n=== Session Summary ===")
	fmt.Fprintf(out, "Duration:     %s\n", s.Duration().Round(time.Second))
	fmt.Fprintf(out, "Distractions: %d\n", s.DistractionCount)
	fmt.Fprintf(out, "Alerts:       %d\n", s.AlertCount)
	fmt.Fprintf(out, "Analyses:     %d (%d with errors)\n", s.AnalysisCount, s.AnalysisErrors)
	fmt.Fprintf(out, "Cache hits:   %d\n", s.CacheHits)
	fmt.Fprintln(out, "=======================")
}

// runArgs are the "lockin run" flags that reproduce this invocation.
func (a *app) runArgs() []string {
	var forward []string
	if configFlag != "" {
		forward = append(forward, "--config", configFlag)
	}
	forward = append(forward, "--profile", a.profileName())
	if topicFlag != "" {
		forward = append(forward, "--topic", topicFlag)
	}
	if contextFlag != "" {
		forward = append(forward, "--context", contextFlag)
	}
	return forward
}

func runStart(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(a.paths.RegistryPath, pm)

	pid, err := daemon.StartDetached(registry, &infra.RealCommandRunner{}, a.runArgs())
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		ui.Warning(cmd.OutOrStdout(), "lockin is already running (pid %d)", pid)
		return nil
	}
	if err != nil {
		return err
	}

	a.logger.Info("monitor spawned", zap.Int("pid", pid), zap.String("profile", a.profileName()))
	ui.Success(cmd.OutOrStdout(), "lockin started in the background (pid %d)", pid)
	fmt.Fprintf(cmd.OutOrStdout(), "  log: %s\n", a.paths.LogPath)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(a.paths.RegistryPath, pm)

	rec, err := daemon.Stop(registry, pm, stopTimeout)
	if errors.Is(err, daemon.ErrNotRunning) {
		fmt.Fprintln(cmd.OutOrStdout(), "lockin is not running")
		return nil
	}
	if err != nil {
		return err
	}

	ui.Success(cmd.OutOrStdout(), "stopped monitor (pid %d, session %s)", rec.PID, rec.SessionID)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(a.paths.RegistryPath, pm)
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "\n=== lockin Status ===")

	rec, err := registry.Get()
	if err != nil {
		return err
	}
	if rec == nil || !pm.IsRunning(rec.PID) {
		fmt.Fprintf(out, "Status: %s\n", ui.Dim("NOT RUNNING"))
		fmt.Fprintln(out, "\nRun 'lockin start' to begin a session.")
		return nil
	}

	fmt.Fprintf(out, "Status:  %s\n", ui.Green("RUNNING"))
	fmt.Fprintf(out, "PID:     %d\n", rec.PID)
	fmt.Fprintf(out, "Profile: %s\n", rec.Profile)
	fmt.Fprintf(out, "Session: %s\n", rec.SessionID)
	fmt.Fprintf(out, "Uptime:  %s\n", time.Since(rec.StartedAt).Round(time.Second))
	if rec.Version != "" {
		fmt.Fprintf(out, "Version: %s\n", rec.Version)
	}
	fmt.Fprintf(out, "Cache:   %d known distractions\n", a.cache(rec.Profile).Count())
	fmt.Fprintln(out, "=====================")
	return nil
}
