// Package main is the CLI entry point for lockin.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/lockin/internal/config"
	"github.com/eliteGoblin/focusd/lockin/internal/domain"
	"github.com/eliteGoblin/focusd/lockin/internal/infra"
	"github.com/eliteGoblin/focusd/lockin/internal/policy"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lockin",
	Short: "Focus tracker - notices when you drift off task",
	Long: `lockin watches the foreground window while you work. Known work apps
are ignored, entertainment apps raise an alert, and apps that can be both
(browsers, chat) are judged from screenshots by a local vision model
served by Ollama.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configFlag  string
	profileFlag string
	debugFlag   bool
	jsonOutput  bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default ~/.lockin/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "Profile name (default from config)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Verbose development logging")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(versionCmd)
}

// app holds what every command needs.
type app struct {
	cfg        *config.Config
	configPath string
	paths      infra.Paths
	logger     *zap.Logger
}

// loadApp reads the config, prepares the data directory and builds the logger.
func loadApp() (*app, error) {
	path := configFlag
	if path == "" {
		path = infra.DefaultPaths().ConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	paths := cfg.Storage.Paths()
	if err := paths.Ensure(); err != nil {
		return nil, err
	}

	logPath := cfg.Log.File
	if logPath == "" {
		logPath = paths.LogPath
	}

	return &app{
		cfg:        cfg,
		configPath: path,
		paths:      paths,
		logger:     createLogger(logPath, cfg.Log.Level),
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// profileName returns the --profile flag, else the configured profile.
func (a *app) profileName() string {
	if profileFlag != "" {
		return profileFlag
	}
	if a.cfg.Profile != "" {
		return a.cfg.Profile
	}
	return infra.DefaultProfileName
}

// profile loads the active profile. A profile that was never saved is an
// empty one with that name.
func (a *app) profile() (*domain.Profile, *infra.FileProfileStore, error) {
	store := infra.NewProfileStore(a.paths.ProfileDir)
	name := a.profileName()

	p, err := store.Load(name)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.Profile{Name: name}, store, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return p, store, nil
}

// table returns the classification table in effect for profile.
func (a *app) table(profile *domain.Profile) domain.ClassificationTable {
	return policy.ResolveTable(profile, a.cfg.ProcessClassification)
}

// cache opens the distraction cache of the active profile.
func (a *app) cache(profile string) *infra.FileDistractionCache {
	return infra.NewDistractionCache(a.paths.CacheDir, profile, a.logger)
}

// client connects to Ollama through pool.
func (a *app) client(ctx context.Context, pool *infra.ClientPool) (*infra.OllamaClient, error) {
	return pool.Get(ctx, a.cfg.Ollama.Client())
}

// sessionStore opens the encrypted session database, creating its key on first use.
func (a *app) sessionStore() (*infra.EncryptedSessionStore, error) {
	key, err := infra.EnsureKey(infra.NewFileKeyProvider(a.paths.DataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load session key: %w", err)
	}
	return infra.NewSessionStore(a.paths.SessionDB, key)
}

func createLogger(path, level string) *zap.Logger {
	if debugFlag {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}

	config := zap.NewProductionConfig()
	config.OutputPaths = []string{path}
	config.ErrorOutputPaths = []string{path}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		config.Level = lvl
	}

	logger, err := config.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Fprintf(cmd.OutOrStdout(), `{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "lockin %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
