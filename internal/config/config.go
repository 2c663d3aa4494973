// Package config handles configuration loading and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
	"github.com/eliteGoblin/focusd/lockin/internal/infra"
	"github.com/eliteGoblin/focusd/lockin/internal/policy"
	"github.com/eliteGoblin/focusd/lockin/internal/usecase"
)

// Config holds all configuration for lockin. Durations are in seconds.
type Config struct {
	Profile               string                     `yaml:"profile"`
	ProcessClassification domain.ClassificationTable `yaml:"process_classification"`
	Monitoring            MonitoringConfig           `yaml:"monitoring"`
	Detection             DetectionConfig            `yaml:"detection"`
	Ollama                OllamaConfig               `yaml:"ollama"`
	Storage               StorageConfig              `yaml:"storage"`
	Log                   LogConfig                  `yaml:"log"`
}

// MonitoringConfig controls the watcher loop.
type MonitoringConfig struct {
	PollInterval       int  `yaml:"poll_interval"`
	ScreenshotCount    int  `yaml:"screenshot_count"`
	ScreenshotDuration int  `yaml:"screenshot_duration"`
	AlertCooldown      int  `yaml:"alert_cooldown"`
	SafeVerdictTTL     int  `yaml:"safe_verdict_ttl"`
	GuardianInterval   int  `yaml:"guardian_interval"`
	KeepScreenshots    bool `yaml:"keep_screenshots"`
	DesktopAlerts      bool `yaml:"desktop_alerts"`
}

// DetectionConfig controls the model prompts and the verdict threshold.
type DetectionConfig struct {
	ConfidenceThreshold int     `yaml:"confidence_threshold"`
	Model               string  `yaml:"model"`
	Stage1MaxTokens     int     `yaml:"stage1_max_tokens"`
	Stage1Temperature   float64 `yaml:"stage1_temperature"`
	Stage1RepeatPenalty float64 `yaml:"stage1_repeat_penalty"`
	Stage2MaxTokens     int     `yaml:"stage2_max_tokens"`
	Stage2Temperature   float64 `yaml:"stage2_temperature"`
	Stage2TopP          float64 `yaml:"stage2_top_p"`
}

// OllamaConfig locates the model server.
type OllamaConfig struct {
	BaseURL      string `yaml:"base_url"`
	Timeout      int    `yaml:"timeout"`
	AutoStart    bool   `yaml:"auto_start"`
	AutoPull     bool   `yaml:"auto_pull"`
	MaxImageSize int    `yaml:"max_image_size"`
	Debug        bool   `yaml:"debug"`
}

// StorageConfig locates persistent state.
type StorageConfig struct {
	DataDir     string `yaml:"data_dir"`
	CatalogPath string `yaml:"catalog_path"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Profile:               infra.DefaultProfileName,
		ProcessClassification: policy.DefaultTable(),
		Monitoring: MonitoringConfig{
			PollInterval:       2,
			ScreenshotCount:    3,
			ScreenshotDuration: 5,
			AlertCooldown:      60,
			SafeVerdictTTL:     300,
			GuardianInterval:   30,
			DesktopAlerts:      true,
		},
		Detection: DetectionConfig{
			ConfidenceThreshold: 60,
			Model:               usecase.DefaultModel,
			Stage1MaxTokens:     512,
			Stage1Temperature:   0.7,
			Stage2MaxTokens:     300,
			Stage2Temperature:   0.3,
			Stage2TopP:          0.9,
		},
		Ollama: OllamaConfig{
			BaseURL:      infra.DefaultOllamaURL,
			Timeout:      120,
			AutoStart:    true,
			AutoPull:     true,
			MaxImageSize: infra.DefaultMaxImageSize,
		},
		Storage: StorageConfig{
			DataDir: "~/" + infra.DataDirName,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// an explicit table replaces the default one instead of merging into it
	cfg.ProcessClassification = domain.ClassificationTable{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.ProcessClassification.IsEmpty() {
		timeout := cfg.ProcessClassification.MonitorTimeout
		cfg.ProcessClassification = policy.DefaultTable()
		if timeout > 0 {
			cfg.ProcessClassification.MonitorTimeout = timeout
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate rejects values the watcher cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Monitoring.PollInterval <= 0:
		return errors.New("monitoring.poll_interval must be positive")
	case c.Monitoring.ScreenshotCount <= 0:
		return errors.New("monitoring.screenshot_count must be positive")
	case c.Monitoring.ScreenshotDuration < 0:
		return errors.New("monitoring.screenshot_duration must not be negative")
	case c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 100:
		return errors.New("detection.confidence_threshold must be within 0..100")
	case c.ProcessClassification.MonitorTimeout < 0:
		return errors.New("process_classification.monitor_timeout must not be negative")
	case strings.TrimSpace(c.Ollama.BaseURL) == "":
		return errors.New("ollama.base_url is required")
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// PollEvery returns the watcher tick.
func (m MonitoringConfig) PollEvery() time.Duration { return seconds(m.PollInterval) }

// BurstDuration returns how long a screenshot burst spans.
func (m MonitoringConfig) BurstDuration() time.Duration { return seconds(m.ScreenshotDuration) }

// Cooldown returns the minimum gap between alerts for one window.
func (m MonitoringConfig) Cooldown() time.Duration { return seconds(m.AlertCooldown) }

// SafeTTL returns how long a "not distracted" verdict suppresses re-analysis.
func (m MonitoringConfig) SafeTTL() time.Duration { return seconds(m.SafeVerdictTTL) }

// GuardianEvery returns the server health check interval.
func (m MonitoringConfig) GuardianEvery() time.Duration { return seconds(m.GuardianInterval) }

// Client converts to the infra client config.
func (o OllamaConfig) Client() infra.OllamaConfig {
	return infra.OllamaConfig{
		BaseURL:      o.BaseURL,
		Timeout:      seconds(o.Timeout),
		AutoStart:    o.AutoStart,
		AutoPull:     o.AutoPull,
		MaxImageSize: o.MaxImageSize,
		Debug:        o.Debug,
	}
}

// Analyzer converts to the analyzer settings. Reparse settings are fixed.
func (d DetectionConfig) Analyzer() usecase.AnalyzerConfig {
	a := usecase.DefaultAnalyzerConfig()
	if d.Model != "" {
		a.Model = d.Model
	}
	a.Stage1MaxTokens = d.Stage1MaxTokens
	a.Stage1Temperature = d.Stage1Temperature
	a.Stage1RepeatPenalty = d.Stage1RepeatPenalty
	a.Stage2MaxTokens = d.Stage2MaxTokens
	a.Stage2Temperature = d.Stage2Temperature
	a.Stage2TopP = d.Stage2TopP
	return a
}

// Paths resolves the storage layout, expanding a leading ~.
func (s StorageConfig) Paths() infra.Paths {
	if s.DataDir == "" {
		return infra.DefaultPaths()
	}
	fs := infra.NewFileSystemManager()
	return infra.PathsFor(fs.ExpandHome(s.DataDir))
}
