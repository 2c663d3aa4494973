package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eliteGoblin/focusd/lockin/internal/config"
	"github.com/eliteGoblin/focusd/lockin/internal/daemon"
)

func TestWatcherConfig_FromDefaults(t *testing.T) {
	cfg := config.Default()

	got := watcherConfig(cfg, "thesis", "no music")

	want := daemon.DefaultWatcherConfig()
	want.WorkTopic = "thesis"
	want.AdditionalContext = "no music"
	assert.Equal(t, want, got)
}

func TestWatcherConfig_Overrides(t *testing.T) {
	cfg := config.Default()
	cfg.Monitoring.PollInterval = 5
	cfg.Monitoring.KeepScreenshots = true
	cfg.Detection.ConfidenceThreshold = 80

	got := watcherConfig(cfg, "", "")

	assert.Equal(t, 5*time.Second, got.PollInterval)
	assert.True(t, got.KeepScreenshots)
	assert.Equal(t, 80, got.ConfidenceThreshold)
}

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024 * 1024, "5.0 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, humanBytes(tt.in), "humanBytes(%d)", tt.in)
	}
}
