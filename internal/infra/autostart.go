package infra

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// LoginItemLabel names the service on every platform.
const LoginItemLabel = "com.focusd.lockin"

// LaunchAgent plist template (runs as user)
const launchAgentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
{{- range .Args}}
        <string>{{.}}</string>
{{- end}}
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <dict>
        <key>Crashed</key>
        <true/>
    </dict>

    <key>StandardOutPath</key>
    <string>{{.LogPath}}</string>

    <key>StandardErrorPath</key>
    <string>{{.LogPath}}</string>

    <key>ProcessType</key>
    <string>Interactive</string>

    <key>ThrottleInterval</key>
    <integer>10</integer>
</dict>
</plist>
`

// systemd user unit template
const systemdUnitTemplate = `[Unit]
Description=lockin focus monitor
After=graphical-session.target
PartOf=graphical-session.target

[Service]
ExecStart={{.ExecutablePath}}{{range .Args}} {{.}}{{end}}
Restart=on-failure
RestartSec=10
StandardOutput=append:{{.LogPath}}
StandardError=append:{{.LogPath}}

[Install]
WantedBy=graphical-session.target
`

type unitConfig struct {
	Label          string
	ExecutablePath string
	Args           []string
	LogPath        string
}

// LoginItemManagerImpl implements domain.LoginItemManager.
type LoginItemManagerImpl struct {
	goos     string
	dir      string
	path     string
	logPath  string
	template string
	runner   CommandRunner
}

// NewLoginItemManager creates a manager for the current platform under the
// invoking user's home directory.
func NewLoginItemManager(logPath string) (*LoginItemManagerImpl, error) {
	return NewLoginItemManagerWithDeps(runtime.GOOS, GetRealUserHome(), logPath, &RealCommandRunner{})
}

// NewLoginItemManagerWithDeps creates a manager with explicit platform, home
// and command runner (for testing).
func NewLoginItemManagerWithDeps(goos, home, logPath string, runner CommandRunner) (*LoginItemManagerImpl, error) {
	m := &LoginItemManagerImpl{goos: goos, logPath: logPath, runner: runner}

	switch goos {
	case "darwin":
		m.dir = filepath.Join(home, "Library", "LaunchAgents")
		m.path = filepath.Join(m.dir, LoginItemLabel+".plist")
		m.template = launchAgentTemplate
	case "linux":
		m.dir = filepath.Join(home, ".config", "systemd", "user")
		m.path = filepath.Join(m.dir, "lockin.service")
		m.template = systemdUnitTemplate
	default:
		return nil, fmt.Errorf("%w: login items on %s", domain.ErrUnsupportedPlatform, goos)
	}
	return m, nil
}

// generateContent renders the service definition for the given command line.
func (m *LoginItemManagerImpl) generateContent(execPath string, args []string) ([]byte, error) {
	tmpl, err := template.New("unit").Parse(m.template)
	if err != nil {
		return nil, fmt.Errorf("failed to parse unit template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, unitConfig{
		Label:          LoginItemLabel,
		ExecutablePath: execPath,
		Args:           args,
		LogPath:        m.logPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute unit template: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the service definition and loads it.
func (m *LoginItemManagerImpl) Install(execPath string, args []string) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return err
	}

	content, err := m.generateContent(execPath, args)
	if err != nil {
		return err
	}

	// reinstall over a loaded definition
	if m.IsInstalled() {
		_ = m.unload()
	}
	if err := atomicWriteFile(m.path, content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", m.path, err)
	}
	return m.load()
}

// Uninstall unloads and removes the service definition.
func (m *LoginItemManagerImpl) Uninstall() error {
	// Unload first (ignore errors if not loaded)
	_ = m.unload()

	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if m.goos == "linux" {
		return m.runner.Run(context.Background(), "systemctl", "--user", "daemon-reload")
	}
	return nil
}

// IsInstalled checks if the service definition exists.
func (m *LoginItemManagerImpl) IsInstalled() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// NeedsUpdate checks if the definition exists but has different content than expected.
func (m *LoginItemManagerImpl) NeedsUpdate(execPath string, args []string) bool {
	if !m.IsInstalled() {
		return false
	}

	current, err := os.ReadFile(m.path)
	if err != nil {
		return true
	}
	expected, err := m.generateContent(execPath, args)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, expected)
}

// Path returns the service definition file.
func (m *LoginItemManagerImpl) Path() string {
	return m.path
}

func (m *LoginItemManagerImpl) load() error {
	ctx := context.Background()
	if m.goos == "darwin" {
		return m.runner.Run(ctx, "launchctl", "load", m.path)
	}
	if err := m.runner.Run(ctx, "systemctl", "--user", "daemon-reload"); err != nil {
		return err
	}
	return m.runner.Run(ctx, "systemctl", "--user", "enable", "--now", filepath.Base(m.path))
}

func (m *LoginItemManagerImpl) unload() error {
	ctx := context.Background()
	if m.goos == "darwin" {
		return m.runner.Run(ctx, "launchctl", "unload", m.path)
	}
	return m.runner.Run(ctx, "systemctl", "--user", "disable", "--now", filepath.Base(m.path))
}

// Ensure LoginItemManagerImpl implements domain.LoginItemManager.
var _ domain.LoginItemManager = (*LoginItemManagerImpl)(nil)
