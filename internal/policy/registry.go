package policy

import (
	"strings"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// DefaultTable returns the built-in classification table used when the
// config file carries none.
func DefaultTable() domain.ClassificationTable {
	return domain.ClassificationTable{
		WorkProcesses: []string{
			"code.exe", "code", "devenv.exe", "idea64.exe", "pycharm64.exe",
			"goland64.exe", "goland", "sublime_text.exe", "notepad++.exe",
			"winword.exe", "excel.exe", "powerpnt.exe", "onenote.exe",
			"windowsterminal.exe", "cmd.exe", "powershell.exe",
			"gnome-terminal-server", "alacritty", "kitty", "iterm2", "terminal",
		},
		EntertainmentProcesses: []string{
			"steam.exe", "steam", "steamwebhelper.exe", "dota2.exe", "dota2",
			"epicgameslauncher.exe", "battle.net.exe", "leagueclient.exe",
			"spotify.exe", "spotify", "vlc.exe", "netflix.exe",
		},
		MixedProcesses: []string{
			"chrome.exe", "chrome", "google-chrome", "firefox.exe", "firefox",
			"msedge.exe", "brave.exe", "brave", "opera.exe", "safari",
			"discord.exe", "discord", "slack.exe", "slack", "telegram.exe",
			"teams.exe", "zoom.exe",
		},
		MonitorTimeout: DefaultMonitorTimeout,
	}
}

// Browsers lists executables whose window title is the only hint of the
// page being viewed.
var Browsers = []string{
	"chrome.exe", "firefox.exe", "msedge.exe", "opera.exe", "brave.exe",
	"iexplore.exe", "vivaldi.exe", "chrome", "google-chrome", "firefox",
	"brave", "safari",
}

// IsBrowser reports whether processName is a known browser.
func IsBrowser(processName string) bool {
	return processName != "" && contains(Browsers, strings.ToLower(processName))
}

// ResolveTable picks the profile override when present and non-empty,
// otherwise the global table. A zero timeout falls back to the global one,
// then to DefaultMonitorTimeout.
func ResolveTable(profile *domain.Profile, global domain.ClassificationTable) domain.ClassificationTable {
	table := global
	if profile != nil && profile.Classification != nil && !profile.Classification.IsEmpty() {
		table = *profile.Classification
		if table.MonitorTimeout <= 0 {
			table.MonitorTimeout = global.MonitorTimeout
		}
	}
	if table.MonitorTimeout <= 0 {
		table.MonitorTimeout = DefaultMonitorTimeout
	}
	return table
}
