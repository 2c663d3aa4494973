package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/infra"
	"github.com/eliteGoblin/focusd/lockin/internal/ui"
)

var autostartCmd = &cobra.Command{
	Use:   "autostart",
	Short: "Start the monitor at login",
}

var autostartEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Install the login service (LaunchAgent on macOS, systemd user unit on Linux)",
	RunE:  runAutostartEnable,
}

var autostartDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Remove the login service",
	RunE:  runAutostartDisable,
}

var autostartStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the login service is installed",
	RunE:  runAutostartStatus,
}

func init() {
	autostartEnableCmd.Flags().StringVar(&topicFlag, "topic", "", "What you are working on (default from profile)")
	autostartEnableCmd.Flags().StringVar(&contextFlag, "context", "", "Extra context for the model")

	autostartCmd.AddCommand(autostartEnableCmd)
	autostartCmd.AddCommand(autostartDisableCmd)
	autostartCmd.AddCommand(autostartStatusCmd)
	rootCmd.AddCommand(autostartCmd)
}

func runAutostartEnable(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	m, err := infra.NewLoginItemManager(a.paths.LogPath)
	if err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	runArgs := append([]string{"run"}, a.runArgs()...)
	if m.IsInstalled() && !m.NeedsUpdate(exe, runArgs) {
		ui.Success(cmd.OutOrStdout(), "autostart already enabled (%s)", m.Path())
		return nil
	}
	if err := m.Install(exe, runArgs); err != nil {
		return fmt.Errorf("failed to install login service: %w", err)
	}

	a.logger.Info("login service installed", zap.String("path", m.Path()), zap.Strings("args", runArgs))
	ui.Success(cmd.OutOrStdout(), "autostart enabled (%s)", m.Path())
	return nil
}

func runAutostartDisable(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	m, err := infra.NewLoginItemManager(a.paths.LogPath)
	if err != nil {
		return err
	}
	if !m.IsInstalled() {
		ui.Warning(cmd.OutOrStdout(), "autostart is not enabled")
		return nil
	}
	if err := m.Uninstall(); err != nil {
		return err
	}

	a.logger.Info("login service removed", zap.String("path", m.Path()))
	ui.Success(cmd.OutOrStdout(), "autostart disabled")
	return nil
}

func runAutostartStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	m, err := infra.NewLoginItemManager(a.paths.LogPath)
	if err != nil {
		return err
	}
	if m.IsInstalled() {
		fmt.Fprintf(cmd.OutOrStdout(), "autostart: %s (%s)\n", ui.Green("enabled"), m.Path())
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "autostart: %s\n", ui.Dim("disabled"))
	}
	return nil
}
