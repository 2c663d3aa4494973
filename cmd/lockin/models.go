package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/lockin/internal/infra"
	"github.com/eliteGoblin/focusd/lockin/internal/ui"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect and download Ollama models",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed models",
	RunE:  runModelsList,
}

var modelsPullCmd = &cobra.Command{
	Use:   "pull [model]",
	Short: "Download a model (default: the configured one)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModelsPull,
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsPullCmd)
	rootCmd.AddCommand(modelsCmd)
}

func runModelsList(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	pool := infra.NewClientPool(a.logger)
	defer pool.Close()
	client, err := a.client(ctx, pool)
	if err != nil {
		return err
	}

	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}

	configured := client.ResolveModelName(ctx, a.cfg.Detection.Model)
	t := ui.NewTable(cmd.OutOrStdout(), []string{"Name", "Size", "Modified", ""})
	for _, m := range models {
		mark := ""
		if m.Name == configured {
			mark = ui.Green("configured")
		}
		t.AddRow(m.Name, humanBytes(m.Size), m.ModifiedAt.Format("2006-01-02 15:04"), mark)
	}
	t.Render()
	return nil
}

func runModelsPull(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	name := a.cfg.Detection.Model
	if len(args) == 1 {
		name = args[0]
	}

	pool := infra.NewClientPool(a.logger)
	defer pool.Close()
	client, err := a.client(ctx, pool)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "pulling %s, this can take a while...\n", name)
	if !client.PullModel(ctx, name) {
		return fmt.Errorf("failed to pull %s (see %s)", name, a.paths.LogPath)
	}
	ui.Success(cmd.OutOrStdout(), "%s is ready", name)
	return nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
