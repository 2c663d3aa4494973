package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
	"github.com/eliteGoblin/focusd/lockin/internal/infra"
	"github.com/eliteGoblin/focusd/lockin/internal/policy"
	"github.com/eliteGoblin/focusd/lockin/internal/ui"
	"github.com/eliteGoblin/focusd/lockin/internal/usecase"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <process>...",
	Short: "Show how processes are classified",
	Long: `Prints the category of each process name under the active profile,
including blacklist and whitelist matches.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [image]...",
	Short: "Run the two-stage screenshot analysis once",
	Long: `Judges the given screenshots, or a fresh burst of the screen when no
images are given, and prints the captions and the verdict.`,
	RunE: runAnalyze,
}

var titleCmd = &cobra.Command{
	Use:   "title <window title>",
	Short: "Judge a window title without screenshots",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTitle,
}

func init() {
	for _, c := range []*cobra.Command{analyzeCmd, titleCmd} {
		c.Flags().StringVar(&topicFlag, "topic", "", "What you are working on (default from profile)")
		c.Flags().StringVar(&contextFlag, "context", "", "Extra context for the model")
	}

	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(titleCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	profile, _, err := a.profile()
	if err != nil {
		return err
	}
	table := a.table(profile)

	t := ui.NewTable(cmd.OutOrStdout(), []string{"Process", "Class", "Blacklisted", "Whitelisted"})
	for _, name := range args {
		t.AddRow(
			name,
			ui.Classification(policy.Classify(name, &table)),
			yesNo(policy.IsInBlacklist(name, profile.Blacklist)),
			yesNo(policy.IsInWhitelist(name, profile.Whitelist)),
		)
	}
	t.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "\nprofile %s, dwell timeout %s\n", profile.Name, table.Timeout())
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	profile, _, err := a.profile()
	if err != nil {
		return err
	}
	topic := topicFlag
	if topic == "" {
		topic = profile.WorkTopic
	}

	images := args
	if len(images) == 0 {
		capturer := infra.NewScreenCapturer(a.paths.ScreenshotDir, a.logger)
		images, err = capturer.CaptureBurst(ctx, a.cfg.Monitoring.ScreenshotCount, a.cfg.Monitoring.BurstDuration())
		if err != nil {
			return fmt.Errorf("failed to capture screen: %w", err)
		}
		if !a.cfg.Monitoring.KeepScreenshots {
			defer func() {
				for _, p := range images {
					_ = os.Remove(p)
				}
			}()
		}
	}

	pool := infra.NewClientPool(a.logger)
	defer pool.Close()
	client, err := a.client(ctx, pool)
	if err != nil {
		return err
	}

	analyzer := usecase.NewAnalyzer(client, a.cfg.Detection.Analyzer(), a.logger)
	result := analyzer.Analyze(ctx, domain.AnalyzeRequest{
		ImagePaths:        images,
		WorkTopic:         topic,
		AdditionalContext: contextFlag,
	})

	out := cmd.OutOrStdout()
	t := ui.NewTable(out, []string{"Image", "Description"})
	for i, desc := range result.Stage1.Descriptions {
		name := fmt.Sprintf("%d", i+1)
		if i < len(images) {
			name = images[i]
		}
		t.AddRow(name, desc)
	}
	t.Render()

	threshold := a.cfg.Detection.ConfidenceThreshold
	fmt.Fprintf(out, "\nVerdict:    %s\n", ui.Verdict(result, threshold))
	if result.Stage2.Confidence != nil {
		fmt.Fprintf(out, "Confidence: %d%% (threshold %d%%)\n", *result.Stage2.Confidence, threshold)
	}
	if result.Stage2.Reasoning != nil {
		fmt.Fprintf(out, "Reasoning:  %s\n", *result.Stage2.Reasoning)
	}
	fmt.Fprintf(out, "Model:      %s (%d ms + %d ms)\n",
		result.Stage1.Model, result.Stage1.DurationMs, result.Stage2.DurationMs)
	for _, e := range result.Errors {
		ui.Warning(out, "%s", e)
	}
	return nil
}

func runTitle(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	profile, _, err := a.profile()
	if err != nil {
		return err
	}
	topic := topicFlag
	if topic == "" {
		topic = profile.WorkTopic
	}

	pool := infra.NewClientPool(a.logger)
	defer pool.Close()
	client, err := a.client(ctx, pool)
	if err != nil {
		return err
	}

	title := strings.Join(args, " ")
	verdict := usecase.NewTitleAnalyzer(client, a.cfg.Detection.Model, a.logger).Analyze(ctx, title, topic, contextFlag)

	label := ui.Green(string(verdict))
	if verdict == domain.VerdictDistracted {
		label = ui.Red(string(verdict))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", title, label)
	return nil
}

func yesNo(b bool) string {
	if b {
		return ui.Yellow("yes")
	}
	return "no"
}
