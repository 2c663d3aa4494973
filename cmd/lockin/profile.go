package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
	"github.com/eliteGoblin/focusd/lockin/internal/infra"
	"github.com/eliteGoblin/focusd/lockin/internal/policy"
	"github.com/eliteGoblin/focusd/lockin/internal/ui"
	"github.com/eliteGoblin/focusd/lockin/internal/usecase"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show and edit focus profiles",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active profile",
	RunE:  runProfileShow,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles",
	RunE:  runProfileList,
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update the active profile",
	Long: `Updates fields of the active profile, creating it when needed.
Examples:
  lockin profile set --topic "thesis on Go schedulers"
  lockin profile set --blacklist steam,discord --whitelist code
  lockin profile set --answer role="backend developer"`,
	RunE: runProfileSet,
}

var profileClassifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Let the model build a per-profile process table from a catalog",
	Long: `Reads the known-process CSV catalog (exe, category, product, use_hint
columns) and asks the model to sort every entry into Work, Mixed or
Entertainment given the profile's answers. The result overrides the
global table for this profile.`,
	RunE: runProfileClassify,
}

var (
	setBlacklist []string
	setWhitelist []string
	setAnswers   map[string]string
	catalogFlag  string
)

func init() {
	profileSetCmd.Flags().StringVar(&topicFlag, "topic", "", "Work topic")
	profileSetCmd.Flags().StringSliceVar(&setBlacklist, "blacklist", nil, "Processes that always alert")
	profileSetCmd.Flags().StringSliceVar(&setWhitelist, "whitelist", nil, "Processes that never alert")
	profileSetCmd.Flags().StringToStringVar(&setAnswers, "answer", nil, "Questionnaire answer key=value")
	profileClassifyCmd.Flags().StringVar(&catalogFlag, "catalog", "", "Catalog CSV (default storage.catalog_path)")

	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileClassifyCmd)
	rootCmd.AddCommand(profileCmd)
}

func runProfileShow(cmd *cobra.Command, args []string) error {
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
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "\n=== Profile %s ===\n", ui.Bold(profile.Name))
	fmt.Fprintf(out, "Topic:     %s\n", orNone(profile.WorkTopic))
	fmt.Fprintf(out, "Blacklist: %s\n", orNone(strings.Join(profile.Blacklist, ", ")))
	fmt.Fprintf(out, "Whitelist: %s\n", orNone(strings.Join(profile.Whitelist, ", ")))

	if len(profile.Responses) > 0 {
		fmt.Fprintln(out, "\nAnswers:")
		keys := make([]string, 0, len(profile.Responses))
		for k := range profile.Responses {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %s: %s\n", k, profile.Responses[k])
		}
	}

	source := "global"
	if profile.Classification != nil && !profile.Classification.IsEmpty() {
		source = "profile"
	}
	fmt.Fprintf(out, "\nClassification (%s, dwell %s):\n", source, table.Timeout())
	t := ui.NewTable(out, []string{"Class", "Processes"})
	t.AddRow(ui.Classification(domain.ClassWork), fmt.Sprintf("%d", len(table.WorkProcesses)))
	t.AddRow(ui.Classification(domain.ClassMixed), fmt.Sprintf("%d", len(table.MixedProcesses)))
	t.AddRow(ui.Classification(domain.ClassEntertainment), fmt.Sprintf("%d", len(table.EntertainmentProcesses)))
	t.Render()
	return nil
}

func runProfileList(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	names, err := infra.NewProfileStore(a.paths.ProfileDir).List()
	if err != nil {
		return err
	}
	active := a.profileName()
	for _, name := range names {
		if name == active {
			fmt.Fprintf(cmd.OutOrStdout(), "* %s\n", ui.Green(name))
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
		}
	}
	return nil
}

func runProfileSet(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	profile, store, err := a.profile()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("topic") {
		profile.WorkTopic = topicFlag
	}
	if flags.Changed("blacklist") {
		profile.Blacklist = setBlacklist
	}
	if flags.Changed("whitelist") {
		profile.Whitelist = setWhitelist
	}
	if len(setAnswers) > 0 {
		if profile.Responses == nil {
			profile.Responses = make(map[string]string)
		}
		for k, v := range setAnswers {
			profile.Responses[k] = v
		}
	}

	if err := store.Save(profile); err != nil {
		return err
	}
	ui.Success(cmd.OutOrStdout(), "saved profile %s", profile.Name)
	return nil
}

func runProfileClassify(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := catalogFlag
	if path == "" {
		path = a.cfg.Storage.CatalogPath
	}
	if path == "" {
		return fmt.Errorf("no catalog given: pass --catalog or set storage.catalog_path")
	}

	f, err := os.Open(infra.NewFileSystemManager().ExpandHome(path))
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	_, catalog, err := policy.ParseCatalog(f)
	f.Close()
	if err != nil {
		return err
	}

	profile, store, err := a.profile()
	if err != nil {
		return err
	}

	pool := infra.NewClientPool(a.logger)
	defer pool.Close()
	client, err := a.client(ctx, pool)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	classifier := usecase.NewProfileClassifier(client, a.cfg.Detection.Model, a.logger)
	table, err := classifier.Classify(ctx, profile.Responses, catalog, func(done, total int) {
		fmt.Fprintf(out, "\r%s classified %d/%d batches", ui.Cyan("→"), done, total)
	})
	fmt.Fprintln(out)
	if err != nil {
		return err
	}

	profile.Classification = table
	if err := store.Save(profile); err != nil {
		return err
	}
	ui.Success(out, "profile %s: %d work, %d mixed, %d entertainment of %d catalog entries",
		profile.Name, len(table.WorkProcesses), len(table.MixedProcesses),
		len(table.EntertainmentProcesses), len(catalog))
	return nil
}

func orNone(s string) string {
	if s == "" {
		return ui.Dim("(none)")
	}
	return s
}
