package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/lockin/internal/ui"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List past focus sessions",
	RunE:  runSessions,
}

var sessionsLimit int

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Number of sessions to show (0 = all)")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.sessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.List(sessionsLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no sessions recorded yet")
		return nil
	}

	t := ui.NewTable(cmd.OutOrStdout(),
		[]string{"Started", "Profile", "Duration", "Distractions", "Alerts", "Analyses", "Errors"})
	for _, s := range sessions {
		t.AddRow(
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			s.Profile,
			s.Duration().Round(time.Second).String(),
			fmt.Sprintf("%d", s.DistractionCount),
			fmt.Sprintf("%d", s.AlertCount),
			fmt.Sprintf("%d", s.AnalysisCount),
			fmt.Sprintf("%d", s.AnalysisErrors),
		)
	}
	t.Render()
	return nil
}
