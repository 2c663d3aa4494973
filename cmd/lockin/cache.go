package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/lockin/internal/ui"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the known-distraction cache of a profile",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached distractions",
	RunE:  runCacheList,
}

var cacheAddCmd = &cobra.Command{
	Use:   "add <process> <title>",
	Short: "Mark a window as a distraction",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runCacheAdd,
}

var cacheRemoveCmd = &cobra.Command{
	Use:   "remove <process> <title>",
	Short: "Forget a cached distraction",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runCacheRemove,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every cached distraction",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheAddCmd)
	cacheCmd.AddCommand(cacheRemoveCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	cache := a.cache(a.profileName())
	entries := cache.Entries()
	if len(entries) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no cached distractions for profile %s\n", a.profileName())
		return nil
	}

	t := ui.NewTable(cmd.OutOrStdout(), []string{"Process", "Title"})
	for _, e := range entries {
		t.AddRow(e.Process, e.Title)
	}
	t.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d entries in %s\n", len(entries), cache.Path())
	return nil
}

func runCacheAdd(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	title := strings.Join(args[1:], " ")
	if err := a.cache(a.profileName()).Add(args[0], title); err != nil {
		return err
	}
	ui.Success(cmd.OutOrStdout(), "cached %s / %q", args[0], title)
	return nil
}

func runCacheRemove(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	title := strings.Join(args[1:], " ")
	if err := a.cache(a.profileName()).Remove(args[0], title); err != nil {
		return err
	}
	ui.Success(cmd.OutOrStdout(), "removed %s / %q", args[0], title)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	cache := a.cache(a.profileName())
	n := cache.Count()
	if err := cache.Clear(); err != nil {
		return err
	}
	ui.Success(cmd.OutOrStdout(), "cleared %d entries", n)
	return nil
}
