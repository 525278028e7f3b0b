package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/config"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/manifest"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	Long: `View the history of deploy, tune, and train operations.

The manifest stores a record of every operation modelsmith performs,
including sweep outcomes and the committed tensor parallel degree.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of a specific operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean up old history entries",
	Long:  `Remove history entries older than the retention period.`,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

func getManifest() (*manifest.Manifest, int, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, 0, fmt.Errorf("load configuration: %w", err)
	}
	m, err := manifest.New(cfg.Manifest.Path)
	if err != nil {
		return nil, 0, err
	}
	return m, cfg.Manifest.RetentionDays, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	m, _, err := getManifest()
	if err != nil {
		return err
	}

	entries, err := m.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(entries) == 0 {
		printInfo("No history entries found.")
		return nil
	}

	fmt.Printf("\n%-44s  %-8s  %-20s  %-10s\n", "ID", "TYPE", "MODEL", "OUTCOME")
	fmt.Println(strings.Repeat("-", 90))
	for _, entry := range entries {
		fmt.Printf("%-44s  %-8s  %-20s  %-10s\n",
			truncateString(entry.ID, 44),
			entry.Operation,
			truncateString(entry.Model, 20),
			entry.Outcome,
		)
	}
	fmt.Println(strings.Repeat("-", 90))
	fmt.Printf("\nShowing %d entries. Use --limit to see more.\n", len(entries))
	fmt.Println("Use 'modelsmith history show <id>' for details on a specific entry.")
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	m, _, err := getManifest()
	if err != nil {
		return err
	}

	entry, err := m.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}

	fmt.Println("\nOperation Details")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("ID:         %s\n", entry.ID)
	fmt.Printf("Timestamp:  %s\n", entry.Timestamp.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Operation:  %s\n", entry.Operation)
	fmt.Printf("Model:      %s\n", entry.Model)
	fmt.Printf("Mode:       %s\n", entry.Mode)
	fmt.Printf("Outcome:    %s\n", entry.Outcome)
	fmt.Printf("Duration:   %s\n", entry.Duration.Round(time.Millisecond))
	if entry.Error != "" {
		fmt.Printf("Error:      %s\n", entry.Error)
	}
	if entry.Tune != nil {
		fmt.Println("\nSweep")
		fmt.Println(strings.Repeat("-", 60))
		fmt.Printf("Parameter:  %s\n", entry.Tune.Parameter)
		fmt.Printf("Candidates: %v\n", entry.Tune.Candidates)
		fmt.Printf("Attempted:  %d\n", entry.Tune.Attempted)
		if entry.Tune.Winner > 0 {
			fmt.Printf("Winner:     %d\n", entry.Tune.Winner)
		} else {
			fmt.Println("Winner:     (configuration unchanged)")
		}
	}
	return nil
}

func runHistoryClean(cmd *cobra.Command, args []string) error {
	m, retention, err := getManifest()
	if err != nil {
		return err
	}
	if err := m.Cleanup(retention); err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}
	printInfo("Removed entries older than %d days.", retention)
	return nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
