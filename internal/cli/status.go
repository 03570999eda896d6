package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/runnerr0/attic/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version       string        `json:"version"`
	RetentionDays int           `json:"retention_days"`
	Main          storeStatJSON `json:"main"`
	Archive       storeStatJSON `json:"archive"`
}

type storeStatJSON struct {
	TotalURLs         int64  `json:"total_urls"`
	TotalVisits       int64  `json:"total_visits"`
	OldestVisit       string `json:"oldest_visit,omitempty"`
	NewestVisit       string `json:"newest_visit,omitempty"`
	DatabaseSizeBytes int64  `json:"database_size_bytes"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	env, owned, err := ensureEnv(c.env, c.globals)
	if err != nil {
		return err
	}
	if owned {
		defer env.Close()
	}

	ctx := context.Background()
	mainStats, err := env.Main.Stats(ctx)
	if err != nil {
		return fmt.Errorf("main store stats: %w", err)
	}
	archiveStats, err := env.Archive.Stats(ctx)
	if err != nil {
		return fmt.Errorf("archive store stats: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		out := statusJSON{
			Version:       c.version,
			RetentionDays: env.Config.Retention.Days,
			Main:          toStoreStatJSON(mainStats),
			Archive:       toStoreStatJSON(archiveStats),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Println("Attic Status")
	fmt.Println("============")
	fmt.Printf("Version:    %s\n", c.version)
	fmt.Printf("Retention:  %d days\n", env.Config.Retention.Days)
	fmt.Println()
	printStoreStats("Main store", mainStats)
	fmt.Println()
	printStoreStats("Archive store", archiveStats)
	return nil
}

func toStoreStatJSON(s *storage.Stats) storeStatJSON {
	out := storeStatJSON{
		TotalURLs:         s.TotalURLs,
		TotalVisits:       s.TotalVisits,
		DatabaseSizeBytes: s.DatabaseSizeBytes,
	}
	if s.TotalVisits > 0 {
		out.OldestVisit = s.OldestVisit.UTC().Format(time.RFC3339)
		out.NewestVisit = s.NewestVisit.UTC().Format(time.RFC3339)
	}
	return out
}

func printStoreStats(name string, s *storage.Stats) {
	fmt.Printf("%s:\n", name)
	fmt.Printf("  URLs:    %s\n", formatNumber(s.TotalURLs))
	fmt.Printf("  Visits:  %s\n", formatNumber(s.TotalVisits))
	if s.TotalVisits > 0 {
		fmt.Printf("  Oldest:  %s\n", s.OldestVisit.Local().Format("2006-01-02"))
		fmt.Printf("  Newest:  %s\n", s.NewestVisit.Local().Format("2006-01-02"))
	}
	fmt.Printf("  Size:    %s\n", formatBytes(s.DatabaseSizeBytes))
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
		if len(s) > remainder {
			result.WriteString(",")
		}
	}
	for i := remainder; i < len(s); i += 3 {
		if i > remainder {
			result.WriteString(",")
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}
