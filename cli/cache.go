package cli

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/danyguancha/soft-eps-v2-sub000/server/cache"
	"github.com/danyguancha/soft-eps-v2-sub000/server/config"
	"github.com/danyguancha/soft-eps-v2-sub000/server/paths"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the content cache",
}

var cacheLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List cached datasets",
	RunE:  runCacheLs,
}

var (
	cleanupMaxAgeDays     int
	cleanupMinAccessCount int64
)

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale low-traffic cache entries",
	RunE:  runCacheCleanup,
}

func init() {
	cacheCleanupCmd.Flags().IntVar(&cleanupMaxAgeDays, "max-age-days", 30, "remove entries older than this")
	cacheCleanupCmd.Flags().Int64Var(&cleanupMinAccessCount, "min-access-count", 1, "only remove entries with at most this many hits")

	cacheCmd.AddCommand(cacheLsCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)
	rootCmd.AddCommand(cacheCmd)
}

// openCache restores the on-disk cache without touching the engine or
// the registry; maintenance commands work offline.
func openCache() (*cache.ContentCache, []*cache.Entry, error) {
	cfg := loadConfig()

	logger, err := config.SetupLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	pm := paths.NewManager(cfg.Storage.DataPath)
	if err := pm.EnsureDirectoryStructure(); err != nil {
		return nil, nil, err
	}

	cc := cache.New(pm, logger)
	entries, err := cc.Restore()
	if err != nil {
		return nil, nil, err
	}
	return cc, entries, nil
}

func runCacheLs(cmd *cobra.Command, args []string) error {
	cc, entries, err := openCache()
	if err != nil {
		return err
	}

	stats := cc.GetStats()

	rows := pterm.TableData{
		{"HASH", "NAME", "ROWS", "COLUMNS", "SIZE", "HITS", "CACHED"},
	}
	for _, entry := range entries {
		rows = append(rows, []string{
			entry.ContentHash,
			entry.OriginalName,
			fmt.Sprintf("%d", entry.TotalRows),
			fmt.Sprintf("%d", len(entry.Columns)),
			formatBytes(entry.CanonicalSize),
			fmt.Sprintf("%d", entry.AccessCount),
			entry.CachedAt.Format("2006-01-02 15:04"),
		})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		return err
	}

	pterm.Printf("\n%d entries, %s canonical (%.1fx compression)\n",
		stats.Entries, formatBytes(stats.TotalCanonicalSize), stats.CompressionRatio)
	return nil
}

func runCacheCleanup(cmd *cobra.Command, args []string) error {
	cc, _, err := openCache()
	if err != nil {
		return err
	}

	result := cc.Cleanup(time.Duration(cleanupMaxAgeDays)*24*time.Hour, cleanupMinAccessCount)
	pterm.Success.Printf("Removed %d entries, freed %s\n", result.Removed, formatBytes(result.BytesFreed))
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for x := n / unit; x >= unit; x /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
