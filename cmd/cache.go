// File: cmd/cache.go

package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"hindsight/internal/cache"
	"hindsight/internal/observability"
)

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the analysis result cache",
	}
	cacheCmd.AddCommand(newCacheClearCmd(), newCacheStatsCmd(), newCacheCleanupCmd())
	return cacheCmd
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			if err := c.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	}
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache entry counts and size on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			stats, err := c.Stats()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			names := make([]string, 0, len(stats))
			for ns := range stats {
				names = append(names, ns)
			}
			sort.Strings(names)
			var totalEntries int
			var totalBytes int64
			for _, ns := range names {
				s := stats[ns]
				fmt.Fprintf(out, "%-13s %d entries, %d bytes\n", ns+":", s.Entries, s.Bytes)
				totalEntries += s.Entries
				totalBytes += s.Bytes
			}
			fmt.Fprintf(out, "%-13s %d entries, %d bytes\n", "total:", totalEntries, totalBytes)
			return nil
		},
	}
}

func newCacheCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			removed, err := c.CleanupExpired()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries\n", removed)
			return nil
		},
	}
}

func openCache() (*cache.Cache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cache.New(cfg.Cache.Dir, cfg.Cache.TTL, cfg.Cache.MemoryEntries, observability.GetLogger())
}
