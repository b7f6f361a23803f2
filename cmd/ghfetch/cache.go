package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/quantmind-br/ghfetch/internal/cache"
	"github.com/quantmind-br/ghfetch/internal/config"
	"github.com/quantmind-br/ghfetch/internal/output"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached response and staged checkout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := clearCache(contextOf(cmd), cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared (%s)\n", cfg.Cache.Directory)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		return printCacheStats(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
}

func openStore(cfg *config.Config) (*cache.BadgerCache, error) {
	store, err := cache.NewBadgerCache(cache.Options{
		Directory:  cfg.HTTPCacheDir(),
		DefaultTTL: cfg.Cache.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return store, nil
}

// clearCache drops every stored response and removes staged checkouts and archives.
// Partial downloads live next to their destinations and are left alone.
func clearCache(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	clearErr := store.Clear(ctx)
	if err := store.Close(); err != nil && clearErr == nil {
		clearErr = err
	}
	if clearErr != nil {
		return fmt.Errorf("clear cache: %w", clearErr)
	}
	if err := os.RemoveAll(cfg.StagingDir()); err != nil {
		return fmt.Errorf("remove staging directory: %w", err)
	}
	return nil
}

func printCacheStats(out io.Writer, cfg *config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	stats := store.Stats()
	staged, stagedSize, err := output.Stats(cfg.StagingDir())
	if err != nil {
		return fmt.Errorf("read staging directory: %w", err)
	}

	fmt.Fprintf(out, "Directory: %s\n", cfg.Cache.Directory)
	fmt.Fprintf(out, "Enabled:   %t\n", cfg.Cache.Enabled)
	fmt.Fprintf(out, "TTL:       %s\n", cfg.Cache.TTL)
	fmt.Fprintf(out, "Entries:   %v\n", stats["entries"])
	fmt.Fprintf(out, "LSM size:  %v bytes\n", stats["lsm_size"])
	fmt.Fprintf(out, "Vlog size: %v bytes\n", stats["vlog_size"])
	fmt.Fprintf(out, "Staged:    %d files, %d bytes\n", staged, stagedSize)
	return nil
}
