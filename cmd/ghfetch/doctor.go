package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantmind-br/ghfetch/internal/config"
	"github.com/quantmind-br/ghfetch/internal/ratelimit"
	"github.com/quantmind-br/ghfetch/internal/strategies"
)

// doctorProbeRepo is the public repository used to check git connectivity
const (
	doctorProbeOwner = "git"
	doctorProbeRepo  = "git"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor [owner/repo]",
	Short: "Check system dependencies",
	Long: `Verifies git availability, GitHub API reachability and quota, and the cache directory.

With an owner/repo argument it also checks that the configured token can read
that repository.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		probe := ""
		if len(args) == 1 {
			probe = args[0]
			if _, _, ok := splitRepo(probe); !ok {
				return fmt.Errorf("expected owner/repo, got %q", probe)
			}
		}

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		token, _ := cmd.Flags().GetString("token")

		deps, err := strategies.NewDependencies(strategies.DependencyOptions{
			Timeout:       10 * time.Second,
			MaxRetries:    -1,
			Token:         cfg.ResolveToken(token),
			GitBinary:     cfg.Git.Binary,
			GitMinVersion: cfg.Git.MinVersion,
			Logger:        logger,
		})
		if err != nil {
			return err
		}
		defer deps.Close()

		ctx, cancel := context.WithTimeout(contextOf(cmd), 30*time.Second)
		defer cancel()

		if !runDoctor(ctx, cmd.OutOrStdout(), cfg, deps, probe) {
			return fmt.Errorf("some checks failed")
		}
		return nil
	},
}

// runDoctor prints one line per check and reports whether every critical check passed.
// probe, when set, is an owner/repo whose metadata must be readable.
func runDoctor(ctx context.Context, out io.Writer, cfg *config.Config, deps *strategies.Dependencies, probe string) bool {
	fmt.Fprintln(out, "Checking system dependencies...")
	allPassed := true

	// Check 1: git for sparse checkouts (optional)
	fmt.Fprint(out, "  Git: ")
	if ok, reason := deps.Git.IsAvailable(ctx); ok {
		fmt.Fprintf(out, "OK (%s)\n", deps.Git.Version(ctx))
	} else {
		fmt.Fprintf(out, "UNAVAILABLE (%s; the git strategy is disabled)\n", reason)
	}

	// Check 2: git protocol reachability
	fmt.Fprint(out, "  Git remote: ")
	if head, err := deps.Git.RemoteHead(ctx, doctorProbeOwner, doctorProbeRepo); err == nil {
		fmt.Fprintf(out, "OK (%s/%s HEAD -> %s)\n", doctorProbeOwner, doctorProbeRepo, head)
	} else {
		fmt.Fprintf(out, "WARN (%v)\n", err)
	}

	// Check 3: API quota
	fmt.Fprint(out, "  GitHub API: ")
	snap, err := deps.GitHub.RateLimit(ctx)
	switch {
	case err != nil:
		fmt.Fprintf(out, "FAILED (%v)\n", err)
		allPassed = false
	case snap.Remaining == 0:
		fmt.Fprintf(out, "EXHAUSTED (0/%d, resets %s)\n", snap.Limit, snap.Reset.Format(time.RFC3339))
		allPassed = false
	case ratelimit.ShouldWarn(snap):
		fmt.Fprintf(out, "LOW (%d/%d remaining, resets %s)\n", snap.Remaining, snap.Limit, snap.Reset.Format(time.RFC3339))
	default:
		fmt.Fprintf(out, "OK (%d/%d remaining)\n", snap.Remaining, snap.Limit)
	}

	// Check 4: repository access
	if owner, repo, ok := splitRepo(probe); ok {
		fmt.Fprint(out, "  Repository: ")
		info, err := deps.GitHub.Repository(ctx, owner, repo)
		if err != nil {
			fmt.Fprintf(out, "FAILED (%v)\n", err)
			allPassed = false
		} else {
			visibility := "public"
			if info.Private {
				visibility = "private"
			}
			fmt.Fprintf(out, "OK (%s, %s, default branch %s)\n", info.FullName, visibility, info.DefaultBranch)
		}
	}

	// Check 5: cache directory
	fmt.Fprint(out, "  Cache directory: ")
	if checkCacheDir(cfg.Cache.Directory) {
		fmt.Fprintf(out, "OK (%s)\n", cfg.Cache.Directory)
	} else {
		fmt.Fprintf(out, "WARN (%s will be created on first use)\n", cfg.Cache.Directory)
	}

	fmt.Fprintln(out)
	if allPassed {
		fmt.Fprintln(out, "All critical checks passed!")
	} else {
		fmt.Fprintln(out, "Some checks failed. Please resolve the issues above.")
	}
	return allPassed
}

func splitRepo(s string) (owner, repo string, ok bool) {
	owner, repo, ok = strings.Cut(strings.Trim(s, "/"), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", false
	}
	return owner, repo, true
}

// checkCacheDir checks if the cache directory exists
func checkCacheDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
