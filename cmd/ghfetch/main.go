package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quantmind-br/ghfetch/internal/app"
	"github.com/quantmind-br/ghfetch/internal/config"
	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/manifest"
	"github.com/quantmind-br/ghfetch/internal/utils"
	"github.com/quantmind-br/ghfetch/pkg/version"
)

var (
	cfgFile string
	verbose bool

	// Dependencies for testing
	stderr       io.Writer = os.Stderr
	isTerminal             = func() bool { return isatty.IsTerminal(os.Stderr.Fd()) }
	notifySignal           = signal.Notify
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ghfetch [url...]",
	Short: "Download files and directories from GitHub without cloning",
	Long: `ghfetch downloads a single file, a directory subtree or a whole repository
from a GitHub browsing URL (.../blob/<ref>/<path> or .../tree/<ref>/<path>).

It picks the cheapest retrieval mechanism (REST API, sparse git checkout or
archive download), caches API responses, resumes interrupted transfers and
never writes outside the output directory.`,
	Version:       version.Short(),
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ~/.ghfetch/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	flags.String("token", "", "GitHub token (default: $GITHUB_TOKEN, then $GH_TOKEN)")
	flags.Bool("no-cache", false, "Bypass the response cache for this run")

	rootCmd.Flags().StringP("output", "o", "", "Output directory (default: derived from the URL)")
	rootCmd.Flags().IntP("parallel", "p", config.DefaultWorkers, "Number of concurrent transfers")
	rootCmd.Flags().String("strategy", config.DefaultStrategy, "Retrieval strategy: api, git, zip or auto")
	rootCmd.Flags().BoolP("force", "f", false, "Overwrite existing files without asking")
	rootCmd.Flags().Bool("clear-cache", false, "Remove every cached response before running")
	rootCmd.Flags().StringP("manifest", "m", "", "Manifest file listing sources (.yaml, .json or .toml)")
	rootCmd.Flags().String("report", "", "Write a JSON report of every file to this path")
	rootCmd.Flags().Duration("timeout", config.DefaultTimeout, "Per-request timeout")

	// Bind flags to viper
	_ = viper.BindPFlag("output.directory", rootCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("output.force", rootCmd.Flags().Lookup("force"))
	_ = viper.BindPFlag("output.report", rootCmd.Flags().Lookup("report"))
	_ = viper.BindPFlag("concurrency.workers", rootCmd.Flags().Lookup("parallel"))
	_ = viper.BindPFlag("concurrency.timeout", rootCmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("strategy", rootCmd.Flags().Lookup("strategy"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig loads the configuration and builds the logger every command shares
func loadConfig() (*config.Config, *utils.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := utils.NewLogger(utils.LoggerOptions{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Output:  stderr,
		Verbose: verbose,
	})
	return cfg, logger, nil
}

func run(cmd *cobra.Command, args []string) error {
	manifestPath, _ := cmd.Flags().GetString("manifest")
	clearFirst, _ := cmd.Flags().GetBool("clear-cache")

	if len(args) == 0 && manifestPath == "" && !clearFirst {
		return cmd.Help()
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	if clearFirst {
		if err := clearCache(contextOf(cmd), cfg); err != nil {
			return err
		}
		logger.Info().Str("directory", cfg.Cache.Directory).Msg("Cache cleared")
		if len(args) == 0 && manifestPath == "" {
			return nil
		}
	}

	var m *manifest.Config
	if manifestPath != "" {
		m, err = manifest.NewLoader().Load(manifestPath)
		if err != nil {
			return fmt.Errorf("failed to load manifest: %w", err)
		}
		for _, u := range args {
			m.Sources = append(m.Sources, manifest.Source{URL: u})
		}
	}

	token, _ := cmd.Flags().GetString("token")
	noCache, _ := cmd.Flags().GetBool("no-cache")

	var progress io.Writer
	if isTerminal() && !verbose {
		progress = stderr
	}

	orchestrator, err := app.NewOrchestrator(app.OrchestratorOptions{
		CommonOptions: domain.CommonOptions{
			Verbose: verbose,
			NoCache: noCache,
			Token:   token,
		},
		Config:   cfg,
		Progress: progress,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer orchestrator.Close()

	ctx, cancel := context.WithCancel(contextOf(cmd))
	defer cancel()
	stop := handleSignals(orchestrator, cancel, logger)
	defer stop()

	if m != nil {
		return orchestrator.RunManifest(ctx, m)
	}
	return orchestrator.Run(ctx, args)
}

// stopper is what the first interrupt stops
type stopper interface {
	Stop()
}

// handleSignals stops new transfers on the first interrupt and cancels the
// running ones on the second. Partial files stay in place for the next run.
func handleSignals(s stopper, cancel context.CancelFunc, logger *utils.Logger) func() {
	sigCh := make(chan os.Signal, 2)
	notifySignal(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}
		logger.Warn().Msg("Interrupted: finishing running transfers, press Ctrl+C again to abort")
		s.Stop()

		select {
		case <-sigCh:
		case <-done:
			return
		}
		logger.Warn().Msg("Aborting; partial files are kept for resume")
		cancel()
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Full())
	},
}
