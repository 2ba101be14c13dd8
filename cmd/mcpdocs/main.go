package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mcpdocs/internal/config"
	"mcpdocs/internal/logging"
	"mcpdocs/internal/server"
)

var (
	// Global flags
	verbose bool

	// serve flags
	flagPort              int
	flagHost              string
	flagAll               bool
	flagEmbeddingProvider string
	flagEmbeddingModel    string
	flagHealthPort        int
)

// rootCmd serves the MCP documentation server. Positional arguments narrow
// the set of enabled package configs loaded at startup.
var rootCmd = &cobra.Command{
	Use:   "mcpdocs [packages...]",
	Short: "mcpdocs - semantic documentation search over MCP",
	Long: `mcpdocs ingests rendered package documentation, embeds it with a
configurable provider, stores the vectors in Postgres (pgvector), and
answers natural-language questions over MCP.

Run with package names to serve just those packages, or --all for every
enabled configuration.`,
	Args: cobra.ArbitraryArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(verbose)
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "Protocol bind port (env PORT, default 3000)")
	rootCmd.Flags().StringVar(&flagHost, "host", "", "Bind host (env HOST, default 0.0.0.0)")
	rootCmd.Flags().BoolVarP(&flagAll, "all", "a", false, "Load all enabled package configs")
	rootCmd.Flags().StringVar(&flagEmbeddingProvider, "embedding-provider", "", "Embedding provider: openai or voyage (env EMBEDDING_PROVIDER)")
	rootCmd.Flags().StringVar(&flagEmbeddingModel, "embedding-model", "", "Embedding model name (env EMBEDDING_MODEL)")
	rootCmd.Flags().IntVar(&flagHealthPort, "health-port", 0, "Health probe port (default 8080)")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(populateCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defer logging.Sync()
	return server.Run(ctx, cfg)
}

// loadConfig resolves env + defaults, then layers explicitly set flags on
// top.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.PackageNames = args
	cfg.All = flagAll
	cfg.Verbose = verbose

	if cmd.Flags().Changed("port") {
		cfg.Port = flagPort
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = flagHost
	}
	if cmd.Flags().Changed("embedding-provider") {
		cfg.EmbeddingProvider = flagEmbeddingProvider
	}
	if cmd.Flags().Changed("embedding-model") {
		cfg.EmbeddingModel = flagEmbeddingModel
	}
	if cmd.Flags().Changed("health-port") {
		cfg.HealthPort = flagHealthPort
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// signalContext is a convenience for subcommands that want Ctrl-C handling.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
