package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/systemshift/graphchat/internal/config"
	"github.com/systemshift/graphchat/internal/logging"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	// Global flags
	configPath string
	userFlag   string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "graphchat",
	Short: "Graph QA chat over a Neo4j knowledge graph",
	Long: `graphchat answers natural-language questions about a Neo4j knowledge graph.

Each question is turned into a read-only Cypher query by a language model, run
against the graph, and answered from the results. Every user's questions are
counted, and the most frequent ones are offered back as one-click choices.

Run without arguments to start the interactive terminal chat.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runChat,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "graphchat", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("GRAPHCHAT_CONFIG"), "path to YAML config file")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "user id for history (default: admin)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, chatCmd, topCmd, historyCmd, feedbackCmd, mcpCmd, summarizeCmd, initConfigCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// currentUser is the history owner for terminal and tool commands.
func currentUser() string {
	if userFlag != "" {
		return userFlag
	}
	if v := os.Getenv("GRAPHCHAT_USER"); v != "" {
		return v
	}
	return "admin"
}
