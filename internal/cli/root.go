// Package cli wires the review engine into cobra commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parable-ai/coderev/internal/config"
	"github.com/parable-ai/coderev/internal/logging"
	"github.com/parable-ai/coderev/internal/pattern"
	"github.com/parable-ai/coderev/internal/provider"
	"github.com/parable-ai/coderev/internal/review"
	"github.com/parable-ai/coderev/internal/store"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "coderev",
	Short: "Prioritized code review with team-aware scoring",
	Long: `coderev analyzes a file or diff with deterministic and LLM-backed
analyzers, scores the findings against your team's acceptance history, and
prints a prioritized review.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config file")
	rootCmd.PersistentFlags().Bool("debug", false, "verbose logging")

	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}
	return cfg, logging.New(cfg.Debug), nil
}

// buildEngine assembles the engine from config. The store is best-effort:
// if it cannot be opened, reviews run against in-memory pattern state. The
// returned closer releases the store handle.
func buildEngine(cfg config.Config, withLLM bool, log *zap.Logger) (*review.Engine, func(), error) {
	deps := review.Deps{Logger: log}

	closer := func() {}
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: store unavailable (%v); running without persistence\n", err)
		deps.Patterns = pattern.NewMemory()
	} else {
		deps.Patterns = db
		deps.DB = db
		closer = func() { db.Close() }
	}

	if withLLM {
		p, err := provider.New(cfg.Provider.Name, provider.Options{
			Model:   cfg.Provider.Model,
			BaseURL: cfg.Provider.BaseURL,
		})
		if err != nil {
			closer()
			return nil, nil, fmt.Errorf("configuring provider: %w", err)
		}
		deps.Provider = p
	}

	return review.NewEngine(cfg, deps), closer, nil
}
