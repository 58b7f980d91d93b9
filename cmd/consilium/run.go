package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lorenzotomasdiez/consilium/internal/batch"
	"github.com/lorenzotomasdiez/consilium/internal/checkpoint"
	"github.com/lorenzotomasdiez/consilium/internal/config"
	"github.com/lorenzotomasdiez/consilium/internal/dispatch"
	"github.com/lorenzotomasdiez/consilium/internal/llm"
	"github.com/lorenzotomasdiez/consilium/internal/logging"
	"github.com/lorenzotomasdiez/consilium/internal/output"
	"github.com/lorenzotomasdiez/consilium/internal/pipeline"
	"github.com/lorenzotomasdiez/consilium/internal/selector"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a checkpointed evaluation batch over a question dataset",
		RunE:  runBatch,
	}
	cmd.Flags().String("dataset", "", "Question dataset file, JSON or JSONL (required)")
	cmd.Flags().String("protocol", pipeline.ArchIndependent, "Pipeline protocol: independent or debate")
	cmd.Flags().String("batch-id", "", "Batch identifier (default: new UUID; reuse to resume)")
	cmd.Flags().Bool("verbose", false, "Print debate statements and pipeline stages as they happen")
	cmd.MarkFlagRequired("dataset")
	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	dataset, _ := cmd.Flags().GetString("dataset")
	protocol, _ := cmd.Flags().GetString("protocol")
	batchID, _ := cmd.Flags().GetString("batch-id")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if protocol != pipeline.ArchIndependent && protocol != pipeline.ArchDebate {
		return fmt.Errorf("protocol must be %q or %q, got %q", pipeline.ArchIndependent, pipeline.ArchDebate, protocol)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("API key required: set --api-key, CONSILIUM_API_KEY, or [llm] api_key")
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	questions, err := batch.LoadDataset(dataset)
	if err != nil {
		return err
	}

	if batchID == "" {
		batchID = uuid.NewString()
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := llm.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Model)
	policy := dispatch.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	dispatcher := dispatch.New(client, policy, cfg.Timeout(), logger)

	var exec batch.Executor
	switch protocol {
	case pipeline.ArchIndependent:
		sel := selector.New(dispatcher, cfg.TopK, cfg.Temperatures.Selector, cfg.MaxTokens, logger)
		ie := pipeline.NewIndependentExecutor(dispatcher, sel, cfg.Temperatures, cfg.MaxTokens, cfg.Parallelism, logger)
		if verbose {
			ie.OnStage = func(stage string) { fmt.Printf("  %s\n", stage) }
		}
		exec = ie
	case pipeline.ArchDebate:
		de := pipeline.NewDebateExecutor(dispatcher, cfg.Temperatures, cfg.DebateRounds, cfg.MaxTokens, logger)
		if verbose {
			de.OnStatement = output.PrintStatement
		}
		exec = de
	}

	runner := batch.New(store, exec, logger)
	runner.OnResult = output.PrintResult

	fmt.Printf("Batch: %s | Protocol: %s | Questions: %d | Model: %s\n\n",
		batchID, protocol, len(questions), cfg.Model)

	res, err := runner.Run(ctx, batchID, questions)
	if err != nil {
		return err
	}

	output.PrintSummary(res.Summary)
	if res.Resumed > 0 {
		fmt.Printf("Resumed: %d questions restored from checkpoint\n", res.Resumed)
	}
	return nil
}

func openStore(cfg *config.Config) (checkpoint.Store, error) {
	switch cfg.CheckpointBackend {
	case "sqlite":
		if err := os.MkdirAll(cfg.CheckpointDir, 0o755); err != nil {
			return nil, err
		}
		return checkpoint.NewSQLiteStore(filepath.Join(cfg.CheckpointDir, "checkpoints.db"))
	default:
		return checkpoint.NewJSONLStore(cfg.CheckpointDir)
	}
}
