package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lorenzotomasdiez/consilium/internal/config"
)

func main() {
	config.LoadDotEnv(".env")

	root := &cobra.Command{
		Use:   "consilium",
		Short: "Multi-specialist orchestrator for clinical multiple-choice QA",
		Long:  "Runs checkpointed evaluation batches where a panel of LLM specialists answers clinical multiple-choice questions, either through independent consultations merged by a synthesizer or through a fixed-round adversarial debate settled by a moderator.",
	}

	root.PersistentFlags().String("config", "", "Path to config.toml")
	root.PersistentFlags().String("api-key", "", "API key (overrides CONSILIUM_API_KEY env var)")
	root.PersistentFlags().String("model", "", "Model identifier (overrides config)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newAggregateCmd())
	root.AddCommand(newCatalogCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration for a command,
// applying the persistent flag overrides on top of file and env.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if apiKey, _ := cmd.Root().PersistentFlags().GetString("api-key"); apiKey != "" {
		os.Setenv("CONSILIUM_API_KEY", apiKey)
	}
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if model, _ := cmd.Root().PersistentFlags().GetString("model"); model != "" {
		cfg.Model = model
	}
	return cfg, nil
}
