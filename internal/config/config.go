// Package config loads runtime configuration from an optional TOML
// file, environment variables, and defaults, in increasing order of
// precedence for the environment.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/lorenzotomasdiez/consilium/internal/pipeline"
)

const (
	DefaultBaseURL        = "https://openrouter.ai/api/v1"
	DefaultModel          = "deepseek/deepseek-chat-v3-0324"
	DefaultTopK           = 3
	DefaultDebateRounds   = 3
	DefaultMaxRetries     = 2
	DefaultTimeoutSeconds = 120
	DefaultMaxTokens      = 2048
	DefaultParallelism    = 4
	DefaultCheckpointDir  = "checkpoints"
)

// Config holds everything the commands need to build a run.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	MaxRetries     int
	TimeoutSeconds int
	MaxTokens      int
	Parallelism    int

	Temperatures pipeline.Temperatures

	TopK         int
	DebateRounds int

	CheckpointBackend string // "jsonl" or "sqlite"
	CheckpointDir     string

	LogLevel string
	LogFile  string
}

type fileConfig struct {
	LLM struct {
		BaseURL string `toml:"base_url"`
		APIKey  string `toml:"api_key"`
		Model   string `toml:"model"`
	} `toml:"llm"`
	Budgets struct {
		MaxRetries     int `toml:"max_retries"`
		TimeoutSeconds int `toml:"timeout_seconds"`
		MaxTokens      int `toml:"max_tokens"`
		Parallelism    int `toml:"parallelism"`
	} `toml:"budgets"`
	Temperatures struct {
		Selector    *float64 `toml:"selector"`
		Specialist  *float64 `toml:"specialist"`
		Synthesizer *float64 `toml:"synthesizer"`
		Debater     *float64 `toml:"debater"`
		Moderator   *float64 `toml:"moderator"`
	} `toml:"temperatures"`
	Selection struct {
		TopK int `toml:"top_k"`
	} `toml:"selection"`
	Debate struct {
		Rounds int `toml:"rounds"`
	} `toml:"debate"`
	Checkpoint struct {
		Backend string `toml:"backend"`
		Dir     string `toml:"dir"`
	} `toml:"checkpoint"`
	Logging struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"logging"`
}

// Load builds a Config from the TOML file at path (skipped when path
// is empty or missing), then applies CONSILIUM_* environment
// overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := &Config{
		BaseURL:           DefaultBaseURL,
		Model:             DefaultModel,
		MaxRetries:        DefaultMaxRetries,
		TimeoutSeconds:    DefaultTimeoutSeconds,
		MaxTokens:         DefaultMaxTokens,
		Parallelism:       DefaultParallelism,
		Temperatures:      pipeline.DefaultTemperatures(),
		TopK:              DefaultTopK,
		DebateRounds:      DefaultDebateRounds,
		CheckpointBackend: "jsonl",
		CheckpointDir:     DefaultCheckpointDir,
		LogLevel:          "info",
	}

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var parsed fileConfig
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if parsed.LLM.BaseURL != "" {
		c.BaseURL = parsed.LLM.BaseURL
	}
	if parsed.LLM.APIKey != "" {
		c.APIKey = parsed.LLM.APIKey
	}
	if parsed.LLM.Model != "" {
		c.Model = parsed.LLM.Model
	}
	if parsed.Budgets.MaxRetries > 0 {
		c.MaxRetries = parsed.Budgets.MaxRetries
	}
	if parsed.Budgets.TimeoutSeconds > 0 {
		c.TimeoutSeconds = parsed.Budgets.TimeoutSeconds
	}
	if parsed.Budgets.MaxTokens > 0 {
		c.MaxTokens = parsed.Budgets.MaxTokens
	}
	if parsed.Budgets.Parallelism > 0 {
		c.Parallelism = parsed.Budgets.Parallelism
	}
	// Pointers distinguish "absent" from an explicit zero: pinning a
	// stage to temperature 0.0 must be expressible.
	if t := parsed.Temperatures.Selector; t != nil {
		c.Temperatures.Selector = *t
	}
	if t := parsed.Temperatures.Specialist; t != nil {
		c.Temperatures.Specialist = *t
	}
	if t := parsed.Temperatures.Synthesizer; t != nil {
		c.Temperatures.Synthesizer = *t
	}
	if t := parsed.Temperatures.Debater; t != nil {
		c.Temperatures.Debater = *t
	}
	if t := parsed.Temperatures.Moderator; t != nil {
		c.Temperatures.Moderator = *t
	}
	if parsed.Selection.TopK > 0 {
		c.TopK = parsed.Selection.TopK
	}
	if parsed.Debate.Rounds > 0 {
		c.DebateRounds = parsed.Debate.Rounds
	}
	if parsed.Checkpoint.Backend != "" {
		c.CheckpointBackend = parsed.Checkpoint.Backend
	}
	if parsed.Checkpoint.Dir != "" {
		c.CheckpointDir = parsed.Checkpoint.Dir
	}
	if parsed.Logging.Level != "" {
		c.LogLevel = parsed.Logging.Level
	}
	if parsed.Logging.File != "" {
		c.LogFile = parsed.Logging.File
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CONSILIUM_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("CONSILIUM_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" && c.APIKey == "" {
		c.APIKey = v
	}
	if v := os.Getenv("CONSILIUM_MODEL"); v != "" {
		c.Model = v
	}
	if v, ok := envInt("CONSILIUM_MAX_RETRIES"); ok {
		c.MaxRetries = v
	}
	if v, ok := envInt("CONSILIUM_TIMEOUT_SECONDS"); ok {
		c.TimeoutSeconds = v
	}
	if v, ok := envInt("CONSILIUM_MAX_TOKENS"); ok {
		c.MaxTokens = v
	}
	if v, ok := envInt("CONSILIUM_PARALLELISM"); ok {
		c.Parallelism = v
	}
	if v, ok := envInt("CONSILIUM_TOP_K"); ok {
		c.TopK = v
	}
	if v, ok := envInt("CONSILIUM_DEBATE_ROUNDS"); ok {
		c.DebateRounds = v
	}
	if v := os.Getenv("CONSILIUM_CHECKPOINT_BACKEND"); v != "" {
		c.CheckpointBackend = v
	}
	if v := os.Getenv("CONSILIUM_CHECKPOINT_DIR"); v != "" {
		c.CheckpointDir = v
	}
	if v := os.Getenv("CONSILIUM_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CONSILIUM_LOG_FILE"); v != "" {
		c.LogFile = v
	}
}

// Validate verifies the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("config: llm base_url is empty")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("config: llm model is empty")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries cannot be negative, got %d", c.MaxRetries)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("config: max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("config: parallelism must be >= 1, got %d", c.Parallelism)
	}
	if c.TopK < 1 {
		return fmt.Errorf("config: top_k must be >= 1, got %d", c.TopK)
	}
	if c.DebateRounds < 1 {
		return fmt.Errorf("config: debate rounds must be >= 1, got %d", c.DebateRounds)
	}
	switch c.CheckpointBackend {
	case "jsonl", "sqlite":
	default:
		return fmt.Errorf("config: checkpoint backend must be jsonl or sqlite, got %q", c.CheckpointBackend)
	}
	for _, t := range []float64{
		c.Temperatures.Selector, c.Temperatures.Specialist,
		c.Temperatures.Synthesizer, c.Temperatures.Debater,
		c.Temperatures.Moderator,
	} {
		if t < 0 || t > 2 {
			return fmt.Errorf("config: temperature %v out of range [0, 2]", t)
		}
	}
	return nil
}

// Timeout returns the per-call timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LoadDotEnv reads KEY=VALUE lines from path into the environment,
// without overriding variables already set. A missing file is not an
// error.
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: opening .env: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
	return scanner.Err()
}

func envInt(key string) (int, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
