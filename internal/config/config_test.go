package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENROUTER_API_KEY",
		"CONSILIUM_BASE_URL",
		"CONSILIUM_API_KEY",
		"CONSILIUM_MODEL",
		"CONSILIUM_MAX_RETRIES",
		"CONSILIUM_TIMEOUT_SECONDS",
		"CONSILIUM_MAX_TOKENS",
		"CONSILIUM_PARALLELISM",
		"CONSILIUM_TOP_K",
		"CONSILIUM_DEBATE_ROUNDS",
		"CONSILIUM_CHECKPOINT_BACKEND",
		"CONSILIUM_CHECKPOINT_DIR",
		"CONSILIUM_LOG_LEVEL",
		"CONSILIUM_LOG_FILE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONSILIUM_API_KEY", "test-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.APIKey)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultTopK, cfg.TopK)
	assert.Equal(t, DefaultDebateRounds, cfg.DebateRounds)
	assert.Equal(t, "jsonl", cfg.CheckpointBackend)
	assert.Equal(t, 0.7, cfg.Temperatures.Specialist)
	assert.Equal(t, 0.0, cfg.Temperatures.Selector)
}

func TestLoadTOMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[llm]
base_url = "http://localhost:11434/v1"
api_key = "file-key"
model = "llama3"

[budgets]
max_retries = 5
timeout_seconds = 30
parallelism = 2

[temperatures]
specialist = 0.0
debater = 0.9

[selection]
top_k = 5

[debate]
rounds = 4

[checkpoint]
backend = "sqlite"
dir = "/tmp/ckpt"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434/v1", cfg.BaseURL)
	assert.Equal(t, "file-key", cfg.APIKey)
	assert.Equal(t, "llama3", cfg.Model)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 30, cfg.TimeoutSeconds)
	assert.Equal(t, 2, cfg.Parallelism)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 4, cfg.DebateRounds)
	assert.Equal(t, "sqlite", cfg.CheckpointBackend)
	assert.Equal(t, "/tmp/ckpt", cfg.CheckpointDir)

	// An explicit 0.0 in the file must override the warm default.
	assert.Equal(t, 0.0, cfg.Temperatures.Specialist)
	assert.Equal(t, 0.9, cfg.Temperatures.Debater)
	// Unset stages keep their defaults.
	assert.Equal(t, 0.0, cfg.Temperatures.Moderator)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[llm]
api_key = "file-key"
model = "file-model"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONSILIUM_MODEL", "env-model")
	t.Setenv("CONSILIUM_TOP_K", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.APIKey)
	assert.Equal(t, "env-model", cfg.Model)
	assert.Equal(t, 7, cfg.TopK)
}

func TestLoadOpenRouterKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "or-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "or-key", cfg.APIKey)
}

func TestLoadRejectsBadBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONSILIUM_API_KEY", "k")
	t.Setenv("CONSILIUM_CHECKPOINT_BACKEND", "postgres")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend")
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"CONSILIUM_TOP_K":           "0",
		"CONSILIUM_DEBATE_ROUNDS":   "0",
		"CONSILIUM_TIMEOUT_SECONDS": "-1",
		"CONSILIUM_PARALLELISM":     "0",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("CONSILIUM_API_KEY", "k")
			t.Setenv(key, val)
			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONSILIUM_API_KEY", "k")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cfg.Model)
}

func TestLoadDotEnvSetsVarsFromFile(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CONSILIUM_API_KEY=from-dotenv\n# comment\nCONSILIUM_MODEL=dotenv-model\n"), 0o644))

	require.NoError(t, LoadDotEnv(envFile))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.APIKey)
	assert.Equal(t, "dotenv-model", cfg.Model)
}

func TestLoadDotEnvEnvVarsTakePrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONSILIUM_API_KEY", "from-env")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CONSILIUM_API_KEY=from-dotenv\n"), 0o644))
	require.NoError(t, LoadDotEnv(envFile))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKey)
}

func TestLoadDotEnvMissingFileIsNotError(t *testing.T) {
	require.NoError(t, LoadDotEnv("/nonexistent/.env"))
}
