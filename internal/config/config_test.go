package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.AppEnv)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.ProviderBaseURL)
	assert.Equal(t, []string{
		"google/gemini-2.0-flash-001",
		"google/gemini-flash-1.5",
		"meta-llama/llama-3.1-70b-instruct",
	}, cfg.Models)
	assert.Equal(t, 60*time.Second, cfg.AttemptTimeout)
	assert.Equal(t, 20, cfg.UserRateLimitPerMin)
	assert.Equal(t, 1024, cfg.MaxReplyTokens)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PROVIDER_API_KEYS", "sk-a,sk-b,sk-c")
	t.Setenv("MODELS", "m1,m2")
	t.Setenv("ATTEMPT_TIMEOUT", "5s")
	t.Setenv("USER_RATE_LIMIT_PER_MIN", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProd())
	assert.Equal(t, []string{"sk-a", "sk-b", "sk-c"}, cfg.ProviderAPIKeys)
	assert.Equal(t, []string{"m1", "m2"}, cfg.Models)
	assert.Equal(t, 5*time.Second, cfg.AttemptTimeout)
	assert.Equal(t, 5, cfg.UserRateLimitPerMin)
}

func TestGetRetryPacing_TestModeIsFast(t *testing.T) {
	cfg := Config{
		AppEnv:               "test",
		RetryInitialInterval: 500 * time.Millisecond,
		RetryMaxInterval:     10 * time.Second,
		RetryMultiplier:      2.0,
	}
	initial, max, mult := cfg.GetRetryPacing()
	assert.Equal(t, 10*time.Millisecond, initial)
	assert.Equal(t, 100*time.Millisecond, max)
	assert.Equal(t, 2.0, mult)

	cfg.AppEnv = "prod"
	initial, max, _ = cfg.GetRetryPacing()
	assert.Equal(t, 500*time.Millisecond, initial)
	assert.Equal(t, 10*time.Second, max)
}

func TestResolveModels_EnvChainByDefault(t *testing.T) {
	cfg := Config{Models: []string{"m1", "m2"}}
	models, err := cfg.ResolveModels()
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, models)
}

func TestResolveModels_FileOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models:\n  - file/primary\n  - file/fallback\n"), 0o600))

	cfg := Config{Models: []string{"env/ignored"}, ModelsFile: path}
	models, err := cfg.ResolveModels()
	require.NoError(t, err)
	assert.Equal(t, []string{"file/primary", "file/fallback"}, models)
}

func TestResolveModels_EmptyFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models: []\n"), 0o600))

	cfg := Config{Models: []string{"env/ignored"}, ModelsFile: path}
	_, err := cfg.ResolveModels()
	require.Error(t, err)
}

func TestResolveModels_MissingFileIsAnError(t *testing.T) {
	cfg := Config{ModelsFile: filepath.Join(t.TempDir(), "nope.yaml")}
	_, err := cfg.ResolveModels()
	require.Error(t, err)
}
