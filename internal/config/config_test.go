package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.ParallelJobs)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.Sentry.Enabled)
	assert.Equal(t, "item", cfg.Search.PostType)
	assert.Equal(t, "testing", cfg.Trusted.Environment)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LANTERN_LOG_LEVEL", "debug")
	t.Setenv("LANTERN_PARALLEL_JOBS", "8")
	t.Setenv("LANTERN_BASE_URL", "https://data.bas.ac.uk/")
	t.Setenv("LANTERN_STORE_GITLAB_ENDPOINT", "https://gitlab.example.com/api/v4")
	t.Setenv("LANTERN_STORE_GITLAB_BRANCH", "main")
	t.Setenv("LANTERN_ENABLE_FEATURE_SENTRY", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 8, cfg.ParallelJobs)
	assert.Equal(t, "https://data.bas.ac.uk", cfg.BaseURL, "trailing slash stripped")
	assert.Equal(t, "data.bas.ac.uk", cfg.CatalogueHost())
	assert.Equal(t, "main", cfg.Store.Branch)
	assert.True(t, cfg.Sentry.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "zero parallel jobs",
			mutate:  func(c *Config) { c.ParallelJobs = 0 },
			wantErr: "parallel jobs",
		},
		{
			name:    "relative base url",
			mutate:  func(c *Config) { c.BaseURL = "data.bas.ac.uk" },
			wantErr: "absolute URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{ParallelJobs: 1, BaseURL: "https://data.bas.ac.uk"}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	overrides := "parallel_jobs: 4\nbase_url: https://data.example.test\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lantern.yml"), []byte(overrides), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.ParallelJobs)
	assert.Equal(t, "https://data.example.test", cfg.BaseURL)
}
