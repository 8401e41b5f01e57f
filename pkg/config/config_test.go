package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "bolt", cfg.Storage.Backend)
	assert.Equal(t, "predict", cfg.Image.APIName)
	assert.Equal(t, 240, cfg.Image.MaxPromptChars)
	assert.Equal(t, 5*time.Minute, cfg.GetCompletionTimeout())
	assert.Equal(t, 10*time.Minute, cfg.GetImageTimeout())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server, cfg.Server)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Log, cfg.Log)
}

func TestLoad_YAMLOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eve.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /tmp/eve-test
storage:
  backend: sqlite
log:
  level: debug
image:
  timeout: 90s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/eve-test", cfg.DataDir)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, filepath.Join("/tmp/eve-test", "eve.sqlite"), cfg.StoragePath())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 90*time.Second, cfg.GetImageTimeout())
	assert.Equal(t, "predict", cfg.Image.APIName)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eve.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EVE_DATA_DIR", "/var/lib/eve")
	t.Setenv("EVE_STORAGE_BACKEND", "memory")
	t.Setenv("EVE_STORAGE_PATH", "/var/lib/eve/custom.db")
	t.Setenv("EVE_LOG_LEVEL", "warn")
	t.Setenv("EVE_LOG_FORMAT", "json")
	t.Setenv("EVE_SERVER_ADDR", ":9000")
	t.Setenv("EVE_CORS_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("EVE_IMAGE_API_NAME", "generate")
	t.Setenv("EVE_IMAGE_MAX_PROMPT_CHARS", "120")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/eve", cfg.DataDir)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/eve/custom.db", cfg.StoragePath())
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "generate", cfg.Image.APIName)
	assert.Equal(t, 120, cfg.Image.MaxPromptChars)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides_BadNumber(t *testing.T) {
	t.Setenv("EVE_IMAGE_MAX_PROMPT_CHARS", "lots")

	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }},
		{"unknown level", func(c *Config) { c.Log.Level = "loud" }},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"bad timeout", func(c *Config) { c.Completion.Timeout = "soon" }},
		{"negative prompt cap", func(c *Config) { c.Image.MaxPromptChars = -1 }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "eve.yaml")
	cfg := DefaultConfig()
	cfg.DataDir = "/srv/eve"
	cfg.Storage.Backend = "sqlite"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("EVE_TEST_DOTENV_VALUE=from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("EVE_TEST_DOTENV_VALUE") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-dotenv", os.Getenv("EVE_TEST_DOTENV_VALUE"))
}
