// Package config holds process configuration: where data lives, how to log and
// how to serve. Conversation preferences are not configuration; they live in the store.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Completion CompletionConfig `yaml:"completion"`
	Image      ImageConfig      `yaml:"image"`
}

// StorageConfig selects the session and preference backend
type StorageConfig struct {
	Backend string `yaml:"backend"` // bolt, sqlite or memory
	Path    string `yaml:"path"`    // defaults to a file under DataDir
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// ServerConfig configures `eve serve`
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// CompletionConfig configures the HTTP client used for the chat model
type CompletionConfig struct {
	Timeout string `yaml:"timeout"`
}

// ImageConfig configures the HTTP client used for the image app
type ImageConfig struct {
	APIName        string `yaml:"api_name"`
	MaxPromptChars int    `yaml:"max_prompt_chars"`
	Timeout        string `yaml:"timeout"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Storage: StorageConfig{
			Backend: "bolt",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Addr:        "127.0.0.1:8787",
			CORSOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Completion: CompletionConfig{
			Timeout: "5m",
		},
		Image: ImageConfig{
			APIName:        "predict",
			MaxPromptChars: 240,
			Timeout:        "10m",
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "eve")
	}
	return ".eve"
}

// LoadDotEnv loads .env files into the environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML file at path (if any) over the defaults, then applies
// EVE_* environment overrides. An empty path or a missing file means defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("EVE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("EVE_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("EVE_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("EVE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("EVE_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("EVE_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("EVE_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("EVE_IMAGE_API_NAME"); v != "" {
		c.Image.APIName = v
	}
	if v := os.Getenv("EVE_IMAGE_MAX_PROMPT_CHARS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid EVE_IMAGE_MAX_PROMPT_CHARS %q: %w", v, err)
		}
		c.Image.MaxPromptChars = n
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// StoragePath returns the database file, derived from DataDir when not set
func (c *Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	switch c.Storage.Backend {
	case "sqlite":
		return filepath.Join(c.DataDir, "eve.sqlite")
	default:
		return filepath.Join(c.DataDir, "eve.db")
	}
}

// GetCompletionTimeout returns the chat-model HTTP timeout
func (c *Config) GetCompletionTimeout() time.Duration {
	return parseDuration(c.Completion.Timeout, 5*time.Minute)
}

// GetImageTimeout returns the image-app HTTP timeout
func (c *Config) GetImageTimeout() time.Duration {
	return parseDuration(c.Image.Timeout, 10*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate checks the configuration
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DataDir, validation.Required),
		validation.Field(&c.Storage),
		validation.Field(&c.Log),
		validation.Field(&c.Server),
		validation.Field(&c.Completion),
		validation.Field(&c.Image),
	)
}

// Validate implements validation.Validatable
func (s StorageConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Backend, validation.Required, validation.In("bolt", "sqlite", "memory")),
	)
}

// Validate implements validation.Validatable
func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.Format, validation.In("json", "console")),
	)
}

// Validate implements validation.Validatable
func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
	)
}

// Validate implements validation.Validatable
func (c CompletionConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Timeout, validation.By(durationRule)),
	)
}

// Validate implements validation.Validatable
func (i ImageConfig) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.APIName, validation.Required),
		validation.Field(&i.MaxPromptChars, validation.Min(1)),
		validation.Field(&i.Timeout, validation.By(durationRule)),
	)
}

func durationRule(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.ParseDuration(s); err != nil {
		return fmt.Errorf("must be a duration such as 30s or 5m")
	}
	return nil
}
