// Package config resolves archpipe's runtime configuration.
//
// Resolution order (later wins):
//  1. Built-in defaults (Default)
//  2. <data_dir>/config.yaml, when present
//  3. Environment variables, after loading a .env file from the working directory
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend selects the reasoning implementation behind the agents.
type Backend string

const (
	BackendGemini Backend = "gemini"
	BackendFake   Backend = "fake"
)

// ConfigFile is the optional YAML file read from the data directory.
const ConfigFile = "config.yaml"

// Environment variable names.
const (
	EnvDataDir         = "ARCHPIPE_DATA_DIR"
	EnvLogMode         = "ARCHPIPE_LOG_MODE"
	EnvBackend         = "ARCHPIPE_BACKEND"
	EnvArchitectModel  = "ARCHPIPE_ARCHITECT_MODEL"
	EnvPlannerModel    = "ARCHPIPE_PLANNER_MODEL"
	EnvReasonerTimeout = "ARCHPIPE_REASONER_TIMEOUT"
	EnvAuditLimit      = "ARCHPIPE_AUDIT_LIMIT"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
)

// Config holds everything the composition root needs.
type Config struct {
	DataDir         string        `yaml:"data_dir"`
	LogMode         string        `yaml:"log_mode"`
	Backend         Backend       `yaml:"backend"`
	ArchitectModel  string        `yaml:"architect_model"`
	PlannerModel    string        `yaml:"planner_model"`
	ReasonerTimeout time.Duration `yaml:"reasoner_timeout"`
	AuditQueryLimit int           `yaml:"audit_query_limit"`

	// GeminiAPIKey is only read from the environment, never from YAML.
	GeminiAPIKey string `yaml:"-"`
}

// Default returns the built-in configuration. The architect runs on the
// larger model for complex reasoning; the planner runs on the faster one.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:         filepath.Join(home, ".archpipe"),
		LogMode:         "dev",
		Backend:         BackendGemini,
		ArchitectModel:  "gemini-2.5-pro",
		PlannerModel:    "gemini-2.5-flash",
		ReasonerTimeout: 2 * time.Minute,
		AuditQueryLimit: 20,
	}
}

// Load resolves the configuration from defaults, the YAML file in the data
// directory and the environment, then validates it.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := Default()
	if dir := os.Getenv(EnvDataDir); dir != "" {
		cfg.DataDir = dir
	}

	if err := cfg.loadFile(filepath.Join(cfg.DataDir, ConfigFile)); err != nil {
		return Config{}, err
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile overlays the YAML file onto c. A missing file is not an error.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables onto c.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvLogMode); v != "" {
		c.LogMode = v
	}
	if v := os.Getenv(EnvBackend); v != "" {
		c.Backend = Backend(strings.ToLower(strings.TrimSpace(v)))
	}
	if v := os.Getenv(EnvArchitectModel); v != "" {
		c.ArchitectModel = v
	}
	if v := os.Getenv(EnvPlannerModel); v != "" {
		c.PlannerModel = v
	}
	if v := os.Getenv(EnvReasonerTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvReasonerTimeout, err)
		}
		c.ReasonerTimeout = d
	}
	if v := os.Getenv(EnvAuditLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAuditLimit, err)
		}
		c.AuditQueryLimit = n
	}
	c.GeminiAPIKey = os.Getenv(EnvGeminiAPIKey)
	return nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir is required")
	}
	switch c.Backend {
	case BackendGemini, BackendFake:
	default:
		return fmt.Errorf("invalid backend %q: must be one of: gemini, fake", c.Backend)
	}
	if c.ReasonerTimeout <= 0 {
		return fmt.Errorf("reasoner_timeout must be positive, got %s", c.ReasonerTimeout)
	}
	if c.AuditQueryLimit <= 0 {
		return fmt.Errorf("audit_query_limit must be positive, got %d", c.AuditQueryLimit)
	}
	if c.Backend == BackendGemini {
		if c.ArchitectModel == "" || c.PlannerModel == "" {
			return fmt.Errorf("architect_model and planner_model are required for the gemini backend")
		}
	}
	return nil
}
