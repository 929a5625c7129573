// Package config loads the shared run configuration for the fetch, analyze,
// and report commands from a YAML file, with environment overrides for the
// values that differ between machines.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the commands look when -config is not passed.
const DefaultPath = "amirabot.yaml"

// Config is the file-level run configuration. Command-line flags override
// these values per invocation.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Judge    JudgeConfig    `yaml:"judge"`
	Paths    PathsConfig    `yaml:"paths"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// APIConfig points at the conversation API.
type APIConfig struct {
	BaseURL   string `yaml:"base_url"`
	PageLimit int    `yaml:"page_limit"`
	MaxPages  int    `yaml:"max_pages"`
}

// JudgeConfig configures the LLM judge.
type JudgeConfig struct {
	Model          string `yaml:"model"`
	MaxConcurrency int    `yaml:"max_concurrency"`
	MaxRetries     int    `yaml:"max_retries"`
}

// PathsConfig names the on-disk locations the pipeline reads and writes.
type PathsConfig struct {
	ConversationsDir string `yaml:"conversations_dir"`
	AnalysesDir      string `yaml:"analyses_dir"`
	StorePath        string `yaml:"store_path"`
	OutputDir        string `yaml:"output_dir"`
}

// AnalysisConfig holds analysis-time toggles.
type AnalysisConfig struct {
	NoCacheConversations bool `yaml:"no_cache_conversations"`
	NoCacheAnalyses      bool `yaml:"no_cache_analyses"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		API: APIConfig{
			PageLimit: 100,
			MaxPages:  5,
		},
		Judge: JudgeConfig{
			Model:          "gpt-5-mini",
			MaxConcurrency: 500,
			MaxRetries:     4,
		},
		Paths: PathsConfig{
			ConversationsDir: "conversations",
			AnalysesDir:      "conversation_analyses",
			StorePath:        "conversations.db",
			OutputDir:        "output",
		},
	}
}

// Load reads path, falling back to defaults when the file does not exist,
// then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// Environment overrides, one variable per machine-dependent value.
func (c *Config) applyEnv() {
	if v := os.Getenv("AMIRABOT_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("AMIRABOT_JUDGE_MODEL"); v != "" {
		c.Judge.Model = v
	}
	if v := os.Getenv("AMIRABOT_OUTPUT_DIR"); v != "" {
		c.Paths.OutputDir = v
	}
	if v := os.Getenv("AMIRABOT_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Judge.MaxConcurrency = n
		}
	}
}

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	if c.API.PageLimit <= 0 {
		return fmt.Errorf("config: api.page_limit must be positive")
	}
	if c.API.MaxPages <= 0 {
		return fmt.Errorf("config: api.max_pages must be positive")
	}
	if c.Judge.MaxConcurrency <= 0 {
		return fmt.Errorf("config: judge.max_concurrency must be positive")
	}
	if c.Judge.MaxRetries <= 0 {
		return fmt.Errorf("config: judge.max_retries must be positive")
	}
	if c.Paths.AnalysesDir == "" {
		return fmt.Errorf("config: paths.analyses_dir is required")
	}
	return nil
}
