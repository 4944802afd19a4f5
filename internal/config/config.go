// Package config loads taskloom settings from the global and project
// config files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/joshharrison/taskloom/internal/agent"
	"github.com/joshharrison/taskloom/internal/store"
)

const (
	dirName  = ".taskloom"
	fileName = "config.yaml"
)

// Executor kinds.
const (
	ExecutorCLI = "cli"
	ExecutorAPI = "api"
)

// Config holds every setting. Zero values are replaced by Default.
type Config struct {
	Executor       string        `mapstructure:"executor"`
	ClaudeBin      string        `mapstructure:"claude_bin"`
	Safe           bool          `mapstructure:"safe"`
	Quiet          bool          `mapstructure:"quiet"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PromptTemplate string        `mapstructure:"prompt_template"`
	Watch          WatchConfig   `mapstructure:"watch"`
	Models         ModelsConfig  `mapstructure:"models"`
	API            APIConfig     `mapstructure:"api"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// ModelsConfig maps the two agent identities to Claude model names.
type ModelsConfig struct {
	Complex string `mapstructure:"complex"`
	Simple  string `mapstructure:"simple"`
}

type APIConfig struct {
	Addr   string `mapstructure:"addr"`
	KeyEnv string `mapstructure:"key_env"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Executor:  ExecutorCLI,
		ClaudeBin: "claude",
		Timeout:   30 * time.Minute,
		Watch:     WatchConfig{Debounce: store.DefaultDebounce},
		Models: ModelsConfig{
			Complex: "claude-opus-4-1",
			Simple:  "claude-haiku-4-5",
		},
		API: APIConfig{
			Addr:   "127.0.0.1:7420",
			KeyEnv: "ANTHROPIC_API_KEY",
		},
	}
}

// Load reads ~/.taskloom/config.yaml and then <project>/.taskloom/config.yaml
// over the defaults. Missing files are skipped; malformed ones are errors.
func Load(project string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return LoadFrom(home, project)
}

// LoadFrom is Load with an explicit home directory. An empty home skips the
// global file.
func LoadFrom(home, project string) (*Config, error) {
	cfg := Default()

	var paths []string
	if home != "" {
		paths = append(paths, filepath.Join(home, dirName, fileName))
	}
	paths = append(paths, ProjectConfigPath(project))

	for _, path := range paths {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the commands cannot act on.
func (c *Config) Validate() error {
	switch c.Executor {
	case ExecutorCLI, ExecutorAPI:
	default:
		return fmt.Errorf("executor must be %q or %q, got %q", ExecutorCLI, ExecutorAPI, c.Executor)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return nil
}

// ModelFor returns the configured model for an agent identity.
func (c *Config) ModelFor(id agent.Identity) string {
	switch id {
	case agent.Complex:
		return c.Models.Complex
	case agent.Simple:
		return c.Models.Simple
	}
	return ""
}

// Save writes c as YAML to path, creating the directory.
func (c *Config) Save(path string) error {
	doc := map[string]any{
		"executor":   c.Executor,
		"claude_bin": c.ClaudeBin,
		"safe":       c.Safe,
		"quiet":      c.Quiet,
		"timeout":    c.Timeout.String(),
		"watch":      map[string]any{"debounce": c.Watch.Debounce.String()},
		"models":     map[string]any{"complex": c.Models.Complex, "simple": c.Models.Simple},
		"api":        map[string]any{"addr": c.API.Addr, "key_env": c.API.KeyEnv},
	}
	if c.PromptTemplate != "" {
		doc["prompt_template"] = c.PromptTemplate
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ProjectDir returns <project>/.taskloom.
func ProjectDir(project string) string {
	return filepath.Join(project, dirName)
}

// ProjectConfigPath returns <project>/.taskloom/config.yaml.
func ProjectConfigPath(project string) string {
	return filepath.Join(ProjectDir(project), fileName)
}

// RunsDir returns where batch journals are kept.
func RunsDir(project string) string {
	return filepath.Join(ProjectDir(project), "runs")
}

// LogsDir returns where per-task agent logs are kept.
func LogsDir(project string) string {
	return filepath.Join(ProjectDir(project), "logs")
}
