package validate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/designguard/pkg/drs"
	"github.com/OpenTraceLab/designguard/pkg/errs"
)

// ConfigFile is the project configuration looked up in a project root
const ConfigFile = "designguard.yaml"

// Options are the per-run validation flags
type Options struct {
	// EnableAI lets callers run the AI collaborator after validation
	EnableAI bool `yaml:"enable_ai"`
	// OfflineMode skips the datasheet checker
	OfflineMode bool `yaml:"offline_mode"`
	// StrictMode promotes warnings to errors
	StrictMode bool `yaml:"strict_mode"`
	// Rules restricts the rule engine to these rule IDs; empty runs all
	Rules []string `yaml:"rules"`
}

// DefaultOptions returns fresh defaults
func DefaultOptions() Options {
	return Options{EnableAI: true}
}

// BatchConfig controls project validation
type BatchConfig struct {
	Workers  int      `yaml:"workers" validate:"min=1,max=64"`
	MaxDepth int      `yaml:"max_depth" validate:"min=1,max=64"`
	Exclude  []string `yaml:"exclude"`
}

// DRSConfig tunes decoupling risk scoring
type DRSConfig struct {
	StopShipment float64 `yaml:"stop_shipment" validate:"gt=0,lte=100"`
}

// IPCConfig sets the IPC-2221 audit defaults
type IPCConfig struct {
	TempRise float64 `yaml:"temp_rise" validate:"gt=0,lte=100"`
	OuterOz  float64 `yaml:"outer_oz" validate:"gte=0,lte=10"`
	InnerOz  float64 `yaml:"inner_oz" validate:"gte=0,lte=10"`
	// Currents maps net name globs to expected current in A
	Currents map[string]float64 `yaml:"currents" validate:"dive,gt=0"`
}

// AIConfig selects and configures AI providers
type AIConfig struct {
	Provider       string `yaml:"provider" validate:"oneof=auto anthropic ollama none"`
	OllamaURL      string `yaml:"ollama_url" validate:"omitempty,url"`
	OllamaModel    string `yaml:"ollama_model"`
	AnthropicModel string `yaml:"anthropic_model"`
	// AnthropicKey is only read from the environment
	AnthropicKey string `yaml:"-"`
}

// Config is the project configuration
type Config struct {
	Options    Options     `yaml:"options"`
	Batch      BatchConfig `yaml:"batch"`
	DRS        DRSConfig   `yaml:"drs"`
	IPC        IPCConfig   `yaml:"ipc"`
	AI         AIConfig    `yaml:"ai"`
	Datasheets string      `yaml:"datasheets"`
	History    string      `yaml:"history"`

	excludes []glob.Glob
}

// DefaultConfig returns a Config with sensible defaults for most projects.
func DefaultConfig() *Config {
	return &Config{
		Options: DefaultOptions(),
		Batch: BatchConfig{
			Workers:  4,
			MaxDepth: DefaultMaxDepth,
		},
		DRS: DRSConfig{StopShipment: drs.DefaultStopShipment},
		IPC: IPCConfig{TempRise: 10},
		AI: AIConfig{
			Provider:       "auto",
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "llama3.2",
			AnthropicModel: "claude-sonnet-4-5",
		},
	}
}

var structValidator = validator.New()

// Validate checks the configuration and compiles the exclude patterns.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return errs.Config("validate", fmt.Errorf("%s: failed on %q (value %v)", f.Namespace(), f.Tag(), f.Value()))
		}
		return errs.Config("validate", err)
	}

	c.excludes = c.excludes[:0]
	for _, p := range c.Batch.Exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return errs.Config("exclude pattern", fmt.Errorf("%q: %w", p, err))
		}
		c.excludes = append(c.excludes, g)
	}
	return nil
}

// Excluded reports whether a slash-separated path relative to the project
// root matches an exclude pattern
func (c *Config) Excluded(rel string) bool {
	for _, g := range c.excludes {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// ApplyEnv overrides AI settings from ANTHROPIC_API_KEY, OLLAMA_HOST and
// OLLAMA_MODEL
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.AI.AnthropicKey = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.AI.OllamaURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		c.AI.OllamaModel = v
	}
}

// ParseConfig decodes YAML over the defaults, applies the environment and
// validates the result
func ParseConfig(data []byte) (*Config, error) {
	c := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, errs.Config("parse", err)
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadConfig reads a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.IO("read config", path, err)
	}
	c, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindConfig loads dir/designguard.yaml when present and the defaults
// otherwise
func FindConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		c := DefaultConfig()
		c.ApplyEnv()
		return c, c.Validate()
	}
	return LoadConfig(path)
}
