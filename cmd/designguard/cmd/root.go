package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/designguard/pkg/ai"
	"github.com/OpenTraceLab/designguard/pkg/validate"
)

var (
	// Global flags
	verbose    bool
	configPath string
)

// errThreshold makes the process exit with status 1 without printing
var errThreshold = errors.New("fail-on threshold reached")

var rootCmd = &cobra.Command{
	Use:   "designguard",
	Short: "DesignGuard - KiCad schematic and PCB design validator",
	Long: `DesignGuard validates KiCad schematics and boards against electrical design rules:
  - decoupling, pull-up, crystal load, ESD and power pin checks on schematics
  - datasheet requirements for common parts
  - decoupling risk scoring, EMI heuristics and IPC-2221 current capacity on boards

Examples:
  designguard check board.kicad_sch                 # Validate one file
  designguard project . --format github             # Validate a project in CI
  designguard watch hardware/                       # Re-validate on save
  designguard ipc --current 2 --oz 1                # Size a trace`,
	Version:       "0.9.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errThreshold) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: designguard.yaml in the design directory)")
}

// loadConfig reads --config, or designguard.yaml from dir when present
func loadConfig(dir string) (*validate.Config, error) {
	if configPath != "" {
		return validate.LoadConfig(configPath)
	}
	return validate.FindConfig(dir)
}

func newRouter(cfg *validate.Config) (*ai.Router, error) {
	return ai.FromConfig(ai.Config{
		Prefer: cfg.AI.Provider,
		Anthropic: ai.AnthropicConfig{
			APIKey: cfg.AI.AnthropicKey,
			Model:  cfg.AI.AnthropicModel,
		},
		Ollama: ai.OllamaConfig{
			URL:   cfg.AI.OllamaURL,
			Model: cfg.AI.OllamaModel,
		},
	}, ai.WithLogger(slog.Default()))
}
