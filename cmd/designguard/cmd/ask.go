package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/designguard/pkg/ai"
	"github.com/OpenTraceLab/designguard/pkg/kicad"
)

var askCmd = &cobra.Command{
	Use:   "ask <schematic_file> <question>...",
	Short: "Ask an AI provider about a schematic",
	Long: `Summarize a schematic and its detected issues and ask a language model a question.
Claude is used when ANTHROPIC_API_KEY is set, otherwise a local Ollama server.

Examples:
  designguard ask main.kicad_sch "Is the MCU adequately decoupled?"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	path := args[0]
	question := strings.Join(args[1:], " ")

	cfg, err := loadConfig(filepath.Dir(path))
	if err != nil {
		return err
	}
	design, err := kicad.LoadFile(path, kicad.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	if !design.IsSchematic() {
		return fmt.Errorf("%s is not a schematic", path)
	}

	v, err := newValidator(cfg)
	if err != nil {
		return err
	}
	res, err := v.ValidateFile(cmd.Context(), path)
	if err != nil {
		return err
	}

	router, err := newRouter(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), aiTimeout)
	defer cancel()
	answer, err := router.AskQuestion(ctx, ai.BuildContext(design.Schematic, res.Issues), question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}
