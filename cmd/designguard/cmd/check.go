package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/designguard/pkg/ai"
	"github.com/OpenTraceLab/designguard/pkg/history"
	"github.com/OpenTraceLab/designguard/pkg/kicad"
	"github.com/OpenTraceLab/designguard/pkg/report"
	"github.com/OpenTraceLab/designguard/pkg/validate"
)

// aiTimeout bounds one model request
const aiTimeout = 2 * time.Minute

// runFlags are the flags shared by check, project and watch
type runFlags struct {
	format  string
	failOn  string
	noAI    bool
	strict  bool
	offline bool
	rules   []string
	history bool
}

func (f *runFlags) register(c *cobra.Command) {
	c.Flags().StringVarP(&f.format, "format", "f", "human", "output format: human, json, github, gitlab")
	c.Flags().StringVar(&f.failOn, "fail-on", "critical", "exit 1 at this level: critical, high, medium, low, info, none")
	c.Flags().BoolVar(&f.noAI, "no-ai", false, "skip AI analysis")
	c.Flags().BoolVar(&f.strict, "strict", false, "treat warnings as errors")
	c.Flags().BoolVar(&f.offline, "offline", false, "skip datasheet checks and AI analysis")
	c.Flags().StringSliceVar(&f.rules, "rules", nil, "only run these schematic rules (see 'designguard rules')")
	c.Flags().BoolVar(&f.history, "history", false, "record results in the history database")
}

func (f *runFlags) reset() {
	*f = runFlags{format: "human", failOn: "critical"}
}

// apply layers the flags over the file configuration
func (f *runFlags) apply(cfg *validate.Config) {
	if f.noAI {
		cfg.Options.EnableAI = false
	}
	if f.strict {
		cfg.Options.StrictMode = true
	}
	if f.offline {
		cfg.Options.OfflineMode = true
		cfg.Options.EnableAI = false
	}
	if len(f.rules) > 0 {
		cfg.Options.Rules = f.rules
	}
}

func (f *runFlags) parse() (report.Format, report.Threshold, error) {
	format, err := report.ParseFormat(f.format)
	if err != nil {
		return "", 0, err
	}
	threshold, err := report.ParseThreshold(f.failOn)
	if err != nil {
		return "", 0, err
	}
	return format, threshold, nil
}

func newValidator(cfg *validate.Config) (*validate.Validator, error) {
	return validate.New(cfg.Options, validate.WithConfig(cfg), validate.WithLogger(slog.Default()))
}

var checkOpts runFlags

var checkCmd = &cobra.Command{
	Use:   "check <design_file>",
	Short: "Validate a schematic or board file",
	Long: `Validate one KiCad file (.kicad_sch, .sch, .kicad_pcb or .brd).

Schematics run the rule engine and datasheet checks; a board with the same
name next to the schematic enables placement-aware decoupling checks.
Boards run decoupling risk scoring, EMI heuristics and the IPC-2221 audit.

When AI is enabled and a provider is reachable, schematics also get a
model review (human format only).

Examples:
  designguard check main.kicad_sch
  designguard check main.kicad_pcb --format json --fail-on high
  designguard check main.kicad_sch --rules decoupling_capacitor,power_pins --no-ai`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkOpts.register(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	path := args[0]
	format, threshold, err := checkOpts.parse()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(filepath.Dir(path))
	if err != nil {
		return err
	}
	checkOpts.apply(cfg)

	v, err := newValidator(cfg)
	if err != nil {
		return err
	}
	res, err := v.ValidateFile(cmd.Context(), path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := report.WriteResult(out, format, res); err != nil {
		return err
	}

	var analysis *ai.Analysis
	if cfg.Options.EnableAI && format == report.Human {
		analysis = analyze(cmd.Context(), cfg, path, res, out)
	}
	if checkOpts.history {
		if err := record(cmd.Context(), cfg, path, res, analysis); err != nil {
			return err
		}
	}

	if threshold.Reached(res.Stats) {
		return errThreshold
	}
	return nil
}

// analyze asks the first available provider for a review. AI is advisory,
// so every failure is logged and swallowed.
func analyze(ctx context.Context, cfg *validate.Config, path string, res *validate.Result, out io.Writer) *ai.Analysis {
	design, err := kicad.LoadFile(path, kicad.WithLogger(slog.Default()))
	if err != nil || !design.IsSchematic() {
		return nil
	}
	router, err := newRouter(cfg)
	if err != nil {
		slog.Warn("AI disabled", "error", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, aiTimeout)
	defer cancel()

	a, err := router.AnalyzeSchematic(ctx, ai.BuildContext(design.Schematic, res.Issues))
	if err != nil {
		slog.Info("AI analysis skipped", "error", err)
		return nil
	}
	fmt.Fprintln(out)
	if err := report.WriteAnalysis(out, a); err != nil {
		slog.Warn("Cannot print analysis", "error", err)
	}
	return a
}

func historyPath(cfg *validate.Config) (string, error) {
	if cfg.History != "" {
		return cfg.History, nil
	}
	return history.DefaultLocation()
}

// projectKey identifies a project by the absolute directory of its files
func projectKey(path string) string {
	dir := filepath.Dir(path)
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

func record(ctx context.Context, cfg *validate.Config, path string, res *validate.Result, analysis *ai.Analysis) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dbPath, err := historyPath(cfg)
	if err != nil {
		return err
	}
	store, err := history.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	id, err := store.Save(ctx, projectKey(path), history.Hash(content), res.Issues, analysis)
	if err != nil {
		return err
	}
	slog.Debug("Recorded analysis", "id", id, "db", dbPath)
	return nil
}
