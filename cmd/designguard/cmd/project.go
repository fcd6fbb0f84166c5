package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/designguard/pkg/report"
	"github.com/OpenTraceLab/designguard/pkg/validate"
)

var projectOpts runFlags

var projectCmd = &cobra.Command{
	Use:   "project <directory>",
	Short: "Validate every design file in a project",
	Long: `Discover KiCad files below a directory and validate them in parallel.

Hidden directories, node_modules, target and build are skipped, along with
the exclude patterns of designguard.yaml. A file that fails to parse is
reported and the run continues; parse failures count as critical for
--fail-on.

Examples:
  designguard project .
  designguard project hardware/ --format gitlab > gl-code-quality-report.json
  designguard project . --strict --fail-on high`,
	Args: cobra.ExactArgs(1),
	RunE: runProject,
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectOpts.register(projectCmd)
}

func runProject(cmd *cobra.Command, args []string) error {
	dir := args[0]
	format, threshold, err := projectOpts.parse()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return err
	}
	projectOpts.apply(cfg)

	v, err := newValidator(cfg)
	if err != nil {
		return err
	}
	results, err := v.ValidateProject(cmd.Context(), dir)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("no design files found in %s", dir)
	}
	if err := report.Write(cmd.OutOrStdout(), format, results); err != nil {
		return err
	}

	stats, failed := validate.Summarize(results)
	stats.Critical += failed
	slog.Debug("Project validated", "files", len(results), "failed", failed, "issues", stats.Total())

	if projectOpts.history {
		for _, fr := range results {
			if fr.Err != nil {
				continue
			}
			if err := record(cmd.Context(), cfg, fr.Path, fr.Result, nil); err != nil {
				return err
			}
		}
	}
	if threshold.Reached(stats) {
		return errThreshold
	}
	return nil
}
