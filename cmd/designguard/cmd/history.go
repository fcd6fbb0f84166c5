package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/designguard/pkg/history"
	"github.com/OpenTraceLab/designguard/pkg/issue"
)

var (
	historyLimit int
	historyJSON  bool
	historyClear bool
)

var historyCmd = &cobra.Command{
	Use:   "history <project_dir>",
	Short: "Show recorded analyses of a project",
	Long: `List the analyses recorded with --history for a project directory, newest first.
The database location is the history setting of designguard.yaml, or
designguard/history.db under the user config directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of entries (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output as JSON")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "delete the project's history")
}

func runHistory(cmd *cobra.Command, args []string) error {
	project, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(args[0])
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

	out := cmd.OutOrStdout()
	if historyClear {
		n, err := store.Delete(cmd.Context(), project)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d record(s) for %s\n", n, project)
		return nil
	}

	records, err := store.List(cmd.Context(), project, historyLimit)
	if err != nil {
		return err
	}
	if historyJSON {
		if records == nil {
			records = []history.Record{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintf(out, "No history for %s\n", project)
		return nil
	}
	fmt.Fprintf(out, "History for %s:\n", project)
	for _, r := range records {
		fmt.Fprintf(out, "  #%-4d %s  %.12s  %d error(s), %d warning(s), %d total",
			r.ID, r.AnalyzedAt.Local().Format("2006-01-02 15:04"), r.SchematicHash,
			issue.Count(r.Issues, issue.Error), issue.Count(r.Issues, issue.Warning), len(r.Issues))
		if r.AI != nil {
			fmt.Fprintf(out, "  [AI: %s]", r.AI.Provider)
		}
		fmt.Fprintln(out)
	}
	return nil
}
