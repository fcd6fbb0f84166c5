package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/designguard/pkg/compliance"
	"github.com/OpenTraceLab/designguard/pkg/datasheet"
	"github.com/OpenTraceLab/designguard/pkg/drs"
	"github.com/OpenTraceLab/designguard/pkg/rules"
)

var rulesJSON bool

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the schematic rules",
	Long: `List the schematic rules in the order they run, with their default severity.
Rule IDs can be passed to --rules on check, project and watch.`,
	Args: cobra.NoArgs,
	RunE: runRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.Flags().BoolVar(&rulesJSON, "json", false, "output as JSON")
}

func runRules(cmd *cobra.Command, args []string) error {
	list := rules.NewEngine().Rules()
	out := cmd.OutOrStdout()
	if rulesJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	fmt.Fprintln(out, "Schematic rules:")
	for _, r := range list {
		fmt.Fprintf(out, "  %-24s %-10s %s\n", r.ID, r.Severity, r.Description)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Always on:")
	for _, id := range []string{datasheet.RuleDecoupling, datasheet.RuleExternal, datasheet.RulePin} {
		fmt.Fprintf(out, "  %-32s schematics, unless --offline\n", id)
	}
	for _, id := range []string{drs.RuleRisk, drs.RuleInductance, drs.RuleHeuristic, compliance.RuleEMIPrefix + "*", compliance.RuleCurrentCapacity} {
		fmt.Fprintf(out, "  %-32s boards\n", id)
	}
	return nil
}
