package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/OpenTraceLab/designguard/pkg/ai"
	"github.com/OpenTraceLab/designguard/pkg/drs"
	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/validate"
)

var (
	fileStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF0000"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00"))

	suggestionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AAFF"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00"))

	hintStyle = lipgloss.NewStyle().
			Faint(true)
)

func severityStyle(s issue.Severity) lipgloss.Style {
	switch s {
	case issue.Error:
		return errorStyle
	case issue.Warning:
		return warningStyle
	case issue.Suggestion:
		return suggestionStyle
	default:
		return infoStyle
	}
}

func tierStyle(t drs.RiskTier) lipgloss.Style {
	switch t {
	case drs.TierStopShipment:
		return errorStyle
	case drs.TierHigh:
		return warningStyle
	case drs.TierMedium:
		return suggestionStyle
	default:
		return successStyle
	}
}

func writeHuman(w io.Writer, results []validate.FileResult) error {
	var b strings.Builder
	for _, fr := range results {
		b.WriteString(fileStyle.Render(fr.Path))
		b.WriteString("\n")
		if fr.Err != nil {
			fmt.Fprintf(&b, "  %s %v\n\n", errorStyle.Render("failed:"), fr.Err)
			continue
		}
		humanResult(&b, fr.Result)
		b.WriteString("\n")
	}

	stats, failed := validate.Summarize(results)
	fmt.Fprintf(&b, "Checked %d file(s): %d critical, %d high, %d medium, %d low",
		len(results), stats.Critical, stats.High, stats.Medium, stats.Low)
	if failed > 0 {
		fmt.Fprintf(&b, ", %d failed to parse", failed)
	}
	b.WriteString("\n")
	if stats.Total() == 0 && failed == 0 {
		b.WriteString(successStyle.Render("No issues found"))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func humanResult(b *strings.Builder, res *validate.Result) {
	fmt.Fprintf(b, "  Format: %s", res.Format)
	if res.BoardFile != "" {
		fmt.Fprintf(b, " (board %s)", res.BoardFile)
	}
	b.WriteString("\n")

	for _, i := range sorted(res.Issues) {
		label := fmt.Sprintf("%-10s", i.Severity)
		fmt.Fprintf(b, "  %s %s: %s", severityStyle(i.Severity).Render(label), i.RuleID, i.Message)
		if i.Location != nil {
			fmt.Fprintf(b, " at (%.2f, %.2f)", i.Location.X, i.Location.Y)
		}
		b.WriteString("\n")
		if i.Suggestion != "" {
			fmt.Fprintf(b, "             %s\n", hintStyle.Render("-> "+i.Suggestion))
		}
	}

	if len(res.Risk) > 0 {
		b.WriteString("  Decoupling risk:\n")
		for _, s := range res.Risk {
			fmt.Fprintf(b, "    %-6s %-16s R=%5.1f %s\n", s.IC, s.Value, s.RiskIndex, tierStyle(s.Tier).Render(s.Tier.String()))
		}
	}
	if res.EMI != nil && len(res.EMI.Findings) > 0 {
		fmt.Fprintf(b, "  EMI: %d critical, %d high, %d medium, %d low\n",
			res.EMI.Critical, res.EMI.High, res.EMI.Medium, res.EMI.Low)
	}
	if len(res.Issues) == 0 {
		fmt.Fprintf(b, "  %s\n", successStyle.Render("No issues"))
	}
}

// WriteAnalysis renders a model's review for a terminal
func WriteAnalysis(w io.Writer, a *ai.Analysis) error {
	var b strings.Builder
	title := "AI analysis"
	if a.Provider != "" {
		title += " (" + a.Provider + ")"
	}
	b.WriteString(fileStyle.Render(title))
	b.WriteString("\n")
	if a.Summary != "" {
		fmt.Fprintf(&b, "%s\n", a.Summary)
	}
	if a.CircuitDescription != "" {
		fmt.Fprintf(&b, "\n%s\n", a.CircuitDescription)
	}
	list := func(heading string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s\n", heading)
		for _, it := range items {
			fmt.Fprintf(&b, "  - %s\n", it)
		}
	}
	list("Potential issues:", a.PotentialIssues)
	list("Suggestions:", a.ImprovementSuggestions)
	if len(a.ComponentRecommendations) > 0 {
		b.WriteString("\nComponents:\n")
		for _, r := range a.ComponentRecommendations {
			fmt.Fprintf(&b, "  %s", r.Component)
			if r.CurrentValue != "" || r.SuggestedValue != "" {
				fmt.Fprintf(&b, " %s -> %s", r.CurrentValue, r.SuggestedValue)
			}
			fmt.Fprintf(&b, ": %s\n", r.Reason)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
