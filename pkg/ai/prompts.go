package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = "You are an expert PCB design engineer reviewing a KiCad schematic."

// AnalysisPrompt asks for a JSON review of the design
func AnalysisPrompt(c *Context) string {
	return fmt.Sprintf(`Schematic Context:
Components: %s
Power Rails: %s
Signal Nets: %s
Existing Issues: %s

Analyze this schematic and provide a comprehensive review. Focus on circuit functionality and design correctness,
component selection and values, power distribution and decoupling, signal integrity, and best practices.

Respond ONLY with valid JSON in this exact format (no markdown, no code blocks):
{
  "summary": "Brief one-sentence circuit description",
  "circuit_description": "Detailed explanation of what this circuit does and how it works",
  "potential_issues": ["Issue 1", "Issue 2"],
  "improvement_suggestions": ["Suggestion 1", "Suggestion 2"],
  "component_recommendations": [
    {"component": "R1", "current_value": "10k", "suggested_value": "4.7k", "reason": "Why"}
  ]
}`, c.ComponentsSummary, c.railsText(), c.signalsText(), c.issuesText())
}

// QuestionPrompt asks a free-text question about the design
func QuestionPrompt(c *Context, question string) string {
	return fmt.Sprintf(`Schematic Context:
Components: %s
Power Rails: %s

Question: %s

Please provide a detailed, technical answer based on the schematic context. If the question cannot be answered
from the available information, please state that clearly.`, c.ComponentsSummary, c.railsText(), question)
}

// extractObject returns the outermost {...} of text
func extractObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseAnalysis decodes a model reply. JSON is preferred; replies in the
// sectioned plain-text layout small local models tend to produce are
// parsed line by line.
func ParseAnalysis(text string) *Analysis {
	if obj, ok := extractObject(text); ok {
		var a Analysis
		if err := json.Unmarshal([]byte(obj), &a); err == nil && (a.Summary != "" || len(a.PotentialIssues) > 0) {
			return &a
		}
	}
	return parseSections(text)
}

func parseSections(text string) *Analysis {
	a := &Analysis{}
	section := ""
	appendDesc := func(s string) {
		if a.CircuitDescription != "" {
			a.CircuitDescription += " "
		}
		a.CircuitDescription += s
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "SUMMARY:"):
			a.Summary = strings.TrimSpace(strings.TrimPrefix(line, "SUMMARY:"))
			section = ""
		case strings.HasPrefix(line, "CIRCUIT_DESCRIPTION:"):
			a.CircuitDescription = strings.TrimSpace(strings.TrimPrefix(line, "CIRCUIT_DESCRIPTION:"))
			section = "description"
		case strings.HasPrefix(line, "ADDITIONAL ISSUES"), strings.HasPrefix(line, "ISSUES"):
			section = "issues"
		case strings.HasPrefix(line, "RECOMMENDATIONS"):
			section = "recommendations"
		case strings.HasPrefix(line, "COMPONENT_NOTES"):
			section = "components"
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "), strings.HasPrefix(line, "• "):
			content := strings.TrimSpace(strings.TrimLeft(line, "-*• "))
			if content == "" {
				continue
			}
			switch section {
			case "issues":
				a.PotentialIssues = append(a.PotentialIssues, content)
			case "recommendations":
				a.ImprovementSuggestions = append(a.ImprovementSuggestions, content)
			case "components":
				if comp, reason, ok := strings.Cut(content, ":"); ok {
					a.ComponentRecommendations = append(a.ComponentRecommendations, ComponentRecommendation{
						Component: strings.TrimSpace(comp),
						Reason:    strings.TrimSpace(reason),
					})
				}
			case "description":
				appendDesc(content)
			}
		case line != "" && section == "description":
			appendDesc(line)
		}
	}
	if a.Summary == "" && len(a.PotentialIssues) == 0 {
		a.Summary = "Analysis completed"
		r := []rune(strings.TrimSpace(text))
		if len(r) > 500 {
			r = r[:500]
		}
		a.CircuitDescription = string(r)
	}
	return a
}
