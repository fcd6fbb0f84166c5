// Package ai asks a language model to review a schematic. Providers are
// optional: validation never depends on them.
package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/analyzer"
	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
	"github.com/OpenTraceLab/designguard/pkg/netlist"
)

// ComponentRecommendation proposes a different value for one part
type ComponentRecommendation struct {
	Component      string `json:"component"`
	CurrentValue   string `json:"current_value"`
	SuggestedValue string `json:"suggested_value,omitempty"`
	Reason         string `json:"reason"`
}

// Analysis is a model's review of a schematic
type Analysis struct {
	Provider                 string                    `json:"provider,omitempty"`
	Summary                  string                    `json:"summary"`
	CircuitDescription       string                    `json:"circuit_description"`
	PotentialIssues          []string                  `json:"potential_issues"`
	ImprovementSuggestions   []string                  `json:"improvement_suggestions"`
	ComponentRecommendations []ComponentRecommendation `json:"component_recommendations"`
}

// ComponentDetail identifies one part for the prompt
type ComponentDetail struct {
	Reference string `json:"reference"`
	Value     string `json:"value"`
	LibID     string `json:"lib_id"`
}

// Context is the serializable summary handed to a provider
type Context struct {
	ComponentsSummary string            `json:"components_summary"`
	PowerRails        []string          `json:"power_rails"`
	SignalNets        []string          `json:"signal_nets"`
	DetectedIssues    []issue.Issue     `json:"detected_issues"`
	ComponentCount    int               `json:"component_count"`
	Components        []ComponentDetail `json:"component_details"`
}

// Provider is a language model backend
type Provider interface {
	Name() string
	// Available reports whether the provider can serve requests now
	Available(ctx context.Context) bool
	AnalyzeSchematic(ctx context.Context, c *Context) (*Analysis, error)
	AskQuestion(ctx context.Context, c *Context, question string) (string, error)
}

const (
	maxSignalNets = 10
	maxKeyICs     = 500
)

// BuildContext summarizes a schematic and the issues already found
func BuildContext(sch *schematic.Schematic, issues []issue.Issue) *Context {
	c := &Context{DetectedIssues: issues}
	if sch == nil {
		c.ComponentsSummary = "Total: 0 components"
		return c
	}

	counts := map[schematic.ComponentClass]int{}
	var keyICs strings.Builder
	for _, comp := range sch.Components {
		class := comp.Class()
		counts[class]++
		if class == schematic.ClassIC && keyICs.Len() < maxKeyICs {
			fmt.Fprintf(&keyICs, "%s (%s) ", comp.Reference, comp.Value)
		}
		c.Components = append(c.Components, ComponentDetail{Reference: comp.Reference, Value: comp.Value, LibID: comp.LibID})
	}
	c.ComponentCount = len(sch.Components)
	key := strings.TrimSpace(keyICs.String())
	if key == "" {
		key = "None listed"
	}
	other := c.ComponentCount - counts[schematic.ClassIC] - counts[schematic.ClassResistor] -
		counts[schematic.ClassCapacitor] - counts[schematic.ClassInductor] - counts[schematic.ClassDiode] -
		counts[schematic.ClassConnector]
	c.ComponentsSummary = fmt.Sprintf("Total: %d components (%d ICs, %d resistors, %d capacitors, %d inductors, %d diodes, %d connectors, %d other). Key ICs: %s",
		c.ComponentCount, counts[schematic.ClassIC], counts[schematic.ClassResistor], counts[schematic.ClassCapacitor],
		counts[schematic.ClassInductor], counts[schematic.ClassDiode], counts[schematic.ClassConnector], other, key)

	rails := map[string]bool{}
	for _, p := range sch.PowerSymbols {
		if schematic.IsPowerFlag(p) {
			continue
		}
		rails[p.Value] = true
	}
	nl := netlist.Build(sch)
	for _, n := range nl.Nets {
		if analyzer.IsGroundName(n.Name) || analyzer.IsSupplyName(n.Name) {
			rails[n.Name] = true
			continue
		}
		if (n.Global || len(n.Aliases) > 0) && len(c.SignalNets) < maxSignalNets {
			c.SignalNets = append(c.SignalNets, n.Name)
		}
	}
	for r := range rails {
		c.PowerRails = append(c.PowerRails, r)
	}
	sort.Strings(c.PowerRails)
	return c
}

func (c *Context) railsText() string {
	if len(c.PowerRails) == 0 {
		return "No power rails detected"
	}
	return "Power rails: " + strings.Join(c.PowerRails, ", ")
}

func (c *Context) signalsText() string {
	if len(c.SignalNets) == 0 {
		return "No signal nets identified"
	}
	return fmt.Sprintf("Signal nets: %s (showing first %d)", strings.Join(c.SignalNets, ", "), maxSignalNets)
}

func (c *Context) issuesText() string {
	if len(c.DetectedIssues) == 0 {
		return "No issues detected by automated checks"
	}
	var parts []string
	for _, s := range []issue.Severity{issue.Error, issue.Warning, issue.Suggestion, issue.Info} {
		if n := issue.Count(c.DetectedIssues, s); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, s))
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d issues found: %s", len(c.DetectedIssues), strings.Join(parts, ", "))
	for i, is := range c.DetectedIssues {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, ". %s: %s", is.RuleID, is.Message)
	}
	return b.String()
}
