// Package compliance checks boards against IPC-2221 current capacity and
// a set of EMI layout heuristics.
package compliance

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/OpenTraceLab/designguard/pkg/analyzer"
	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/kicad/pcb"
)

// IPC-2221 curve fit I = k * dT^b * A^c with A in square mils
const (
	ExternalK = 0.048
	InternalK = 0.024
	ExponentB = 0.44
	ExponentC = 0.725
)

// Defaults
const (
	DefaultTempRise = 10.0 // °C
	OzThicknessMM   = 0.035
	milPerMM        = 1 / 0.0254
)

// CopperThickness returns the foil thickness in mm of a copper weight in oz/ft²
func CopperThickness(oz float64) float64 {
	return oz * OzThicknessMM
}

func constantK(external bool) float64 {
	if external {
		return ExternalK
	}
	return InternalK
}

// MaxCurrent returns the current in A a trace can carry for a temperature rise
func MaxCurrent(widthMM, thicknessMM, tempRiseC float64, external bool) float64 {
	if widthMM <= 0 || thicknessMM <= 0 || tempRiseC <= 0 {
		return 0
	}
	area := widthMM * milPerMM * thicknessMM * milPerMM
	return constantK(external) * math.Pow(tempRiseC, ExponentB) * math.Pow(area, ExponentC)
}

// RequiredWidth returns the trace width in mm needed to carry currentA
func RequiredWidth(currentA, thicknessMM, tempRiseC float64, external bool) float64 {
	if currentA <= 0 || thicknessMM <= 0 || tempRiseC <= 0 {
		return 0
	}
	area := math.Pow(currentA/(constantK(external)*math.Pow(tempRiseC, ExponentB)), 1/ExponentC)
	return area / (thicknessMM * milPerMM) / milPerMM
}

// TemperatureRise returns the rise in °C of a trace carrying currentA
func TemperatureRise(currentA, widthMM, thicknessMM float64, external bool) float64 {
	if currentA <= 0 || widthMM <= 0 || thicknessMM <= 0 {
		return 0
	}
	area := widthMM * milPerMM * thicknessMM * milPerMM
	return math.Pow(currentA/(constantK(external)*math.Pow(area, ExponentC)), 1/ExponentB)
}

// Calculator evaluates the traces of a board
type Calculator struct {
	TempRise float64 // °C
	OuterOz  float64
	InnerOz  float64
	// Currents maps net name globs to expected current in A. Nets matching
	// none of them fall back to DefaultNetCurrent.
	Currents map[string]float64
}

// NewCalculator takes copper weights from the board setup
func NewCalculator(board *pcb.Board) *Calculator {
	c := &Calculator{TempRise: DefaultTempRise, OuterOz: 1, InnerOz: 0.5}
	if board != nil {
		if board.Setup.CopperOuterOz > 0 {
			c.OuterOz = board.Setup.CopperOuterOz
		}
		if board.Setup.CopperInnerOz > 0 {
			c.InnerOz = board.Setup.CopperInnerOz
		}
	}
	return c
}

// Thickness returns the copper thickness of a layer in mm
func (c *Calculator) Thickness(layer string) float64 {
	if pcb.IsOuterName(layer) {
		return CopperThickness(c.OuterOz)
	}
	return CopperThickness(c.InnerOz)
}

// TraceCurrent is the capacity of one track
type TraceCurrent struct {
	Track       string  `json:"track"`
	Net         string  `json:"net"`
	Layer       string  `json:"layer"`
	WidthMM     float64 `json:"width_mm"`
	LengthMM    float64 `json:"length_mm"`
	ThicknessMM float64 `json:"thickness_mm"`
	External    bool    `json:"external"`
	MaxCurrentA float64 `json:"max_current_a"`
	TempRiseC   float64 `json:"temp_rise_c"`
}

// CanCarry reports whether the track carries currentA within the rise
func (t TraceCurrent) CanCarry(currentA float64) bool { return currentA <= t.MaxCurrentA }

// SafetyMargin returns the spare capacity in percent of currentA
func (t TraceCurrent) SafetyMargin(currentA float64) float64 {
	if currentA <= 0 {
		return 100
	}
	return (t.MaxCurrentA - currentA) / currentA * 100
}

// Traces computes the capacity of every track
func (c *Calculator) Traces(board *pcb.Board) []TraceCurrent {
	out := make([]TraceCurrent, 0, len(board.Tracks))
	for _, t := range board.Tracks {
		external := pcb.IsOuterName(t.Layer)
		thickness := c.Thickness(t.Layer)
		out = append(out, TraceCurrent{
			Track:       t.ID,
			Net:         t.Net.Name,
			Layer:       t.Layer,
			WidthMM:     t.Width,
			LengthMM:    t.Length(),
			ThicknessMM: thickness,
			External:    external,
			MaxCurrentA: MaxCurrent(t.Width, thickness, c.TempRise, external),
			TempRiseC:   c.TempRise,
		})
	}
	return out
}

// NetSummary aggregates the tracks of one net
type NetSummary struct {
	Net              string  `json:"net"`
	MinWidthMM       float64 `json:"min_width_mm"`
	MaxWidthMM       float64 `json:"max_width_mm"`
	MinCapacityA     float64 `json:"min_capacity_a"`
	TotalLengthMM    float64 `json:"total_length_mm"`
	TrackCount       int     `json:"track_count"`
	ExpectedCurrentA float64 `json:"expected_current_a,omitempty"`
}

// CurrentReport is the IPC-2221 view of a board
type CurrentReport struct {
	TempRiseC float64        `json:"temp_rise_c"`
	OuterOz   float64        `json:"outer_copper_oz"`
	InnerOz   float64        `json:"inner_copper_oz"`
	Traces    []TraceCurrent `json:"traces"`
	Nets      []NetSummary   `json:"nets"`
	Findings  []CurrentIssue `json:"findings"`
}

// CurrentSeverity grades an undersized track by its current deficit
type CurrentSeverity int

const (
	CurrentInfo CurrentSeverity = iota
	CurrentWarning
	CurrentCritical
)

func (s CurrentSeverity) String() string {
	switch s {
	case CurrentCritical:
		return "critical"
	case CurrentWarning:
		return "warning"
	default:
		return "info"
	}
}

func (s CurrentSeverity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// DeficitSeverity grades the shortfall: >50% critical, >20% warning
func DeficitSeverity(expectedA, maxA float64) CurrentSeverity {
	deficit := (expectedA - maxA) / expectedA * 100
	switch {
	case deficit > 50:
		return CurrentCritical
	case deficit > 20:
		return CurrentWarning
	default:
		return CurrentInfo
	}
}

// CurrentIssue is a track too narrow for its net's expected current
type CurrentIssue struct {
	Track           string          `json:"track"`
	Net             string          `json:"net"`
	Layer           string          `json:"layer"`
	WidthMM         float64         `json:"width_mm"`
	RequiredWidthMM float64         `json:"required_width_mm"`
	MaxCurrentA     float64         `json:"max_current_a"`
	ExpectedA       float64         `json:"expected_current_a"`
	Severity        CurrentSeverity `json:"severity"`
	Location        pcb.Position    `json:"location"`
	Message         string          `json:"message"`
}

// DefaultNetCurrent estimates the load current of a supply net from its
// voltage. Ground and signal nets get 0.
func DefaultNetCurrent(net string) float64 {
	if !analyzer.IsSupplyName(net) {
		return 0
	}
	v, ok := analyzer.ExtractVoltage(net)
	upper := strings.ToUpper(net)
	switch {
	case ok && v >= 9, strings.Contains(upper, "VIN"):
		return 2.0
	case ok && v >= 4.5, strings.Contains(upper, "VBUS"):
		return 1.0
	default:
		return 0.5
	}
}

// ExpectedCurrent returns the configured or default current of a net.
// Configured globs are tried in sorted order.
func (c *Calculator) ExpectedCurrent(net string) (float64, error) {
	patterns := make([]string, 0, len(c.Currents))
	for p := range c.Currents {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return 0, fmt.Errorf("net current pattern %q: %w", p, err)
		}
		if g.Match(net) {
			return c.Currents[p], nil
		}
	}
	return DefaultNetCurrent(net), nil
}

// Audit checks every track of a net with an expected current
func (c *Calculator) Audit(board *pcb.Board) ([]CurrentIssue, error) {
	var out []CurrentIssue
	for _, t := range board.Tracks {
		expected, err := c.ExpectedCurrent(t.Net.Name)
		if err != nil {
			return nil, err
		}
		if expected <= 0 {
			continue
		}
		external := pcb.IsOuterName(t.Layer)
		thickness := c.Thickness(t.Layer)
		maxA := MaxCurrent(t.Width, thickness, c.TempRise, external)
		if maxA >= expected {
			continue
		}
		required := RequiredWidth(expected, thickness, c.TempRise, external)
		out = append(out, CurrentIssue{
			Track:           t.ID,
			Net:             t.Net.Name,
			Layer:           t.Layer,
			WidthMM:         t.Width,
			RequiredWidthMM: required,
			MaxCurrentA:     maxA,
			ExpectedA:       expected,
			Severity:        DeficitSeverity(expected, maxA),
			Location:        t.Start,
			Message: fmt.Sprintf("Trace on %s for net '%s' is undersized: %.3fmm width can handle %.2fA, but %.2fA expected",
				t.Layer, t.Net.Name, t.Width, maxA, expected),
		})
	}
	return out, nil
}

// Report computes capacities, per-net summaries and the audit
func (c *Calculator) Report(board *pcb.Board) (*CurrentReport, error) {
	findings, err := c.Audit(board)
	if err != nil {
		return nil, err
	}
	r := &CurrentReport{
		TempRiseC: c.TempRise,
		OuterOz:   c.OuterOz,
		InnerOz:   c.InnerOz,
		Traces:    c.Traces(board),
		Findings:  findings,
	}

	byNet := make(map[string]*NetSummary)
	for _, t := range r.Traces {
		s, ok := byNet[t.Net]
		if !ok {
			s = &NetSummary{Net: t.Net, MinWidthMM: math.Inf(1), MinCapacityA: math.Inf(1)}
			s.ExpectedCurrentA, _ = c.ExpectedCurrent(t.Net)
			byNet[t.Net] = s
		}
		s.MinWidthMM = math.Min(s.MinWidthMM, t.WidthMM)
		s.MaxWidthMM = math.Max(s.MaxWidthMM, t.WidthMM)
		s.MinCapacityA = math.Min(s.MinCapacityA, t.MaxCurrentA)
		s.TotalLengthMM += t.LengthMM
		s.TrackCount++
	}
	for _, s := range byNet {
		r.Nets = append(r.Nets, *s)
	}
	sort.Slice(r.Nets, func(i, j int) bool { return r.Nets[i].Net < r.Nets[j].Net })
	return r, nil
}

// RuleCurrentCapacity identifies IPC-2221 findings
const RuleCurrentCapacity = "ipc2221_current"

// Issues maps findings onto the shared severity scale
func (r *CurrentReport) Issues() []issue.Issue {
	out := make([]issue.Issue, 0, len(r.Findings))
	for _, f := range r.Findings {
		sev := issue.Info
		switch f.Severity {
		case CurrentCritical:
			sev = issue.Error
		case CurrentWarning:
			sev = issue.Warning
		}
		out = append(out, issue.New(RuleCurrentCapacity, sev, f.Net, f.Message+" ("+f.Track+")").
			At(f.Location).
			WithSuggestion(fmt.Sprintf("Increase trace width to at least %.3fmm for %.2fA at %.0f°C rise",
				f.RequiredWidthMM, f.ExpectedA, r.TempRiseC)))
	}
	return out
}
