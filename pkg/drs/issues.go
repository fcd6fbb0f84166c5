package drs

import (
	"fmt"

	"github.com/OpenTraceLab/designguard/pkg/issue"
)

// Rule identifiers of DRS findings
const (
	RuleRisk       = "drs_risk"
	RuleInductance = "drs_inductance"
	RuleHeuristic  = "drs_layout"
)

// Issues turns scores into findings. Low-tier ICs produce nothing unless
// one of their capacitors exceeds the family's inductance budget or sits
// in the critical inductance tier.
func Issues(scores []ICRiskScore) []issue.Issue {
	var out []issue.Issue
	for _, s := range scores {
		if sev, ok := tierSeverity(s.Tier); ok {
			out = append(out, riskIssue(s, sev))
		}
		for _, c := range s.Capacitors {
			if iss, ok := inductanceIssue(s, c); ok {
				out = append(out, iss)
			}
		}
		for _, h := range s.Heuristics {
			out = append(out, issue.Newf(RuleHeuristic, issue.Suggestion, h.Capacitor,
				"High-risk decoupling layout: %s", h).At(s.Location))
		}
	}
	return out
}

func tierSeverity(t RiskTier) (issue.Severity, bool) {
	switch t {
	case TierStopShipment:
		return issue.Error, true
	case TierHigh:
		return issue.Warning, true
	case TierMedium:
		return issue.Suggestion, true
	default:
		return issue.Info, false
	}
}

func riskIssue(s ICRiskScore, sev issue.Severity) issue.Issue {
	msg := fmt.Sprintf("Decoupling risk index %.0f (%s) for %s (%s)", s.RiskIndex, s.Tier, s.IC, s.Value)
	if len(s.Capacitors) == 0 {
		msg = fmt.Sprintf("Decoupling risk index %.0f (%s) for %s (%s): no decoupling capacitor on %v",
			s.RiskIndex, s.Tier, s.IC, s.Value, s.PowerNets)
	}
	details := fmt.Sprintf("D=%.1f L=%.1f M=%.1f criticality=%s", s.ProximityPenalty, s.InductancePenalty, s.MismatchPenalty, s.Criticality)
	risk := issue.RiskScore{Value: s.RiskIndex, Metric: "risk_index", Details: details, LimitNH: s.MaxInductanceNH}
	if worst, ok := worstInductance(s); ok {
		risk.InductanceNH = worst.InductanceNH
	}
	return issue.New(RuleRisk, sev, s.IC, msg).
		At(s.Location).
		WithRisk(risk).
		WithSuggestion("Move decoupling capacitors within 2mm of the power pins on the IC's layer and avoid shared or long fan-out vias")
}

func inductanceIssue(s ICRiskScore, c CapacitorAnalysis) (issue.Issue, bool) {
	over := s.MaxInductanceNH > 0 && c.InductanceNH > s.MaxInductanceNH
	if !over && c.InductanceTier != InductanceCritical {
		return issue.Issue{}, false
	}
	sev := issue.Warning
	if c.InductanceTier == InductanceCritical && s.Tier == TierStopShipment {
		sev = issue.Error
	}
	msg := fmt.Sprintf("Loop inductance %.1fnH (%s) from %s to %s on %s", c.InductanceNH, c.InductanceTier, c.Ref, s.IC, c.Net)
	if over {
		msg += fmt.Sprintf(" exceeds the %.1fnH budget of %s", s.MaxInductanceNH, s.Value)
	}
	return issue.New(RuleInductance, sev, c.Ref, msg).
		At(s.Location).
		WithRisk(issue.RiskScore{
			Value:        s.RiskIndex,
			InductanceNH: c.InductanceNH,
			LimitNH:      s.MaxInductanceNH,
			Metric:       "loop_inductance",
			Details:      fmt.Sprintf("path=%.2fmm vias=%d width=%.2fmm", c.PathMM, c.ViaCount, c.TraceWidthMM),
		}).
		WithSuggestion("Shorten the path and use a wider track or a direct via to the plane"), true
}

func worstInductance(s ICRiskScore) (CapacitorAnalysis, bool) {
	var worst CapacitorAnalysis
	found := false
	for _, c := range s.Capacitors {
		if !found || c.InductanceNH > worst.InductanceNH {
			worst, found = c, true
		}
	}
	return worst, found
}
