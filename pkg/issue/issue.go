// Package issue defines the findings produced by rules, scoring and
// compliance checks.
package issue

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp"
)

// Severity orders findings by how much they block a release
type Severity int

const (
	Info Severity = iota
	Suggestion
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Suggestion:
		return "suggestion"
	default:
		return "info"
	}
}

// ParseSeverity accepts the names produced by String
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return Error, nil
	case "warning":
		return Warning, nil
	case "suggestion":
		return Suggestion, nil
	case "info":
		return Info, nil
	}
	return Info, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// RiskScore attaches a quantitative score to an issue
type RiskScore struct {
	Value        float64 `json:"value"`
	InductanceNH float64 `json:"inductance_nh,omitempty"`
	LimitNH      float64 `json:"limit_nh,omitempty"`
	Metric       string  `json:"metric,omitempty"`
	Details      string  `json:"details,omitempty"`
}

// Issue is a single finding
type Issue struct {
	ID         string         `json:"id"`
	RuleID     string         `json:"rule_id"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	Component  string         `json:"component,omitempty"`
	Location   *sexp.Position `json:"location,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
	Risk       *RiskScore     `json:"risk_score,omitempty"`
}

var namespace = uuid.MustParse("6f1c2a3e-5d0b-4c4e-9a57-2f8e1d6b7c90")

// New creates an issue whose ID is derived from its rule, component and
// message, so identical input always yields identical IDs.
func New(ruleID string, sev Severity, component, message string) Issue {
	return Issue{
		ID:        uuid.NewSHA1(namespace, []byte(ruleID+"\x00"+component+"\x00"+message)).String(),
		RuleID:    ruleID,
		Severity:  sev,
		Component: component,
		Message:   message,
	}
}

// Newf is New with a formatted message
func Newf(ruleID string, sev Severity, component, format string, args ...any) Issue {
	return New(ruleID, sev, component, fmt.Sprintf(format, args...))
}

// WithSuggestion returns a copy carrying a remediation hint
func (i Issue) WithSuggestion(s string) Issue {
	i.Suggestion = s
	return i
}

// At returns a copy located at pos
func (i Issue) At(pos sexp.Position) Issue {
	i.Location = &pos
	return i
}

// WithRisk returns a copy carrying a risk score
func (i Issue) WithRisk(r RiskScore) Issue {
	i.Risk = &r
	return i
}

func (i Issue) String() string {
	if i.Component != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", i.Severity, i.RuleID, i.Message, i.Component)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.RuleID, i.Message)
}

// Count returns how many issues have severity s
func Count(issues []Issue, s Severity) int {
	n := 0
	for _, i := range issues {
		if i.Severity == s {
			n++
		}
	}
	return n
}
