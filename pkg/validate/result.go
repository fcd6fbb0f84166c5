package validate

import (
	"time"

	"github.com/OpenTraceLab/designguard/pkg/compliance"
	"github.com/OpenTraceLab/designguard/pkg/drs"
	"github.com/OpenTraceLab/designguard/pkg/issue"
)

// Stats buckets issues by severity. Error counts as critical, Warning as
// high, Suggestion as medium and Info as low; the Info bucket is reserved.
type Stats struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// StatsOf counts issues into buckets
func StatsOf(issues []issue.Issue) Stats {
	var s Stats
	for _, i := range issues {
		switch i.Severity {
		case issue.Error:
			s.Critical++
		case issue.Warning:
			s.High++
		case issue.Suggestion:
			s.Medium++
		case issue.Info:
			s.Low++
		}
	}
	return s
}

// Total returns the sum of all buckets
func (s Stats) Total() int {
	return s.Critical + s.High + s.Medium + s.Low + s.Info
}

// Add accumulates other into s
func (s *Stats) Add(other Stats) {
	s.Critical += other.Critical
	s.High += other.High
	s.Medium += other.Medium
	s.Low += other.Low
	s.Info += other.Info
}

// Result is the outcome of validating one file
type Result struct {
	File          string                    `json:"file"`
	Format        string                    `json:"format"`
	Issues        []issue.Issue             `json:"issues"`
	Stats         Stats                     `json:"stats"`
	ParseDuration time.Duration             `json:"parse_duration_ns"`
	Risk          []drs.ICRiskScore         `json:"drs,omitempty"`
	EMI           *compliance.EMIReport     `json:"emi,omitempty"`
	Currents      *compliance.CurrentReport `json:"ipc2221,omitempty"`
	// BoardFile is the sibling board used for geometric grouping
	BoardFile string `json:"board_file,omitempty"`
}

// HasCritical reports whether any issue is critical
func (r *Result) HasCritical() bool { return r.Stats.Critical > 0 }

// HasHighOrCritical reports whether any issue is high or critical
func (r *Result) HasHighOrCritical() bool { return r.Stats.Critical > 0 || r.Stats.High > 0 }

// TotalIssues returns the number of bucketed issues
func (r *Result) TotalIssues() int { return r.Stats.Total() }

// FileResult is one entry of a project run. Exactly one of Result and Err
// is set.
type FileResult struct {
	Path   string  `json:"path"`
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
}

// Summarize totals the successful results of a project run
func Summarize(results []FileResult) (stats Stats, failed int) {
	for _, fr := range results {
		if fr.Err != nil {
			failed++
			continue
		}
		stats.Add(fr.Result.Stats)
	}
	return stats, failed
}

// promote turns warnings into errors for strict mode
func promote(issues []issue.Issue) {
	for i := range issues {
		if issues[i].Severity == issue.Warning {
			issues[i].Severity = issue.Error
		}
	}
}
