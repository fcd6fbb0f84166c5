// Package report renders validation results for terminals, scripts and CI
// systems.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/errs"
	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/validate"
)

// Format selects an output renderer
type Format string

const (
	Human  Format = "human"
	JSON   Format = "json"
	GitHub Format = "github"
	GitLab Format = "gitlab"
)

// Formats lists the accepted format names
var Formats = []Format{Human, JSON, GitHub, GitLab}

// ParseFormat accepts a format name, case-insensitively
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", errs.Config("format", fmt.Errorf("unknown format %q (want human, json, github or gitlab)", s))
}

// Write renders a project run in format f
func Write(w io.Writer, f Format, results []validate.FileResult) error {
	switch f {
	case JSON:
		return writeJSON(w, results)
	case GitHub:
		return writeGitHub(w, results)
	case GitLab:
		return writeGitLab(w, results)
	default:
		return writeHuman(w, results)
	}
}

// WriteResult renders a single file's result
func WriteResult(w io.Writer, f Format, res *validate.Result) error {
	return Write(w, f, []validate.FileResult{{Path: res.File, Result: res}})
}

// Threshold is the lowest bucket that fails a run
type Threshold int

const (
	FailNone Threshold = iota
	FailInfo
	FailLow
	FailMedium
	FailHigh
	FailCritical
)

// ParseThreshold accepts critical, high, medium, low, info or none
func ParseThreshold(s string) (Threshold, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return FailCritical, nil
	case "high":
		return FailHigh, nil
	case "medium":
		return FailMedium, nil
	case "low":
		return FailLow, nil
	case "info":
		return FailInfo, nil
	case "none":
		return FailNone, nil
	}
	return FailNone, errs.Config("fail-on", fmt.Errorf("unknown threshold %q", s))
}

// Reached reports whether stats contain an issue at or above t
func (t Threshold) Reached(s validate.Stats) bool {
	switch t {
	case FailCritical:
		return s.Critical > 0
	case FailHigh:
		return s.Critical+s.High > 0
	case FailMedium:
		return s.Critical+s.High+s.Medium > 0
	case FailLow:
		return s.Critical+s.High+s.Medium+s.Low > 0
	case FailInfo:
		return s.Total() > 0
	}
	return false
}

type jsonFile struct {
	Path   string           `json:"path"`
	Result *validate.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

type jsonSummary struct {
	Files  int            `json:"files"`
	Failed int            `json:"failed"`
	Issues int            `json:"issues"`
	Stats  validate.Stats `json:"stats"`
}

type jsonReport struct {
	Files   []jsonFile  `json:"files"`
	Summary jsonSummary `json:"summary"`
}

func writeJSON(w io.Writer, results []validate.FileResult) error {
	stats, failed := validate.Summarize(results)
	out := jsonReport{
		Files:   make([]jsonFile, len(results)),
		Summary: jsonSummary{Files: len(results), Failed: failed, Issues: stats.Total(), Stats: stats},
	}
	for i, fr := range results {
		out.Files[i] = jsonFile{Path: fr.Path, Result: fr.Result}
		if fr.Err != nil {
			out.Files[i].Error = fr.Err.Error()
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// sorted returns issues by descending severity, keeping input order within
// a severity
func sorted(issues []issue.Issue) []issue.Issue {
	out := make([]issue.Issue, 0, len(issues))
	for s := issue.Error; s >= issue.Info; s-- {
		for _, i := range issues {
			if i.Severity == s {
				out = append(out, i)
			}
		}
	}
	return out
}
