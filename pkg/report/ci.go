package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/validate"
)

var (
	dataEscaper     = strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A")
	propertyEscaper = strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A", ":", "%3A", ",", "%2C")
)

func githubLevel(s issue.Severity) string {
	switch s {
	case issue.Error:
		return "error"
	case issue.Warning:
		return "warning"
	default:
		return "notice"
	}
}

// writeGitHub emits workflow commands, one annotation per issue
func writeGitHub(w io.Writer, results []validate.FileResult) error {
	var b strings.Builder
	for _, fr := range results {
		file := propertyEscaper.Replace(fr.Path)
		if fr.Err != nil {
			fmt.Fprintf(&b, "::error file=%s,title=parse_error::%s\n", file, dataEscaper.Replace(fr.Err.Error()))
			continue
		}
		for _, i := range sorted(fr.Result.Issues) {
			msg := i.Message
			if i.Component != "" {
				msg = i.Component + ": " + msg
			}
			if i.Suggestion != "" {
				msg += "\n" + i.Suggestion
			}
			fmt.Fprintf(&b, "::%s file=%s,title=%s::%s\n",
				githubLevel(i.Severity), file, propertyEscaper.Replace(i.RuleID), dataEscaper.Replace(msg))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

type codeQualityLines struct {
	Begin int `json:"begin"`
}

type codeQualityLocation struct {
	Path  string           `json:"path"`
	Lines codeQualityLines `json:"lines"`
}

type codeQualityIssue struct {
	Description string              `json:"description"`
	CheckName   string              `json:"check_name"`
	Fingerprint string              `json:"fingerprint"`
	Severity    string              `json:"severity"`
	Location    codeQualityLocation `json:"location"`
}

func gitlabSeverity(s issue.Severity) string {
	switch s {
	case issue.Error:
		return "critical"
	case issue.Warning:
		return "major"
	case issue.Suggestion:
		return "minor"
	default:
		return "info"
	}
}

func fingerprint(path, id string) string {
	sum := sha256.Sum256([]byte(path + "\x00" + id))
	return hex.EncodeToString(sum[:])
}

// writeGitLab emits a code quality report. Design files have no line
// numbers, so every finding points at line 1.
func writeGitLab(w io.Writer, results []validate.FileResult) error {
	out := []codeQualityIssue{}
	for _, fr := range results {
		loc := codeQualityLocation{Path: fr.Path, Lines: codeQualityLines{Begin: 1}}
		if fr.Err != nil {
			out = append(out, codeQualityIssue{
				Description: fr.Err.Error(),
				CheckName:   "parse_error",
				Fingerprint: fingerprint(fr.Path, "parse_error"),
				Severity:    "blocker",
				Location:    loc,
			})
			continue
		}
		for _, i := range fr.Result.Issues {
			desc := i.Message
			if i.Component != "" {
				desc = i.Component + ": " + desc
			}
			out = append(out, codeQualityIssue{
				Description: desc,
				CheckName:   i.RuleID,
				Fingerprint: fingerprint(fr.Path, i.ID),
				Severity:    gitlabSeverity(i.Severity),
				Location:    loc,
			})
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
