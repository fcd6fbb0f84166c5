package validate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/designguard/pkg/compliance"
	"github.com/OpenTraceLab/designguard/pkg/datasheet"
	"github.com/OpenTraceLab/designguard/pkg/errs"
	"github.com/OpenTraceLab/designguard/pkg/issue"
)

const timerSchematic = `(kicad_sch (version 20231120) (generator "eeschema") (uuid "root")
  (symbol (lib_id "Timer:NE555P") (at 0 0 0) (unit 1) (uuid "u1")
    (property "Reference" "U1" (at 0 -5 0))
    (property "Value" "NE555" (at 0 5 0)))
  (symbol (lib_id "Device:C") (at 5 0 0) (unit 1) (uuid "c1")
    (property "Reference" "C1" (at 5 -5 0))
    (property "Value" "100nF" (at 5 5 0)))
)`

const narrowBoard = `(kicad_pcb (version 20221018) (generator pcbnew)
  (layers (0 "F.Cu" signal) (31 "B.Cu" signal))
  (net 0 "")
  (net 1 "+12V")
  (segment (start 0 0) (end 20 0) (width 0.1) (layer "F.Cu") (net 1) (uuid "t1"))
)`

// quiet restricts the rule engine to a rule the fixtures never trigger
func quiet() Options {
	o := DefaultOptions()
	o.Rules = []string{"crystal_load_capacitors"}
	return o
}

func byRule(issues []issue.Issue, rule string) []issue.Issue {
	var out []issue.Issue
	for _, i := range issues {
		if i.RuleID == rule {
			out = append(out, i)
		}
	}
	return out
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.True(t, o.EnableAI)
	assert.False(t, o.OfflineMode)
	assert.False(t, o.StrictMode)
	assert.Empty(t, o.Rules)
}

func TestStats(t *testing.T) {
	issues := []issue.Issue{
		issue.New("a", issue.Error, "U1", "x"),
		issue.New("a", issue.Warning, "U1", "y"),
		issue.New("a", issue.Warning, "U2", "y"),
		issue.New("a", issue.Suggestion, "U1", "z"),
		issue.New("a", issue.Info, "U1", "w"),
	}
	s := StatsOf(issues)
	assert.Equal(t, Stats{Critical: 1, High: 2, Medium: 1, Low: 1}, s)
	assert.Equal(t, 5, s.Total())

	r := &Result{Stats: Stats{High: 1}}
	assert.False(t, r.HasCritical())
	assert.True(t, r.HasHighOrCritical())
	assert.Equal(t, 1, r.TotalIssues())

	assert.Len(t, Failing(issues, issue.Warning), 3)
}

func TestValidateSchematic(t *testing.T) {
	v, err := New(quiet())
	require.NoError(t, err)

	res, err := v.ValidateContent(context.Background(), "timer.kicad_sch", []byte(timerSchematic))
	require.NoError(t, err)
	pins := byRule(res.Issues, datasheet.RulePin)
	require.Len(t, pins, 1)
	assert.Equal(t, issue.Warning, pins[0].Severity)
	assert.Equal(t, 1, res.Stats.High)
	assert.Nil(t, res.EMI)
	assert.Contains(t, res.Format, "kicad_sch")
}

func TestOfflineSkipsDatasheets(t *testing.T) {
	o := quiet()
	o.OfflineMode = true
	v, err := New(o)
	require.NoError(t, err)

	res, err := v.ValidateContent(context.Background(), "timer.kicad_sch", []byte(timerSchematic))
	require.NoError(t, err)
	assert.Empty(t, byRule(res.Issues, datasheet.RulePin))
}

func TestStrictPromotesWarnings(t *testing.T) {
	o := quiet()
	o.StrictMode = true
	v, err := New(o)
	require.NoError(t, err)

	res, err := v.ValidateContent(context.Background(), "timer.kicad_sch", []byte(timerSchematic))
	require.NoError(t, err)
	assert.Zero(t, issue.Count(res.Issues, issue.Warning))
	assert.True(t, res.HasCritical())
	assert.Equal(t, issue.Error, byRule(res.Issues, datasheet.RulePin)[0].Severity)
}

func TestUnknownRule(t *testing.T) {
	o := DefaultOptions()
	o.Rules = []string{"no_such_rule"}
	_, err := New(o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_rule")
}

func TestValidateBoard(t *testing.T) {
	v, err := New(DefaultOptions())
	require.NoError(t, err)

	res, err := v.ValidateContent(context.Background(), "power.kicad_pcb", []byte(narrowBoard))
	require.NoError(t, err)
	require.NotNil(t, res.EMI)
	require.NotNil(t, res.Currents)

	current := byRule(res.Issues, compliance.RuleCurrentCapacity)
	require.Len(t, current, 1)
	assert.Equal(t, issue.Error, current[0].Severity)
	assert.True(t, res.HasCritical())
	require.Len(t, res.Currents.Nets, 1)
	assert.Equal(t, "+12V", res.Currents.Nets[0].Net)
}

func TestConfiguredCurrent(t *testing.T) {
	cfg, err := ParseConfig([]byte("ipc:\n  currents:\n    \"+12*\": 0.1\n"))
	require.NoError(t, err)
	v, err := New(DefaultOptions(), WithConfig(cfg))
	require.NoError(t, err)

	res, err := v.ValidateContent(context.Background(), "power.kicad_pcb", []byte(narrowBoard))
	require.NoError(t, err)
	assert.Empty(t, byRule(res.Issues, compliance.RuleCurrentCapacity))
}

func TestParseFailure(t *testing.T) {
	v, err := New(quiet())
	require.NoError(t, err)

	_, err = v.ValidateContent(context.Background(), "junk.kicad_sch", []byte("not a design"))
	require.Error(t, err)
	assert.True(t, errs.IsParse(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(v.metrics.parseFailures))
}

func TestParseCache(t *testing.T) {
	v, err := New(quiet())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := v.ValidateContent(ctx, "timer.kicad_sch", []byte(timerSchematic))
	require.NoError(t, err)
	second, err := v.ValidateContent(ctx, "timer.kicad_sch", []byte(timerSchematic))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(v.metrics.cacheHits))
	assert.Zero(t, second.ParseDuration)
	assert.Equal(t, first.Issues, second.Issues)
	assert.Equal(t, 2.0, testutil.ToFloat64(v.metrics.files.WithLabelValues("ok")))
}

func TestCancelledContext(t *testing.T) {
	v, err := New(quiet())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = v.ValidateContent(ctx, "timer.kicad_sch", []byte(timerSchematic))
	assert.ErrorIs(t, err, context.Canceled)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.kicad_sch"), timerSchematic)
	writeFile(t, filepath.Join(dir, "main.kicad_pcb"), narrowBoard)
	writeFile(t, filepath.Join(dir, "sub", "legacy.sch"), "EESchema Schematic File Version 4\n")
	writeFile(t, filepath.Join(dir, "sub", "notes.txt"), "x")
	writeFile(t, filepath.Join(dir, ".git", "x.kicad_sch"), timerSchematic)
	writeFile(t, filepath.Join(dir, "node_modules", "y.kicad_pcb"), narrowBoard)
	writeFile(t, filepath.Join(dir, "build", "z.kicad_pcb"), narrowBoard)
	writeFile(t, filepath.Join(dir, "backup", "old.kicad_sch"), timerSchematic)

	cfg := DefaultConfig()
	cfg.Batch.Exclude = []string{"backup"}
	require.NoError(t, cfg.Validate())

	files, err := Discover(dir, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "main.kicad_pcb"),
		filepath.Join(dir, "main.kicad_sch"),
		filepath.Join(dir, "sub", "legacy.sch"),
	}, files)

	_, err = Discover(filepath.Join(dir, "missing"), nil)
	require.Error(t, err)
	assert.True(t, errs.IsIO(err))
}

func TestDiscoverMaxDepth(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a", "top.kicad_sch"), timerSchematic)
	writeFile(t, filepath.Join(dir, "a", "b", "deep.kicad_sch"), timerSchematic)

	cfg := DefaultConfig()
	cfg.Batch.MaxDepth = 1
	files, err := Discover(dir, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a", "top.kicad_sch")}, files)
}

func TestValidateProject(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.kicad_sch"), timerSchematic)
	writeFile(t, filepath.Join(dir, "b.kicad_pcb"), narrowBoard)
	writeFile(t, filepath.Join(dir, "c.kicad_sch"), "(kicad_sch (version 20231120)")

	v, err := New(quiet())
	require.NoError(t, err)
	results, err := v.ValidateProject(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Error(t, results[2].Err)
	assert.Nil(t, results[2].Result)

	stats, failed := Summarize(results)
	assert.Equal(t, 1, failed)
	assert.Equal(t, results[0].Result.Stats.Total()+results[1].Result.Stats.Total(), stats.Total())
}

func TestSiblingBoard(t *testing.T) {
	dir := t.TempDir()
	sch := filepath.Join(dir, "timer.kicad_sch")
	writeFile(t, sch, timerSchematic)

	v, err := New(quiet())
	require.NoError(t, err)
	res, err := v.ValidateFile(context.Background(), sch)
	require.NoError(t, err)
	assert.Empty(t, res.BoardFile)

	writeFile(t, filepath.Join(dir, "timer.kicad_pcb"), narrowBoard)
	res, err = v.ValidateFile(context.Background(), sch)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "timer.kicad_pcb"), res.BoardFile)
}
