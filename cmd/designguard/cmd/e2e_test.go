package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
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

// writeProject creates a project directory with a schematic, a board and a
// config that keeps the history database inside the directory
func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"timer.kicad_sch":  timerSchematic,
		"power.kicad_pcb":  narrowBoard,
		"designguard.yaml": "history: " + filepath.Join(dir, "history.db") + "\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// execute runs the root command with args and returns what it printed
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Capture stdout
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		buf.ReadFrom(r)
		close(done)
	}()

	// Reset flags to prevent accumulation between tests
	checkOpts.reset()
	projectOpts.reset()
	watchOpts.reset()
	configPath = ""
	verbose = false
	rulesJSON = false
	infoNetlist = false
	historyLimit, historyJSON, historyClear = 10, false, false
	ipcCurrent, ipcWidth, ipcOz, ipcRise, ipcInternal = 0, 0, 1, 10, false

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	w.Close()
	os.Stdout = old
	<-done
	return buf.String(), err
}

func TestCommandsE2E(t *testing.T) {
	dir := writeProject(t)
	sch := filepath.Join(dir, "timer.kicad_sch")
	board := filepath.Join(dir, "power.kicad_pcb")

	tests := []struct {
		name        string
		args        []string
		wantErr     bool
		wantContain []string
		wantMissing []string
	}{
		{
			name: "check schematic",
			args: []string{"check", sch, "--no-ai", "--rules", "crystal_load_capacitors"},
			wantContain: []string{
				"timer.kicad_sch",
				"datasheet_pin_configuration",
				"Checked 1 file(s): 0 critical, 1 high",
			},
		},
		{
			name:    "check fails on high",
			args:    []string{"check", sch, "--no-ai", "--rules", "crystal_load_capacitors", "--fail-on", "high"},
			wantErr: true,
		},
		{
			name:    "strict promotes to critical",
			args:    []string{"check", sch, "--no-ai", "--rules", "crystal_load_capacitors", "--strict"},
			wantErr: true,
		},
		{
			name:        "offline skips datasheets",
			args:        []string{"check", sch, "--offline", "--rules", "crystal_load_capacitors"},
			wantContain: []string{"No issues found"},
			wantMissing: []string{"datasheet_pin_configuration"},
		},
		{
			name:        "check board as json",
			args:        []string{"check", board, "--no-ai", "--format", "json", "--fail-on", "none"},
			wantContain: []string{`"rule_id": "ipc2221_current"`, `"severity": "error"`, `"ipc2221"`},
		},
		{
			name:    "board fails on critical",
			args:    []string{"check", board, "--no-ai"},
			wantErr: true,
		},
		{
			name:    "unknown rule",
			args:    []string{"check", sch, "--no-ai", "--rules", "no_such_rule"},
			wantErr: true,
		},
		{
			name:    "unknown format",
			args:    []string{"check", sch, "--no-ai", "--format", "xml"},
			wantErr: true,
		},
		{
			name: "project github annotations",
			args: []string{"project", dir, "--no-ai", "--rules", "crystal_load_capacitors", "--format", "github", "--fail-on", "none"},
			wantContain: []string{
				"::warning file=" + sch + ",title=datasheet_pin_configuration::",
				"::error file=" + board + ",title=ipc2221_current::",
			},
		},
		{
			name:    "project fails on critical",
			args:    []string{"project", dir, "--no-ai", "--format", "gitlab"},
			wantErr: true,
		},
		{
			name:    "project without designs",
			args:    []string{"project", t.TempDir(), "--no-ai"},
			wantErr: true,
		},
		{
			name:        "rules",
			args:        []string{"rules"},
			wantContain: []string{"decoupling_capacitor", "i2c_pull_resistors", "bulk_capacitor", "ipc2221_current"},
		},
		{
			name:        "rules json",
			args:        []string{"rules", "--json"},
			wantContain: []string{`"id": "esd_protection"`},
		},
		{
			name:        "ipc required width",
			args:        []string{"ipc", "--current", "1"},
			wantContain: []string{"Copper: 1.00 oz (0.035 mm), external layer", "Required width:"},
		},
		{
			name:        "ipc max current",
			args:        []string{"ipc", "--width", "0.3", "--internal"},
			wantContain: []string{"internal layer", "Max current:"},
		},
		{
			name:        "ipc board",
			args:        []string{"ipc", board},
			wantContain: []string{"+12V"},
		},
		{
			name:        "info schematic",
			args:        []string{"info", sch},
			wantContain: []string{"Components: 2", "C: C1", "U: U1"},
		},
		{
			name:        "info component",
			args:        []string{"info", sch, "U1"},
			wantContain: []string{"Component: U1", "Value: NE555", "Library: Timer:NE555P"},
		},
		{
			name:    "info missing component",
			args:    []string{"info", sch, "U9"},
			wantErr: true,
		},
		{
			name:        "info netlist",
			args:        []string{"info", sch, "--netlist"},
			wantContain: []string{"(export", "(nets"},
		},
		{
			name:        "info board",
			args:        []string{"info", board},
			wantContain: []string{"Tracks: 1", "+12V"},
		},
		{
			name:    "ipc without input",
			args:    []string{"ipc"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := execute(t, tt.args...)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none\nOutput: %s", output)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v\nOutput: %s", err, output)
				return
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(output, want) {
					t.Errorf("Output missing %q\nGot: %s", want, output)
				}
			}
			for _, miss := range tt.wantMissing {
				if strings.Contains(output, miss) {
					t.Errorf("Output should not contain %q\nGot: %s", miss, output)
				}
			}
		})
	}
}

func TestHistoryE2E(t *testing.T) {
	dir := writeProject(t)
	sch := filepath.Join(dir, "timer.kicad_sch")

	out, err := execute(t, "history", dir)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No history for") {
		t.Errorf("expected empty history, got: %s", out)
	}

	if _, err := execute(t, "check", sch, "--no-ai", "--rules", "crystal_load_capacitors", "--history"); err != nil {
		t.Fatalf("check: %v", err)
	}
	out, err = execute(t, "history", dir)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "0 error(s), 1 warning(s)") {
		t.Errorf("missing recorded analysis, got: %s", out)
	}

	out, err = execute(t, "history", dir, "--clear")
	if err != nil {
		t.Fatalf("history --clear: %v", err)
	}
	if !strings.Contains(out, "Deleted 1 record(s)") {
		t.Errorf("unexpected clear output: %s", out)
	}
}
