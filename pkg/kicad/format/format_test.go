package format

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OpenTraceLab/designguard/pkg/errs"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantKind    Kind
		wantRelease int
		wantErr     bool
	}{
		{"legacy v4", "EESchema Schematic File Version 4\nEELAYER 30 0\n", LegacySchematic4, 4, false},
		{"legacy v5", "EESchema Schematic File Version 5\nEELAYER 30 0\n", LegacySchematic5, 5, false},
		{"legacy v2", "EESchema Schematic File Version 2\n", LegacySchematic5, 5, false},
		{"legacy v3", "EESchema Schematic File Version 3\r\nLIBS:power\n", LegacySchematic5, 5, false},
		{"legacy pcb", "PCBNEW-BOARD Version 1 date 2019\n", LegacyPCB, 5, false},
		{"kicad 6 schematic", "(kicad_sch (version 20211123) (generator eeschema)", ModernSchematic, 6, false},
		{"kicad 7 schematic", "(kicad_sch (version 20230121) (generator eeschema)", ModernSchematic, 7, false},
		{"kicad 8 pcb", "(kicad_pcb (version 20240108)", ModernPCB, 7, false},
		{"kicad 8 pcb release", "(kicad_pcb (version 20240208)", ModernPCB, 8, false},
		{"kicad 9 schematic", "\ufeff  \n(kicad_sch\n  (version 20250114)", ModernSchematic, 9, false},
		{"no version", "(kicad_sch (generator eeschema))", ModernSchematic, 6, false},
		{"garbage", "hello world", Unknown, 0, true},
		{"empty", "", Unknown, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got %v", got)
				}
				if !errs.IsParse(err) || !errors.Is(err, errs.ErrUnknownFormat) {
					t.Errorf("Expected parse error wrapping ErrUnknownFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Expected kind %v, got %v", tt.wantKind, got.Kind)
			}
			if got.Release != tt.wantRelease {
				t.Errorf("Expected release %d, got %d", tt.wantRelease, got.Release)
			}
		})
	}
}

func TestDetectReadsOnlyHead(t *testing.T) {
	content := "(kicad_sch (version 20231120)" + strings.Repeat(" (junk", 10000)
	got, err := DetectReader(strings.NewReader(content))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.Version != 20231120 {
		t.Errorf("Expected version 20231120, got %d", got.Version)
	}
}

func TestDetectFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.kicad_pcb")
	if err := os.WriteFile(path, []byte("(kicad_pcb (version 20221018))"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := DetectFile(path)
	if err != nil {
		t.Fatalf("DetectFile failed: %v", err)
	}
	if !got.Kind.IsPCB() || got.Kind.IsLegacy() {
		t.Errorf("Expected modern PCB, got %v", got)
	}

	_, err = DetectFile(filepath.Join(dir, "missing.kicad_sch"))
	if !errs.IsIO(err) {
		t.Errorf("Expected IO error for missing file, got %v", err)
	}
}
