package kicad

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/designguard/pkg/errs"
	"github.com/OpenTraceLab/designguard/pkg/kicad/format"
)

func TestLoadContent(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		kind      format.Kind
		schematic bool
	}{
		{
			name:      "modern schematic",
			content:   `(kicad_sch (version 20231120) (generator "eeschema") (uuid "a"))`,
			kind:      format.ModernSchematic,
			schematic: true,
		},
		{
			name:    "modern board",
			content: `(kicad_pcb (version 20240108) (generator "pcbnew") (layers (0 "F.Cu" signal)))`,
			kind:    format.ModernPCB,
		},
		{
			name:      "legacy schematic",
			content:   "EESchema Schematic File Version 5\n$EndSCHEMATC\n",
			kind:      format.LegacySchematic5,
			schematic: true,
		},
		{
			name:      "kicad 4 schematic",
			content:   "EESchema Schematic File Version 2\nLIBS:power\n$EndSCHEMATC\n",
			kind:      format.LegacySchematic5,
			schematic: true,
		},
		{
			name:    "legacy board",
			content: "PCBNEW-BOARD Version 1 date 2019-01-01\n$EndBOARD\n",
			kind:    format.LegacyPCB,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := LoadContent("design", []byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, d.Format.Kind)
			assert.Equal(t, tt.schematic, d.IsSchematic())
			assert.Equal(t, !tt.schematic, d.Board != nil)
		})
	}
}

func TestLoadContentErrors(t *testing.T) {
	_, err := LoadContent("x", []byte("hello world"))
	require.Error(t, err)
	assert.True(t, errs.IsParse(err))

	// Detected as modern but structurally broken
	_, err = LoadContent("x", []byte("(kicad_sch (version 20231120)"))
	require.Error(t, err)
	assert.True(t, errs.IsParse(err))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.kicad_pcb")
	require.NoError(t, os.WriteFile(path, []byte(`(kicad_pcb (version 20221018) (layers (0 "F.Cu" signal)))`), 0o644))

	d, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, d.Board.Filename)

	_, err = LoadFile(filepath.Join(dir, "missing.kicad_sch"))
	require.Error(t, err)
	assert.True(t, errs.IsIO(err))
}
