package legacy

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/designguard/pkg/errs"
	"github.com/OpenTraceLab/designguard/pkg/kicad/pcb"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
)

const legacySchematic = `EESchema Schematic File Version 4
EELAYER 30 0
EELAYER END
$Descr A4 11693 8268
encoding utf-8
Sheet 1 1
$EndDescr
$Comp
L Device:R R1
U 1 1 5C8D1234
P 800 8900
F 0 "R1" H 870 8946 50  0000 L CNN
F 1 "10k" H 870 8855 50  0000 L CNN
F 2 "Resistor_SMD:R_0603_1608Metric" V 730 8900 50  0001 C CNN
F 3 "~" H 800 8900 50  0001 C CNN
F 4 "Yageo" H 800 8900 50  0001 C CNN "Manufacturer"
	1    800  8900
	0    -1   -1   0
$EndComp
$Comp
L power:GND #PWR01
U 1 1 5C8D2000
P 800 9500
F 0 "#PWR01" H 800 9250 50  0001 C CNN
F 1 "GND" H 805 9327 50  0000 C CNN
	1    800  9500
	1    0    0    -1
$EndComp
$Comp
L Device:C C1
U 1 1 5C8D3000
P garbage 100
$EndComp
Wire Wire Line
	800 8750 800 8000
Wire Wire Line
	800 8000 bad
Text Label 800 8000 0    50   ~ 0
VIN_SENSE
Text GLabel 1200 8000 2    50   Input ~ 0
SDA
Text HLabel 1500 8000 0    50   Output ~ 0
RESET
Text Notes 2000 2000 0    50   ~ 0
just a note
Connection ~ 800 8000
NoConn ~ 3000 3000
$EndSCHEMATC
`

const legacyBoard = `PCBNEW-BOARD Version 1 date 2019-01-01

# Created by Pcbnew(5.1)
$GENERAL
encoding utf-8
LayerCount 2
Ly 80000001
BoardThickness 630
$EndGENERAL
$SHEETDESCR
Sheet A4 11693 8268
$EndSHEETDESCR
$SETUP
TrackMinWidth 80
ViaMinSize 350
ViaMinDrill 200
TrackClearence 100
$EndSETUP
$EQUIPOT
Na 0 ""
St ~
$EndEQUIPOT
$EQUIPOT
Na 1 "GND"
St ~
$EndEQUIPOT
$EQUIPOT
Na 2 "+5V"
St ~
$EndEQUIPOT
$MODULE C_0603
Po 10000 20000 900 0 5C8D0000 00000000 ~~
Li C_0603
Cd Capacitor SMD 0603
Kw capacitor
T0 0 -1000 500 500 0 100 N V 21 N "C1"
T1 0 1000 500 500 0 100 N V 21 N "100nF"
$PAD
Sh "1" R 400 400 0 0 900
Dr 0 0 0
At SMD N 00000001
Ne 2 "+5V"
Po -300 0
$EndPAD
$PAD
Sh "2" R 400 400 0 0 900
Dr 0 0 0
At SMD N 00000001
Ne 1 "GND"
Po 300 0
$EndPAD
$SHAPE3D
Na "Capacitors_SMD.3dshapes/C_0603.wrl"
$EndSHAPE3D
$EndMODULE C_0603
$TRACK
Po 0 10000 19700 30000 19700 100 -1
De 0 0 2 0 0
Po 1 12000 20000 12000 20000 240 -1
De 31 0 1 0 0
Po 1 13000 20000 13000 20000 240 120
De 31 3 1 0 1
$EndTRACK
$CZONE_OUTLINE
ZInfo 5C8D0001 1 "GND"
ZLayer 31
ZAux 4 E
ZMinThickness 100
ZPriority 2
ZCorner 0 0 0
ZCorner 50000 0 0
ZCorner 50000 40000 0
ZCorner 0 40000 1
$POLYSCORNERS
100 100 0 0
49900 100 0 0
49900 39900 0 0
100 39900 1 0
$endPOLYSCORNERS
$endCZONE_OUTLINE
$DRAWSEGMENT
Po 0 0 0 50000 0 150
De 44 0 900 0 0
$EndDRAWSEGMENT
$EndBOARD
`

func TestTokenize(t *testing.T) {
	rec, err := Tokenize(`F 4 "Yageo" H 800 8900 50  0001 C CNN "Manufacturer"`)
	require.NoError(t, err)
	assert.Equal(t, 11, rec.Len())
	assert.Equal(t, "F", rec.Key())
	assert.Equal(t, "Yageo", rec.Text(2))
	assert.True(t, rec.Fields[2].IsQuoted())
	assert.False(t, rec.Fields[4].IsQuoted())
	last, ok := rec.LastQuoted()
	assert.True(t, ok)
	assert.Equal(t, "Manufacturer", last)
	assert.Equal(t, "", rec.Text(42))

	rec, err = Tokenize("At STD N 00E0FFFF")
	require.NoError(t, err)
	require.Equal(t, 4, rec.Len())
	assert.Equal(t, "00E0FFFF", rec.Text(3), "hex masks stay one field")

	rec, err = Tokenize(`Na 3 "a \"b\""`)
	require.NoError(t, err)
	assert.Equal(t, `a "b"`, rec.Text(2))

	_, err = Tokenize(`Na 3 "unterminated`)
	assert.Error(t, err)
}

func TestUnitConversion(t *testing.T) {
	assert.InDelta(t, 0.08, schCoord(800), 1e-4)
	assert.InDelta(t, 0.89, schCoord(8900), 1e-4)
}

func TestParseSchematic(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	sch, err := ParseSchematic([]byte(legacySchematic), WithFilename("old.sch"), WithLogger(logger))
	require.NoError(t, err)

	assert.Equal(t, "eeschema-v4", sch.Format)
	assert.Equal(t, "old.sch", sch.Filename)

	// C1 has a malformed position and is skipped with a diagnostic
	require.Len(t, sch.Components, 1)
	assert.Contains(t, logs.String(), "skipping component block")

	r1 := sch.Components[0]
	assert.Equal(t, "R1", r1.Reference)
	assert.Equal(t, "10k", r1.Value)
	assert.Equal(t, "Device:R", r1.LibID)
	assert.Equal(t, "Resistor_SMD:R_0603_1608Metric", r1.Footprint)
	assert.Equal(t, "Yageo", r1.Property("Manufacturer"))
	assert.InDelta(t, 0.08, r1.Position.X, 1e-9)
	assert.InDelta(t, 0.89, r1.Position.Y, 1e-9)
	assert.Equal(t, 90.0, r1.Rotation)
	assert.Empty(t, r1.Pins)

	require.Len(t, sch.PowerSymbols, 1)
	gnd := sch.PowerSymbols[0]
	assert.Equal(t, "#PWR01", gnd.Reference)
	assert.Equal(t, "GND", gnd.Value)
	require.Len(t, gnd.Pins, 1)
	assert.True(t, gnd.Pins[0].Located)
	assert.Equal(t, gnd.Position, gnd.Pins[0].Position)

	require.Len(t, sch.Wires, 1)
	assert.InDelta(t, 0.875, sch.Wires[0].Points[0].Y, 1e-9)
	assert.InDelta(t, 0.8, sch.Wires[0].Points[1].Y, 1e-9)

	require.Len(t, sch.Labels, 3)
	kinds := map[string]schematic.LabelKind{}
	for _, l := range sch.Labels {
		kinds[l.Text] = l.Kind
	}
	assert.Equal(t, map[string]schematic.LabelKind{
		"VIN_SENSE": schematic.LabelLocal,
		"SDA":       schematic.LabelGlobal,
		"RESET":     schematic.LabelHierarchical,
	}, kinds)
	assert.Equal(t, 180.0, sch.Labels[1].Rotation)

	assert.Len(t, sch.Junctions, 1)
	assert.Len(t, sch.NoConnects, 1)
}

func TestParseSchematicDeterministic(t *testing.T) {
	a, err := ParseSchematic([]byte(legacySchematic), WithFilename("x.sch"))
	require.NoError(t, err)
	b, err := ParseSchematic([]byte(legacySchematic), WithFilename("x.sch"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseSchematicHeader(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		format  string
	}{
		{"version 5", "EESchema Schematic File Version 5\n$EndSCHEMATC\n", false, "eeschema-v5"},
		{"leading blank lines", "\n\nEESchema Schematic File Version 4\n", false, "eeschema-v4"},
		{"board file", "PCBNEW-BOARD Version 1\n", true, ""},
		{"empty", "", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sch, err := ParseSchematic([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.IsParse(err))
				assert.True(t, errors.Is(err, errs.ErrUnknownFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.format, sch.Format)
		})
	}
}

func TestParseSchematicTruncatedComponent(t *testing.T) {
	input := "EESchema Schematic File Version 4\n$Comp\nL Device:R R9\nP 100 100\n"
	sch, err := ParseSchematic([]byte(input))
	require.NoError(t, err)
	assert.Empty(t, sch.Components)
}

func TestParsePCB(t *testing.T) {
	board, err := ParsePCB([]byte(legacyBoard), WithFilename("old.brd"))
	require.NoError(t, err)

	assert.Equal(t, "pcbnew-legacy", board.Format)
	assert.Equal(t, []string{"F.Cu", "B.Cu"}, board.CopperLayers())
	assert.InDelta(t, 1.6002, board.Setup.Thickness, 1e-9)
	assert.InDelta(t, 0.2032, board.Setup.TraceMin, 1e-9)
	assert.InDelta(t, 0.889, board.Setup.ViaMinSize, 1e-9)
	assert.InDelta(t, 0.508, board.Setup.ViaMinDrill, 1e-9)
	assert.InDelta(t, 0.254, board.Setup.Clearance, 1e-9)

	require.Len(t, board.Nets, 3)
	net, ok := board.GetNet("+5V")
	require.True(t, ok)
	assert.Equal(t, 2, net.Number)

	require.Len(t, board.Footprints, 1)
	fp := board.Footprints[0]
	assert.Equal(t, "C1", fp.Reference)
	assert.Equal(t, "100nF", fp.Value)
	assert.Equal(t, "C_0603", fp.Library)
	assert.Equal(t, "F.Cu", fp.Layer)
	assert.Equal(t, "Capacitor SMD 0603", fp.Properties["Description"])
	assert.InDelta(t, 90.0, float64(fp.Position.Angle), 1e-9)

	require.Len(t, fp.Pads, 2)
	p1 := fp.Pads[0]
	assert.Equal(t, "1", p1.Number)
	assert.Equal(t, pcb.PadSMD, p1.Type)
	assert.Equal(t, pcb.ShapeRect, p1.Shape)
	assert.Equal(t, pcb.LayerSet{"F.Cu"}, p1.Layers)
	assert.Equal(t, "+5V", p1.Net.Name)
	assert.InDelta(t, 1.016, p1.Size.Width, 1e-9)
	assert.InDelta(t, 25.4, p1.Position.X, 1e-6)
	assert.InDelta(t, 51.562, p1.Position.Y, 1e-6)

	require.Len(t, board.Tracks, 1)
	tr := board.Tracks[0]
	assert.Equal(t, "F.Cu", tr.Layer)
	assert.Equal(t, "+5V", tr.Net.Name)
	assert.InDelta(t, 0.254, tr.Width, 1e-9)
	assert.InDelta(t, 50.8, tr.Length(), 1e-6)

	require.Len(t, board.Vias, 2)
	assert.Equal(t, pcb.ViaThrough, board.Vias[0].Type)
	assert.InDelta(t, 0.3048, board.Vias[0].Drill, 1e-9)
	assert.Equal(t, "GND", board.Vias[0].Net.Name)
	assert.Equal(t, pcb.ViaMicro, board.Vias[1].Type)
	assert.InDelta(t, 0.3048, board.Vias[1].Drill, 1e-9)
	assert.True(t, board.Vias[1].Locked)

	require.Len(t, board.Zones, 1)
	z := board.Zones[0]
	assert.Equal(t, "B.Cu", z.Layer)
	assert.Equal(t, "GND", z.Net.Name)
	assert.Equal(t, 2, z.Priority)
	assert.Len(t, z.Outline, 4)
	require.Len(t, z.Fills, 1)
	assert.Len(t, z.Fills[0], 4)

	assert.InDelta(t, 127.0, board.Outline.Width(), 1e-6)
}

func TestParsePCBHeader(t *testing.T) {
	_, err := ParsePCB([]byte("EESchema Schematic File Version 4\n"))
	require.Error(t, err)
	assert.True(t, errs.IsParse(err))
}

func TestParsePCBUnits(t *testing.T) {
	tests := []struct {
		name  string
		lines string
		want  float64
	}{
		{"default decimils", "", 0.00254},
		{"mm units", "Units mm\n", 1},
		{"internal unit inch", "InternalUnit 0.000100 INCH\n", 0.00254},
		{"internal unit mm", "InternalUnit 0.001 MM\n", 0.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := unitFactor(strings.Split("PCBNEW-BOARD Version 1\n"+tt.lines, "\n"))
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestLayerName(t *testing.T) {
	tests := map[int]string{
		0:  "F.Cu",
		5:  "In5.Cu",
		31: "B.Cu",
		37: "F.SilkS",
		44: "Edge.Cuts",
		49: "F.Fab",
		50: "User.50",
	}
	for n, want := range tests {
		assert.Equal(t, want, LayerName(n), "layer %d", n)
	}
	assert.Equal(t, pcb.LayerSet{"F.Cu", "B.Cu"}, layerMask("80000001"))
	assert.Nil(t, layerMask("zz"))
}
