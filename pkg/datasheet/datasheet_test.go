package datasheet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/designguard/pkg/errs"
	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
)

func comp(ref, value string, x, y float64) schematic.Component {
	return schematic.Component{Reference: ref, Value: value, Position: schematic.Position{X: x, Y: y}}
}

func TestBuiltinDatabase(t *testing.T) {
	db, err := Builtin()
	require.NoError(t, err)
	assert.Equal(t, 10, db.Len())

	for _, pn := range []string{"STM32F411CEU6", "ESP32-WROOM-32", "ATmega328P", "RP2040", "AMS1117-3.3",
		"LM1117-3.3", "LM7805", "CH340G", "CP2102", "NE555"} {
		_, ok := db.Get(pn)
		assert.True(t, ok, pn)
	}
}

func TestGetFuzzy(t *testing.T) {
	db, err := Builtin()
	require.NoError(t, err)

	r, ok := db.Get("stm32f411")
	require.True(t, ok)
	assert.Equal(t, "STM32F411CEU6", r.PartNumbers[0])

	r, ok = db.Get("LM7805CT")
	require.True(t, ok)
	assert.Equal(t, "LM7805", r.PartNumbers[0])

	_, ok = db.Get("10k")
	assert.False(t, ok)
	_, ok = db.Get("LM358")
	assert.False(t, ok)
	_, ok = db.Get("")
	assert.False(t, ok)
}

func TestMatchComponent(t *testing.T) {
	db, err := Builtin()
	require.NoError(t, err)

	r, ok := db.Match(schematic.Component{Reference: "U1", Value: "MCU", LibID: "MCU_RaspberryPi:RP2040"})
	require.True(t, ok)
	assert.Equal(t, "RP2040", r.PartNumbers[0])

	r, ok = db.Match(schematic.Component{Reference: "U2", Value: "U", LibID: "x:y",
		Properties: map[string]string{"MPN": "CP2102-GMR"}})
	require.True(t, ok)
	assert.Equal(t, "CP2102", r.PartNumbers[0])

	_, ok = db.Match(comp("R1", "10k", 0, 0))
	assert.False(t, ok)
}

func TestRequirementValues(t *testing.T) {
	db, err := Builtin()
	require.NoError(t, err)
	r, ok := db.Get("AMS1117-3.3")
	require.True(t, ok)
	require.Len(t, r.Decoupling, 2)

	out := r.Decoupling[1]
	assert.InDelta(t, 22e-6, float64(out.Typical), 1e-12)
	lo, hi := out.Range()
	assert.InDelta(t, 8e-6, lo, 1e-12)
	assert.InDelta(t, 100e-6, hi, 1e-12)

	in := r.Decoupling[0]
	lo, hi = in.Range()
	assert.InDelta(t, 8e-6, lo, 1e-12)
	assert.InDelta(t, 100e-6, hi, 1e-12)
}

func TestCheckPinCapacitor(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	sch := &schematic.Schematic{Components: []schematic.Component{
		comp("U1", "NE555", 0, 0),
		comp("C1", "100nF", 5, 0),
	}}
	issues := c.Check(sch)
	require.Len(t, issues, 1)
	assert.Equal(t, RulePin, issues[0].RuleID)
	assert.Equal(t, "U1 (NE555) - CONT Capacitor: Missing capacitor on CONT pin", issues[0].Message)
	assert.Contains(t, issues[0].Suggestion, "Add 10nF capacitor from CONT pin to GND")

	sch.Components = append(sch.Components, comp("C2", "10n", 8, 0))
	assert.Empty(t, c.Check(sch))
}

func TestCheckCompleteRP2040(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	sch := &schematic.Schematic{
		Components: []schematic.Component{
			comp("U1", "RP2040", 0, 0),
			comp("C1", "100nF", 10, 0),
			comp("C2", "1uF", 10, 5),
			comp("Y1", "12MHz", 20, 0),
		},
		PowerSymbols: []schematic.Component{comp("#PWR01", "+3V3", 0, 10)},
	}
	assert.Empty(t, c.Check(sch))

	sch.Components = sch.Components[:3]
	issues := c.Check(sch)
	require.Len(t, issues, 1)
	assert.Equal(t, RuleExternal, issues[0].RuleID)
	assert.Equal(t, issue.Warning, issues[0].Severity)
	assert.Contains(t, issues[0].Message, "Missing required 12MHz crystal on pins: XIN, XOUT")
}

func TestCheckSeverities(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	issues := c.Check(&schematic.Schematic{Components: []schematic.Component{comp("U1", "STM32F411CEU6", 0, 0)}})
	require.Len(t, issues, 6)
	assert.Equal(t, 2, issue.Count(issues, issue.Error))
	assert.Equal(t, 4, issue.Count(issues, issue.Warning))
	assert.Equal(t, RuleDecoupling, issues[0].RuleID)
	assert.Contains(t, issues[0].Message, "Missing 100nF bypass capacitor on VDD pin")
	assert.Contains(t, issues[0].Suggestion, "X7R")

	assert.Nil(t, c.Check(nil))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	doc := `part_numbers: [TPS63000]
decoupling:
  - power_pin: VIN
    typical: 10u
    max_distance_mm: 10
    role: bulk
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tps63000.yaml"), []byte(doc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	db := NewDatabase()
	n, err := db.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c, err := New(WithDatabase(db))
	require.NoError(t, err)
	issues := c.Check(&schematic.Schematic{Components: []schematic.Component{comp("U1", "TPS63000", 0, 0)}})
	require.Len(t, issues, 1)
	assert.Equal(t, issue.Warning, issues[0].Severity)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("decoupling: []\n"))
	require.Error(t, err)
	assert.True(t, errs.IsConfig(err))

	_, err = Parse([]byte("part_numbers: [X1234]\ndecoupling:\n  - power_pin: VDD\n    typical: lots\n"))
	require.Error(t, err)
	assert.True(t, errs.IsParse(err))

	_, err = Parse([]byte("part_numbers: [X1234]\npins:\n  - pin: EN\n    type: floating\n"))
	require.Error(t, err)
}
