package issue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp"
)

func TestSeverityOrder(t *testing.T) {
	assert.Greater(t, Error, Warning)
	assert.Greater(t, Warning, Suggestion)
	assert.Greater(t, Suggestion, Info)
}

func TestParseSeverity(t *testing.T) {
	for _, s := range []Severity{Error, Warning, Suggestion, Info} {
		got, err := ParseSeverity(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	got, err := ParseSeverity(" WARNING ")
	require.NoError(t, err)
	assert.Equal(t, Warning, got)

	_, err = ParseSeverity("fatal")
	assert.Error(t, err)
}

func TestNewDeterministicID(t *testing.T) {
	a := New("decoupling_capacitor", Warning, "U1", "missing decoupling")
	b := New("decoupling_capacitor", Warning, "U1", "missing decoupling")
	c := New("decoupling_capacitor", Warning, "U2", "missing decoupling")

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
	assert.Len(t, a.ID, 36)
}

func TestIssueBuilders(t *testing.T) {
	base := Newf("power_pins", Error, "", "no %s net", "GND")
	i := base.WithSuggestion("add a GND symbol").At(sexp.Position{X: 1, Y: 2}).WithRisk(RiskScore{Value: 40})

	assert.Empty(t, base.Suggestion, "builders must not mutate the receiver")
	assert.Nil(t, base.Location)
	assert.Equal(t, "no GND net", i.Message)
	assert.Equal(t, 2.0, i.Location.Y)
	assert.Equal(t, 40.0, i.Risk.Value)
	assert.Equal(t, "[error] power_pins: no GND net", i.String())
}

func TestIssueJSON(t *testing.T) {
	data, err := json.Marshal(New("esd_protection", Info, "J1", "USB"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"severity":"info"`)
	assert.NotContains(t, string(data), "location")
}

func TestCount(t *testing.T) {
	issues := []Issue{
		New("a", Error, "", "x"),
		New("a", Warning, "", "y"),
		New("b", Error, "", "z"),
	}
	assert.Equal(t, 2, Count(issues, Error))
	assert.Equal(t, 0, Count(issues, Info))
}
