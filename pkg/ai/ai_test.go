package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/designguard/pkg/errs"
	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
)

type fakeProvider struct {
	name      string
	available bool
	err       error
	calls     int
}

func (f *fakeProvider) Name() string                   { return f.name }
func (f *fakeProvider) Available(context.Context) bool { return f.available }

func (f *fakeProvider) AnalyzeSchematic(_ context.Context, c *Context) (*Analysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Analysis{Provider: f.name, Summary: c.ComponentsSummary}, nil
}

func (f *fakeProvider) AskQuestion(_ context.Context, _ *Context, q string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.name + ": " + q, nil
}

func TestBuildContext(t *testing.T) {
	sch := &schematic.Schematic{
		Components: []schematic.Component{
			{Reference: "U1", Value: "STM32F411", LibID: "MCU:STM32F411"},
			{Reference: "R1", Value: "10k"},
			{Reference: "C1", Value: "100n"},
			{Reference: "C2", Value: "10u"},
		},
		PowerSymbols: []schematic.Component{{Reference: "#PWR01", Value: "+3V3"}, {Reference: "#PWR02", Value: "GND"}},
	}
	c := BuildContext(sch, []issue.Issue{issue.New("r", issue.Warning, "U1", "Missing cap")})
	assert.Equal(t, 4, c.ComponentCount)
	assert.Contains(t, c.ComponentsSummary, "1 ICs, 1 resistors, 2 capacitors")
	assert.Contains(t, c.ComponentsSummary, "Key ICs: U1 (STM32F411)")
	assert.Contains(t, c.PowerRails, "+3V3")
	assert.Contains(t, c.PowerRails, "GND")
	assert.Len(t, c.Components, 4)

	prompt := AnalysisPrompt(c)
	assert.Contains(t, prompt, "1 issues found: 1 warning. r: Missing cap")
	assert.Contains(t, prompt, "Power rails: ")
	assert.Contains(t, QuestionPrompt(c, "Is the MCU decoupled?"), "Question: Is the MCU decoupled?")

	empty := BuildContext(nil, nil)
	assert.Contains(t, AnalysisPrompt(empty), "No issues detected by automated checks")
	assert.Contains(t, AnalysisPrompt(empty), "No power rails detected")
}

func TestParseAnalysisJSON(t *testing.T) {
	reply := "Sure, here it is:\n```json\n" + `{
  "summary": "USB to UART bridge",
  "circuit_description": "A CH340G converts USB to serial.",
  "potential_issues": ["No ESD protection on D+/D-"],
  "improvement_suggestions": ["Add a TVS array"],
  "component_recommendations": [{"component": "R1", "current_value": "10k", "suggested_value": "4.7k", "reason": "Faster edges"}]
}` + "\n```"
	a := ParseAnalysis(reply)
	assert.Equal(t, "USB to UART bridge", a.Summary)
	assert.Equal(t, []string{"No ESD protection on D+/D-"}, a.PotentialIssues)
	require.Len(t, a.ComponentRecommendations, 1)
	assert.Equal(t, "4.7k", a.ComponentRecommendations[0].SuggestedValue)
}

func TestParseAnalysisSections(t *testing.T) {
	reply := `SUMMARY: LED blinker
CIRCUIT_DESCRIPTION: A 555 timer
drives an LED.
ADDITIONAL ISSUES:
- Missing CONT capacitor
RECOMMENDATIONS:
* Add 10nF on CONT
COMPONENT_NOTES:
- R2: increase to 47k for a slower blink
`
	a := ParseAnalysis(reply)
	assert.Equal(t, "LED blinker", a.Summary)
	assert.Equal(t, "A 555 timer drives an LED.", a.CircuitDescription)
	assert.Equal(t, []string{"Missing CONT capacitor"}, a.PotentialIssues)
	assert.Equal(t, []string{"Add 10nF on CONT"}, a.ImprovementSuggestions)
	require.Len(t, a.ComponentRecommendations, 1)
	assert.Equal(t, "R2", a.ComponentRecommendations[0].Component)

	raw := ParseAnalysis("The design looks fine.")
	assert.Equal(t, "Analysis completed", raw.Summary)
	assert.Equal(t, "The design looks fine.", raw.CircuitDescription)
}

func TestRouterFallback(t *testing.T) {
	down := &fakeProvider{name: "claude"}
	broken := &fakeProvider{name: "broken", available: true, err: errors.New("boom")}
	local := &fakeProvider{name: "ollama", available: true}
	r := NewRouter([]Provider{down, broken, local})

	a, err := r.AnalyzeSchematic(context.Background(), &Context{ComponentsSummary: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", a.Provider)
	assert.Zero(t, down.calls)
	assert.Equal(t, 1, broken.calls)

	ans, err := r.AskQuestion(context.Background(), &Context{}, "why?")
	require.NoError(t, err)
	assert.Equal(t, "ollama: why?", ans)

	p, err := r.Provider(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "broken", p.Name())

	assert.Equal(t, []Status{{"claude", false}, {"broken", true}, {"ollama", true}}, r.Status(context.Background()))
}

func TestRouterNoProvider(t *testing.T) {
	r := NewRouter([]Provider{&fakeProvider{name: "claude"}})
	_, err := r.AnalyzeSchematic(context.Background(), &Context{})
	assert.ErrorIs(t, err, errs.ErrNoProvider)
	_, err = r.Provider(context.Background())
	assert.ErrorIs(t, err, errs.ErrNoProvider)

	failing := NewRouter([]Provider{&fakeProvider{name: "a", available: true, err: errors.New("quota")}})
	_, err = failing.AskQuestion(context.Background(), &Context{}, "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

func TestFromConfig(t *testing.T) {
	r, err := FromConfig(Config{Prefer: PreferOllama})
	require.NoError(t, err)
	require.Len(t, r.Providers(), 2)
	assert.Equal(t, "ollama", r.Providers()[0].Name())

	r, err = FromConfig(Config{Prefer: PreferAuto})
	require.NoError(t, err)
	assert.Equal(t, "claude", r.Providers()[0].Name())
	assert.False(t, r.Providers()[0].Available(context.Background()))

	r, err = FromConfig(Config{Prefer: PreferNone})
	require.NoError(t, err)
	assert.Empty(t, r.Providers())
}

func TestOllamaAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2"}]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p, err := NewOllama(OllamaConfig{URL: srv.URL})
	require.NoError(t, err)
	assert.True(t, p.Available(context.Background()))

	srv.Close()
	assert.False(t, p.Available(context.Background()))
}

func TestAnthropicProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",` +
			`"content":[{"type":"text","text":"{\"summary\":\"Timer\",\"potential_issues\":[\"floating CONT\"]}"}],` +
			`"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer srv.Close()

	p := NewAnthropic(AnthropicConfig{APIKey: "test", BaseURL: srv.URL})
	assert.True(t, p.Available(context.Background()))
	a, err := p.AnalyzeSchematic(context.Background(), BuildContext(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "Timer", a.Summary)
	assert.Equal(t, "claude", a.Provider)
	assert.Equal(t, []string{"floating CONT"}, a.PotentialIssues)
}
