package compliance

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/kicad/pcb"
)

// EMI check parameters
const (
	GapSamples           = 11
	ParallelMinLengthMM  = 5.0
	ParallelMaxSpacingMM = 0.5
	ParallelMinCosine    = 0.95
	ReturnViaRadiusMM    = 1.0
)

// EMISeverity grades an EMI finding
type EMISeverity int

const (
	EMIInfo EMISeverity = iota
	EMILow
	EMIMedium
	EMIHigh
	EMICritical
)

func (s EMISeverity) String() string {
	switch s {
	case EMICritical:
		return "critical"
	case EMIHigh:
		return "high"
	case EMIMedium:
		return "medium"
	case EMILow:
		return "low"
	default:
		return "info"
	}
}

func (s EMISeverity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// EMICategory names the kind of EMI finding
type EMICategory int

const (
	PlaneGapCrossing EMICategory = iota
	MissingReferencePlane
	ParallelHighSpeed
	LayerTransition
)

func (c EMICategory) String() string {
	switch c {
	case MissingReferencePlane:
		return "missing_reference_plane"
	case ParallelHighSpeed:
		return "parallel_high_speed"
	case LayerTransition:
		return "layer_transition"
	default:
		return "plane_gap_crossing"
	}
}

func (c EMICategory) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// EMIFinding is one EMI risk on the board
type EMIFinding struct {
	ID             string       `json:"id"`
	Category       EMICategory  `json:"category"`
	Severity       EMISeverity  `json:"severity"`
	Net            string       `json:"net"`
	Class          NetClass     `json:"net_class"`
	Layer          string       `json:"layer,omitempty"`
	Location       pcb.Position `json:"location"`
	Message        string       `json:"message"`
	Recommendation string       `json:"recommendation"`
}

// EMIStats summarizes what was checked
type EMIStats struct {
	HighSpeedNets int `json:"high_speed_nets"`
	ClockNets     int `json:"clock_nets"`
	CheckedTracks int `json:"checked_tracks"`
	CheckedVias   int `json:"checked_vias"`
	// PlaneCoverage is the mean fraction of sample points over a reference
	// plane, 0 when no track was checked
	PlaneCoverage float64 `json:"plane_coverage"`
}

// EMIReport is the EMI view of a board
type EMIReport struct {
	Findings        []EMIFinding `json:"findings"`
	Critical        int          `json:"critical"`
	High            int          `json:"high"`
	Medium          int          `json:"medium"`
	Low             int          `json:"low"`
	Info            int          `json:"info"`
	Stats           EMIStats     `json:"stats"`
	Recommendations []string     `json:"recommendations"`
}

// EMIAnalyzer checks the return paths of high-speed and clock nets
type EMIAnalyzer struct {
	classifier *Classifier
	logger     *slog.Logger
}

// EMIOption configures an EMIAnalyzer
type EMIOption func(*EMIAnalyzer)

// WithClassifier replaces the default net classifier
func WithClassifier(c *Classifier) EMIOption {
	return func(a *EMIAnalyzer) { a.classifier = c }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) EMIOption {
	return func(a *EMIAnalyzer) { a.logger = l }
}

// NewEMIAnalyzer creates an analyzer
func NewEMIAnalyzer(opts ...EMIOption) *EMIAnalyzer {
	a := &EMIAnalyzer{classifier: NewClassifier(nil), logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var emiNamespace = uuid.MustParse("a3d5e1f2-7b64-4c1e-8f09-3c2b6d4e9a11")

func newFinding(cat EMICategory, sev EMISeverity, net string, class NetClass, layer string, at pcb.Position, msg, rec string) EMIFinding {
	key := strings.Join([]string{cat.String(), net, layer,
		strconv.FormatFloat(at.X, 'f', 3, 64), strconv.FormatFloat(at.Y, 'f', 3, 64)}, "\x00")
	return EMIFinding{
		ID:             uuid.NewSHA1(emiNamespace, []byte(key)).String(),
		Category:       cat,
		Severity:       sev,
		Net:            net,
		Class:          class,
		Layer:          layer,
		Location:       at,
		Message:        msg,
		Recommendation: rec,
	}
}

// ReferenceLayer returns the plane layer a signal layer returns through:
// the adjacent inner layer on multilayer boards, the opposite side on two
// layer boards.
func ReferenceLayer(layer string, copper []string) (string, bool) {
	n := len(copper)
	var ref string
	switch {
	case layer == "F.Cu":
		ref = "B.Cu"
		if n > 2 {
			ref = pcb.InnerLayerName(1)
		}
	case layer == "B.Cu":
		ref = "F.Cu"
		if n > 2 {
			ref = pcb.InnerLayerName(n - 2)
		}
	case strings.HasPrefix(layer, "In") && strings.HasSuffix(layer, ".Cu"):
		k, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(layer, "In"), ".Cu"))
		if err != nil {
			return "", false
		}
		ref = "F.Cu"
		if k > 1 {
			ref = pcb.InnerLayerName(k - 1)
		}
	default:
		return "", false
	}
	for _, l := range copper {
		if l == ref {
			return ref, true
		}
	}
	return "", false
}

type netTrack struct {
	pcb.Track
	class NetClass
}

// Analyze runs every EMI check. Findings are ordered by severity, then
// net and category.
func (a *EMIAnalyzer) Analyze(board *pcb.Board) *EMIReport {
	r := &EMIReport{}
	if board == nil {
		return r
	}
	copper := board.CopperLayers()

	classes := make(map[string]NetClass)
	classOf := func(net string) NetClass {
		c, ok := classes[net]
		if !ok {
			c = a.classifier.Classify(net)
			classes[net] = c
		}
		return c
	}

	var tracks []netTrack
	for _, t := range board.Tracks {
		if t.Net.Name == "" {
			continue
		}
		if c := classOf(t.Net.Name); c.NeedsReferencePlane() {
			tracks = append(tracks, netTrack{t, c})
		}
	}
	r.Stats.CheckedTracks = len(tracks)

	var coverage []float64
	reported := make(map[string]bool)
	for _, t := range tracks {
		f, cov, ok := a.checkReference(board, copper, t, reported)
		if ok {
			r.Findings = append(r.Findings, f)
		}
		if cov >= 0 {
			coverage = append(coverage, cov)
		}
	}
	if len(coverage) > 0 {
		r.Stats.PlaneCoverage = stat.Mean(coverage, nil)
	}

	r.Findings = append(r.Findings, parallelRuns(tracks)...)

	for _, v := range board.Vias {
		if classOf(v.Net.Name) != ClassHighSpeed {
			continue
		}
		r.Stats.CheckedVias++
		if !hasReturnVia(board, v) {
			r.Findings = append(r.Findings, newFinding(LayerTransition, EMIMedium, v.Net.Name, ClassHighSpeed, "", v.Position,
				fmt.Sprintf("High-speed net '%s' changes layer without a ground via within %.1fmm", v.Net.Name, ReturnViaRadiusMM),
				"Place a ground stitching via next to the signal via to carry the return current"))
		}
	}

	for net, c := range classes {
		switch {
		case c == ClassHighSpeed && net != "":
			r.Stats.HighSpeedNets++
		case c == ClassClock && net != "":
			r.Stats.ClockNets++
		}
	}

	sort.SliceStable(r.Findings, func(i, j int) bool {
		fi, fj := r.Findings[i], r.Findings[j]
		if fi.Severity != fj.Severity {
			return fi.Severity > fj.Severity
		}
		if fi.Net != fj.Net {
			return fi.Net < fj.Net
		}
		return fi.Category < fj.Category
	})
	r.count()
	r.Recommendations = recommendations(r)
	a.logger.Debug("emi analysis", "tracks", r.Stats.CheckedTracks, "vias", r.Stats.CheckedVias, "findings", len(r.Findings))
	return r
}

// checkReference returns at most one finding for the track and the
// fraction of its samples over a reference plane, or -1 without a plane
func (a *EMIAnalyzer) checkReference(board *pcb.Board, copper []string, t netTrack, reported map[string]bool) (EMIFinding, float64, bool) {
	key := t.Net.Name + "\x00" + t.Layer
	ref, ok := ReferenceLayer(t.Layer, copper)
	if !ok {
		if reported[key] {
			return EMIFinding{}, -1, false
		}
		reported[key] = true
		return newFinding(MissingReferencePlane, EMICritical, t.Net.Name, t.class, t.Layer, t.Start,
			fmt.Sprintf("%s net '%s' on %s has no adjacent reference layer", t.class, t.Net.Name, t.Layer),
			"Add a solid ground plane on an adjacent layer"), -1, true
	}

	var planes []pcb.Zone
	for _, z := range board.Zones {
		if z.Keepout.Enabled || z.Layer != ref {
			continue
		}
		c := a.classifier.Classify(z.Net.Name)
		if c == ClassGround || c == ClassPower {
			planes = append(planes, z)
		}
	}
	if len(planes) == 0 {
		if reported[key] {
			return EMIFinding{}, -1, false
		}
		reported[key] = true
		return newFinding(MissingReferencePlane, EMIHigh, t.Net.Name, t.class, t.Layer, t.Start,
			fmt.Sprintf("%s net '%s' on %s has no ground or power plane on %s", t.class, t.Net.Name, t.Layer, ref),
			fmt.Sprintf("Pour a ground zone on %s under the route", ref)), -1, true
	}

	covered := 0
	var gap *pcb.Position
	for i := 0; i < GapSamples; i++ {
		f := float64(i) / float64(GapSamples-1)
		p := pcb.Position{X: t.Start.X + f*(t.End.X-t.Start.X), Y: t.Start.Y + f*(t.End.Y-t.Start.Y)}
		in := false
		for _, z := range planes {
			if z.Contains(p) {
				in = true
				break
			}
		}
		if in {
			covered++
		} else if gap == nil {
			gap = &p
		}
	}
	cov := float64(covered) / GapSamples
	if gap == nil {
		return EMIFinding{}, cov, false
	}
	sev := EMIHigh
	if t.class == ClassHighSpeed {
		sev = EMICritical
	}
	return newFinding(PlaneGapCrossing, sev, t.Net.Name, t.class, t.Layer, *gap,
		fmt.Sprintf("%s net '%s' on %s crosses a gap in the %s reference plane", t.class, t.Net.Name, t.Layer, ref),
		"Reroute around the plane split or bridge it with a stitching capacitor"), cov, true
}

// parallelRuns reports pairs of tracks of different nets that run side by
// side on one layer for more than ParallelMinLengthMM
func parallelRuns(tracks []netTrack) []EMIFinding {
	var out []EMIFinding
	seen := make(map[string]bool)
	for i := range tracks {
		a := tracks[i]
		la := a.Length()
		if la <= ParallelMinLengthMM {
			continue
		}
		for j := i + 1; j < len(tracks); j++ {
			b := tracks[j]
			if a.Layer != b.Layer || a.Net.Name == b.Net.Name {
				continue
			}
			lb := b.Length()
			if lb <= ParallelMinLengthMM {
				continue
			}
			ux, uy := (a.End.X-a.Start.X)/la, (a.End.Y-a.Start.Y)/la
			vx, vy := (b.End.X-b.Start.X)/lb, (b.End.Y-b.Start.Y)/lb
			if math.Abs(ux*vx+uy*vy) < ParallelMinCosine {
				continue
			}
			mid := pcb.Position{X: (b.Start.X + b.End.X) / 2, Y: (b.Start.Y + b.End.Y) / 2}
			spacing := math.Abs((mid.X-a.Start.X)*uy - (mid.Y-a.Start.Y)*ux)
			if spacing >= ParallelMaxSpacingMM {
				continue
			}
			// overlap of b projected onto a
			p0 := (b.Start.X-a.Start.X)*ux + (b.Start.Y-a.Start.Y)*uy
			p1 := (b.End.X-a.Start.X)*ux + (b.End.Y-a.Start.Y)*uy
			overlap := math.Min(la, math.Max(p0, p1)) - math.Max(0, math.Min(p0, p1))
			if overlap <= ParallelMinLengthMM {
				continue
			}
			n1, n2 := a.Net.Name, b.Net.Name
			if n2 < n1 {
				n1, n2 = n2, n1
			}
			key := n1 + "\x00" + n2 + "\x00" + a.Layer
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, newFinding(ParallelHighSpeed, EMIMedium, n1, a.class, a.Layer, mid,
				fmt.Sprintf("Nets '%s' and '%s' run in parallel for %.1fmm at %.2fmm spacing on %s", n1, n2, overlap, spacing, a.Layer),
				"Increase spacing to at least 3x the trace width or route on different layers"))
		}
	}
	return out
}

func hasReturnVia(board *pcb.Board, v pcb.Via) bool {
	for _, o := range board.Vias {
		u := strings.ToUpper(o.Net.Name)
		if !strings.Contains(u, "GND") && !strings.Contains(u, "VSS") {
			continue
		}
		if o.Position.Distance(v.Position) <= ReturnViaRadiusMM {
			return true
		}
	}
	return false
}

func (r *EMIReport) count() {
	r.Critical, r.High, r.Medium, r.Low, r.Info = 0, 0, 0, 0, 0
	for _, f := range r.Findings {
		switch f.Severity {
		case EMICritical:
			r.Critical++
		case EMIHigh:
			r.High++
		case EMIMedium:
			r.Medium++
		case EMILow:
			r.Low++
		default:
			r.Info++
		}
	}
}

func recommendations(r *EMIReport) []string {
	var out []string
	missing, gaps := false, false
	for _, f := range r.Findings {
		switch f.Category {
		case MissingReferencePlane:
			missing = true
		case PlaneGapCrossing:
			gaps = true
		}
	}
	if missing {
		out = append(out, "CRITICAL: Address missing reference planes immediately - these will cause EMI failures")
	}
	if gaps {
		out = append(out, "HIGH: Review plane gap crossings and consider rerouting high-speed signals")
	}
	if r.Stats.HighSpeedNets > 0 {
		out = append(out,
			"Consider running a full SI/PI simulation for high-speed interfaces",
			"Verify impedance control requirements with your PCB manufacturer")
	}
	return out
}

// RuleEMIPrefix prefixes the rule id of EMI findings
const RuleEMIPrefix = "emi_"

// Issues maps findings onto the shared severity scale
func (r *EMIReport) Issues() []issue.Issue {
	out := make([]issue.Issue, 0, len(r.Findings))
	for _, f := range r.Findings {
		var sev issue.Severity
		switch f.Severity {
		case EMICritical:
			sev = issue.Error
		case EMIHigh:
			sev = issue.Warning
		case EMIMedium:
			sev = issue.Suggestion
		default:
			sev = issue.Info
		}
		out = append(out, issue.New(RuleEMIPrefix+f.Category.String(), sev, f.Net, f.Message).
			At(f.Location).
			WithSuggestion(f.Recommendation))
	}
	return out
}
