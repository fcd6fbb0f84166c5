package drs

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/OpenTraceLab/designguard/pkg/analyzer"
	"github.com/OpenTraceLab/designguard/pkg/kicad/pcb"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
)

// PlaneInductancePerMM is the partial inductance of a path across a pour
const PlaneInductancePerMM = 0.2

// BulkCapacitance is the value from which a capacitor is not expected to
// resonate near the switching frequency
const BulkCapacitance = 4.7e-6

// Analyzer scores boards
type Analyzer struct {
	logger       *slog.Logger
	stopShipment float64
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithLogger sets the logger for scoring diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithStopShipment overrides the Risk Index of the stop-shipment tier
func WithStopShipment(r float64) Option {
	return func(a *Analyzer) {
		if r > 0 {
			a.stopShipment = r
		}
	}
}

// New creates an Analyzer
func New(opts ...Option) *Analyzer {
	a := &Analyzer{logger: slog.Default(), stopShipment: DefaultStopShipment}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// StopShipment returns the configured stop-shipment threshold
func (a *Analyzer) StopShipment() float64 { return a.stopShipment }

type icInfo struct {
	fp        *pcb.Footprint
	powerPads []pcb.Pad
	nets      []string
}

type capInfo struct {
	fp     *pcb.Footprint
	supply []string
}

type assignment struct {
	cap      capInfo
	net      string
	capPad   pcb.Pad
	distance float64
}

// Analyze returns the Risk Index of every IC with at least one pad on a
// supply net, sorted by reference
func (a *Analyzer) Analyze(board *pcb.Board) []ICRiskScore {
	if board == nil {
		return nil
	}
	ics, skipped := collectICs(board)
	if len(ics) == 0 {
		if skipped > 0 {
			a.logger.Warn("DRS found ICs but none has a pad on a supply net", "ics", skipped)
		}
		return nil
	}
	caps := collectCapacitors(board)
	assigned := assign(ics, caps)

	scores := make([]ICRiskScore, 0, len(ics))
	for _, ic := range ics {
		scores = append(scores, a.scoreIC(board, ic, assigned[ic.fp.Reference]))
	}
	a.logger.Debug("DRS analysis complete",
		"file", board.Filename,
		"ics", len(scores),
		"skipped", skipped,
		"capacitors", len(caps))
	return scores
}

func collectICs(board *pcb.Board) ([]icInfo, int) {
	var ics []icInfo
	skipped := 0
	for i := range board.Footprints {
		fp := &board.Footprints[i]
		if schematic.ClassOf(fp.Reference) != schematic.ClassIC {
			continue
		}
		info := icInfo{fp: fp}
		seen := make(map[string]bool)
		for _, p := range fp.Pads {
			if !analyzer.IsSupplyName(p.Net.Name) {
				continue
			}
			info.powerPads = append(info.powerPads, p)
			if !seen[p.Net.Name] {
				seen[p.Net.Name] = true
				info.nets = append(info.nets, p.Net.Name)
			}
		}
		if len(info.powerPads) == 0 {
			skipped++
			continue
		}
		sort.Strings(info.nets)
		ics = append(ics, info)
	}
	sort.Slice(ics, func(i, j int) bool { return ics[i].fp.Reference < ics[j].fp.Reference })
	return ics, skipped
}

// collectCapacitors keeps capacitors bridging a supply net and ground
func collectCapacitors(board *pcb.Board) []capInfo {
	var caps []capInfo
	for i := range board.Footprints {
		fp := &board.Footprints[i]
		if schematic.ClassOf(fp.Reference) != schematic.ClassCapacitor || len(fp.Pads) < 2 {
			continue
		}
		info := capInfo{fp: fp}
		grounded := false
		for _, p := range fp.Pads {
			switch {
			case analyzer.IsGroundName(p.Net.Name):
				grounded = true
			case analyzer.IsSupplyName(p.Net.Name):
				info.supply = append(info.supply, p.Net.Name)
			}
		}
		if grounded && len(info.supply) > 0 {
			caps = append(caps, info)
		}
	}
	return caps
}

// assign gives every capacitor to the nearest IC that has a power pad on
// one of its supply nets
func assign(ics []icInfo, caps []capInfo) map[string][]assignment {
	out := make(map[string][]assignment)
	for _, c := range caps {
		best := assignment{distance: math.Inf(1)}
		var owner string
		for _, ic := range ics {
			for _, pp := range ic.powerPads {
				for _, cp := range c.fp.Pads {
					if cp.Net.Name != pp.Net.Name || !contains(c.supply, cp.Net.Name) {
						continue
					}
					if d := cp.Position.Distance(pp.Position); d < best.distance {
						best = assignment{cap: c, net: cp.Net.Name, capPad: cp, distance: d}
						owner = ic.fp.Reference
					}
				}
			}
		}
		if owner != "" {
			out[owner] = append(out[owner], best)
		}
	}
	for ref := range out {
		list := out[ref]
		sort.Slice(list, func(i, j int) bool {
			if list[i].distance != list[j].distance {
				return list[i].distance < list[j].distance
			}
			return list[i].cap.fp.Reference < list[j].cap.fp.Reference
		})
	}
	return out
}

func (a *Analyzer) scoreIC(board *pcb.Board, ic icInfo, caps []assignment) ICRiskScore {
	score := ICRiskScore{
		IC:          ic.fp.Reference,
		Value:       ic.fp.Value,
		PowerNets:   ic.nets,
		Criticality: classifyCriticality(ic.fp.Value, ic.nets, analyzer.ExtractVoltage),
		Location:    ic.fp.Position.Position,
		Capacitors:  []CapacitorAnalysis{},
	}
	if limit, ok := MaxInductance(ic.fp.Value); ok {
		score.MaxInductanceNH = limit
	}

	var d, l, m, dist []float64
	for _, as := range caps {
		ca, hs := a.analyzeCapacitor(board, ic, as)
		score.Capacitors = append(score.Capacitors, ca)
		score.Heuristics = append(score.Heuristics, hs...)
		d = append(d, ca.ProximityPenalty)
		l = append(l, ca.InductancePenalty)
		m = append(m, ca.MismatchPenalty)
		dist = append(dist, ca.DistanceMM)
	}

	w := score.Criticality.Weight()
	if len(caps) == 0 {
		score.ProximityPenalty = MissingDecouplingPenalty * WeightDistance * w
		score.InductancePenalty = MissingDecouplingPenalty * WeightInductance * w
		score.MismatchPenalty = MissingDecouplingPenalty * WeightMismatch * w
	} else {
		score.ProximityPenalty = floats.Max(d) * WeightDistance * w
		score.InductancePenalty = floats.Max(l) * WeightInductance * w
		score.MismatchPenalty = floats.Max(m) * WeightMismatch * w
		score.MeanDistanceMM = stat.Mean(dist, nil)
	}
	r := score.ProximityPenalty + score.InductancePenalty + score.MismatchPenalty
	score.RiskIndex = math.Max(0, math.Min(100, r))
	score.Tier = TierOf(score.RiskIndex, a.stopShipment)

	a.logger.Debug("IC scored",
		"ic", score.IC,
		"risk", score.RiskIndex,
		"tier", score.Tier,
		"capacitors", len(score.Capacitors))
	return score
}

func (a *Analyzer) analyzeCapacitor(board *pcb.Board, ic icInfo, as assignment) (CapacitorAnalysis, []Heuristic) {
	cfp := as.cap.fp
	ca := CapacitorAnalysis{
		Ref:          cfp.Reference,
		Value:        cfp.Value,
		Net:          as.net,
		DistanceMM:   as.distance,
		SwitchingMHz: SwitchingFrequency(ic.fp.Value),
	}

	fanout := fanoutVias(board, cfp)
	if pa, err := TracePath(board, cfp.Reference, ic.fp.Reference, as.net); err == nil {
		ca.Routed = true
		ca.PathMM = pa.LengthMM
		ca.ViaCount = pa.Vias
		ca.TraceWidthMM = pa.MinWidthMM
		ca.DogBoneMM = math.Max(0, pa.LengthMM-as.distance)
		ca.InductanceNH = PathInductance(pa)
	} else {
		a.logger.Debug("No routed path, using straight-line distance",
			"capacitor", cfp.Reference, "ic", ic.fp.Reference, "error", err)
		ca.PathMM = as.distance
		ca.ViaCount = len(fanout)
		if len(fanout) > 0 {
			ca.DogBoneMM = as.capPad.Position.Distance(fanout[0].Position)
		}
	}

	ca.BacksideOffset = cfp.Layer != ic.fp.Layer
	if ca.BacksideOffset && ca.ViaCount == 0 {
		// the connection has to cross the board
		ca.ViaCount = 1
	}
	if !ca.Routed {
		ca.InductanceNH = LoopInductance(ca.PathMM+ca.DogBoneMM, 0, ca.ViaCount)
	}
	ca.InductanceTier = InductanceTierOf(ca.InductanceNH)

	var hs []Heuristic
	if via, other, ok := sharedVia(board, cfp, fanout); ok {
		ca.SharedVia = true
		hs = append(hs, Heuristic{Kind: SharedVia, Capacitor: cfp.Reference, Other: other, Via: via})
	}
	if ca.BacksideOffset {
		hs = append(hs, Heuristic{Kind: BacksideOffset, Capacitor: cfp.Reference, IC: ic.fp.Reference, ViaCount: ca.ViaCount})
	}
	if width, ok := neckDown(board, cfp, ca); ok {
		ca.NeckDown = true
		hs = append(hs, Heuristic{Kind: NeckDown, Capacitor: cfp.Reference, TraceWidthMM: width})
	}

	ca.ProximityPenalty = ProximityPenalty(ca.DistanceMM)
	ca.InductancePenalty = InductancePenalty(ca.ViaCount, ca.DogBoneMM, ca.SharedVia, ca.BacksideOffset, ca.NeckDown)

	srf, ok := SelfResonantFrequency(cfp.Value, cfp.Library)
	if ok {
		ca.SRFMHz = srf
	}
	if c, parsed := analyzer.Capacitance(cfp.Value); parsed && c >= BulkCapacitance {
		// bulk capacitors cover the low-frequency band
		ca.MismatchPenalty = 0
	} else {
		ca.MismatchPenalty = MismatchPenalty(ca.SwitchingMHz, ca.SRFMHz)
	}
	return ca, hs
}

// PathInductance sums the partial inductance of every hop of a routed path
func PathInductance(pa PathAnalysis) float64 {
	var nh float64
	for _, s := range pa.Segments {
		switch s.Kind {
		case SegmentTrack:
			nh += s.LengthMM * InductancePerMM(s.WidthMM)
		case SegmentZone:
			nh += s.LengthMM * PlaneInductancePerMM
		}
	}
	return nh + float64(pa.Vias)*ViaInductanceNH
}

// fanoutVias returns the vias near any pad of fp on that pad's net, nearest
// first
func fanoutVias(board *pcb.Board, fp *pcb.Footprint) []pcb.Via {
	type near struct {
		via  pcb.Via
		dist float64
	}
	var found []near
	seen := make(map[string]bool)
	for _, p := range fp.Pads {
		if p.Net.Name == "" {
			continue
		}
		for _, v := range board.Vias {
			if v.Net.Name != p.Net.Name || seen[v.ID] {
				continue
			}
			if d := p.Position.Distance(v.Position); d < ViaSearchRadiusMM {
				seen[v.ID] = true
				found = append(found, near{v, d})
			}
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].dist < found[j].dist })
	vias := make([]pcb.Via, len(found))
	for i, n := range found {
		vias[i] = n.via
	}
	return vias
}

// sharedVia reports a fan-out via that another capacitor pad also reaches
func sharedVia(board *pcb.Board, fp *pcb.Footprint, fanout []pcb.Via) (string, string, bool) {
	for _, v := range fanout {
		for i := range board.Footprints {
			other := &board.Footprints[i]
			if other.Reference == fp.Reference || schematic.ClassOf(other.Reference) != schematic.ClassCapacitor {
				continue
			}
			for _, p := range other.Pads {
				if p.Net.Name == v.Net.Name && p.Position.Distance(v.Position) < SharedViaRadiusMM {
					return v.ID, other.Reference, true
				}
			}
		}
	}
	return "", "", false
}

// neckDown flags a thin track on the routed path, or a small pad on a
// poured net that is also fed by thin tracks
func neckDown(board *pcb.Board, fp *pcb.Footprint, ca CapacitorAnalysis) (float64, bool) {
	if ca.Routed && ca.TraceWidthMM > 0 && ca.TraceWidthMM < NeckDownWidthMM {
		return ca.TraceWidthMM, true
	}
	for _, p := range fp.Pads {
		if p.Size.Width >= 1.5 || p.Size.Height >= 1.0 || p.Net.Name == "" {
			continue
		}
		if len(board.GetNetZones(p.Net.Name)) == 0 {
			continue
		}
		for _, t := range board.GetNetTracks(p.Net.Name) {
			if t.Width < NeckDownWidthMM {
				return t.Width, true
			}
		}
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
