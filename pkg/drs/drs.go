// Package drs computes the Decoupling Risk Score of every IC on a board.
//
// The Risk Index of an IC is
//
//	R = w * (W_dist*D + W_ind*L + W_val*M)
//
// where D, L and M are the worst proximity, loop-inductance and frequency
// mismatch penalties over the IC's decoupling capacitors and w is the
// weight of the net criticality. R is clamped to [0, 100].
package drs

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp"
)

// Penalty weights
const (
	WeightDistance   = 0.4
	WeightInductance = 0.4
	WeightMismatch   = 0.2
)

// Tier boundaries of the Risk Index
const (
	MediumRisk = 30.0
	HighRisk   = 60.0
	// DefaultStopShipment is the Risk Index from which a board must not ship
	DefaultStopShipment = 80.0
)

// Per-capacitor model constants
const (
	// SafeDistanceMM is where the proximity penalty turns quadratic
	SafeDistanceMM = 2.0
	// ViaInductanceNH is the inductance added by one via
	ViaInductanceNH = 0.4
	// NeckDownWidthMM is the track width below which a pad feed is a neck-down
	NeckDownWidthMM = 0.15
	// ViaSearchRadiusMM bounds the search for fan-out vias around a pad
	ViaSearchRadiusMM = 5.0
	// SharedViaRadiusMM is how close another capacitor pad must be to share a via
	SharedViaRadiusMM = 2.0
	// MissingDecouplingPenalty is the unweighted score of an IC without capacitors
	MissingDecouplingPenalty = 100.0
)

// Criticality ranks the rail an IC is powered from
type Criticality int

const (
	CriticalityLow Criticality = iota
	CriticalityMedium
	CriticalityHigh
	CriticalityCritical
)

// Weight returns the multiplier applied to the penalties
func (c Criticality) Weight() float64 {
	switch c {
	case CriticalityCritical:
		return 1.0
	case CriticalityHigh:
		return 0.7
	case CriticalityMedium:
		return 0.5
	default:
		return 0.2
	}
}

func (c Criticality) String() string {
	switch c {
	case CriticalityCritical:
		return "critical"
	case CriticalityHigh:
		return "high"
	case CriticalityMedium:
		return "medium"
	default:
		return "low"
	}
}

func (c Criticality) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// RiskTier buckets a Risk Index
type RiskTier int

const (
	TierLow RiskTier = iota
	TierMedium
	TierHigh
	TierStopShipment
)

func (t RiskTier) String() string {
	switch t {
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	case TierStopShipment:
		return "stop-shipment"
	default:
		return "low"
	}
}

func (t RiskTier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// TierOf buckets r with the given stop-shipment threshold
func TierOf(r, stopShipment float64) RiskTier {
	switch {
	case r >= stopShipment:
		return TierStopShipment
	case r >= HighRisk:
		return TierHigh
	case r >= MediumRisk:
		return TierMedium
	default:
		return TierLow
	}
}

// InductanceTier buckets the loop inductance of one capacitor
type InductanceTier int

const (
	InductanceOK InductanceTier = iota
	InductanceWarning
	InductanceHigh
	InductanceCritical
)

func (t InductanceTier) String() string {
	switch t {
	case InductanceWarning:
		return "warning"
	case InductanceHigh:
		return "high"
	case InductanceCritical:
		return "critical"
	default:
		return "ok"
	}
}

func (t InductanceTier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// InductanceTierOf buckets a loop inductance in nH
func InductanceTierOf(nh float64) InductanceTier {
	switch {
	case nh < 2:
		return InductanceOK
	case nh < 5:
		return InductanceWarning
	case nh <= 10:
		return InductanceHigh
	default:
		return InductanceCritical
	}
}

// HeuristicKind names a layout pattern known to defeat decoupling
type HeuristicKind int

const (
	// SharedVia: two capacitors fan out through the same via
	SharedVia HeuristicKind = iota
	// BacksideOffset: capacitor mounted on the opposite side of the IC
	BacksideOffset
	// NeckDown: a thin track feeds a small pad from a plane
	NeckDown
)

func (k HeuristicKind) String() string {
	switch k {
	case BacksideOffset:
		return "backside-offset"
	case NeckDown:
		return "neck-down"
	default:
		return "shared-via"
	}
}

func (k HeuristicKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Heuristic is a qualitative high-risk finding
type Heuristic struct {
	Kind      HeuristicKind `json:"kind"`
	Capacitor string        `json:"capacitor"`
	// Other is the second capacitor of a shared via
	Other        string  `json:"other,omitempty"`
	IC           string  `json:"ic,omitempty"`
	Via          string  `json:"via,omitempty"`
	ViaCount     int     `json:"via_count,omitempty"`
	TraceWidthMM float64 `json:"trace_width_mm,omitempty"`
}

func (h Heuristic) String() string {
	switch h.Kind {
	case SharedVia:
		return fmt.Sprintf("%s shares via %s with %s", h.Capacitor, h.Via, h.Other)
	case BacksideOffset:
		return fmt.Sprintf("%s is on the opposite side of %s (%d vias)", h.Capacitor, h.IC, h.ViaCount)
	default:
		return fmt.Sprintf("%s is fed by a %.2fmm track", h.Capacitor, h.TraceWidthMM)
	}
}

// CapacitorAnalysis keeps every input of one capacitor's penalties so the
// score can be audited
type CapacitorAnalysis struct {
	Ref        string  `json:"capacitor"`
	Value      string  `json:"value"`
	Net        string  `json:"net"`
	DistanceMM float64 `json:"distance_mm"`
	// PathMM is the routed copper length, equal to DistanceMM when unrouted
	PathMM            float64        `json:"path_mm"`
	Routed            bool           `json:"routed"`
	ViaCount          int            `json:"via_count"`
	DogBoneMM         float64        `json:"dog_bone_mm"`
	TraceWidthMM      float64        `json:"trace_width_mm,omitempty"`
	InductanceNH      float64        `json:"inductance_nh"`
	InductanceTier    InductanceTier `json:"inductance_tier"`
	SRFMHz            float64        `json:"srf_mhz"`
	SwitchingMHz      float64        `json:"switching_mhz"`
	ProximityPenalty  float64        `json:"proximity_penalty"`
	InductancePenalty float64        `json:"inductance_penalty"`
	MismatchPenalty   float64        `json:"mismatch_penalty"`
	SharedVia         bool           `json:"shared_via"`
	BacksideOffset    bool           `json:"backside_offset"`
	NeckDown          bool           `json:"neck_down"`
}

// ICRiskScore is the Risk Index of one IC
type ICRiskScore struct {
	IC                string              `json:"ic"`
	Value             string              `json:"value"`
	RiskIndex         float64             `json:"risk_index"`
	Tier              RiskTier            `json:"tier"`
	ProximityPenalty  float64             `json:"proximity_penalty"`
	InductancePenalty float64             `json:"inductance_penalty"`
	MismatchPenalty   float64             `json:"mismatch_penalty"`
	Criticality       Criticality         `json:"criticality"`
	PowerNets         []string            `json:"power_nets"`
	Capacitors        []CapacitorAnalysis `json:"capacitors"`
	Heuristics        []Heuristic         `json:"heuristics,omitempty"`
	// MeanDistanceMM is the average capacitor distance, 0 without capacitors
	MeanDistanceMM float64 `json:"mean_distance_mm"`
	// MaxInductanceNH is the IC family's loop inductance budget, 0 when unknown
	MaxInductanceNH float64       `json:"max_inductance_nh,omitempty"`
	Location        sexp.Position `json:"location"`
}

// IsStopShipment reports whether the IC blocks the board from shipping
func (s ICRiskScore) IsStopShipment() bool { return s.Tier == TierStopShipment }

// ProximityPenalty grows linearly to the safe distance and quadratically beyond
func ProximityPenalty(distanceMM float64) float64 {
	if distanceMM <= SafeDistanceMM {
		return distanceMM * 2
	}
	d := distanceMM - SafeDistanceMM
	return SafeDistanceMM*2 + d*d*5
}

// InductancePerMM estimates the partial inductance of a track in nH/mm
// from its width. Unrouted connections are assumed to be a typical
// 0.25 mm track over a plane.
func InductancePerMM(widthMM float64) float64 {
	switch {
	case widthMM <= 0:
		return 0.5
	case widthMM < NeckDownWidthMM:
		return 1.0
	case widthMM < 0.3:
		return 0.7
	default:
		return 0.5
	}
}

// LoopInductance returns the loop inductance in nH of a connection
func LoopInductance(pathMM, widthMM float64, vias int) float64 {
	return pathMM*InductancePerMM(widthMM) + float64(vias)*ViaInductanceNH
}

// MismatchPenalty compares the IC switching frequency with the capacitor SRF.
// A ratio within (0.5, 2) is a match.
func MismatchPenalty(switchingMHz, srfMHz float64) float64 {
	if switchingMHz <= 0 || srfMHz <= 0 {
		return 5
	}
	ratio := switchingMHz / srfMHz
	switch {
	case ratio > 0.5 && ratio < 2:
		return 0
	case ratio <= 0.5:
		return (0.5 - ratio) * 20
	default:
		return (ratio - 2) * 10
	}
}

// InductancePenalty scores fan-out vias and dog-bone length. A shared via
// multiplies the cost; backside mounting and neck-downs add a fixed tier.
func InductancePenalty(vias int, dogBoneMM float64, shared, backside, neckDown bool) float64 {
	var p float64
	if shared {
		p = (float64(vias) + dogBoneMM) * 10
	} else {
		p = float64(vias)*2 + dogBoneMM*1.5
	}
	if backside {
		p += 5 * float64(max(vias, 1))
	}
	if neckDown {
		p += 5
	}
	return p
}

var criticalRailTokens = []string{"1.0V", "1V0", "1.2V", "1V2", "VDD_CORE", "VCORE", "VCCINT"}

var lowRailTokens = []string{"FAN", "LED"}

// classifyCriticality ranks the power nets of an IC. CPU-class parts are at
// least High and Critical on core rails; others follow the lowest rail voltage.
func classifyCriticality(value string, nets []string, voltage func(string) (float64, bool)) Criticality {
	core := false
	minV, known := 0.0, false
	low := false
	for _, n := range nets {
		upper := strings.ToUpper(n)
		for _, t := range criticalRailTokens {
			if strings.Contains(upper, t) {
				core = true
			}
		}
		for _, t := range lowRailTokens {
			if strings.Contains(upper, t) {
				low = true
			}
		}
		if v, ok := voltage(n); ok && (!known || v < minV) {
			minV, known = v, true
		}
	}

	if isHighSpeed(value) {
		if core || (known && minV <= 1.2) {
			return CriticalityCritical
		}
		return CriticalityHigh
	}
	switch {
	case core || (known && minV <= 1.2):
		return CriticalityCritical
	case known && minV <= 2.5:
		return CriticalityHigh
	case low:
		return CriticalityLow
	case known && minV <= 5:
		return CriticalityMedium
	case known:
		return CriticalityLow
	default:
		return CriticalityMedium
	}
}

var highSpeedPatterns = []string{"STM32", "ESP32", "RP2040", "CPU", "MPU", "FPGA", "DSP"}

func isHighSpeed(value string) bool {
	upper := strings.ToUpper(value)
	for _, p := range highSpeedPatterns {
		if strings.Contains(upper, p) {
			return true
		}
	}
	return false
}
