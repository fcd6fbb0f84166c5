package drs

import (
	"math"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/analyzer"
)

// patternValue maps a part-value substring to a number. Tables are ordered
// so that longer, more specific patterns are tried before their prefixes.
type patternValue struct {
	pattern string
	value   float64
}

func lookup(table []patternValue, partValue string) (float64, bool) {
	v := strings.ToUpper(partValue)
	for _, e := range table {
		if v == e.pattern {
			return e.value, true
		}
	}
	for _, e := range table {
		if strings.Contains(v, e.pattern) {
			return e.value, true
		}
	}
	return 0, false
}

// switchingFreqMHz is the nominal core clock of common parts
var switchingFreqMHz = []patternValue{
	{"STM32F411", 100},
	{"STM32F4", 168},
	{"STM32F7", 216},
	{"STM32H7", 480},
	{"ESP32-WROOM", 240},
	{"ESP32", 240},
	{"RP2040", 133},
	{"ATMEGA328P", 20},
	{"CPU", 1000},
	{"MPU", 1000},
	{"FPGA", 500},
	{"DSP", 300},
}

// DefaultSwitchingFreqMHz is assumed for parts missing from the table
const DefaultSwitchingFreqMHz = 50.0

// SwitchingFrequency returns the switching frequency in MHz of an IC value
func SwitchingFrequency(value string) float64 {
	if f, ok := lookup(switchingFreqMHz, value); ok {
		return f
	}
	return DefaultSwitchingFreqMHz
}

// maxInductanceNH is the loop inductance budget per IC family
var maxInductanceNH = []patternValue{
	{"STM32F411", 4.0},
	{"STM32H7", 3.0},
	{"STM32F7", 3.5},
	{"STM32F4", 4.0},
	{"STM32F1", 5.0},
	{"ESP32-WROOM", 3.0},
	{"ESP32", 3.0},
	{"RP2040", 4.0},
	{"ATMEGA328P", 10.0},
	{"FPGA", 2.5},
	{"CPU", 2.0},
	{"MPU", 2.0},
	{"DSP", 3.0},
}

// MaxInductance returns the loop inductance limit in nH for an IC value
func MaxInductance(value string) (float64, bool) {
	return lookup(maxInductanceNH, value)
}

type srfEntry struct {
	farads float64
	mhz    float64
}

// 0402 ceramics
var srfTable = []srfEntry{
	{10e-12, 2000}, {22e-12, 1500}, {47e-12, 1000},
	{100e-12, 800}, {220e-12, 600}, {470e-12, 400},
	{1e-9, 300}, {2.2e-9, 200}, {4.7e-9, 150},
	{10e-9, 100}, {22e-9, 70}, {47e-9, 50},
	{100e-9, 30}, {220e-9, 20}, {470e-9, 15},
	{1e-6, 10}, {2.2e-6, 7}, {4.7e-6, 5},
	{10e-6, 3}, {22e-6, 2}, {47e-6, 1.5},
	{100e-6, 1},
}

// larger packages resonate lower
var srfPackage = []struct {
	name    string
	entries []srfEntry
}{
	{"0603", []srfEntry{{100e-9, 25}, {10e-6, 2.5}}},
	{"0805", []srfEntry{{100e-9, 20}, {10e-6, 2}}},
}

func sameValue(a, b float64) bool {
	return math.Abs(a-b) <= b*0.01
}

// SelfResonantFrequency returns the SRF in MHz of a capacitor. The footprint
// selects a package-specific entry when one exists. Values missing from the
// table are estimated as k/sqrt(C) with the 0402 constant.
func SelfResonantFrequency(value, footprint string) (float64, bool) {
	c, ok := analyzer.Capacitance(value)
	if !ok || c <= 0 {
		return 0, false
	}
	for _, pkg := range srfPackage {
		if !strings.Contains(footprint, pkg.name) {
			continue
		}
		for _, e := range pkg.entries {
			if sameValue(c, e.farads) {
				return e.mhz, true
			}
		}
	}
	for _, e := range srfTable {
		if sameValue(c, e.farads) {
			return e.mhz, true
		}
	}
	const k = 3000.0
	return k / math.Sqrt(c) / 1e6, true
}
