package analyzer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

var capacitanceMultipliers = map[rune]float64{
	'p': 1e-12,
	'n': 1e-9,
	'u': 1e-6,
	'µ': 1e-6,
	'μ': 1e-6,
	'm': 1e-3,
	'f': 1,
}

var resistanceMultipliers = map[rune]float64{
	'r': 1,
	'R': 1,
	'Ω': 1,
	'k': 1e3,
	'K': 1e3,
	'M': 1e6,
	'm': 1e-3,
	'G': 1e9,
}

// parseValue reads a leading number with an optional SI multiplier. The
// multiplier may also stand in for the decimal point, as in 4k7 or 2R2.
// A bare number is scaled by def.
func parseValue(s string, mult map[rune]float64, def float64) (float64, bool) {
	runes := []rune(strings.TrimSpace(s))
	i := 0
	for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
		i++
	}
	if i == 0 {
		return 0, false
	}
	whole := string(runes[:i])

	scale := def
	if i < len(runes) {
		if m, ok := mult[runes[i]]; ok {
			scale = m
			j := i + 1
			for j < len(runes) && unicode.IsDigit(runes[j]) {
				j++
			}
			if j > i+1 && !strings.Contains(whole, ".") {
				whole += "." + string(runes[i+1:j])
			}
		}
	}

	n, err := strconv.ParseFloat(whole, 64)
	if err != nil {
		return 0, false
	}
	return n * scale, true
}

// Capacitance parses values such as 100nF, 4.7u, 4n7 or 22p into farads.
// Bare numbers are taken as picofarads.
func Capacitance(s string) (float64, bool) {
	return parseValue(strings.ToLower(s), capacitanceMultipliers, 1e-12)
}

// Resistance parses values such as 10k, 4k7, 2R2 or 1M into ohms
func Resistance(s string) (float64, bool) {
	return parseValue(s, resistanceMultipliers, 1)
}

// FormatCapacitance renders farads with the closest engineering prefix
func FormatCapacitance(f float64) string {
	switch {
	case f >= 1e-6:
		return trimFloat(f/1e-6) + "µF"
	case f >= 1e-9:
		return trimFloat(f/1e-9) + "nF"
	default:
		return trimFloat(f/1e-12) + "pF"
	}
}

func trimFloat(v float64) string {
	v = math.Round(v*100) / 100
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
