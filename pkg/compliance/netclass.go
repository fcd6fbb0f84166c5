package compliance

import (
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/analyzer"
)

// NetClass is the signal category of a net
type NetClass int

const (
	ClassDigital NetClass = iota
	ClassAnalog
	ClassClock
	ClassHighSpeed
	ClassPower
	ClassGround
)

func (c NetClass) String() string {
	switch c {
	case ClassAnalog:
		return "analog"
	case ClassClock:
		return "clock"
	case ClassHighSpeed:
		return "high-speed"
	case ClassPower:
		return "power"
	case ClassGround:
		return "ground"
	default:
		return "digital"
	}
}

func (c NetClass) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// NeedsReferencePlane reports whether the class must route over a plane
func (c NetClass) NeedsReferencePlane() bool {
	return c == ClassHighSpeed || c == ClassClock
}

var defaultPatterns = map[NetClass][]string{
	ClassHighSpeed: {
		"USB", "D+", "D-", "DP", "DM", "HDMI", "TMDS", "ETH", "RGMII", "RMII", "MDI",
		"PCIE", "PCI", "SATA", "DDR", "DQ", "DQS", "LVDS", "MIPI", "CSI", "DSI",
		"QSPI", "SDIO", "_P", "_N",
	},
	ClassClock:  {"CLK", "CLKIN", "CLKOUT", "SCK", "SCLK", "MCLK", "BCLK", "XTAL", "XIN", "XOUT", "OSC", "CRYSTAL"},
	ClassPower:  {"VCC", "VDD", "VBUS", "VBAT", "VIN", "VOUT", "VREG", "+3V3", "+5V", "+12V", "3V3", "5V", "1V8", "PWR"},
	ClassGround: {"GND", "VSS", "AGND", "DGND", "PGND", "EARTH", "0V", "COM"},
	ClassAnalog: {"AIN", "ADC", "DAC", "VREF", "SENSE", "AUDIO", "MIC", "ANALOG"},
}

// classification order, highest priority first
var classOrder = []NetClass{ClassGround, ClassPower, ClassHighSpeed, ClassClock, ClassAnalog}

// Classifier assigns net classes from net names
type Classifier struct {
	patterns map[NetClass][]string
}

// NewClassifier returns a classifier with the built-in patterns plus any
// custom ones per class
func NewClassifier(custom map[NetClass][]string) *Classifier {
	c := &Classifier{patterns: make(map[NetClass][]string)}
	for class, ps := range defaultPatterns {
		c.patterns[class] = append([]string(nil), ps...)
	}
	for class, ps := range custom {
		for _, p := range ps {
			c.patterns[class] = append(c.patterns[class], strings.ToUpper(p))
		}
	}
	return c
}

// Classify returns the class of a net name
func (c *Classifier) Classify(net string) NetClass {
	if analyzer.IsGroundName(net) {
		return ClassGround
	}
	upper := strings.ToUpper(strings.TrimPrefix(net, "/"))
	tokens := splitTokens(upper)
	for _, class := range classOrder {
		for _, p := range c.patterns[class] {
			if matchPattern(upper, tokens, p) {
				return class
			}
		}
	}
	return ClassDigital
}

func splitTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '/' || r == '-' || r == '.' || r == ' '
	})
}

// matchPattern treats short patterns as whole tokens, optionally followed
// by digits, and _P/_N as differential pair suffixes. Longer patterns match
// anywhere in the name.
func matchPattern(name string, tokens []string, p string) bool {
	switch {
	case p == "_P" || p == "_N":
		return strings.HasSuffix(name, p)
	case p == "D+" || p == "D-":
		return strings.HasSuffix(name, p)
	case len(p) <= 3:
		for _, t := range tokens {
			if t == p || (strings.HasPrefix(t, p) && allDigits(t[len(p):])) {
				return true
			}
		}
		return false
	default:
		return strings.Contains(name, p)
	}
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
