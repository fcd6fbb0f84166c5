package rules

import (
	"github.com/OpenTraceLab/designguard/pkg/analyzer"
	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
)

var (
	usbPatterns      = []string{"USB"}
	ethernetPatterns = []string{"ETHERNET", "RJ45", "MAGJACK"}
	esdPatterns      = []string{"TVS", "ESD", "TRANSIENT", "USBLC", "PRTR5V", "TPD2E", "TPD4E", "SP05", "PESD"}
)

// ESDProtection reports external interfaces without TVS protection
type ESDProtection struct{}

func (ESDProtection) ID() string   { return "esd_protection" }
func (ESDProtection) Name() string { return "ESD Protection Check" }
func (ESDProtection) Description() string {
	return "USB and Ethernet interfaces should carry TVS or ESD protection parts"
}
func (ESDProtection) Severity() issue.Severity { return issue.Info }

func isESDPart(c schematic.Component) bool {
	return matchesAny(c.Value, esdPatterns...) || matchesAny(c.LibID, esdPatterns...)
}

func (r ESDProtection) Check(ctx *analyzer.Context) []issue.Issue {
	var usb, ethernet, protected bool
	var first string
	for _, c := range ctx.Schematic.Components {
		if isESDPart(c) {
			protected = true
			continue
		}
		hit := false
		if matchesAny(c.Value, usbPatterns...) || matchesAny(c.LibID, usbPatterns...) {
			usb, hit = true, true
		}
		if matchesAny(c.Value, ethernetPatterns...) || matchesAny(c.LibID, ethernetPatterns...) {
			ethernet, hit = true, true
		}
		if hit && first == "" && c.Class() == schematic.ClassConnector {
			first = c.Reference
		}
	}
	for _, l := range ctx.Schematic.Labels {
		if matchesAny(l.Text, "USB", "D+", "D-") {
			usb = true
		}
		if matchesAny(l.Text, "ETH", "RJ45") {
			ethernet = true
		}
	}

	if protected || !(usb || ethernet) {
		return nil
	}
	iface := "USB"
	switch {
	case usb && ethernet:
		iface = "USB and Ethernet"
	case ethernet:
		iface = "Ethernet"
	}
	i := issue.Newf(r.ID(), issue.Info, first, "%s interface detected but no ESD protection (TVS diodes) found", iface)
	return []issue.Issue{locate(ctx, i.WithSuggestion("Consider TVS diodes on external interface lines"))}
}
