package pcb

import (
	"fmt"

	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp"
	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp/kicadsexp"
)

// parseZones parses every zone; multi-layer zones yield one Zone per layer
func parseZones(root *kicadsexp.List, nets netIndex, copper []string, o options) []Zone {
	var zones []Zone
	for i, node := range root.GetAll("zone") {
		zs, err := parseZone(node, nets, copper)
		if err != nil {
			o.logger.Warn("skipping zone", "file", o.filename, "index", i, "err", err)
			continue
		}
		zones = append(zones, zs...)
	}
	return zones
}

// parseZone extracts a zone (copper fill or rule area) definition
// Returns a slice because multi-layer zones create one zone per layer
func parseZone(node *kicadsexp.List, nets netIndex, copper []string) ([]Zone, error) {
	base := Zone{
		Net:          resolveNet(node, nets),
		MinThickness: sexp.FloatValue(node, "min_thickness", 0),
		Priority:     int(sexp.FloatValue(node, "priority", 0)),
	}
	// Older boards name the net in (net_name "GND") next to the number
	if base.Net.Name == "" {
		if name := sexp.Value(node, "net_name"); name != "" {
			base.Net.Name = name
		}
	}

	if poly, found := node.Find("polygon"); found {
		pts, err := sexp.GetPoints(poly)
		if err != nil {
			return nil, fmt.Errorf("failed to parse outline: %w", err)
		}
		base.Outline = pts
	}
	if len(base.Outline) < 3 {
		return nil, fmt.Errorf("zone outline has %d points", len(base.Outline))
	}

	if keepout, found := node.Find("keepout"); found {
		base.Keepout = Keepout{
			Enabled: true,
			Tracks:  sexp.Value(keepout, "tracks") == "not_allowed",
			Vias:    sexp.Value(keepout, "vias") == "not_allowed",
			Copper:  sexp.Value(keepout, "copperpour") == "not_allowed",
		}
	}

	var layers []string
	if l := sexp.Value(node, "layer"); l != "" {
		layers = append(layers, l)
	}
	// (layers ...) overrides a single (layer ...)
	if layersNode, found := node.Find("layers"); found {
		layers = expandLayers(parseLayerSet(layersNode), copper)
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("zone has no layer")
	}

	// Each filled_polygon carries its own layer in multi-layer zones
	fills := make(map[string][][]Position)
	for _, fill := range node.GetAll("filled_polygon") {
		pts, err := sexp.GetPoints(fill)
		if err != nil {
			continue
		}
		layer := sexp.Value(fill, "layer")
		if layer == "" {
			layer = layers[0]
		}
		fills[layer] = append(fills[layer], pts)
	}

	id := string(sexp.GetUUID(node))
	if id == "" {
		first := base.Outline[0]
		id = string(sexp.StableID("zone", base.Net.Name, fmt.Sprint(first.X), fmt.Sprint(first.Y)))
	}

	zones := make([]Zone, 0, len(layers))
	for _, layer := range layers {
		zone := base
		zone.ID = id
		zone.Layer = layer
		zone.Fills = fills[layer]
		zones = append(zones, zone)
	}
	return zones, nil
}

// expandLayers resolves *.Cu and F&B.Cu against the board copper stack
func expandLayers(ls LayerSet, copper []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, l := range ls {
		switch l {
		case "*.Cu":
			for _, c := range copper {
				add(c)
			}
		case "F&B.Cu":
			add("F.Cu")
			add("B.Cu")
		default:
			add(l)
		}
	}
	return out
}
