package pcb

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp"
	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp/kicadsexp"
)

var padTypes = map[string]PadType{
	"thru_hole":    PadThruHole,
	"smd":          PadSMD,
	"connect":      PadConnect,
	"np_thru_hole": PadNPThruHole,
}

var padShapes = map[string]PadShape{
	"circle":    ShapeCircle,
	"rect":      ShapeRect,
	"oval":      ShapeOval,
	"trapezoid": ShapeTrapezoid,
	"roundrect": ShapeRoundRect,
	"custom":    ShapeCustom,
}

// parseFootprints parses every footprint, skipping malformed ones
func parseFootprints(root *kicadsexp.List, nets netIndex, o options) []Footprint {
	var footprints []Footprint
	// KiCad 5 boards saved by 6.0 nightlies still use "module"
	nodes := append(root.GetAll("footprint"), root.GetAll("module")...)
	for i, node := range nodes {
		fp, err := parseFootprint(node, nets)
		if err != nil {
			o.logger.Warn("skipping footprint", "file", o.filename, "index", i, "err", err)
			continue
		}
		footprints = append(footprints, *fp)
	}
	return footprints
}

// parseFootprint extracts a footprint (component) definition
// Expected format: (footprint "library:name" (layer "layer") (at x y [angle]) ...)
func parseFootprint(node *kicadsexp.List, nets netIndex) (*Footprint, error) {
	library, err := sexp.GetString(node, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to parse footprint name: %w", err)
	}

	fp := &Footprint{
		Library:    library,
		Layer:      sexp.Value(node, "layer"),
		Properties: make(map[string]string),
	}
	if fp.Layer == "" {
		return nil, fmt.Errorf("missing required 'layer' field")
	}

	pos, err := sexp.GetPosition(node)
	if err != nil {
		return nil, err
	}
	fp.Position = pos

	// KiCad 8+ stores reference/value as properties, older files as fp_text
	for _, propNode := range node.GetAll("property") {
		prop, err := sexp.GetProperty(propNode)
		if err != nil {
			continue
		}
		fp.Properties[prop.Key] = prop.Value
	}
	for _, text := range node.GetAll("fp_text") {
		kind, _ := sexp.GetString(text, 1)
		val, _ := sexp.GetString(text, 2)
		switch kind {
		case "reference":
			fp.Properties["Reference"] = val
		case "value":
			fp.Properties["Value"] = val
		}
	}
	fp.Reference = fp.Properties["Reference"]
	fp.Value = fp.Properties["Value"]

	fp.ID = string(sexp.GetUUID(node))
	if fp.ID == "" {
		fp.ID = string(sexp.StableID("footprint", fp.Reference, library,
			fmt.Sprint(pos.X), fmt.Sprint(pos.Y)))
	}

	for _, padNode := range node.GetAll("pad") {
		pad, err := parsePad(padNode, nets)
		if err != nil {
			return nil, fmt.Errorf("pad in %s: %w", fp.Reference, err)
		}
		pad.Position = fp.TransformPosition(pad.Local.Position)
		fp.Pads = append(fp.Pads, *pad)
	}

	return fp, nil
}

// parsePad extracts a pad definition from a footprint
// Expected format: (pad "number" type shape (at x y [angle]) (size w h) (layers ...) (net n) ...)
func parsePad(node *kicadsexp.List, nets netIndex) (*Pad, error) {
	number, err := sexp.GetString(node, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pad number: %w", err)
	}
	typeName, err := sexp.GetString(node, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pad type: %w", err)
	}
	shapeName, err := sexp.GetString(node, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pad shape: %w", err)
	}

	padType, ok := padTypes[typeName]
	if !ok {
		return nil, fmt.Errorf("unknown pad type %q", typeName)
	}
	shape, ok := padShapes[shapeName]
	if !ok {
		return nil, fmt.Errorf("unknown pad shape %q", shapeName)
	}

	pad := &Pad{Number: number, Type: padType, Shape: shape}

	if pad.Local, err = sexp.GetPosition(node); err != nil {
		return nil, fmt.Errorf("pad %s: %w", number, err)
	}
	if pad.Size, err = sexp.GetSize(node); err != nil {
		return nil, fmt.Errorf("pad %s: %w", number, err)
	}

	// Drill can be (drill d) or (drill oval w h)
	if drillNode, found := node.Find("drill"); found {
		for i := 1; i < drillNode.Len(); i++ {
			if d, err := sexp.GetFloat(drillNode, i); err == nil {
				pad.Drill = d
				break
			}
		}
	}

	layersNode, found := node.Find("layers")
	if !found {
		return nil, fmt.Errorf("pad %s: missing required 'layers' field", number)
	}
	pad.Layers = parseLayerSet(layersNode)

	pad.Net = resolveNet(node, nets)
	return pad, nil
}

// parseLayerSet reads the atoms of a (layers ...) node
func parseLayerSet(node *kicadsexp.List) LayerSet {
	var layers LayerSet
	for _, item := range node.Elements()[1:] {
		if name, ok := kicadsexp.Text(item); ok && strings.TrimSpace(name) != "" {
			layers = append(layers, name)
		}
	}
	return layers
}
