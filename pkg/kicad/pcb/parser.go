package pcb

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/OpenTraceLab/designguard/pkg/errs"
	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp"
	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp/kicadsexp"
)

// Minimum supported KiCad version (6.0 = 20211014)
const MinSupportedVersion = 20211014

// Copper foil thickness of 1 oz/ft² in mm
const mmPerOunce = 0.035

// Option configures a parse
type Option func(*options)

type options struct {
	logger   *slog.Logger
	filename string
}

// WithLogger sets the logger used for parse diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFilename records the source filename on the result
func WithFilename(name string) Option {
	return func(o *options) { o.filename = name }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ParseFile reads and parses a KiCad board file
func ParseFile(filename string, opts ...Option) (*Board, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errs.IO("open", filename, err)
	}
	defer file.Close()

	return Parse(file, append([]Option{WithFilename(filename)}, opts...)...)
}

// Parse reads and parses a KiCad board from an io.Reader
func Parse(r io.Reader, opts ...Option) (*Board, error) {
	o := buildOptions(opts)

	node, err := kicadsexp.Parse(r)
	if err != nil {
		return nil, errs.ParseFile("parse s-expression", o.filename, err)
	}

	root, ok := node.(*kicadsexp.List)
	if !ok || root.Name() != "kicad_pcb" {
		got, _ := kicadsexp.Text(node)
		if ok {
			got = root.Name()
		}
		return nil, errs.ParseFile("parse board", o.filename,
			fmt.Errorf("not a KiCad PCB file: expected 'kicad_pcb', got '%s'", got))
	}

	version, generator, err := parseHeader(root)
	if err != nil {
		return nil, errs.ParseFile("parse header", o.filename, err)
	}

	board := &Board{
		Filename:  o.filename,
		Format:    "kicad_pcb",
		Version:   version,
		Generator: generator,
		Setup:     DefaultSetup(),
	}

	// Parse layers section
	if layersNode, found := root.Find("layers"); found {
		layers, err := parseLayers(layersNode)
		if err != nil {
			return nil, errs.ParseFile("parse layers", o.filename, err)
		}
		board.Layers = layers
	}

	if general, found := root.Find("general"); found {
		board.Setup.Thickness = sexp.FloatValue(general, "thickness", board.Setup.Thickness)
	}
	if setup, found := root.Find("setup"); found {
		parseSetup(setup, &board.Setup)
	}

	board.Nets = parseNets(root)
	nets := indexNets(board.Nets)

	board.Footprints = parseFootprints(root, nets, o)
	board.Tracks = parseTracks(root, nets, o)
	board.Vias = parseVias(root, nets, o)
	board.Zones = parseZones(root, nets, board.CopperLayers(), o)
	board.Outline = parseOutline(root)

	return board, nil
}

// parseHeader extracts version and generator information from the root node
// Expected format: (kicad_pcb (version 20221018) (generator pcbnew) ...)
func parseHeader(root *kicadsexp.List) (version int, generator string, err error) {
	versionNode, found := root.Find("version")
	if !found {
		return 0, "", fmt.Errorf("missing required 'version' field")
	}

	ver, err := sexp.GetInt(versionNode, 1)
	if err != nil {
		return 0, "", fmt.Errorf("failed to parse version: %w", err)
	}

	// Must be KiCad 6.0 or later
	if ver < MinSupportedVersion {
		return 0, "", fmt.Errorf("unsupported KiCad version: %d (minimum required: %d / KiCad 6.0)", ver, MinSupportedVersion)
	}

	gen := "unknown"
	if hostNode, found := root.Find("host"); found {
		// Format: (host pcbnew "(6.0.0)")
		if toolName, err := sexp.GetString(hostNode, 1); err == nil {
			gen = toolName
		}
	} else if g := sexp.Value(root, "generator"); g != "" {
		gen = g
	}

	return ver, gen, nil
}

// parseLayers extracts layer definitions
// Expected format: (layers (0 "F.Cu" signal) (31 "B.Cu" signal) ...)
func parseLayers(node *kicadsexp.List) ([]Layer, error) {
	var layers []Layer

	for _, item := range node.Elements()[1:] {
		layerNode, ok := item.(*kicadsexp.List)
		if !ok {
			continue
		}

		number, err := sexp.GetInt(layerNode, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to parse layer number: %w", err)
		}

		name, err := sexp.GetString(layerNode, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to parse layer name: %w", err)
		}

		layerType, err := sexp.GetString(layerNode, 2)
		if err != nil {
			// Layer type is optional in some cases
			layerType = "user"
		}

		layers = append(layers, Layer{Number: number, Name: name, Type: layerType})
	}

	if len(layers) == 0 {
		return nil, fmt.Errorf("no layers defined")
	}
	return layers, nil
}

// parseSetup reads clearances and the copper stackup
func parseSetup(node *kicadsexp.List, setup *Setup) {
	setup.PadToMaskClearance = sexp.FloatValue(node, "pad_to_mask_clearance", setup.PadToMaskClearance)
	setup.TraceMin = sexp.FloatValue(node, "trace_min", setup.TraceMin)
	setup.Clearance = sexp.FloatValue(node, "trace_clearance", setup.Clearance)
	setup.ViaMinSize = sexp.FloatValue(node, "via_min_size", setup.ViaMinSize)
	setup.ViaMinDrill = sexp.FloatValue(node, "via_min_drill", setup.ViaMinDrill)

	stackup, found := node.Find("stackup")
	if !found {
		return
	}
	for _, layer := range stackup.GetAll("layer") {
		name, _ := sexp.GetString(layer, 1)
		if sexp.Value(layer, "type") != "copper" {
			continue
		}
		thickness := sexp.FloatValue(layer, "thickness", 0)
		if thickness <= 0 {
			continue
		}
		oz := thickness / mmPerOunce
		if IsOuterName(name) {
			setup.CopperOuterOz = oz
		} else {
			setup.CopperInnerOz = oz
		}
	}
}

// parseNets extracts net definitions from the root node
// Expected format: (net 0 "") (net 1 "GND") (net 2 "+5V") ...
func parseNets(root *kicadsexp.List) []Net {
	var nets []Net
	for _, netNode := range root.GetAll("net") {
		number, err := sexp.GetInt(netNode, 1)
		if err != nil {
			continue
		}
		// Name is optional (net 0 often has empty name)
		name, _ := sexp.GetString(netNode, 2)
		nets = append(nets, Net{Number: number, Name: name})
	}
	return nets
}

// resolveNet reads (net n "name") or the name-only (net "name") form
func resolveNet(node *kicadsexp.List, nets netIndex) Net {
	netNode, found := node.Find("net")
	if !found {
		return Net{}
	}
	ref, err := sexp.GetString(netNode, 1)
	if err != nil {
		return Net{}
	}
	if _, quoted := netNode.At(1).(kicadsexp.QuotedString); quoted && netNode.Len() == 2 {
		return nets.byNameOnly(ref)
	}
	name, _ := sexp.GetString(netNode, 2)
	return nets.resolve(ref, name)
}

// parseOutline collects the extent of Edge.Cuts graphics
func parseOutline(root *kicadsexp.List) BoundingBox {
	bb := sexp.NewBoundingBox()
	for _, kind := range []string{"gr_line", "gr_rect", "gr_arc", "gr_poly"} {
		for _, node := range root.GetAll(kind) {
			if sexp.Value(node, "layer") != "Edge.Cuts" {
				continue
			}
			for _, key := range []string{"start", "end", "mid"} {
				if p, err := sexp.GetPositionXY(node, key); err == nil {
					bb.Expand(p)
				}
			}
			if pts, err := sexp.GetPoints(node); err == nil {
				for _, p := range pts {
					bb.Expand(p)
				}
			}
		}
	}
	return bb
}
