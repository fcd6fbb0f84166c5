package schematic

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/errs"
	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp"
	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp/kicadsexp"
)

// Minimum supported KiCad version for schematics (6.0 = 20211014)
const MinSupportedVersion = 20211014

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

// ParseFile reads and parses a KiCad schematic file
func ParseFile(filename string, opts ...Option) (*Schematic, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errs.IO("open", filename, err)
	}
	defer file.Close()

	return Parse(file, append([]Option{WithFilename(filename)}, opts...)...)
}

// Parse reads and parses a KiCad schematic from an io.Reader
func Parse(r io.Reader, opts ...Option) (*Schematic, error) {
	o := buildOptions(opts)

	node, err := kicadsexp.Parse(r)
	if err != nil {
		return nil, errs.ParseFile("parse s-expression", o.filename, err)
	}

	root, ok := node.(*kicadsexp.List)
	if !ok || root.Name() != "kicad_sch" {
		got, _ := kicadsexp.Text(node)
		if ok {
			got = root.Name()
		}
		return nil, errs.ParseFile("parse schematic", o.filename,
			fmt.Errorf("not a KiCad schematic file: expected 'kicad_sch', got '%s'", got))
	}

	sch := &Schematic{Filename: o.filename, Format: "kicad_sch"}

	if err := parseHeader(root, sch); err != nil {
		return nil, errs.ParseFile("parse header", o.filename, err)
	}

	sch.UUID = sexp.GetUUID(root)

	// Parse lib_symbols
	sch.LibSymbols = map[string]LibSymbol{}
	if libSymbols, found := root.Find("lib_symbols"); found {
		for _, node := range libSymbols.GetAll("symbol") {
			sym := parseLibSymbol(node)
			sch.LibSymbols[sym.Name] = sym
		}
	}

	// Parse symbols, segregating power symbols
	for i, node := range root.GetAll("symbol") {
		comp, err := parseSymbol(node, sch.LibSymbols)
		if err != nil {
			o.logger.Warn("skipping symbol", "file", o.filename, "index", i, "error", err)
			continue
		}
		if comp.ID == "" {
			comp.ID = string(sexp.StableID(o.filename, "symbol", strconv.Itoa(i)))
		}
		lib := sch.LibSymbols[comp.LibID]
		if lib.Power || IsPowerSymbol(comp.Reference, comp.LibID) {
			sch.PowerSymbols = append(sch.PowerSymbols, comp)
		} else {
			sch.Components = append(sch.Components, comp)
		}
	}

	// Parse wires
	for i, node := range root.GetAll("wire") {
		pts, err := sexp.GetPoints(node)
		if err != nil || len(pts) < 2 {
			o.logger.Warn("skipping wire", "file", o.filename, "index", i, "error", err)
			continue
		}
		id := string(sexp.GetUUID(node))
		if id == "" {
			id = string(sexp.StableID(o.filename, "wire", strconv.Itoa(i)))
		}
		sch.Wires = append(sch.Wires, Wire{ID: id, Points: pts})
	}

	// Parse labels
	for _, kind := range []struct {
		key  string
		kind LabelKind
	}{
		{"label", LabelLocal},
		{"global_label", LabelGlobal},
		{"hierarchical_label", LabelHierarchical},
	} {
		for i, node := range root.GetAll(kind.key) {
			label, err := parseLabel(node, kind.kind)
			if err != nil {
				o.logger.Warn("skipping label", "file", o.filename, "kind", kind.key, "index", i, "error", err)
				continue
			}
			if label.ID == "" {
				label.ID = string(sexp.StableID(o.filename, kind.key, strconv.Itoa(i)))
			}
			sch.Labels = append(sch.Labels, label)
		}
	}

	// Parse junctions and no-connects
	for _, node := range root.GetAll("junction") {
		if pos, err := sexp.GetPosition(node); err == nil {
			sch.Junctions = append(sch.Junctions, pos.Position)
		}
	}
	for _, node := range root.GetAll("no_connect") {
		if pos, err := sexp.GetPosition(node); err == nil {
			sch.NoConnects = append(sch.NoConnects, pos.Position)
		}
	}

	// Parse explicit nets (netlist exports embed them)
	for _, node := range root.GetAll("net") {
		sch.Nets = append(sch.Nets, parseNet(node))
	}

	return sch, nil
}

// parseHeader extracts version and generator information
func parseHeader(root *kicadsexp.List, sch *Schematic) error {
	versionNode, found := root.Find("version")
	if !found {
		return fmt.Errorf("missing required 'version' field")
	}

	ver, err := sexp.GetInt(versionNode, 1)
	if err != nil {
		return fmt.Errorf("failed to parse version: %w", err)
	}

	if ver < MinSupportedVersion {
		return fmt.Errorf("unsupported KiCad version: %d (minimum required: %d / KiCad 6.0)", ver, MinSupportedVersion)
	}
	sch.Version = ver
	sch.Generator = sexp.Value(root, "generator")
	sch.GeneratorVer = sexp.Value(root, "generator_version")

	return nil
}

// parseLibSymbol parses a single library symbol definition
func parseLibSymbol(node *kicadsexp.List) LibSymbol {
	sym := LibSymbol{}
	sym.Name, _ = sexp.GetString(node, 1)
	_, sym.Power = node.Find("power")

	sym.Pins = append(sym.Pins, parsePins(node, 0)...)

	// Nested units are named <name>_<unit>_<style> and carry the pins
	for _, unit := range node.GetAll("symbol") {
		name, _ := sexp.GetString(unit, 1)
		unitNum := 0
		if parts := strings.Split(name, "_"); len(parts) >= 3 {
			unitNum, _ = strconv.Atoi(parts[len(parts)-2])
		}
		sym.Pins = append(sym.Pins, parsePins(unit, unitNum)...)
	}

	return sym
}

// parsePins parses pin definitions directly under node
func parsePins(node *kicadsexp.List, unit int) []LibPin {
	var pins []LibPin
	for _, pn := range node.GetAll("pin") {
		pin := LibPin{Unit: unit}
		pin.Type, _ = sexp.GetString(pn, 1)
		if pos, err := sexp.GetPosition(pn); err == nil {
			pin.Position = pos.Position
		}
		if nameNode, found := pn.Find("name"); found {
			pin.Name, _ = sexp.GetString(nameNode, 1)
		}
		if numNode, found := pn.Find("number"); found {
			pin.Number, _ = sexp.GetString(numNode, 1)
		}
		pins = append(pins, pin)
	}
	return pins
}

// parseSymbol parses a single symbol instance
func parseSymbol(node *kicadsexp.List, libs map[string]LibSymbol) (Component, error) {
	comp := Component{Unit: 1, Properties: map[string]string{}}

	comp.LibID = sexp.Value(node, "lib_id")
	if comp.LibID == "" {
		return comp, fmt.Errorf("missing required 'lib_id'")
	}

	pos, err := sexp.GetPosition(node)
	if err != nil {
		return comp, fmt.Errorf("failed to parse position: %w", err)
	}
	comp.Position = pos.Position
	comp.Rotation = float64(pos.Angle)
	comp.Mirror = sexp.Value(node, "mirror")
	if u, err := strconv.Atoi(sexp.Value(node, "unit")); err == nil {
		comp.Unit = u
	}
	comp.ID = string(sexp.GetUUID(node))

	for _, pn := range node.GetAll("property") {
		prop, err := sexp.GetProperty(pn)
		if err != nil {
			continue
		}
		if _, dup := comp.Properties[prop.Key]; !dup {
			comp.Properties[prop.Key] = prop.Value
		}
	}
	comp.Reference = orDefault(comp.Properties["Reference"], "?")
	comp.Value = orDefault(comp.Properties["Value"], "?")
	comp.Footprint = comp.Properties["Footprint"]

	// Instance pins carry uuids; library pins carry geometry
	uuids := map[string]UUID{}
	var order []string
	for _, pn := range node.GetAll("pin") {
		num, err := sexp.GetString(pn, 1)
		if err != nil {
			continue
		}
		uuids[num] = sexp.GetUUID(pn)
		order = append(order, num)
	}

	if lib, ok := libs[comp.LibID]; ok && len(lib.Pins) > 0 {
		seen := map[string]bool{}
		for _, lp := range lib.Pins {
			if (lp.Unit != 0 && lp.Unit != comp.Unit) || seen[lp.Number] {
				continue
			}
			seen[lp.Number] = true
			comp.Pins = append(comp.Pins, Pin{
				Number:   lp.Number,
				Name:     lp.Name,
				Type:     lp.Type,
				UUID:     uuids[lp.Number],
				Position: PinPosition(comp, lp.Position),
				Located:  true,
			})
		}
		return comp, nil
	}

	for _, num := range order {
		comp.Pins = append(comp.Pins, Pin{Number: num, UUID: uuids[num], Position: comp.Position})
	}
	return comp, nil
}

// PinPosition maps a library pin position to sheet coordinates: flip the
// library Y axis, mirror, rotate, then translate.
func PinPosition(c Component, local Position) Position {
	p := Position{X: local.X, Y: -local.Y}
	switch c.Mirror {
	case "x":
		p.Y = -p.Y
	case "y":
		p.X = -p.X
	}
	return p.Rotate(c.Rotation).Add(c.Position)
}

// parseLabel parses label, global_label and hierarchical_label nodes
func parseLabel(node *kicadsexp.List, kind LabelKind) (Label, error) {
	text, err := sexp.GetString(node, 1)
	if err != nil {
		return Label{}, fmt.Errorf("failed to parse label text: %w", err)
	}
	pos, err := sexp.GetPosition(node)
	if err != nil {
		return Label{}, fmt.Errorf("failed to parse label position: %w", err)
	}
	return Label{
		ID:       string(sexp.GetUUID(node)),
		Text:     text,
		Position: pos.Position,
		Rotation: float64(pos.Angle),
		Kind:     kind,
	}, nil
}

// parseNet parses (net (name "X") (node (ref "R1") (pin "1")) ...)
func parseNet(node *kicadsexp.List) Net {
	net := Net{Name: sexp.Value(node, "name")}
	for _, n := range node.GetAll("node") {
		net.Connections = append(net.Connections, Connection{
			Reference: sexp.Value(n, "ref"),
			Pin:       sexp.Value(n, "pin"),
		})
	}
	return net
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
