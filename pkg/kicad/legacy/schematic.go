package legacy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/errs"
	"github.com/OpenTraceLab/designguard/pkg/kicad/format"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp"
)

const schematicBanner = "EESchema Schematic File Version"

// Legacy schematic coordinates are integers of LegacySchematicUnit each
func schCoord(v float64) float64 { return v * sexp.LegacySchematicUnit }

// orientations maps the component transform matrix to a rotation
var orientations = map[[4]int]float64{
	{1, 0, 0, -1}: 0,
	{0, -1, -1, 0}: 90,
	{-1, 0, 0, 1}: 180,
	{0, 1, 1, 0}: 270,
}

// ParseSchematic parses an EESchema version 4 or 5 schematic
func ParseSchematic(content []byte, opts ...Option) (*schematic.Schematic, error) {
	o := buildOptions(opts)
	ls := lines(content)

	start := 0
	for start < len(ls) && ls[start] == "" {
		start++
	}
	if start >= len(ls) || !strings.HasPrefix(ls[start], schematicBanner) {
		return nil, errs.ParseFile("parse legacy schematic", o.filename,
			fmt.Errorf("%w: expected %q header", errs.ErrUnknownFormat, schematicBanner))
	}
	kind := format.LegacySchematic5
	if strings.TrimSpace(strings.TrimPrefix(ls[start], schematicBanner)) == "4" {
		kind = format.LegacySchematic4
	}

	sch := &schematic.Schematic{
		UUID:       sexp.StableID("legacy-schematic", o.filename),
		Filename:   o.filename,
		Format:     kind.String(),
		Generator:  "eeschema",
		LibSymbols: map[string]schematic.LibSymbol{},
	}

	p := &schParser{lines: ls, idx: start + 1, o: o, sch: sch}
	p.run()
	return sch, nil
}

type schParser struct {
	lines []string
	idx   int
	o     options
	sch   *schematic.Schematic
}

func (p *schParser) next() (string, bool) {
	if p.idx >= len(p.lines) {
		return "", false
	}
	line := p.lines[p.idx]
	p.idx++
	return line, true
}

// skipTo advances past the line starting with marker
func (p *schParser) skipTo(marker string) {
	for {
		line, ok := p.next()
		if !ok || strings.HasPrefix(line, marker) {
			return
		}
	}
}

func (p *schParser) warn(msg string, line int, err error) {
	p.o.logger.Warn(msg, "file", p.o.filename, "line", line, "err", err)
}

func (p *schParser) run() {
	for {
		lineNo := p.idx + 1
		line, ok := p.next()
		if !ok {
			return
		}
		switch {
		case strings.HasPrefix(line, "$EndSCHEMATC"):
			return
		case strings.HasPrefix(line, "$Descr"):
			p.skipTo("$EndDescr")
		case strings.HasPrefix(line, "$Sheet"):
			p.skipTo("$EndSheet")
		case strings.HasPrefix(line, "$Bitmap"):
			p.skipTo("$EndBitmap")
		case strings.HasPrefix(line, "$Comp"):
			comp, err := p.component()
			if err != nil {
				p.warn("skipping component block", lineNo, err)
				continue
			}
			if schematic.IsPowerSymbol(comp.Reference, comp.LibID) {
				p.sch.PowerSymbols = append(p.sch.PowerSymbols, comp)
			} else {
				p.sch.Components = append(p.sch.Components, comp)
			}
		case line == "Wire Wire Line":
			if err := p.wire(lineNo); err != nil {
				p.warn("skipping wire", lineNo, err)
			}
		case strings.HasPrefix(line, "Text "):
			if err := p.text(line, lineNo); err != nil {
				p.warn("skipping label", lineNo, err)
			}
		case strings.HasPrefix(line, "Connection "):
			if pos, err := markerPosition(line); err == nil {
				p.sch.Junctions = append(p.sch.Junctions, pos)
			}
		case strings.HasPrefix(line, "NoConn "):
			if pos, err := markerPosition(line); err == nil {
				p.sch.NoConnects = append(p.sch.NoConnects, pos)
			}
		}
	}
}

// component reads a $Comp block up to $EndComp
func (p *schParser) component() (schematic.Component, error) {
	comp := schematic.Component{Unit: 1, Properties: map[string]string{}}
	var stamp string
	var orient []int
	var blockErr error

	for {
		line, ok := p.next()
		if !ok {
			return comp, fmt.Errorf("%w: missing $EndComp", errs.ErrUnexpectedEOF)
		}
		if line == "$EndComp" {
			break
		}
		if blockErr != nil {
			continue
		}
		rec, err := Tokenize(line)
		if err != nil {
			blockErr = err
			continue
		}
		switch rec.Key() {
		case "L":
			comp.LibID = rec.Text(1)
			comp.Reference = rec.Text(2)
		case "U":
			comp.Unit = rec.IntOr(1, 1)
			stamp = rec.Text(3)
		case "P":
			x, errX := rec.Float(1)
			y, errY := rec.Float(2)
			if errX != nil || errY != nil {
				blockErr = fmt.Errorf("bad position line %q", line)
				continue
			}
			comp.Position = sexp.Position{X: schCoord(x), Y: schCoord(y)}
		case "F":
			p.field(&comp, rec)
		default:
			// The unit line has three fields, the orientation matrix four
			if rec.Len() == 4 {
				m := make([]int, 4)
				for i := range m {
					m[i] = rec.IntOr(i, 0)
				}
				orient = m
			}
		}
	}
	if blockErr != nil {
		return comp, blockErr
	}

	if len(orient) == 4 {
		comp.Rotation = orientations[[4]int{orient[0], orient[1], orient[2], orient[3]}]
	}
	comp.Reference = orDefault(comp.Reference, "?")
	comp.Value = orDefault(comp.Value, "?")
	comp.LibID = orDefault(comp.LibID, "Unknown")
	comp.ID = string(sexp.StableID(p.o.filename, "comp", stamp, comp.Reference, strconv.Itoa(comp.Unit)))

	// Standard power symbols have their single pin at the origin
	if schematic.IsPowerSymbol(comp.Reference, comp.LibID) {
		comp.Pins = []schematic.Pin{{Number: "1", Name: comp.Value, Type: "power_in", Position: comp.Position, Located: true}}
	}
	return comp, nil
}

// field applies an F line: F n "text" orient x y size flags hjust vjust ["name"]
func (p *schParser) field(comp *schematic.Component, rec *Record) {
	n := rec.IntOr(1, -1)
	text := rec.Text(2)
	switch n {
	case 0:
		comp.Reference = text
		comp.Properties["Reference"] = text
	case 1:
		comp.Value = text
		comp.Properties["Value"] = text
	case 2:
		comp.Footprint = text
		comp.Properties["Footprint"] = text
	case 3:
		comp.Properties["Datasheet"] = text
	default:
		if n < 0 {
			return
		}
		name := fmt.Sprintf("Field%d", n)
		if rec.Len() > 3 && rec.Fields[rec.Len()-1].IsQuoted() {
			name = rec.Text(rec.Len() - 1)
		}
		comp.Properties[name] = text
	}
}

// wire reads the coordinate line following "Wire Wire Line"
func (p *schParser) wire(lineNo int) error {
	line, ok := p.next()
	if !ok {
		return errs.ErrUnexpectedEOF
	}
	rec, err := Tokenize(line)
	if err != nil {
		return err
	}
	if rec.Len() < 4 {
		return fmt.Errorf("expected 4 coordinates, got %q", line)
	}
	var c [4]float64
	for i := range c {
		if c[i], err = rec.Float(i); err != nil {
			return fmt.Errorf("bad coordinate: %w", err)
		}
	}
	p.sch.Wires = append(p.sch.Wires, schematic.Wire{
		ID: string(sexp.StableID(p.o.filename, "wire", strconv.Itoa(lineNo))),
		Points: []sexp.Position{
			{X: schCoord(c[0]), Y: schCoord(c[1])},
			{X: schCoord(c[2]), Y: schCoord(c[3])},
		},
	})
	return nil
}

var labelKinds = map[string]schematic.LabelKind{
	"Label":  schematic.LabelLocal,
	"GLabel": schematic.LabelGlobal,
	"HLabel": schematic.LabelHierarchical,
}

// text reads "Text <Kind> x y orient size ..." and its text line
func (p *schParser) text(header string, lineNo int) error {
	rec, err := Tokenize(header)
	// The text line always follows, even when the header is malformed
	body, ok := p.next()
	if !ok {
		return errs.ErrUnexpectedEOF
	}
	if err != nil {
		return err
	}
	kind, isLabel := labelKinds[rec.Text(1)]
	if !isLabel {
		return nil // Notes
	}
	x, errX := rec.Float(2)
	y, errY := rec.Float(3)
	if errX != nil || errY != nil {
		return fmt.Errorf("bad label position %q", header)
	}
	if body == "" {
		return fmt.Errorf("empty label text")
	}
	p.sch.Labels = append(p.sch.Labels, schematic.Label{
		ID:       string(sexp.StableID(p.o.filename, "label", strconv.Itoa(lineNo))),
		Text:     body,
		Position: sexp.Position{X: schCoord(x), Y: schCoord(y)},
		Rotation: float64(rec.IntOr(4, 0)) * 90,
		Kind:     kind,
	})
	return nil
}

// markerPosition parses "Connection ~ x y" and "NoConn ~ x y"
func markerPosition(line string) (sexp.Position, error) {
	rec, err := Tokenize(line)
	if err != nil {
		return sexp.Position{}, err
	}
	x, errX := rec.Float(2)
	y, errY := rec.Float(3)
	if errX != nil || errY != nil {
		return sexp.Position{}, fmt.Errorf("bad marker %q", line)
	}
	return sexp.Position{X: schCoord(x), Y: schCoord(y)}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
