package legacy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/errs"
	"github.com/OpenTraceLab/designguard/pkg/kicad/format"
	"github.com/OpenTraceLab/designguard/pkg/kicad/pcb"
	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp"
)

const boardBanner = "PCBNEW"

// LayerName maps a legacy layer number to its canonical name
func LayerName(n int) string {
	switch {
	case n == 0:
		return "F.Cu"
	case n >= 1 && n <= 30:
		return pcb.InnerLayerName(n)
	case n == 31:
		return "B.Cu"
	}
	technical := []string{
		"B.Adhes", "F.Adhes", "B.Paste", "F.Paste", "B.SilkS", "F.SilkS",
		"B.Mask", "F.Mask", "Dwgs.User", "Cmts.User", "Eco1.User", "Eco2.User",
		"Edge.Cuts", "Margin", "B.CrtYd", "F.CrtYd", "B.Fab", "F.Fab",
	}
	if n >= 32 && n-32 < len(technical) {
		return technical[n-32]
	}
	return fmt.Sprintf("User.%d", n)
}

// layerMask expands a hex layer mask into layer names
func layerMask(s string) pcb.LayerSet {
	mask, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 64)
	if err != nil {
		return nil
	}
	var ls pcb.LayerSet
	for bit := 0; bit < 50; bit++ {
		if mask&(1<<bit) != 0 {
			ls = append(ls, LayerName(bit))
		}
	}
	return ls
}

var padShapes = map[string]pcb.PadShape{
	"C": pcb.ShapeCircle,
	"R": pcb.ShapeRect,
	"O": pcb.ShapeOval,
	"T": pcb.ShapeTrapezoid,
}

var padTypes = map[string]pcb.PadType{
	"STD":  pcb.PadThruHole,
	"SMD":  pcb.PadSMD,
	"CONN": pcb.PadConnect,
	"HOLE": pcb.PadNPThruHole,
}

// ParsePCB parses a PCBNEW legacy board
func ParsePCB(content []byte, opts ...Option) (*pcb.Board, error) {
	o := buildOptions(opts)
	ls := lines(content)

	start := 0
	for start < len(ls) && ls[start] == "" {
		start++
	}
	if start >= len(ls) || !strings.HasPrefix(ls[start], boardBanner) {
		return nil, errs.ParseFile("parse legacy board", o.filename,
			fmt.Errorf("%w: expected %q header", errs.ErrUnknownFormat, boardBanner))
	}

	p := &pcbParser{
		lines: ls,
		idx:   start + 1,
		o:     o,
		unit:  unitFactor(ls),
		board: &pcb.Board{
			Filename:  o.filename,
			Format:    format.LegacyPCB.String(),
			Generator: "pcbnew",
			Setup:     pcb.DefaultSetup(),
			Outline:   sexp.NewBoundingBox(),
		},
		nets: map[int]pcb.Net{},
	}
	p.run()
	p.resolveNets()
	if len(p.board.Layers) == 0 {
		p.board.Layers = []pcb.Layer{
			{Number: 0, Name: "F.Cu", Type: "signal"},
			{Number: 31, Name: "B.Cu", Type: "signal"},
		}
	}
	return p.board, nil
}

// unitFactor reads "Units mm" or "InternalUnit <f> INCH|MM", defaulting
// to decimils
func unitFactor(ls []string) float64 {
	for _, line := range ls {
		if strings.EqualFold(line, "Units mm") {
			return 1
		}
		if !strings.HasPrefix(line, "InternalUnit") {
			continue
		}
		f := strings.Fields(line)
		if len(f) < 3 {
			break
		}
		v, err := strconv.ParseFloat(f[1], 64)
		if err != nil {
			break
		}
		switch strings.ToUpper(f[2]) {
		case "INCH":
			return v * 25.4
		case "MM":
			return v
		}
	}
	return sexp.LegacyBoardUnit
}

type pcbParser struct {
	lines []string
	idx   int
	o     options
	unit  float64
	board *pcb.Board
	nets  map[int]pcb.Net
}

func (p *pcbParser) coord(v float64) float64 { return v * p.unit }

func (p *pcbParser) pos(rec *Record, i int) sexp.Position {
	return sexp.Position{X: p.coord(rec.FloatOr(i, 0)), Y: p.coord(rec.FloatOr(i+1, 0))}
}

func (p *pcbParser) next() (string, bool) {
	if p.idx >= len(p.lines) {
		return "", false
	}
	line := p.lines[p.idx]
	p.idx++
	return line, true
}

// block returns the tokenized lines up to the end marker
func (p *pcbParser) block(end string) ([]*Record, error) {
	var recs []*Record
	for {
		line, ok := p.next()
		if !ok {
			return recs, fmt.Errorf("%w: missing %s", errs.ErrUnexpectedEOF, end)
		}
		if strings.EqualFold(line, end) {
			return recs, nil
		}
		rec, err := Tokenize(line)
		if err != nil {
			p.o.logger.Debug("untokenizable line", "file", p.o.filename, "line", p.idx, "err", err)
			continue
		}
		recs = append(recs, rec)
	}
}

func (p *pcbParser) run() {
	for {
		lineNo := p.idx + 1
		line, ok := p.next()
		if !ok {
			return
		}
		var err error
		switch {
		case strings.HasPrefix(line, "$EndBOARD"):
			return
		case line == "$GENERAL":
			err = p.general()
		case line == "$SETUP":
			err = p.setup()
		case line == "$EQUIPOT":
			err = p.equipot()
		case strings.HasPrefix(line, "$MODULE"):
			err = p.module(lineNo)
		case line == "$TRACK":
			err = p.tracks(lineNo)
		case line == "$CZONE_OUTLINE":
			err = p.zone(lineNo, "$endCZONE_OUTLINE")
		case line == "$ZONE":
			err = p.zone(lineNo, "$EndZONE")
		case line == "$DRAWSEGMENT":
			err = p.drawSegment()
		case strings.HasPrefix(line, "$") && !strings.HasPrefix(line, "$End"):
			// Blocks we do not model: $SHEETDESCR, $TEXTPCB, $CZONE_OUTLINE...
			_, err = p.block("$End" + strings.TrimPrefix(strings.Fields(line)[0], "$"))
		}
		if err != nil {
			p.o.logger.Warn("skipping legacy block", "file", p.o.filename, "line", lineNo, "block", line, "err", err)
		}
	}
}

func (p *pcbParser) general() error {
	recs, err := p.block("$EndGENERAL")
	for _, rec := range recs {
		switch rec.Key() {
		case "BoardThickness":
			p.board.Setup.Thickness = p.coord(rec.FloatOr(1, 0))
		case "Ly":
			mask := layerMask(rec.Text(1))
			for _, name := range mask {
				if pcb.IsCopperName(name) {
					p.board.Layers = append(p.board.Layers, pcb.Layer{Number: layerNumber(name), Name: name, Type: "signal"})
				}
			}
		}
	}
	if p.board.Setup.Thickness <= 0 {
		p.board.Setup.Thickness = pcb.DefaultSetup().Thickness
	}
	return err
}

// layerNumber inverts LayerName for copper layers
func layerNumber(name string) int {
	switch name {
	case "F.Cu":
		return 0
	case "B.Cu":
		return 31
	}
	var n int
	fmt.Sscanf(name, "In%d.Cu", &n)
	return n
}

func (p *pcbParser) setup() error {
	recs, err := p.block("$EndSETUP")
	s := &p.board.Setup
	for _, rec := range recs {
		v, ferr := rec.Float(1)
		if ferr != nil {
			continue
		}
		switch rec.Key() {
		case "TrackMinWidth":
			s.TraceMin = p.coord(v)
		case "ViaMinSize":
			s.ViaMinSize = p.coord(v)
		case "ViaMinDrill":
			s.ViaMinDrill = p.coord(v)
		case "TrackClearence", "TrackClearance":
			s.Clearance = p.coord(v)
		case "Pad2MaskClearance":
			s.PadToMaskClearance = p.coord(v)
		}
	}
	return err
}

func (p *pcbParser) equipot() error {
	recs, err := p.block("$EndEQUIPOT")
	for _, rec := range recs {
		if rec.Key() != "Na" {
			continue
		}
		net := pcb.Net{Number: rec.IntOr(1, 0), Name: rec.Text(2)}
		p.nets[net.Number] = net
		p.board.Nets = append(p.board.Nets, net)
	}
	return err
}

func (p *pcbParser) module(lineNo int) error {
	fp := pcb.Footprint{Layer: "F.Cu", Properties: map[string]string{}}
	var pads []pcb.Pad
	for {
		line, ok := p.next()
		if !ok {
			return fmt.Errorf("%w: missing $EndMODULE", errs.ErrUnexpectedEOF)
		}
		if strings.HasPrefix(line, "$EndMODULE") {
			break
		}
		if line == "$PAD" {
			pad, err := p.pad()
			if err != nil {
				return err
			}
			pads = append(pads, pad)
			continue
		}
		if strings.HasPrefix(line, "$") {
			// $SHAPE3D and friends
			if _, err := p.block("$End" + strings.TrimPrefix(strings.Fields(line)[0], "$")); err != nil {
				return err
			}
			continue
		}
		rec, err := Tokenize(line)
		if err != nil {
			continue
		}
		switch rec.Key() {
		case "Po":
			// Po x y orient(0.1 deg) layer timestamp attrs
			fp.Position.Position = p.pos(rec, 1)
			fp.Position.Angle = sexp.Angle(rec.FloatOr(3, 0) / 10)
			fp.Layer = LayerName(rec.IntOr(4, 0))
		case "Li":
			fp.Library = rec.Text(1)
		case "T0":
			if text, ok := rec.LastQuoted(); ok {
				fp.Reference = text
			}
		case "T1":
			if text, ok := rec.LastQuoted(); ok {
				fp.Value = text
			}
		case "Cd":
			fp.Properties["Description"] = strings.TrimSpace(strings.TrimPrefix(line, "Cd"))
		case "Kw":
			fp.Properties["Keywords"] = strings.TrimSpace(strings.TrimPrefix(line, "Kw"))
		}
	}

	fp.Reference = orDefault(fp.Reference, "?")
	fp.Properties["Reference"] = fp.Reference
	fp.Properties["Value"] = fp.Value
	fp.ID = string(sexp.StableID(p.o.filename, "module", strconv.Itoa(lineNo)))
	for _, pad := range pads {
		// Pad positions are stored relative to the module origin
		pad.Position = fp.TransformPosition(pad.Local.Position)
		fp.Pads = append(fp.Pads, pad)
	}
	p.board.Footprints = append(p.board.Footprints, fp)
	return nil
}

func (p *pcbParser) pad() (pcb.Pad, error) {
	recs, err := p.block("$EndPAD")
	if err != nil {
		return pcb.Pad{}, err
	}
	pad := pcb.Pad{Type: pcb.PadThruHole, Shape: pcb.ShapeCircle}
	for _, rec := range recs {
		switch rec.Key() {
		case "Sh":
			// Sh "num" shape w h dx dy orient
			pad.Number = rec.Text(1)
			if s, ok := padShapes[rec.Text(2)]; ok {
				pad.Shape = s
			}
			pad.Size = sexp.Size{Width: p.coord(rec.FloatOr(3, 0)), Height: p.coord(rec.FloatOr(4, 0))}
			pad.Local.Angle = sexp.Angle(rec.FloatOr(7, 0) / 10)
		case "Dr":
			pad.Drill = p.coord(rec.FloatOr(1, 0))
		case "At":
			if t, ok := padTypes[rec.Text(1)]; ok {
				pad.Type = t
			}
			if pad.Layers == nil {
				pad.Layers = layerMask(rec.Text(3))
			}
		case "Ne":
			pad.Net = pcb.Net{Number: rec.IntOr(1, 0), Name: rec.Text(2)}
		case "Po":
			pad.Local.Position = p.pos(rec, 1)
		case "La":
			pad.Layers = layerMask(rec.Text(1))
		}
	}
	if len(pad.Layers) == 0 {
		if pad.Type == pcb.PadSMD || pad.Type == pcb.PadConnect {
			pad.Layers = pcb.LayerSet{"F.Cu"}
		} else {
			pad.Layers = pcb.LayerSet{"F.Cu", "B.Cu"}
		}
	}
	return pad, nil
}

// tracks reads Po/De record pairs; shape 1 is a via
func (p *pcbParser) tracks(lineNo int) error {
	recs, err := p.block("$EndTRACK")
	for i := 0; i+1 < len(recs); i++ {
		po, de := recs[i], recs[i+1]
		if po.Key() != "Po" || de.Key() != "De" {
			continue
		}
		i++
		if po.Len() < 7 {
			p.o.logger.Warn("skipping track record", "file", p.o.filename, "block", lineNo, "record", i/2)
			continue
		}
		shape := po.IntOr(1, 0)
		start, end := p.pos(po, 2), p.pos(po, 4)
		width := p.coord(po.FloatOr(6, 0))
		layer := de.IntOr(1, 0)
		kind := de.IntOr(2, 0)
		net := pcb.Net{Number: de.IntOr(3, 0)}
		locked := de.IntOr(5, 0)&1 != 0
		id := string(sexp.StableID(p.o.filename, "track", strconv.Itoa(lineNo), strconv.Itoa(i)))

		if shape == 1 {
			drill := po.FloatOr(7, -1)
			if drill <= 0 {
				drill = width / 2
			} else {
				drill = p.coord(drill)
			}
			via := pcb.Via{
				ID:       id,
				Position: start,
				Size:     width,
				Drill:    drill,
				Layers:   pcb.LayerSet{"F.Cu", "B.Cu"},
				Net:      net,
				Locked:   locked,
			}
			switch kind {
			case 1:
				via.Type = pcb.ViaBlind
			case 2:
				via.Type = pcb.ViaBuried
			case 3:
				via.Type = pcb.ViaMicro
			}
			p.board.Vias = append(p.board.Vias, via)
			continue
		}
		p.board.Tracks = append(p.board.Tracks, pcb.Track{
			ID:     id,
			Start:  start,
			End:    end,
			Width:  width,
			Layer:  LayerName(layer),
			Net:    net,
			Locked: locked,
		})
	}
	return err
}

func (p *pcbParser) zone(lineNo int, end string) error {
	zone := pcb.Zone{Layer: "F.Cu"}
	var fill []sexp.Position
	for {
		line, ok := p.next()
		if !ok {
			return fmt.Errorf("%w: missing %s", errs.ErrUnexpectedEOF, end)
		}
		if strings.EqualFold(line, end) {
			break
		}
		if line == "$POLYSCORNERS" {
			recs, err := p.block("$endPOLYSCORNERS")
			if err != nil {
				return err
			}
			for _, rec := range recs {
				fill = append(fill, p.pos(rec, 0))
				// A 1 in the third field closes the current polygon
				if rec.IntOr(2, 0) == 1 {
					zone.Fills = append(zone.Fills, fill)
					fill = nil
				}
			}
			continue
		}
		rec, err := Tokenize(line)
		if err != nil {
			continue
		}
		switch rec.Key() {
		case "ZInfo":
			// ZInfo timestamp net "name"
			zone.Net = pcb.Net{Number: rec.IntOr(2, 0), Name: rec.Text(3)}
		case "ZLayer":
			zone.Layer = LayerName(rec.IntOr(1, 0))
		case "ZMinThickness":
			zone.MinThickness = p.coord(rec.FloatOr(1, 0))
		case "ZPriority":
			zone.Priority = rec.IntOr(1, 0)
		case "ZCorner":
			zone.Outline = append(zone.Outline, p.pos(rec, 1))
		case "ZKeepout":
			// ZKeepout tracks N vias N copperpour N
			zone.Keepout.Enabled = true
			for i := 1; i+1 < rec.Len(); i += 2 {
				denied := rec.Text(i+1) == "N"
				switch rec.Text(i) {
				case "tracks":
					zone.Keepout.Tracks = denied
				case "vias":
					zone.Keepout.Vias = denied
				case "copperpour":
					zone.Keepout.Copper = denied
				}
			}
		}
	}
	if len(fill) > 0 {
		zone.Fills = append(zone.Fills, fill)
	}
	// Old $ZONE blocks only hold fill segments
	if len(zone.Outline) == 0 && len(zone.Fills) == 0 {
		return nil
	}
	if len(zone.Outline) < 3 {
		return fmt.Errorf("zone outline has %d corners", len(zone.Outline))
	}
	zone.ID = string(sexp.StableID(p.o.filename, "zone", strconv.Itoa(lineNo)))
	p.board.Zones = append(p.board.Zones, zone)
	return nil
}

// drawSegment keeps Edge.Cuts graphics for the board outline
func (p *pcbParser) drawSegment() error {
	recs, err := p.block("$EndDRAWSEGMENT")
	var pts []sexp.Position
	layer := 44
	for _, rec := range recs {
		switch rec.Key() {
		case "Po":
			pts = append(pts, p.pos(rec, 2), p.pos(rec, 4))
		case "De":
			layer = rec.IntOr(1, layer)
		}
	}
	if LayerName(layer) == "Edge.Cuts" {
		for _, pt := range pts {
			p.board.Outline.Expand(pt)
		}
	}
	return err
}

// resolveNets fills in names from $EQUIPOT for items that only carry numbers
func (p *pcbParser) resolveNets() {
	lookup := func(n pcb.Net) pcb.Net {
		if known, ok := p.nets[n.Number]; ok {
			return known
		}
		return n
	}
	for i := range p.board.Tracks {
		p.board.Tracks[i].Net = lookup(p.board.Tracks[i].Net)
	}
	for i := range p.board.Vias {
		p.board.Vias[i].Net = lookup(p.board.Vias[i].Net)
	}
	for i := range p.board.Zones {
		if p.board.Zones[i].Net.Name == "" {
			p.board.Zones[i].Net = lookup(p.board.Zones[i].Net)
		}
	}
	for i := range p.board.Footprints {
		for j := range p.board.Footprints[i].Pads {
			pad := &p.board.Footprints[i].Pads[j]
			if pad.Net.Name == "" {
				pad.Net = lookup(pad.Net)
			}
		}
	}
}
