package pcb

import (
	"fmt"

	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp"
	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp/kicadsexp"
)

// Width assumed when a segment omits (width)
const defaultTrackWidth = 0.15

// parseTracks parses segments and arcs. Arcs become two chords through
// their midpoint.
func parseTracks(root *kicadsexp.List, nets netIndex, o options) []Track {
	var tracks []Track
	for i, node := range root.GetAll("segment") {
		track, err := parseSegment(node, nets)
		if err != nil {
			o.logger.Warn("skipping segment", "file", o.filename, "index", i, "err", err)
			continue
		}
		tracks = append(tracks, *track)
	}
	for i, node := range root.GetAll("arc") {
		chords, err := parseArc(node, nets)
		if err != nil {
			o.logger.Warn("skipping arc", "file", o.filename, "index", i, "err", err)
			continue
		}
		tracks = append(tracks, chords...)
	}
	return tracks
}

// parseSegment extracts a track segment (copper trace)
// Expected format: (segment (start x y) (end x y) (width w) (layer "layer") (net n) ...)
func parseSegment(node *kicadsexp.List, nets netIndex) (*Track, error) {
	start, err := sexp.GetPositionXY(node, "start")
	if err != nil {
		return nil, fmt.Errorf("failed to parse start position: %w", err)
	}
	end, err := sexp.GetPositionXY(node, "end")
	if err != nil {
		return nil, fmt.Errorf("failed to parse end position: %w", err)
	}

	track := &Track{
		Start:  start,
		End:    end,
		Width:  sexp.FloatValue(node, "width", defaultTrackWidth),
		Layer:  sexp.Value(node, "layer"),
		Locked: sexp.HasSymbol(node, "locked"),
		Net:    resolveNet(node, nets),
	}
	if track.Layer == "" {
		return nil, fmt.Errorf("missing required 'layer' field")
	}

	track.ID = string(sexp.GetUUID(node))
	if track.ID == "" {
		track.ID = string(sexp.StableID("segment", track.Layer,
			fmt.Sprint(start.X), fmt.Sprint(start.Y), fmt.Sprint(end.X), fmt.Sprint(end.Y)))
	}
	return track, nil
}

func parseArc(node *kicadsexp.List, nets netIndex) ([]Track, error) {
	first, err := parseSegment(node, nets)
	if err != nil {
		return nil, err
	}
	mid, err := sexp.GetPositionXY(node, "mid")
	if err != nil {
		return nil, fmt.Errorf("failed to parse arc midpoint: %w", err)
	}
	second := *first
	first.End = mid
	second.Start = mid
	second.ID = string(sexp.StableID(first.ID, "mid"))
	return []Track{*first, second}, nil
}

// parseVias parses every via, skipping malformed ones
func parseVias(root *kicadsexp.List, nets netIndex, o options) []Via {
	var vias []Via
	for i, node := range root.GetAll("via") {
		via, err := parseVia(node, nets)
		if err != nil {
			o.logger.Warn("skipping via", "file", o.filename, "index", i, "err", err)
			continue
		}
		vias = append(vias, *via)
	}
	return vias
}

// parseVia extracts a via definition
// Expected format: (via [blind|micro] (at x y) (size diameter) (drill diameter) (layers "L1" "L2") (net n) ...)
func parseVia(node *kicadsexp.List, nets netIndex) (*Via, error) {
	pos, err := sexp.GetPosition(node)
	if err != nil {
		return nil, err
	}
	size := sexp.FloatValue(node, "size", 0)
	if size <= 0 {
		return nil, fmt.Errorf("missing required 'size' field")
	}
	drill := sexp.FloatValue(node, "drill", 0)
	if drill <= 0 {
		return nil, fmt.Errorf("missing required 'drill' field")
	}

	via := &Via{
		Position: pos.Position,
		Size:     size,
		Drill:    drill,
		Layers:   LayerSet{"F.Cu", "B.Cu"},
		Locked:   sexp.HasSymbol(node, "locked"),
		Net:      resolveNet(node, nets),
	}
	if layersNode, found := node.Find("layers"); found {
		if ls := parseLayerSet(layersNode); len(ls) > 0 {
			via.Layers = ls
		}
	}

	switch {
	case sexp.HasSymbol(node, "micro"):
		via.Type = ViaMicro
	case sexp.HasSymbol(node, "blind"):
		via.Type = ViaBlind
		// KiCad writes buried vias as blind ones spanning inner layers only
		if len(via.Layers) == 2 && !IsOuterName(via.Layers[0]) && !IsOuterName(via.Layers[1]) {
			via.Type = ViaBuried
		}
	}

	via.ID = string(sexp.GetUUID(node))
	if via.ID == "" {
		via.ID = string(sexp.StableID("via", fmt.Sprint(pos.X), fmt.Sprint(pos.Y)))
	}
	return via, nil
}
