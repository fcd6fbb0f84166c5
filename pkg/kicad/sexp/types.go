// Package sexp holds the geometry and tree lookup helpers shared by the
// schematic, board and legacy parsers.
package sexp

import "math"

// Legacy coordinate conversion constants
const (
	LegacySchematicUnit = 0.0001  // legacy schematic internal unit to output unit
	LegacyBoardUnit     = 0.00254 // legacy board deci-mil to mm
)

// Position is a drawing coordinate in mm, y pointing down
type Position struct {
	X, Y float64
}

// Add returns p+q
func (p Position) Add(q Position) Position { return Position{p.X + q.X, p.Y + q.Y} }

// Distance returns the Euclidean distance between p and q
func (p Position) Distance(q Position) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Near reports whether p and q coincide within eps
func (p Position) Near(q Position, eps float64) bool {
	return p.Distance(q) <= eps
}

// Rotate rotates p around the origin by deg degrees, counter-clockwise in
// KiCad's y-down screen space.
func (p Position) Rotate(deg float64) Position {
	switch math.Mod(math.Mod(deg, 360)+360, 360) {
	case 0:
		return p
	case 90:
		return Position{p.Y, -p.X}
	case 180:
		return Position{-p.X, -p.Y}
	case 270:
		return Position{-p.Y, p.X}
	}
	rad := -deg * math.Pi / 180
	s, c := math.Sincos(rad)
	return Position{p.X*c - p.Y*s, p.X*s + p.Y*c}
}

// SegmentDistance returns the distance from p to the segment a-b
func SegmentDistance(p, a, b Position) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return p.Distance(a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return p.Distance(Position{a.X + t*dx, a.Y + t*dy})
}

// PointInPolygon reports whether p lies inside poly using ray casting
func PointInPolygon(p Position, poly []Position) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := poly[i], poly[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) &&
			p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}

// Angle is a rotation in degrees
type Angle float64

// PositionAngle is a placement: a point and its rotation
type PositionAngle struct {
	Position
	Angle Angle
}

// Size is a width/height pair in mm
type Size struct {
	Width, Height float64
}

// BoundingBox is an axis-aligned extent. The zero value from
// NewBoundingBox is empty until the first Expand.
type BoundingBox struct {
	Min, Max Position
}

func NewBoundingBox() BoundingBox {
	inf := math.Inf(1)
	return BoundingBox{Min: Position{inf, inf}, Max: Position{-inf, -inf}}
}

func (bb BoundingBox) IsEmpty() bool { return bb.Min.X > bb.Max.X || bb.Min.Y > bb.Max.Y }

// Expand grows bb to cover pos
func (bb *BoundingBox) Expand(pos Position) {
	bb.Min = Position{math.Min(bb.Min.X, pos.X), math.Min(bb.Min.Y, pos.Y)}
	bb.Max = Position{math.Max(bb.Max.X, pos.X), math.Max(bb.Max.Y, pos.Y)}
}

func (bb BoundingBox) Width() float64  { return bb.Max.X - bb.Min.X }
func (bb BoundingBox) Height() float64 { return bb.Max.Y - bb.Min.Y }

// UUID is the uuid string KiCad 6+ stamps on most items
type UUID string

// Property is a symbol or footprint field
type Property struct {
	Key      string
	Value    string
	Position PositionAngle
	Hidden   bool
}
