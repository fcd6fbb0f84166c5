package sexp

import (
	"fmt"
	"strconv"

	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp/kicadsexp"
)

// AsList returns s as a list, or nil for atoms.
func AsList(s kicadsexp.Sexp) *kicadsexp.List {
	l, _ := s.(*kicadsexp.List)
	return l
}

// GetString extracts the atom text at the given index in a list.
// Index 0 is the key, 1 is first value, etc.
func GetString(l *kicadsexp.List, index int) (string, error) {
	if l == nil {
		return "", fmt.Errorf("expected list, got nil")
	}
	item := l.At(index)
	if item == nil {
		return "", fmt.Errorf("index %d out of bounds (length %d)", index, l.Len())
	}
	text, ok := kicadsexp.Text(item)
	if !ok {
		return "", fmt.Errorf("expected atom at index %d, got list", index)
	}
	return text, nil
}

// GetFloat extracts a float value at the given index in a list
func GetFloat(l *kicadsexp.List, index int) (float64, error) {
	str, err := GetString(l, index)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q: %w", str, err)
	}
	return f, nil
}

// GetInt extracts an integer value at the given index in a list
func GetInt(l *kicadsexp.List, index int) (int, error) {
	str, err := GetString(l, index)
	if err != nil {
		return 0, err
	}
	i, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", str, err)
	}
	return i, nil
}

// Value returns the text of (key value) under l, or "" when absent.
func Value(l *kicadsexp.List, key string) string {
	v, ok := l.Get(key)
	if !ok {
		return ""
	}
	text, _ := kicadsexp.Text(v)
	return text
}

// FloatValue returns the float of (key value) under l, or def.
func FloatValue(l *kicadsexp.List, key string, def float64) float64 {
	sub, ok := l.Find(key)
	if !ok {
		return def
	}
	f, err := GetFloat(sub, 1)
	if err != nil {
		return def
	}
	return f
}

// GetPosition parses (at x y [angle]) found under l.
func GetPosition(l *kicadsexp.List) (PositionAngle, error) {
	at, ok := l.Find("at")
	if !ok {
		return PositionAngle{}, fmt.Errorf("missing 'at'")
	}
	return ParseAt(at)
}

// ParseAt parses an (at x y [angle]) or (xy x y) node.
func ParseAt(at *kicadsexp.List) (PositionAngle, error) {
	x, err := GetFloat(at, 1)
	if err != nil {
		return PositionAngle{}, fmt.Errorf("failed to parse X: %w", err)
	}
	y, err := GetFloat(at, 2)
	if err != nil {
		return PositionAngle{}, fmt.Errorf("failed to parse Y: %w", err)
	}
	pa := PositionAngle{Position: Position{X: x, Y: y}}
	if at.Len() > 3 {
		if a, err := GetFloat(at, 3); err == nil {
			pa.Angle = Angle(a)
		}
	}
	return pa, nil
}

// GetPositionXY parses a (start x y)-style node under l.
func GetPositionXY(l *kicadsexp.List, key string) (Position, error) {
	sub, ok := l.Find(key)
	if !ok {
		return Position{}, fmt.Errorf("missing '%s'", key)
	}
	pa, err := ParseAt(sub)
	return pa.Position, err
}

// GetSize parses (size w h) under l.
func GetSize(l *kicadsexp.List) (Size, error) {
	sub, ok := l.Find("size")
	if !ok {
		return Size{}, fmt.Errorf("missing 'size'")
	}
	w, err := GetFloat(sub, 1)
	if err != nil {
		return Size{}, err
	}
	h := w
	if sub.Len() > 2 {
		if h, err = GetFloat(sub, 2); err != nil {
			return Size{}, err
		}
	}
	return Size{Width: w, Height: h}, nil
}

// GetPoints parses (pts (xy x y) ...) under l.
func GetPoints(l *kicadsexp.List) ([]Position, error) {
	pts, ok := l.Find("pts")
	if !ok {
		return nil, fmt.Errorf("missing 'pts'")
	}
	var out []Position
	for _, xy := range pts.GetAll("xy") {
		pa, err := ParseAt(xy)
		if err != nil {
			return nil, fmt.Errorf("failed to parse point: %w", err)
		}
		out = append(out, pa.Position)
	}
	return out, nil
}

// HasSymbol checks if a bare symbol appears among the children of l,
// either directly (hide) or as a (hide yes) flag.
func HasSymbol(l *kicadsexp.List, symbol string) bool {
	for _, item := range l.Elements()[min(1, l.Len()):] {
		if text, ok := kicadsexp.Text(item); ok && text == symbol {
			return true
		}
	}
	if v, ok := l.Get(symbol); ok {
		text, _ := kicadsexp.Text(v)
		return text == "yes" || text == "true"
	}
	return false
}

// GetUUID extracts (uuid ...) under l.
func GetUUID(l *kicadsexp.List) UUID {
	return UUID(Value(l, "uuid"))
}

// GetProperty parses (property "Key" "Value" (at ...) ...).
func GetProperty(l *kicadsexp.List) (Property, error) {
	key, err := GetString(l, 1)
	if err != nil {
		return Property{}, fmt.Errorf("failed to parse property key: %w", err)
	}
	val, err := GetString(l, 2)
	if err != nil {
		return Property{}, fmt.Errorf("failed to parse property value: %w", err)
	}
	prop := Property{Key: key, Value: val}
	if pos, err := GetPosition(l); err == nil {
		prop.Position = pos
	}
	if effects, ok := l.Find("effects"); ok && HasSymbol(effects, "hide") {
		prop.Hidden = true
	}
	if HasSymbol(l, "hide") {
		prop.Hidden = true
	}
	return prop, nil
}
