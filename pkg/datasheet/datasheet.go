// Package datasheet checks components against requirements taken from
// their datasheets: decoupling, external parts and pin configuration.
//
// Requirements are YAML documents. A set of common parts is embedded; more
// can be loaded from a directory.
package datasheet

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/designguard/pkg/analyzer"
	"github.com/OpenTraceLab/designguard/pkg/errs"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Farads is a capacitance written as 100n, 4.7uF or 22p
type Farads float64

func (f *Farads) UnmarshalYAML(node *yaml.Node) error {
	v, ok := analyzer.Capacitance(node.Value)
	if !ok {
		return fmt.Errorf("line %d: invalid capacitance %q", node.Line, node.Value)
	}
	*f = Farads(v)
	return nil
}

func (f Farads) String() string { return analyzer.FormatCapacitance(float64(f)) }

// Ohms is a resistance written as 10k, 4k7 or 33R
type Ohms float64

func (o *Ohms) UnmarshalYAML(node *yaml.Node) error {
	v, ok := analyzer.Resistance(node.Value)
	if !ok {
		return fmt.Errorf("line %d: invalid resistance %q", node.Line, node.Value)
	}
	*o = Ohms(v)
	return nil
}

// Decoupling is a capacitor a power pin needs
type Decoupling struct {
	PowerPin string `yaml:"power_pin" validate:"required"`
	Min      Farads `yaml:"min"`
	Typical  Farads `yaml:"typical" validate:"gt=0"`
	// Max defaults to ten times Typical
	Max           Farads  `yaml:"max"`
	MaxDistanceMM float64 `yaml:"max_distance_mm" validate:"gt=0"`
	Role          string  `yaml:"role" validate:"oneof=bypass bulk decoupling filter"`
	Dielectric    string  `yaml:"dielectric"`
	Severity      string  `yaml:"severity" validate:"omitempty,oneof=error warning info"`
	Reason        string  `yaml:"reason"`
}

// Range returns the accepted capacitance window, with 20% tolerance below
func (d Decoupling) Range() (lo, hi float64) {
	lo = float64(d.Min)
	if lo == 0 {
		lo = float64(d.Typical)
	}
	hi = float64(d.Max)
	if hi == 0 {
		hi = float64(d.Typical) * 10
	}
	return lo * 0.8, hi
}

// External component types
const (
	ExternalCrystal         = "crystal"
	ExternalPullUp          = "pull_up"
	ExternalPullDown        = "pull_down"
	ExternalFilterCapacitor = "filter_capacitor"
	ExternalBypassCapacitor = "bypass_capacitor"
	ExternalSeriesResistor  = "series_resistor"
	ExternalProtection      = "protection_diode"
)

// External is a part that must be placed next to the IC
type External struct {
	Type          string   `yaml:"type" validate:"oneof=crystal pull_up pull_down filter_capacitor bypass_capacitor series_resistor protection_diode"`
	FrequencyHz   float64  `yaml:"frequency_hz"`
	ConnectedPins []string `yaml:"connected_pins"`
	Required      bool     `yaml:"required"`
	Reason        string   `yaml:"reason"`
}

// Describe names the part for messages
func (e External) Describe() string {
	switch e.Type {
	case ExternalCrystal:
		if e.FrequencyHz > 0 {
			return fmt.Sprintf("%gMHz crystal", e.FrequencyHz/1e6)
		}
		return "crystal"
	case ExternalPullUp:
		return "pull-up resistor"
	case ExternalPullDown:
		return "pull-down resistor"
	case ExternalFilterCapacitor:
		return "filter capacitor"
	case ExternalBypassCapacitor:
		return "bypass capacitor"
	case ExternalSeriesResistor:
		return "series termination resistor"
	case ExternalProtection:
		return "protection diode"
	}
	return "external component"
}

// Pin requirement types
const (
	PinPullUp       = "pull_up"
	PinDefinedState = "defined_state"
	PinCapToGround  = "cap_to_ground"
	PinRCDelay      = "rc_delay"
)

// PinRequirement constrains how one pin is terminated
type PinRequirement struct {
	Pin         string `yaml:"pin" validate:"required"`
	Type        string `yaml:"type" validate:"oneof=pull_up defined_state cap_to_ground rc_delay"`
	Resistance  Ohms   `yaml:"resistance"`
	Capacitance Farads `yaml:"capacitance"`
	Reason      string `yaml:"reason"`
}

// Requirements is everything known about one part
type Requirements struct {
	PartNumbers  []string         `yaml:"part_numbers" validate:"required,min=1,dive,required"`
	Manufacturer string           `yaml:"manufacturer"`
	Category     string           `yaml:"category"`
	URL          string           `yaml:"datasheet_url" validate:"omitempty,url"`
	Decoupling   []Decoupling     `yaml:"decoupling" validate:"dive"`
	External     []External       `yaml:"external_components" validate:"dive"`
	Pins         []PinRequirement `yaml:"pins" validate:"dive"`
	Warnings     []string         `yaml:"warnings"`
}

var validate = validator.New()

// Parse decodes and validates one requirements document
func Parse(data []byte) (*Requirements, error) {
	var r Requirements
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, errs.Parse("datasheet", err)
	}
	if err := validate.Struct(&r); err != nil {
		return nil, errs.Config("datasheet", err)
	}
	return &r, nil
}

// Database indexes requirements by normalized part number
type Database struct {
	byPart map[string]*Requirements
	// load order, for deterministic fuzzy matching
	all []*Requirements
}

// NewDatabase returns an empty database
func NewDatabase() *Database {
	return &Database{byPart: make(map[string]*Requirements)}
}

// Builtin returns a database of the embedded parts
func Builtin() (*Database, error) {
	db := NewDatabase()
	if _, err := db.LoadFS(builtinFS, "builtin"); err != nil {
		return nil, err
	}
	return db, nil
}

// Add indexes r under every part number. Later additions replace earlier
// ones with the same part number.
func (db *Database) Add(r *Requirements) {
	db.all = append(db.all, r)
	for _, pn := range r.PartNumbers {
		db.byPart[normalize(pn)] = r
	}
}

// Len returns the number of loaded documents
func (db *Database) Len() int { return len(db.all) }

// LoadFS loads every .yaml/.yml file of dir in name order
func (db *Database) LoadFS(fsys fs.FS, dir string) (int, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0, errs.IO("read datasheets", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	n := 0
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return n, errs.IO("read datasheet", e.Name(), err)
		}
		r, err := Parse(data)
		if err != nil {
			return n, fmt.Errorf("%s: %w", e.Name(), err)
		}
		db.Add(r)
		n++
	}
	return n, nil
}

// LoadDir loads user requirements from a directory on disk
func (db *Database) LoadDir(dir string) (int, error) {
	return db.LoadFS(os.DirFS(dir), ".")
}

func normalize(pn string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(pn) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// minFuzzy is the shortest query matched by prefix or substring
const minFuzzy = 4

// Get finds requirements by exact part number, then by prefix in either
// direction (STM32F411 and STM32F411CEU6), then by substring
func (db *Database) Get(partNumber string) (*Requirements, bool) {
	q := normalize(partNumber)
	if q == "" {
		return nil, false
	}
	if r, ok := db.byPart[q]; ok {
		return r, true
	}
	if len(q) < minFuzzy {
		return nil, false
	}
	for _, r := range db.all {
		for _, pn := range r.PartNumbers {
			n := normalize(pn)
			if strings.HasPrefix(n, q) || strings.HasPrefix(q, n) {
				return r, true
			}
		}
	}
	for _, r := range db.all {
		for _, pn := range r.PartNumbers {
			n := normalize(pn)
			if strings.Contains(q, n) || strings.Contains(n, q) {
				return r, true
			}
		}
	}
	return nil, false
}

// Match finds the requirements of a component from its value, library id
// or a part number property
func (db *Database) Match(c schematic.Component) (*Requirements, bool) {
	if r, ok := db.Get(c.Value); ok {
		return r, true
	}
	if i := strings.LastIndex(c.LibID, ":"); i >= 0 {
		if r, ok := db.Get(c.LibID[i+1:]); ok {
			return r, true
		}
	}
	if r, ok := db.Get(c.LibID); ok {
		return r, true
	}
	keys := make([]string, 0, len(c.Properties))
	for k := range c.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "part") || strings.Contains(lk, "mpn") || lk == "pn" {
			if r, ok := db.Get(c.Properties[k]); ok {
				return r, true
			}
		}
	}
	return nil, false
}

// Option configures a Checker
type Option func(*Checker)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// WithDatabase replaces the embedded requirements
func WithDatabase(db *Database) Option {
	return func(c *Checker) { c.db = db }
}
