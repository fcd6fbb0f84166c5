// Package kicad loads KiCad design files of any supported generation,
// dispatching on the detected format to the modern or legacy parsers.
package kicad

import (
	"bytes"
	"log/slog"
	"os"

	"github.com/OpenTraceLab/designguard/pkg/errs"
	"github.com/OpenTraceLab/designguard/pkg/kicad/format"
	"github.com/OpenTraceLab/designguard/pkg/kicad/legacy"
	"github.com/OpenTraceLab/designguard/pkg/kicad/pcb"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
)

// Design is a loaded file; exactly one of Schematic and Board is set
type Design struct {
	Name      string
	Format    format.Format
	Schematic *schematic.Schematic
	Board     *pcb.Board
}

// IsSchematic reports whether the design holds a schematic
func (d *Design) IsSchematic() bool { return d.Schematic != nil }

// Option configures loading
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger handed to the parsers
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// LoadFile reads and parses a design file
func LoadFile(path string, opts ...Option) (*Design, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.IO("read", path, err)
	}
	return LoadContent(path, content, opts...)
}

// LoadContent parses an in-memory design; name is used for diagnostics
// and stable ids
func LoadContent(name string, content []byte, opts ...Option) (*Design, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := format.Detect(content)
	if err != nil {
		return nil, errs.ParseFile("detect format", name, err)
	}
	o.logger.Debug("detected format", "file", name, "format", f.String())

	d := &Design{Name: name, Format: f}
	switch f.Kind {
	case format.ModernSchematic:
		d.Schematic, err = schematic.Parse(bytes.NewReader(content),
			schematic.WithFilename(name), schematic.WithLogger(o.logger))
	case format.ModernPCB:
		d.Board, err = pcb.Parse(bytes.NewReader(content),
			pcb.WithFilename(name), pcb.WithLogger(o.logger))
	case format.LegacySchematic4, format.LegacySchematic5:
		d.Schematic, err = legacy.ParseSchematic(content,
			legacy.WithFilename(name), legacy.WithLogger(o.logger))
	case format.LegacyPCB:
		d.Board, err = legacy.ParsePCB(content,
			legacy.WithFilename(name), legacy.WithLogger(o.logger))
	default:
		err = errs.ParseFile("detect format", name, errs.ErrUnknownFormat)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}
