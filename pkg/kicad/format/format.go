// Package format classifies KiCad design files by their leading signature
// without parsing the whole document.
package format

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"github.com/OpenTraceLab/designguard/pkg/errs"
)

// Kind identifies a file format generation
type Kind int

const (
	Unknown Kind = iota
	ModernSchematic
	ModernPCB
	LegacySchematic4
	LegacySchematic5
	LegacyPCB
)

func (k Kind) String() string {
	switch k {
	case ModernSchematic:
		return "kicad_sch"
	case ModernPCB:
		return "kicad_pcb"
	case LegacySchematic4:
		return "eeschema-v4"
	case LegacySchematic5:
		return "eeschema-v5"
	case LegacyPCB:
		return "pcbnew-legacy"
	default:
		return "unknown"
	}
}

// IsLegacy reports whether k is a line-oriented format
func (k Kind) IsLegacy() bool {
	return k == LegacySchematic4 || k == LegacySchematic5 || k == LegacyPCB
}

// IsSchematic reports whether k describes a schematic
func (k Kind) IsSchematic() bool {
	return k == ModernSchematic || k == LegacySchematic4 || k == LegacySchematic5
}

// IsPCB reports whether k describes a board
func (k Kind) IsPCB() bool {
	return k == ModernPCB || k == LegacyPCB
}

// HeadSize is how much of a file Detect looks at
const HeadSize = 4096

// Format is the result of detection
type Format struct {
	Kind Kind
	// Version is the (version N) date of modern files, 0 otherwise
	Version int
	// Release is the KiCad major release that wrote the file
	Release int
}

func (f Format) String() string {
	if f.Release > 0 {
		return fmt.Sprintf("%s (KiCad %d)", f.Kind, f.Release)
	}
	return f.Kind.String()
}

// Release dates of the modern file format
var releases = []struct {
	since   int
	release int
}{
	{20241017, 9},
	{20240208, 8},
	{20221118, 7},
	{20211014, 6},
}

// ReleaseForVersion maps a modern version date to a KiCad release
func ReleaseForVersion(version int) int {
	for _, r := range releases {
		if version >= r.since {
			return r.release
		}
	}
	return 6
}

var (
	bom            = []byte{0xEF, 0xBB, 0xBF}
	versionPattern = regexp.MustCompile(`\(version\s+(\d+)\)`)
)

// Detect classifies content by its leading marker
func Detect(content []byte) (Format, error) {
	head := content
	if len(head) > HeadSize {
		head = head[:HeadSize]
	}
	head = bytes.TrimPrefix(head, bom)
	head = bytes.TrimLeft(head, " \t\r\n")

	switch {
	case bytes.HasPrefix(head, []byte("EESchema Schematic File Version")):
		line := head
		if i := bytes.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
		}
		fields := bytes.Fields(line)
		if string(fields[len(fields)-1]) == "4" {
			return Format{Kind: LegacySchematic4, Release: 4}, nil
		}
		// Versions 2 and 3 (KiCad 4) share the version 5 block layout
		return Format{Kind: LegacySchematic5, Release: 5}, nil

	case bytes.HasPrefix(head, []byte("PCBNEW")):
		return Format{Kind: LegacyPCB, Release: 5}, nil

	case bytes.HasPrefix(head, []byte("(kicad_sch")):
		return modern(ModernSchematic, head), nil

	case bytes.HasPrefix(head, []byte("(kicad_pcb")):
		return modern(ModernPCB, head), nil
	}

	return Format{}, errs.Parse("detect format", errs.ErrUnknownFormat)
}

func modern(kind Kind, head []byte) Format {
	f := Format{Kind: kind, Release: 6}
	if m := versionPattern.FindSubmatch(head); m != nil {
		if v, err := strconv.Atoi(string(m[1])); err == nil {
			f.Version = v
			f.Release = ReleaseForVersion(v)
		}
	}
	return f
}

// DetectReader classifies a stream by reading at most HeadSize bytes
func DetectReader(r io.Reader) (Format, error) {
	buf := make([]byte, HeadSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Format{}, errs.IO("detect format", "", err)
	}
	return Detect(buf[:n])
}

// DetectFile classifies the file at path
func DetectFile(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, errs.IO("open", path, err)
	}
	defer f.Close()

	format, err := DetectReader(f)
	if errs.IsIO(err) {
		return Format{}, errs.IO("read", path, err)
	}
	if err != nil {
		return Format{}, errs.ParseFile("detect format", path, err)
	}
	return format, nil
}
