package validate

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/errs"
)

// DefaultMaxDepth bounds directory recursion during discovery
const DefaultMaxDepth = 20

// Extensions of design files picked up by discovery
var Extensions = []string{".kicad_sch", ".sch", ".kicad_pcb", ".brd"}

var skipDirs = map[string]bool{
	"node_modules": true,
	"target":       true,
	"build":        true,
}

// IsDesignFile reports whether path has a design file extension
func IsDesignFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Discover walks root in lexical order and returns the design files found.
// Hidden directories and build output are skipped, as are paths matching
// cfg's exclude patterns. A nil cfg uses the defaults.
func Discover(root string, cfg *Config) ([]string, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	maxDepth := cfg.Batch.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// unreadable subtrees are skipped
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path == root {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") || skipDirs[name] || cfg.Excluded(rel) {
				return fs.SkipDir
			}
			if strings.Count(rel, "/")+1 > maxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !IsDesignFile(path) || cfg.Excluded(rel) {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, errs.IO("discover", root, err)
	}
	return out, nil
}
