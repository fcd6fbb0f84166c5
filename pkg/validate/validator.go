// Package validate runs the full validation pipeline over design files:
// loading, the schematic rule engine, datasheet checks and the board
// analyses (decoupling risk, EMI and IPC-2221 current capacity).
package validate

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/OpenTraceLab/designguard/pkg/analyzer"
	"github.com/OpenTraceLab/designguard/pkg/compliance"
	"github.com/OpenTraceLab/designguard/pkg/datasheet"
	"github.com/OpenTraceLab/designguard/pkg/drs"
	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/kicad"
	"github.com/OpenTraceLab/designguard/pkg/kicad/pcb"
	"github.com/OpenTraceLab/designguard/pkg/rules"
)

// DefaultCacheSize is the number of parsed designs kept in memory
const DefaultCacheSize = 64

// Validator validates design files. It is safe for concurrent use.
type Validator struct {
	opts       Options
	cfg        *Config
	logger     *slog.Logger
	engine     *rules.Engine
	datasheets *datasheet.Checker
	risk       *drs.Analyzer
	emi        *compliance.EMIAnalyzer
	cache      *lru.Cache[[sha256.Size]byte, *kicad.Design]
	metrics    *metrics
}

// Option configures a Validator
type Option func(*Validator)

// WithLogger sets the logger used by every stage
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// WithConfig replaces the default configuration
func WithConfig(c *Config) Option {
	return func(v *Validator) { v.cfg = c }
}

// WithDatasheets replaces the datasheet checker
func WithDatasheets(c *datasheet.Checker) Option {
	return func(v *Validator) { v.datasheets = c }
}

// New creates a validator. An unknown rule ID in opts.Rules is an error.
func New(opts Options, vopts ...Option) (*Validator, error) {
	v := &Validator{opts: opts, logger: slog.Default()}
	for _, opt := range vopts {
		opt(v)
	}
	if v.cfg == nil {
		v.cfg = DefaultConfig()
		if err := v.cfg.Validate(); err != nil {
			return nil, err
		}
	}

	engine, err := rules.NewEngine(rules.WithLogger(v.logger)).Only(opts.Rules...)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	v.engine = engine

	if !opts.OfflineMode && v.datasheets == nil {
		dopts := []datasheet.Option{datasheet.WithLogger(v.logger)}
		if v.cfg.Datasheets != "" {
			db, err := datasheet.Builtin()
			if err != nil {
				return nil, err
			}
			if _, err := db.LoadDir(v.cfg.Datasheets); err != nil {
				return nil, err
			}
			dopts = append(dopts, datasheet.WithDatabase(db))
		}
		if v.datasheets, err = datasheet.New(dopts...); err != nil {
			return nil, err
		}
	}

	v.risk = drs.New(drs.WithLogger(v.logger), drs.WithStopShipment(v.cfg.DRS.StopShipment))
	v.emi = compliance.NewEMIAnalyzer(compliance.WithLogger(v.logger))
	if v.cache, err = lru.New[[sha256.Size]byte, *kicad.Design](DefaultCacheSize); err != nil {
		return nil, err
	}
	v.metrics = newMetrics()
	return v, nil
}

// Options returns the run options
func (v *Validator) Options() Options { return v.opts }

// Config returns the configuration in use
func (v *Validator) Config() *Config { return v.cfg }

// Rules describes the active schematic rules
func (v *Validator) Rules() []rules.Info { return v.engine.Rules() }

// Registry exposes the validation metrics
func (v *Validator) Registry() *prometheus.Registry { return v.metrics.registry }

// load parses content, reusing an earlier parse of identical input
func (v *Validator) load(name string, content []byte) (*kicad.Design, time.Duration, error) {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(content)
	var key [sha256.Size]byte
	copy(key[:], h.Sum(nil))

	if d, ok := v.cache.Get(key); ok {
		v.metrics.cacheHits.Inc()
		return d, 0, nil
	}
	start := time.Now()
	d, err := kicad.LoadContent(name, content, kicad.WithLogger(v.logger))
	if err != nil {
		v.metrics.parseFailures.Inc()
		return nil, 0, err
	}
	v.cache.Add(key, d)
	return d, time.Since(start), nil
}

// ValidateFile validates one design file. A schematic with a board of the
// same base name next to it is analyzed with the board's placement.
func (v *Validator) ValidateFile(ctx context.Context, path string) (*Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		v.metrics.files.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var board *pcb.Board
	var boardFile string
	if strings.EqualFold(filepath.Ext(path), ".kicad_sch") {
		board, boardFile = v.siblingBoard(path)
	}
	return v.validate(ctx, path, content, board, boardFile)
}

// ValidateContent validates an in-memory design; name is used for
// diagnostics and stable issue ids
func (v *Validator) ValidateContent(ctx context.Context, name string, content []byte) (*Result, error) {
	return v.validate(ctx, name, content, nil, "")
}

func (v *Validator) siblingBoard(schPath string) (*pcb.Board, string) {
	boardPath := strings.TrimSuffix(schPath, filepath.Ext(schPath)) + ".kicad_pcb"
	content, err := os.ReadFile(boardPath)
	if err != nil {
		return nil, ""
	}
	d, _, err := v.load(boardPath, content)
	if err != nil || d.Board == nil {
		v.logger.Debug("sibling board unusable", "file", boardPath, "error", err)
		return nil, ""
	}
	return d.Board, boardPath
}

func (v *Validator) validate(ctx context.Context, name string, content []byte, board *pcb.Board, boardFile string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	d, parse, err := v.load(name, content)
	if err != nil {
		v.metrics.files.WithLabelValues("error").Inc()
		return nil, err
	}

	res := &Result{File: name, Format: d.Format.String(), ParseDuration: parse}
	kind := "board"
	if d.IsSchematic() {
		kind = "schematic"
		v.validateSchematic(d, board, res)
		res.BoardFile = boardFile
	} else if err := v.validateBoard(d.Board, res); err != nil {
		v.metrics.files.WithLabelValues("error").Inc()
		return nil, err
	}

	if v.opts.StrictMode {
		promote(res.Issues)
	}
	res.Stats = StatsOf(res.Issues)

	v.metrics.files.WithLabelValues("ok").Inc()
	v.metrics.observeIssues(res.Issues)
	v.metrics.duration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	v.logger.Info("Validated design",
		"file", name,
		"format", res.Format,
		"issues", res.TotalIssues(),
		"critical", res.Stats.Critical,
		"duration", time.Since(start))
	return res, nil
}

func (v *Validator) validateSchematic(d *kicad.Design, board *pcb.Board, res *Result) {
	actx := analyzer.NewContext(d.Schematic, analyzer.WithBoard(board), analyzer.WithLogger(v.logger))
	res.Issues = append(res.Issues, v.engine.Analyze(d.Schematic, actx)...)
	if v.datasheets != nil {
		res.Issues = append(res.Issues, v.datasheets.Check(d.Schematic)...)
	}
}

func (v *Validator) validateBoard(board *pcb.Board, res *Result) error {
	res.Risk = v.risk.Analyze(board)
	res.Issues = append(res.Issues, drs.Issues(res.Risk)...)

	res.EMI = v.emi.Analyze(board)
	res.Issues = append(res.Issues, res.EMI.Issues()...)

	calc := compliance.NewCalculator(board)
	calc.TempRise = v.cfg.IPC.TempRise
	if v.cfg.IPC.OuterOz > 0 {
		calc.OuterOz = v.cfg.IPC.OuterOz
	}
	if v.cfg.IPC.InnerOz > 0 {
		calc.InnerOz = v.cfg.IPC.InnerOz
	}
	calc.Currents = v.cfg.IPC.Currents
	report, err := calc.Report(board)
	if err != nil {
		return fmt.Errorf("ipc2221: %w", err)
	}
	res.Currents = report
	res.Issues = append(res.Issues, report.Issues()...)
	return nil
}

// ValidateProject validates every design file under dir with a bounded
// worker pool. A file that fails does not stop the others; results keep
// discovery order.
func (v *Validator) ValidateProject(ctx context.Context, dir string) ([]FileResult, error) {
	files, err := Discover(dir, v.cfg)
	if err != nil {
		return nil, err
	}
	v.logger.Info("Discovered design files", "dir", dir, "count", len(files))

	results := make([]FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, v.cfg.Batch.Workers))
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := v.ValidateFile(gctx, path)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if err != nil {
				v.logger.Warn("Validation failed", "file", path, "error", err)
			}
			results[i] = FileResult{Path: path, Result: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Failing returns the issues at or above threshold
func Failing(issues []issue.Issue, threshold issue.Severity) []issue.Issue {
	var out []issue.Issue
	for _, i := range issues {
		if i.Severity >= threshold {
			out = append(out, i)
		}
	}
	return out
}
