// Package rules evaluates design rules against an analysis context.
package rules

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/analyzer"
	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
)

// Rule inspects an analysis context and reports findings. A rule that
// lacks the data it needs reports nothing for that case.
type Rule interface {
	ID() string
	Name() string
	Description() string
	// Severity is the rule's default severity; individual findings may differ
	Severity() issue.Severity
	Check(ctx *analyzer.Context) []issue.Issue
}

// Info describes a registered rule
type Info struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Severity    issue.Severity `json:"severity"`
}

// Default returns the built-in rules in registration order
func Default() []Rule {
	return []Rule{
		DecouplingCapacitor{},
		I2CPullResistors{},
		CrystalLoadCapacitors{},
		PowerPins{},
		ESDProtection{},
		BulkCapacitor{},
	}
}

// Engine runs rules in registration order
type Engine struct {
	rules  []Rule
	logger *slog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRules replaces the rule set
func WithRules(rules ...Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// NewEngine creates an engine with the default rules
func NewEngine(opts ...Option) *Engine {
	e := &Engine{rules: Default(), logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Only returns an engine restricted to the given rule IDs, keeping
// registration order. An empty allowlist keeps every rule.
func (e *Engine) Only(ids ...string) (*Engine, error) {
	if len(ids) == 0 {
		return e, nil
	}
	allowed := make(map[string]bool, len(ids))
	for _, id := range ids {
		allowed[strings.TrimSpace(id)] = true
	}
	var kept []Rule
	for _, r := range e.rules {
		if allowed[r.ID()] {
			kept = append(kept, r)
			delete(allowed, r.ID())
		}
	}
	if len(allowed) > 0 {
		unknown := make([]string, 0, len(allowed))
		for id := range allowed {
			unknown = append(unknown, id)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown rule(s): %s", strings.Join(unknown, ", "))
	}
	return &Engine{rules: kept, logger: e.logger}, nil
}

// Rules describes the engine's rules in registration order
func (e *Engine) Rules() []Info {
	out := make([]Info, len(e.rules))
	for i, r := range e.rules {
		out[i] = Info{ID: r.ID(), Name: r.Name(), Description: r.Description(), Severity: r.Severity()}
	}
	return out
}

// Analyze evaluates every rule against sch. When ctx is nil a context is
// built from the schematic alone.
func (e *Engine) Analyze(sch *schematic.Schematic, ctx *analyzer.Context) []issue.Issue {
	if ctx == nil {
		ctx = analyzer.NewContext(sch, analyzer.WithLogger(e.logger))
	}
	var issues []issue.Issue
	for _, r := range e.rules {
		found := e.check(r, ctx)
		e.logger.Debug("Rule evaluated", "rule", r.ID(), "issues", len(found))
		issues = append(issues, found...)
	}
	return issues
}

func (e *Engine) check(r Rule, ctx *analyzer.Context) (found []issue.Issue) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Warn("Rule failed, skipping", "rule", r.ID(), "panic", p)
			found = nil
		}
	}()
	return r.Check(ctx)
}
