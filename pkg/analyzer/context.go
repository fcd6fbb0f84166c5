package analyzer

import (
	"log/slog"

	"github.com/OpenTraceLab/designguard/pkg/kicad/pcb"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
	"github.com/OpenTraceLab/designguard/pkg/netlist"
)

// Context is everything derived from one schematic that rules inspect.
// It is built once per validation and read-only afterwards.
type Context struct {
	Schematic  *schematic.Schematic
	Netlist    *netlist.Netlist
	Graph      *netlist.Graph
	Power      *PowerRegistry
	Capacitors []CapacitorClass
	Groups     []DecouplingGroup
	// GroupStrategy names the strategy that produced Groups
	GroupStrategy string
	// Board is set when a matching PCB layout is available
	Board *pcb.Board
}

type contextOptions struct {
	board      *pcb.Board
	netlist    []netlist.Option
	strategies []GroupStrategy
	logger     *slog.Logger
}

// ContextOption configures NewContext
type ContextOption func(*contextOptions)

// WithBoard enables board-geometry decoupling grouping
func WithBoard(b *pcb.Board) ContextOption {
	return func(o *contextOptions) { o.board = b }
}

// WithNetlistOptions passes options to the netlist builder
func WithNetlistOptions(opts ...netlist.Option) ContextOption {
	return func(o *contextOptions) { o.netlist = append(o.netlist, opts...) }
}

// WithStrategies replaces the decoupling grouping fallback chain
func WithStrategies(s ...GroupStrategy) ContextOption {
	return func(o *contextOptions) { o.strategies = s }
}

// WithLogger sets the logger used for analysis diagnostics
func WithLogger(l *slog.Logger) ContextOption {
	return func(o *contextOptions) { o.logger = l }
}

// NewContext resolves connectivity and runs every classifier
func NewContext(sch *schematic.Schematic, opts ...ContextOption) *Context {
	o := contextOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	nl := netlist.Build(sch, o.netlist...)
	ctx := &Context{
		Schematic: sch,
		Netlist:   nl,
		Graph:     nl.Graph(),
		Board:     o.board,
	}
	ctx.Power = NewPowerRegistry(sch, nl)
	ctx.Capacitors = ClassifyCapacitors(sch, nl, ctx.Power)

	strategies := o.strategies
	if strategies == nil {
		strategies = DefaultStrategies(o.board, sch)
	}
	ctx.Groups, ctx.GroupStrategy = BuildDecouplingGroups(ctx, strategies)

	o.logger.Debug("Analysis context built",
		"file", sch.Filename,
		"nets", len(nl.Nets),
		"rails", len(ctx.Power.Rails()),
		"capacitors", len(ctx.Capacitors),
		"groups", len(ctx.Groups),
		"strategy", ctx.GroupStrategy)
	return ctx
}

// Capacitor returns the classification of a capacitor
func (c *Context) Capacitor(ref string) (CapacitorClass, bool) {
	for _, cc := range c.Capacitors {
		if cc.Ref == ref {
			return cc, true
		}
	}
	return CapacitorClass{}, false
}

// Group returns the decoupling group of an IC
func (c *Context) Group(ic string) (DecouplingGroup, bool) {
	for _, g := range c.Groups {
		if g.IC == ic {
			return g, true
		}
	}
	return DecouplingGroup{}, false
}
