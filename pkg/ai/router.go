package ai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/OpenTraceLab/designguard/pkg/errs"
)

// Provider preferences
const (
	PreferAuto      = "auto"
	PreferAnthropic = "anthropic"
	PreferOllama    = "ollama"
	PreferNone      = "none"
)

// Router tries providers in order; the first available one serves the
// request and a failing call falls through to the next.
type Router struct {
	providers []Provider
	logger    *slog.Logger
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a router over providers in preference order
func NewRouter(providers []Provider, opts ...RouterOption) *Router {
	r := &Router{providers: providers, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config selects and configures the built-in providers
type Config struct {
	Prefer    string
	Anthropic AnthropicConfig
	Ollama    OllamaConfig
}

// FromConfig orders Claude and Ollama by preference. Auto and anthropic
// try Claude first; none yields a router without providers.
func FromConfig(cfg Config, opts ...RouterOption) (*Router, error) {
	if cfg.Prefer == PreferNone {
		return NewRouter(nil, opts...), nil
	}
	claude := NewAnthropic(cfg.Anthropic)
	local, err := NewOllama(cfg.Ollama)
	if err != nil {
		return nil, err
	}
	if cfg.Prefer == PreferOllama {
		return NewRouter([]Provider{local, claude}, opts...), nil
	}
	return NewRouter([]Provider{claude, local}, opts...), nil
}

// Providers returns the providers in preference order
func (r *Router) Providers() []Provider { return r.providers }

// Provider returns the first available provider
func (r *Router) Provider(ctx context.Context) (Provider, error) {
	for _, p := range r.providers {
		if p.Available(ctx) {
			return p, nil
		}
	}
	return nil, errs.ErrNoProvider
}

// each runs fn against every available provider until one succeeds
func (r *Router) each(ctx context.Context, op string, fn func(Provider) error) error {
	var errList []error
	tried := 0
	for _, p := range r.providers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.Available(ctx) {
			continue
		}
		tried++
		r.logger.Info("Using AI provider", "provider", p.Name(), "op", op)
		err := fn(p)
		if err == nil {
			return nil
		}
		r.logger.Warn("AI provider failed", "provider", p.Name(), "op", op, "error", err)
		errList = append(errList, err)
	}
	if tried == 0 {
		return errs.ErrNoProvider
	}
	return errors.Join(errList...)
}

// AnalyzeSchematic reviews the design with the first provider that answers
func (r *Router) AnalyzeSchematic(ctx context.Context, c *Context) (*Analysis, error) {
	var out *Analysis
	err := r.each(ctx, "analyze", func(p Provider) error {
		a, err := p.AnalyzeSchematic(ctx, c)
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AskQuestion answers with the first provider that answers
func (r *Router) AskQuestion(ctx context.Context, c *Context, question string) (string, error) {
	var out string
	err := r.each(ctx, "ask", func(p Provider) error {
		s, err := p.AskQuestion(ctx, c, question)
		out = s
		return err
	})
	return out, err
}

// Status reports the availability of each provider
type Status struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Status probes every provider
func (r *Router) Status(ctx context.Context) []Status {
	out := make([]Status, len(r.providers))
	for i, p := range r.providers {
		out[i] = Status{Name: p.Name(), Available: p.Available(ctx)}
	}
	return out
}
