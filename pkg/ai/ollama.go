package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JexSrs/go-ollama"

	"github.com/OpenTraceLab/designguard/pkg/errs"
)

// Ollama defaults
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama3.2"
)

// maxPromptLength bounds prompts sent to small local models
const maxPromptLength = 16000

// OllamaConfig configures the local model provider
type OllamaConfig struct {
	URL   string
	Model string
	// ProbeTimeout bounds the availability check
	ProbeTimeout time.Duration
}

// Ollama reviews schematics with a local model
type Ollama struct {
	client *ollama.Ollama
	base   *url.URL
	model  string
	probe  *http.Client
}

// NewOllama creates a local model provider
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errs.Config("ollama url", err)
	}
	return &Ollama{
		client: ollama.New(*u),
		base:   u,
		model:  cfg.Model,
		probe:  &http.Client{Timeout: cfg.ProbeTimeout},
	}, nil
}

func (p *Ollama) Name() string { return "ollama" }

// Available probes the server's model listing
func (p *Ollama) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base.JoinPath("api", "tags").String(), nil)
	if err != nil {
		return false
	}
	resp, err := p.probe.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type generated struct {
	text string
	err  error
}

func (p *Ollama) generate(ctx context.Context, prompt string) (string, error) {
	if len(prompt) > maxPromptLength {
		prompt = prompt[:maxPromptLength]
	}
	// the client has no context support; abandon the call on cancellation
	done := make(chan generated, 1)
	go func() {
		res, err := p.client.Generate(
			p.client.Generate.WithModel(p.model),
			p.client.Generate.WithSystem(systemPrompt),
			p.client.Generate.WithPrompt(prompt),
		)
		if err != nil {
			done <- generated{err: err}
			return
		}
		if !res.Done {
			done <- generated{err: errors.New("incomplete response")}
			return
		}
		done <- generated{text: strings.TrimSpace(strings.Trim(res.Response, "`"))}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case g := <-done:
		if g.err != nil {
			return "", errs.Provider("ollama", fmt.Errorf("model %s: %w", p.model, g.err))
		}
		return g.text, nil
	}
}

func (p *Ollama) AnalyzeSchematic(ctx context.Context, c *Context) (*Analysis, error) {
	text, err := p.generate(ctx, AnalysisPrompt(c))
	if err != nil {
		return nil, err
	}
	a := ParseAnalysis(text)
	a.Provider = p.Name()
	return a, nil
}

func (p *Ollama) AskQuestion(ctx context.Context, c *Context, question string) (string, error) {
	return p.generate(ctx, QuestionPrompt(c, question))
}
