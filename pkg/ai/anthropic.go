package ai

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/OpenTraceLab/designguard/pkg/errs"
)

// DefaultAnthropicModel is used when no model is configured
const DefaultAnthropicModel = "claude-sonnet-4-5"

const (
	analysisMaxTokens = 4096
	questionMaxTokens = 2048
)

// AnthropicConfig configures the Claude provider
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Anthropic reviews schematics with Claude
type Anthropic struct {
	client *anthropic.Client
	model  string
	keyed  bool
}

// NewAnthropic creates a Claude provider. It reports unavailable without
// an API key.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &Anthropic{client: &client, model: cfg.Model, keyed: cfg.APIKey != ""}
}

func (p *Anthropic) Name() string { return "claude" }

// Available reports whether an API key is configured
func (p *Anthropic) Available(context.Context) bool { return p.keyed }

func (p *Anthropic) complete(ctx context.Context, prompt string, maxTokens int64) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", errs.Provider("anthropic", err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if t, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String(), nil
}

func (p *Anthropic) AnalyzeSchematic(ctx context.Context, c *Context) (*Analysis, error) {
	text, err := p.complete(ctx, AnalysisPrompt(c), analysisMaxTokens)
	if err != nil {
		return nil, err
	}
	a := ParseAnalysis(text)
	a.Provider = p.Name()
	return a, nil
}

func (p *Anthropic) AskQuestion(ctx context.Context, c *Context, question string) (string, error) {
	return p.complete(ctx, QuestionPrompt(c, question), questionMaxTokens)
}
