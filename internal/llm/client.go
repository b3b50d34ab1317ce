package llm

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms/openai"
	langChainPrompts "github.com/tmc/langchaingo/prompts"
)

// Completion is one model response. Token counts are estimates derived from
// text length; the client library does not surface provider usage.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Client is the single seam between the orchestration core and the model.
type Client interface {
	Complete(ctx context.Context, prompt string) (Completion, error)
}

var passthroughPrompt = langChainPrompts.NewPromptTemplate("{{.prompt}}", []string{"prompt"})

type OpenAI struct {
	chain chains.Chain
	model string
}

// NewOpenAI builds a client from environment credentials (OPENAI_API_KEY).
func NewOpenAI(model string) (*OpenAI, error) {
	llm, err := openai.New()
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return &OpenAI{
		chain: chains.NewLLMChain(llm, passthroughPrompt),
		model: model,
	}, nil
}

func (c *OpenAI) Complete(ctx context.Context, prompt string) (Completion, error) {
	completion, err := chains.Call(ctx, c.chain, map[string]any{"prompt": prompt})
	if err != nil {
		return Completion{}, fmt.Errorf("call: %w", err)
	}
	text, ok := completion["text"].(string)
	if !ok {
		return Completion{}, errors.New("completion has no text output")
	}
	return Completion{
		Text:         text,
		InputTokens:  EstimateTokens(prompt),
		OutputTokens: EstimateTokens(text),
	}, nil
}

func (c *OpenAI) Model() string { return c.model }

// EstimateTokens approximates a token count at four characters per token.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s) / 4
	if n < 1 && s != "" {
		return 1
	}
	return n
}
