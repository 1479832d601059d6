package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Generator adapts the messages API to the plain prompt-in, text-out
// contract the extraction and enrichment stages expect.
type Generator struct {
	messages messager
	model    string
}

func NewGenerator(apiKey, model string) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Generator{
		messages: &client.Messages,
		model:    model,
	}, nil
}

func (g *Generator) Model() string { return g.model }

func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	resp, err := g.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   maxTokens,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	output := strings.TrimSpace(sb.String())
	if output == "" {
		return "", errors.New("anthropic api returned empty response")
	}

	return output, nil
}
