package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/medmatch/trial-matcher/internal/ai"
	"github.com/medmatch/trial-matcher/internal/logger"
	"github.com/medmatch/trial-matcher/internal/util"
	"go.uber.org/zap"
)

const (
	defaultModel = "claude-sonnet-4-5"

	systemPrompt = "You are a medical expert evaluating clinical trial eligibility criteria against masked patient profiles. You do not invent facts. Return strict JSON only."

	maxTokens = 1024
	retryWait = 500 * time.Millisecond
)

type messager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Classifier evaluates eligibility criteria through the Anthropic messages
// API. Same contract as the gemini provider: strict response validation,
// bounded retries.
type Classifier struct {
	messages   messager
	model      string
	maxRetries int
	logger     *zap.Logger
}

func NewClassifier(apiKey, model string, maxRetries int, log *zap.Logger) (*Classifier, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Classifier{
		messages:   &client.Messages,
		model:      model,
		maxRetries: maxRetries,
		logger:     logger.WithClassifierFields(log, "anthropic", model),
	}, nil
}

func (c *Classifier) Provider() string { return "anthropic" }

func (c *Classifier) Model() string { return c.model }

func (c *Classifier) Classify(ctx context.Context, req ai.Request) (*ai.Assessment, error) {
	if strings.TrimSpace(req.CriterionText) == "" {
		return nil, fmt.Errorf("criterion text is required")
	}
	if strings.TrimSpace(req.ProfileText) == "" {
		return nil, fmt.Errorf("patient profile text is required")
	}

	prompt := buildPrompt(req)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := util.WaitFor(ctx, time.Duration(attempt)*retryWait); err != nil {
				return nil, err
			}
		}

		raw, err := c.generate(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.Debug("anthropic classification attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		assessment, err := ai.ParseAssessment(raw)
		if err != nil {
			lastErr = err
			c.logger.Debug("rejecting malformed classification response",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		return assessment, nil
	}

	return nil, fmt.Errorf("classification failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Classifier) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   maxTokens,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
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

func buildPrompt(req ai.Request) string {
	polarity := req.Polarity
	if polarity == "" {
		polarity = "inclusion"
	}

	var sb strings.Builder
	sb.WriteString("Patient profile (masked, PII removed):\n")
	sb.WriteString(req.ProfileText)
	sb.WriteString(fmt.Sprintf("\n\nCriterion (%s criterion):\n", polarity))
	sb.WriteString(req.CriterionText)
	sb.WriteString("\n\nClassify the patient's eligibility with respect to this criterion: ")
	sb.WriteString(`"eligible" if the patient clearly satisfies an inclusion criterion or does not fall under an exclusion criterion, `)
	sb.WriteString(`"ineligible" if the patient clearly fails an inclusion criterion or falls under an exclusion criterion, `)
	sb.WriteString(`"unknown" if the profile lacks the information needed to decide.`)
	sb.WriteString("\n\nRespond with strict JSON and nothing else:\n")
	sb.WriteString(`{"classification": "eligible|ineligible|unknown", "confidence": <number between 0 and 1>, "rationale": "<one or two sentences grounded in the profile>"}`)
	return sb.String()
}
