package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"github.com/medmatch/trial-matcher/internal/ai"
	"github.com/medmatch/trial-matcher/internal/logger"
	"github.com/medmatch/trial-matcher/internal/util"
	"go.uber.org/zap"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

// cachedContentGenerator is implemented by generators that can reuse a
// cached content resource instead of resending the profile per call.
type cachedContentGenerator interface {
	GenerateContentWithCache(ctx context.Context, prompt, cacheName string) (string, error)
}

// Classifier evaluates eligibility criteria through a Gemini generator.
// Responses are validated strictly; schema deviations are retried up to
// maxRetries before the error surfaces to the caller.
type Classifier struct {
	generator  contentGenerator
	maxRetries int
	maxLogLen  int
	logger     *zap.Logger

	cacheName string
}

//go:embed prompt.md
var promptTemplate string

const (
	defaultMaxLogLength = 200
	retryWait           = 500 * time.Millisecond
)

func NewClassifier(generator contentGenerator, maxRetries, maxLogLength int, log *zap.Logger) *Classifier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Classifier{
		generator:  generator,
		maxRetries: maxRetries,
		maxLogLen:  maxLogLength,
		logger:     logger.WithClassifierFields(log, "gemini", generator.Model()),
	}
}

func (c *Classifier) Provider() string { return "gemini" }

// UseProfileCache makes subsequent calls reference the cached profile
// content instead of inlining the profile into every prompt. An empty name
// switches back to inline prompts.
func (c *Classifier) UseProfileCache(cacheName string) {
	c.cacheName = strings.TrimSpace(cacheName)
}

func (c *Classifier) Model() string { return c.generator.Model() }

func (c *Classifier) Classify(ctx context.Context, req ai.Request) (*ai.Assessment, error) {
	if strings.TrimSpace(req.CriterionText) == "" {
		return nil, fmt.Errorf("criterion text is required")
	}
	if strings.TrimSpace(req.ProfileText) == "" {
		return nil, fmt.Errorf("patient profile text is required")
	}

	cached, cacheGen := c.cachedGenerator()
	prompt := buildPrompt(req, cached)

	c.logger.Debug("gemini classification request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, c.maxLogLen)),
	)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := util.WaitFor(ctx, time.Duration(attempt)*retryWait); err != nil {
				return nil, err
			}
		}

		var raw string
		var err error
		if cached {
			raw, err = cacheGen.GenerateContentWithCache(ctx, prompt, c.cacheName)
		} else {
			raw, err = c.generator.GenerateContent(ctx, prompt)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.Debug("gemini classification attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		c.logger.Debug("gemini classification response",
			zap.Int("response_length", utf8.RuneCountInString(raw)),
			zap.String("response_preview", logger.TruncateForLog(raw, c.maxLogLen)),
		)

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

func (c *Classifier) cachedGenerator() (bool, cachedContentGenerator) {
	if c.cacheName == "" {
		return false, nil
	}
	gen, ok := c.generator.(cachedContentGenerator)
	return ok, gen
}

func buildPrompt(req ai.Request, cached bool) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Patient profile (masked, PII removed):\n{{PATIENT_PROFILE}}\n\nCriterion ({{POLARITY}}):\n{{CRITERION}}\n\nJSON Response:"
	}

	polarity := req.Polarity
	if polarity == "" {
		polarity = "inclusion"
	}

	profile := req.ProfileText
	if cached {
		profile = "(provided in the cached context above)"
	}

	prompt := strings.ReplaceAll(template, "{{PATIENT_PROFILE}}", profile)
	prompt = strings.ReplaceAll(prompt, "{{CRITERION}}", req.CriterionText)
	prompt = strings.ReplaceAll(prompt, "{{POLARITY}}", polarity)
	return prompt
}
