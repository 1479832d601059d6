package profile

import (
	"context"
	"encoding/json"
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

//go:embed prompt.md
var promptTemplate string

const (
	// DefaultMaxRetries bounds how often a malformed extraction response
	// is retried before the run fails.
	DefaultMaxRetries = 3

	retryWait = 500 * time.Millisecond
)

// Summarizer extracts categorized search keywords from a masked patient
// narrative. Responses must carry exactly the five category keys, each an
// array of strings; anything else is rejected and retried.
type Summarizer struct {
	generator  contentGenerator
	maxRetries int
	maxLogLen  int
	logger     *zap.Logger
}

func NewSummarizer(generator contentGenerator, maxRetries, maxLogLength int, log *zap.Logger) *Summarizer {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if maxLogLength <= 0 {
		maxLogLength = 200
	}

	return &Summarizer{
		generator:  generator,
		maxRetries: maxRetries,
		maxLogLen:  maxLogLength,
		logger:     log.With(zap.String("component", "summarizer"), zap.String(logger.FieldModel, generator.Model())),
	}
}

// Summarize builds a PatientProfile from the raw narrative and its masked
// form. Only the masked text is sent to the generator.
func (s *Summarizer) Summarize(ctx context.Context, rawText, maskedText string) (*PatientProfile, error) {
	if strings.TrimSpace(maskedText) == "" {
		return nil, fmt.Errorf("masked patient text is required")
	}

	prompt := buildPrompt(maskedText)

	s.logger.Debug("keyword extraction request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, s.maxLogLen)),
	)

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := util.WaitFor(ctx, time.Duration(attempt)*retryWait); err != nil {
				return nil, err
			}
		}

		raw, err := s.generator.GenerateContent(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			s.logger.Debug("keyword extraction attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		s.logger.Debug("keyword extraction response",
			zap.Int("response_length", utf8.RuneCountInString(raw)),
			zap.String("response_preview", logger.TruncateForLog(raw, s.maxLogLen)),
		)

		keywords, err := parseKeywords(raw)
		if err != nil {
			lastErr = err
			s.logger.Debug("rejecting malformed extraction response",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		return &PatientProfile{
			RawText:    rawText,
			MaskedText: maskedText,
			Keywords:   keywords,
		}, nil
	}

	return nil, fmt.Errorf("keyword extraction failed after %d attempts: %w", s.maxRetries+1, lastErr)
}

// parseKeywords enforces the extraction schema: all five category keys
// present, each a JSON array of strings. Empty arrays are valid; a profile
// with no extractable entities is still a usable profile.
func parseKeywords(raw string) (map[Category][]string, error) {
	payload := ai.ExtractJSON(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}

	keywords := make(map[Category][]string, len(Categories))
	for _, category := range Categories {
		value, ok := fields[string(category)]
		if !ok {
			return nil, fmt.Errorf("response is missing the %q key", category)
		}

		var terms []string
		if err := json.Unmarshal(value, &terms); err != nil {
			return nil, fmt.Errorf("key %q is not an array of strings: %w", category, err)
		}

		cleaned := make([]string, 0, len(terms))
		for _, term := range terms {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			cleaned = append(cleaned, term)
		}
		keywords[category] = cleaned
	}

	return keywords, nil
}

func buildPrompt(maskedText string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Extract clinical trial search keywords from this profile:\n{{MASKED_PROFILE}}"
	}

	return strings.ReplaceAll(template, "{{MASKED_PROFILE}}", maskedText)
}
