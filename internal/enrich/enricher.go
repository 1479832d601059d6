package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/medmatch/trial-matcher/internal/ai"
	"github.com/medmatch/trial-matcher/internal/logger"
	"github.com/medmatch/trial-matcher/internal/profile"
	"github.com/medmatch/trial-matcher/internal/trialindex"
	"go.uber.org/zap"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

//go:embed prompt.md
var promptTemplate string

// Enricher widens a profile's keyword set with synonyms and related terms
// through a single generator call. Enrichment is best effort: any failure
// degrades to the unexpanded keyword set instead of failing the run.
type Enricher struct {
	generator contentGenerator
	maxLogLen int
	logger    *zap.Logger
}

func NewEnricher(generator contentGenerator, maxLogLength int, log *zap.Logger) *Enricher {
	if maxLogLength <= 0 {
		maxLogLength = 200
	}

	return &Enricher{
		generator: generator,
		maxLogLen: maxLogLength,
		logger:    log.With(zap.String("component", "enricher"), zap.String(logger.FieldModel, generator.Model())),
	}
}

type expansion struct {
	Synonyms     []string `json:"synonyms"`
	RelatedTerms []string `json:"related_terms"`
}

// BuildQuery turns the profile's keywords into a weighted search query.
// Extracted keywords always enter at full weight; on a successful expansion
// synonyms and related terms are appended at reduced weight. Duplicate
// terms keep their highest weight, compared case insensitively.
func (e *Enricher) BuildQuery(ctx context.Context, prof *profile.PatientProfile) *trialindex.SearchQuery {
	keywords := prof.Terms()
	if len(keywords) == 0 {
		return &trialindex.SearchQuery{}
	}

	query := &trialindex.SearchQuery{}
	seen := make(map[string]int, len(keywords))
	add := func(text string, weight float64, origin trialindex.TermOrigin) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		key := strings.ToLower(text)
		if idx, ok := seen[key]; ok {
			if weight > query.Terms[idx].Weight {
				query.Terms[idx] = trialindex.QueryTerm{Text: text, Weight: weight, Origin: origin}
			}
			return
		}
		seen[key] = len(query.Terms)
		query.Terms = append(query.Terms, trialindex.QueryTerm{Text: text, Weight: weight, Origin: origin})
	}

	for _, keyword := range keywords {
		add(keyword, trialindex.WeightOriginal, trialindex.TermOriginal)
	}

	expansions, err := e.expand(ctx, keywords)
	if err != nil {
		e.logger.Warn("keyword enrichment degraded, searching with extracted keywords only", zap.Error(err))
		query.Degraded = true
		return query
	}

	for _, keyword := range keywords {
		exp, ok := expansions[strings.ToLower(keyword)]
		if !ok {
			continue
		}
		for _, synonym := range exp.Synonyms {
			add(synonym, trialindex.WeightSynonym, trialindex.TermSynonym)
		}
		for _, related := range exp.RelatedTerms {
			add(related, trialindex.WeightRelated, trialindex.TermRelated)
		}
	}

	return query
}

// expand performs the single enrichment call covering all keywords.
func (e *Enricher) expand(ctx context.Context, keywords []string) (map[string]expansion, error) {
	prompt := buildPrompt(keywords)

	e.logger.Debug("enrichment request",
		zap.Int("keyword_count", len(keywords)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, e.maxLogLen)),
	)

	raw, err := e.generator.GenerateContent(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	e.logger.Debug("enrichment response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, e.maxLogLen)),
	)

	var parsed map[string]expansion
	if err := json.Unmarshal([]byte(ai.ExtractJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("enrichment response is not a keyword map: %w", err)
	}

	expansions := make(map[string]expansion, len(parsed))
	for keyword, exp := range parsed {
		expansions[strings.ToLower(strings.TrimSpace(keyword))] = exp
	}

	return expansions, nil
}

func buildPrompt(keywords []string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Expand these clinical keywords with synonyms and related terms as strict JSON:\n{{KEYWORDS}}"
	}

	return strings.ReplaceAll(template, "{{KEYWORDS}}", "- "+strings.Join(keywords, "\n- "))
}
