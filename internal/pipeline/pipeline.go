package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/medmatch/trial-matcher/internal/filtering"
	"github.com/medmatch/trial-matcher/internal/match"
	"github.com/medmatch/trial-matcher/internal/profile"
	"github.com/medmatch/trial-matcher/internal/report"
	"github.com/medmatch/trial-matcher/internal/trialindex"
	"go.uber.org/zap"
)

// Outcome classifies how a matching run ended.
type Outcome string

const (
	// OutcomeSuccess means every evaluated criterion got a model verdict.
	OutcomeSuccess Outcome = "success"
	// OutcomePartialFailure means a report was produced but some criterion
	// evaluations failed and were recorded as unknown.
	OutcomePartialFailure Outcome = "partial_failure"
	// OutcomeExtractionError means no usable profile could be extracted.
	OutcomeExtractionError Outcome = "extraction_error"
	// OutcomeCancelled means the run stopped on context cancellation.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeFatal covers every other unrecoverable failure.
	OutcomeFatal Outcome = "fatal_error"
)

// Result is the terminal state of one run. Report is nil unless the
// outcome is success or partial failure.
type Result struct {
	Outcome Outcome
	Report  *report.Report
	// Query documents what was searched, including enrichment degradation.
	Query *trialindex.SearchQuery
	// FilterSteps documents what the candidate filters removed.
	FilterSteps []filtering.Step
	Err         error
}

// Stage contracts. Exported so the command layer can swap implementations
// per configuration.

type Redactor interface {
	Mask(text string) string
}

type Summarizer interface {
	Summarize(ctx context.Context, rawText, maskedText string) (*profile.PatientProfile, error)
}

type QueryBuilder interface {
	BuildQuery(ctx context.Context, prof *profile.PatientProfile) *trialindex.SearchQuery
}

type Retriever interface {
	Search(ctx context.Context, query *trialindex.SearchQuery, size int) (*trialindex.Candidates, error)
}

type CriteriaSource interface {
	Resolve(ctx context.Context, candidate *trialindex.TrialCandidate) []trialindex.Criterion
}

type Evaluator interface {
	EvaluateAll(ctx context.Context, profileText string, criteriaFor func(context.Context, *trialindex.TrialCandidate) []trialindex.Criterion, candidates *trialindex.Candidates) ([]*match.TrialEvaluation, error)
}

// Pipeline wires the matching stages together. Stages run strictly in
// order; only criterion evaluation fans out internally.
type Pipeline struct {
	redactor  Redactor
	summary   Summarizer
	query     QueryBuilder
	retriever Retriever
	criteria  CriteriaSource
	evaluator Evaluator
	filters   []filtering.Filter
	maxTrials int
	logger    *zap.Logger
}

// DefaultMaxTrials caps retrieval when no limit is configured.
const DefaultMaxTrials = 20

func New(redactor Redactor, summary Summarizer, query QueryBuilder, retriever Retriever, criteria CriteriaSource, evaluator Evaluator, filters []filtering.Filter, maxTrials int, log *zap.Logger) *Pipeline {
	if maxTrials <= 0 {
		maxTrials = DefaultMaxTrials
	}

	return &Pipeline{
		redactor:  redactor,
		summary:   summary,
		query:     query,
		retriever: retriever,
		criteria:  criteria,
		evaluator: evaluator,
		filters:   filters,
		maxTrials: maxTrials,
		logger:    log.With(zap.String("component", "pipeline")),
	}
}

// Run matches one patient narrative against the trial index.
func (p *Pipeline) Run(ctx context.Context, rawText string) *Result {
	if strings.TrimSpace(rawText) == "" {
		return &Result{
			Outcome: OutcomeExtractionError,
			Err:     &ExtractionError{Err: errors.New("patient narrative is empty")},
		}
	}

	masked := p.redactor.Mask(rawText)
	p.logger.Debug("patient narrative masked",
		zap.Int("raw_length", len(rawText)),
		zap.Int("masked_length", len(masked)),
	)

	prof, err := p.summary.Summarize(ctx, rawText, masked)
	if err != nil {
		return p.failure(ctx, &ExtractionError{Err: err})
	}
	if !prof.HasKeywords() {
		p.logger.Warn("no keywords extracted from profile, nothing to search")
		return &Result{
			Outcome: OutcomeExtractionError,
			Err:     &ExtractionError{Err: errors.New("no search keywords extracted from profile")},
		}
	}

	query := p.query.BuildQuery(ctx, prof)
	if err := ctx.Err(); err != nil {
		return p.failure(ctx, err)
	}

	candidates, err := p.retriever.Search(ctx, query, p.maxTrials)
	if err != nil {
		return p.failure(ctx, &RetrievalError{Err: err})
	}

	steps, err := filtering.Run(ctx, p.logger, p.filters, candidates)
	if err != nil {
		result := p.failure(ctx, fmt.Errorf("filtering candidates: %w", err))
		result.Query = query
		return result
	}

	p.logger.Info("evaluating candidate trials",
		zap.Int("candidates", candidates.Len()),
		zap.Bool("enrichment_degraded", query.Degraded),
	)

	evaluations, err := p.evaluator.EvaluateAll(ctx, prof.MaskedText, p.criteria.Resolve, candidates)
	if err != nil {
		result := p.failure(ctx, err)
		result.Query = query
		result.FilterSteps = steps
		return result
	}

	rep := report.Aggregate(evaluations)

	outcome := OutcomeSuccess
	if rep.HasFailures() {
		outcome = OutcomePartialFailure
	}

	return &Result{
		Outcome:     outcome,
		Report:      rep,
		Query:       query,
		FilterSteps: steps,
	}
}

// failure maps an error to its terminal outcome. Cancellation wins over
// the stage error so an interrupted run is never misreported.
func (p *Pipeline) failure(ctx context.Context, err error) *Result {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Result{Outcome: OutcomeCancelled, Err: ctxErr}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Result{Outcome: OutcomeCancelled, Err: err}
	}
	if IsExtractionError(err) {
		return &Result{Outcome: OutcomeExtractionError, Err: err}
	}
	return &Result{Outcome: OutcomeFatal, Err: err}
}
