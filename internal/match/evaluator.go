package match

import (
	"context"
	"sync"
	"time"

	"github.com/medmatch/trial-matcher/internal/ai"
	"github.com/medmatch/trial-matcher/internal/logger"
	"github.com/medmatch/trial-matcher/internal/trialindex"
	"go.uber.org/zap"
)

const (
	// DefaultMaxCriteria caps how many criteria per trial are evaluated.
	DefaultMaxCriteria = 5

	// DefaultConcurrency bounds classifier calls in flight.
	DefaultConcurrency = 4
)

// CriterionVerdict is the outcome of evaluating one criterion. A failed
// classification is recorded as an unknown verdict with Failed set so the
// aggregator can keep it out of the score denominator.
type CriterionVerdict struct {
	Criterion  trialindex.Criterion
	Verdict    ai.Verdict
	Confidence float64
	Rationale  string
	Failed     bool
}

// TrialEvaluation pairs a candidate with its per-criterion verdicts, in
// criterion order.
type TrialEvaluation struct {
	Candidate *trialindex.TrialCandidate
	Verdicts  []CriterionVerdict
}

// FailureCount returns how many verdicts came from failed classifications.
func (e *TrialEvaluation) FailureCount() int {
	failures := 0
	for _, verdict := range e.Verdicts {
		if verdict.Failed {
			failures++
		}
	}
	return failures
}

// Evaluator fans classifier calls out over every (trial, criterion) pair
// with bounded concurrency. Each trial's criteria list is truncated to the
// first maxCriteria entries before evaluation.
type Evaluator struct {
	classifier  ai.Classifier
	maxCriteria int
	concurrency int
	callTimeout time.Duration
	logger      *zap.Logger
}

func NewEvaluator(classifier ai.Classifier, maxCriteria, concurrency int, callTimeout time.Duration, log *zap.Logger) *Evaluator {
	if maxCriteria <= 0 {
		maxCriteria = DefaultMaxCriteria
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	return &Evaluator{
		classifier:  classifier,
		maxCriteria: maxCriteria,
		concurrency: concurrency,
		callTimeout: callTimeout,
		logger:      log.With(zap.String("component", "evaluator")),
	}
}

// task addresses one classifier call by its result slot.
type task struct {
	trial     int
	criterion int
}

// EvaluateAll evaluates every candidate's criteria against the profile.
// Individual classification failures degrade to unknown verdicts; only
// context cancellation aborts the whole evaluation, returning ctx.Err().
func (e *Evaluator) EvaluateAll(ctx context.Context, profileText string, criteriaFor func(context.Context, *trialindex.TrialCandidate) []trialindex.Criterion, candidates *trialindex.Candidates) ([]*TrialEvaluation, error) {
	evaluations := make([]*TrialEvaluation, candidates.Len())
	tasks := make([]task, 0)

	for i, candidate := range candidates.Items {
		criteria := criteriaFor(ctx, candidate)
		if len(criteria) > e.maxCriteria {
			e.logger.Debug("truncating criteria list",
				zap.String(logger.FieldTrial, candidate.NCTID),
				zap.Int("total", len(criteria)),
				zap.Int("evaluated", e.maxCriteria),
			)
			criteria = criteria[:e.maxCriteria]
		}

		evaluations[i] = &TrialEvaluation{
			Candidate: candidate,
			Verdicts:  make([]CriterionVerdict, len(criteria)),
		}
		for j, criterion := range criteria {
			evaluations[i].Verdicts[j] = CriterionVerdict{Criterion: criterion}
			tasks = append(tasks, task{trial: i, criterion: j})
		}
	}

	if len(tasks) == 0 {
		return evaluations, nil
	}

	workers := e.concurrency
	if workers > len(tasks) {
		workers = len(tasks)
	}

	queue := make(chan task)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				evaluation := evaluations[t.trial]
				evaluation.Verdicts[t.criterion] = e.evaluateOne(ctx, profileText, evaluation.Candidate, evaluation.Verdicts[t.criterion].Criterion)
			}
		}()
	}

	dispatch := func() bool {
		for _, t := range tasks {
			select {
			case queue <- t:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	completed := dispatch()
	close(queue)
	wg.Wait()

	if !completed {
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return evaluations, nil
}

func (e *Evaluator) evaluateOne(ctx context.Context, profileText string, candidate *trialindex.TrialCandidate, criterion trialindex.Criterion) CriterionVerdict {
	callCtx := ctx
	if e.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
	}

	assessment, err := e.classifier.Classify(callCtx, ai.Request{
		ProfileText:   profileText,
		CriterionText: criterion.Text,
		Polarity:      string(criterion.Polarity),
	})
	if err != nil {
		e.logger.Warn("criterion evaluation failed, recording unknown verdict",
			zap.String(logger.FieldTrial, candidate.NCTID),
			zap.Int("criterion_index", criterion.Index),
			zap.Error(err),
		)
		return CriterionVerdict{
			Criterion:  criterion,
			Verdict:    ai.VerdictUnknown,
			Confidence: 0,
			Rationale:  "evaluation failed: " + err.Error(),
			Failed:     true,
		}
	}

	return CriterionVerdict{
		Criterion:  criterion,
		Verdict:    assessment.Verdict,
		Confidence: assessment.Confidence,
		Rationale:  assessment.Rationale,
	}
}
