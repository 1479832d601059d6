package filtering

import (
	"context"
	"fmt"

	"github.com/medmatch/trial-matcher/internal/trialindex"
	"go.uber.org/zap"
)

// Filter drops candidates that must not reach evaluation. Filters mutate
// the candidate list in place and report what they removed.
type Filter interface {
	Name() string
	Apply(ctx context.Context, candidates *trialindex.Candidates) (Step, error)
}

// Step summarizes one filter's effect for logging and the run report.
type Step struct {
	Name    string   `json:"name"`
	Initial int      `json:"initial"`
	Left    int      `json:"left"`
	Dropped []string `json:"dropped,omitempty"`
}

// Run applies filters in order, stopping on the first error.
func Run(ctx context.Context, log *zap.Logger, filters []Filter, candidates *trialindex.Candidates) ([]Step, error) {
	steps := make([]Step, 0, len(filters))

	for _, filter := range filters {
		if err := ctx.Err(); err != nil {
			return steps, err
		}

		step, err := filter.Apply(ctx, candidates)
		if err != nil {
			return steps, fmt.Errorf("filter %s: %w", filter.Name(), err)
		}
		steps = append(steps, step)

		log.Debug("candidate filter applied",
			zap.String("filter", step.Name),
			zap.Int("initial", step.Initial),
			zap.Int("left", step.Left),
			zap.Strings("dropped", step.Dropped),
		)
	}

	return steps, nil
}

// Dedupe removes repeated NCT IDs, keeping the best ranked occurrence.
type Dedupe struct{}

func NewDedupe() *Dedupe { return &Dedupe{} }

func (d *Dedupe) Name() string { return "dedupe" }

func (d *Dedupe) Apply(_ context.Context, candidates *trialindex.Candidates) (Step, error) {
	initial := candidates.Len()
	dropped := candidates.Dedupe()
	return Step{Name: d.Name(), Initial: initial, Left: candidates.Len(), Dropped: dropped}, nil
}

// ExcludeFile drops trials listed in a user-maintained exclude file. The
// file is read once per run so edits between runs take effect.
type ExcludeFile struct {
	path string
}

func NewExcludeFile(path string) *ExcludeFile {
	return &ExcludeFile{path: path}
}

func (e *ExcludeFile) Name() string { return "exclude-file" }

func (e *ExcludeFile) Apply(_ context.Context, candidates *trialindex.Candidates) (Step, error) {
	initial := candidates.Len()

	excluded, err := trialindex.GetExcludedTrialsFromFile(e.path)
	if err != nil {
		return Step{}, fmt.Errorf("reading exclude file %s: %w", e.path, err)
	}

	dropped := candidates.Exclude(excluded.IDs())
	return Step{Name: e.Name(), Initial: initial, Left: candidates.Len(), Dropped: dropped}, nil
}
