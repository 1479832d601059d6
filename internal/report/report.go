package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/medmatch/trial-matcher/internal/ai"
	"github.com/medmatch/trial-matcher/internal/match"
)

// CriterionResult is one criterion's verdict as it appears in the report.
type CriterionResult struct {
	Text       string  `json:"text"`
	Polarity   string  `json:"polarity"`
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
	Failed     bool    `json:"failed,omitempty"`
}

// TrialMatchResult is one trial's scored outcome.
type TrialMatchResult struct {
	NCTID     string            `json:"nct_id"`
	Title     string            `json:"title"`
	Rank      int               `json:"rank"`
	Score     float64           `json:"score"`
	Eligible  int               `json:"eligible_count"`
	Evaluated int               `json:"evaluated_count"`
	Failed    int               `json:"failed_count"`
	Criteria  []CriterionResult `json:"criteria"`
	// FullCoverage is false when any criterion verdict came from a failed
	// classification rather than the model.
	FullCoverage bool `json:"full_coverage"`
}

// Summary aggregates across all trials in the report.
type Summary struct {
	TotalTrials       int     `json:"total_trials"`
	TrialsWithMatches int     `json:"trials_with_matches"`
	AverageScore      float64 `json:"average_score"`
	BestScore         float64 `json:"best_score"`
}

// Report is the final ranked output of a matching run.
type Report struct {
	Summary Summary            `json:"summary"`
	Trials  []TrialMatchResult `json:"trials"`
}

// Aggregate scores each evaluated trial and ranks them. A trial's score is
// the share of eligible verdicts among criteria the model actually judged;
// failed verdicts stay visible in the report but never count against the
// trial. Ranking is by score, then evaluated count, then NCT ID, so equal
// inputs always produce identical reports.
func Aggregate(evaluations []*match.TrialEvaluation) *Report {
	trials := make([]TrialMatchResult, 0, len(evaluations))

	for _, evaluation := range evaluations {
		result := TrialMatchResult{
			NCTID:        evaluation.Candidate.NCTID,
			Title:        evaluation.Candidate.Title,
			Criteria:     make([]CriterionResult, 0, len(evaluation.Verdicts)),
			FullCoverage: true,
		}

		for _, verdict := range evaluation.Verdicts {
			result.Criteria = append(result.Criteria, CriterionResult{
				Text:       verdict.Criterion.Text,
				Polarity:   string(verdict.Criterion.Polarity),
				Verdict:    string(verdict.Verdict),
				Confidence: verdict.Confidence,
				Rationale:  verdict.Rationale,
				Failed:     verdict.Failed,
			})

			if verdict.Failed {
				result.Failed++
				result.FullCoverage = false
				continue
			}
			result.Evaluated++
			if verdict.Verdict == ai.VerdictEligible {
				result.Eligible++
			}
		}

		if result.Evaluated > 0 {
			result.Score = float64(result.Eligible) / float64(result.Evaluated)
		}

		trials = append(trials, result)
	}

	sort.SliceStable(trials, func(i, j int) bool {
		if trials[i].Score != trials[j].Score {
			return trials[i].Score > trials[j].Score
		}
		if trials[i].Evaluated != trials[j].Evaluated {
			return trials[i].Evaluated > trials[j].Evaluated
		}
		return trials[i].NCTID < trials[j].NCTID
	})

	summary := Summary{TotalTrials: len(trials)}
	for i := range trials {
		trials[i].Rank = i + 1
		summary.AverageScore += trials[i].Score
		if trials[i].Score > summary.BestScore {
			summary.BestScore = trials[i].Score
		}
		if trials[i].Eligible > 0 {
			summary.TrialsWithMatches++
		}
	}
	if len(trials) > 0 {
		summary.AverageScore /= float64(len(trials))
	}

	return &Report{Summary: summary, Trials: trials}
}

// HasFailures reports whether any trial carries a failed verdict.
func (r *Report) HasFailures() bool {
	for _, trial := range r.Trials {
		if trial.Failed > 0 {
			return true
		}
	}
	return false
}

// Write renders the report as indented JSON.
func (r *Report) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// WriteFile writes the report to the given path.
func (r *Report) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer file.Close()

	return r.Write(file)
}
