package filtering

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/medmatch/trial-matcher/internal/trialindex"
	"go.uber.org/zap"
)

func candidates(ids ...string) *trialindex.Candidates {
	c := &trialindex.Candidates{}
	for _, id := range ids {
		c.Items = append(c.Items, &trialindex.TrialCandidate{NCTID: id})
	}
	return c
}

func TestRunAppliesFiltersInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "excluded.json")
	payload := `{"Items": [{"nct_id": "NCT222", "reason": "already screened"}]}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("writing exclude file: %v", err)
	}

	cands := candidates("NCT111", "NCT222", "NCT111", "NCT333")
	steps, err := Run(context.Background(), zap.NewNop(), []Filter{NewDedupe(), NewExcludeFile(path)}, cands)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Name != "dedupe" || steps[0].Initial != 4 || steps[0].Left != 3 {
		t.Fatalf("unexpected dedupe step: %+v", steps[0])
	}
	if steps[1].Name != "exclude-file" || steps[1].Left != 2 {
		t.Fatalf("unexpected exclude step: %+v", steps[1])
	}

	ids := cands.IDs()
	if len(ids) != 2 || ids[0] != "NCT111" || ids[1] != "NCT333" {
		t.Fatalf("unexpected surviving candidates: %v", ids)
	}
}

func TestExcludeFileMissing(t *testing.T) {
	cands := candidates("NCT111")
	_, err := Run(context.Background(), zap.NewNop(), []Filter{NewExcludeFile("/nonexistent/excluded.json")}, cands)
	if err == nil {
		t.Fatalf("expected error for a missing exclude file")
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cands := candidates("NCT111", "NCT111")
	steps, err := Run(ctx, zap.NewNop(), []Filter{NewDedupe()}, cands)
	if err == nil {
		t.Fatalf("expected context error")
	}
	if len(steps) != 0 {
		t.Fatalf("expected no steps after cancellation, got %v", steps)
	}
	if cands.Len() != 2 {
		t.Fatalf("candidates must be untouched after cancellation")
	}
}
