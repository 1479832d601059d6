package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/medmatch/trial-matcher/internal/profile"
	"github.com/medmatch/trial-matcher/internal/trialindex"
	"go.uber.org/zap"
)

type stubGenerator struct {
	response string
	err      error
	lastBody string
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.lastBody = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubGenerator) Model() string { return "stub-model" }

func testProfile(terms ...string) *profile.PatientProfile {
	return &profile.PatientProfile{Keywords: map[profile.Category][]string{
		profile.CategoryConditions: terms,
	}}
}

func findTerm(query *trialindex.SearchQuery, text string) (trialindex.QueryTerm, bool) {
	for _, term := range query.Terms {
		if term.Text == text {
			return term, true
		}
	}
	return trialindex.QueryTerm{}, false
}

func TestBuildQuery(t *testing.T) {
	stub := &stubGenerator{response: `{
		"NSCLC": {"synonyms": ["Non-Small Cell Lung Cancer"], "related_terms": ["Lung Adenocarcinoma"]}
	}`}
	enricher := NewEnricher(stub, 0, zap.NewNop())

	query := enricher.BuildQuery(context.Background(), testProfile("NSCLC"))
	if query.Degraded {
		t.Fatalf("expected successful enrichment")
	}
	if len(query.Terms) != 3 {
		t.Fatalf("expected 3 terms, got %v", query.Terms)
	}

	original, _ := findTerm(query, "NSCLC")
	if original.Weight != trialindex.WeightOriginal || original.Origin != trialindex.TermOriginal {
		t.Fatalf("unexpected original term: %+v", original)
	}
	synonym, ok := findTerm(query, "Non-Small Cell Lung Cancer")
	if !ok || synonym.Weight != trialindex.WeightSynonym {
		t.Fatalf("unexpected synonym term: %+v", synonym)
	}
	related, ok := findTerm(query, "Lung Adenocarcinoma")
	if !ok || related.Weight != trialindex.WeightRelated {
		t.Fatalf("unexpected related term: %+v", related)
	}

	if !strings.Contains(stub.lastBody, "- NSCLC") {
		t.Fatalf("prompt does not list the keyword: %s", stub.lastBody)
	}
}

func TestBuildQueryDegradesOnGeneratorError(t *testing.T) {
	stub := &stubGenerator{err: errors.New("rate limited")}
	enricher := NewEnricher(stub, 0, zap.NewNop())

	query := enricher.BuildQuery(context.Background(), testProfile("NSCLC", "EGFR"))
	if !query.Degraded {
		t.Fatalf("expected degraded query")
	}
	if len(query.Terms) != 2 {
		t.Fatalf("expected only original terms, got %v", query.Terms)
	}
	for _, term := range query.Terms {
		if term.Weight != trialindex.WeightOriginal {
			t.Fatalf("degraded query must keep full-weight terms only: %+v", term)
		}
	}
}

func TestBuildQueryDegradesOnMalformedResponse(t *testing.T) {
	stub := &stubGenerator{response: `no json here`}
	enricher := NewEnricher(stub, 0, zap.NewNop())

	query := enricher.BuildQuery(context.Background(), testProfile("NSCLC"))
	if !query.Degraded {
		t.Fatalf("expected degraded query")
	}
}

func TestBuildQueryDedupesKeepingHighestWeight(t *testing.T) {
	stub := &stubGenerator{response: `{
		"NSCLC": {"synonyms": ["nsclc", "EGFR"], "related_terms": ["egfr"]},
		"EGFR": {"synonyms": [], "related_terms": []}
	}`}
	enricher := NewEnricher(stub, 0, zap.NewNop())

	query := enricher.BuildQuery(context.Background(), testProfile("NSCLC", "EGFR"))
	if len(query.Terms) != 2 {
		t.Fatalf("expected duplicates collapsed, got %v", query.Terms)
	}
	for _, term := range query.Terms {
		if term.Weight != trialindex.WeightOriginal {
			t.Fatalf("extracted keyword demoted to %+v", term)
		}
	}
}

func TestBuildQueryEmptyProfile(t *testing.T) {
	stub := &stubGenerator{response: `{}`}
	enricher := NewEnricher(stub, 0, zap.NewNop())

	query := enricher.BuildQuery(context.Background(), testProfile())
	if !query.IsEmpty() {
		t.Fatalf("expected empty query, got %v", query.Terms)
	}
	if stub.lastBody != "" {
		t.Fatalf("expected no generator call for an empty profile")
	}
}
