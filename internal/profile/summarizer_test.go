package profile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type stubGenerator struct {
	responses []string
	errs      []error
	calls     int
	lastBody  string
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.calls++
	s.lastBody = prompt
	idx := s.calls - 1
	if idx < len(s.errs) && s.errs[idx] != nil {
		return "", s.errs[idx]
	}
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}

func (s *stubGenerator) Model() string { return "stub-model" }

const validExtraction = `{
	"conditions": ["Non Small Cell Lung Cancer"],
	"interventions": ["Osimertinib"],
	"keywords": ["NSCLC", "Metastatic"],
	"biomarkers": ["EGFR L858R"],
	"demographics": ["adult"]
}`

func TestSummarize(t *testing.T) {
	stub := &stubGenerator{responses: []string{"```json\n" + validExtraction + "\n```"}}
	summarizer := NewSummarizer(stub, 0, 0, zap.NewNop())

	prof, err := summarizer.Summarize(context.Background(), "raw text", "masked text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if prof.RawText != "raw text" || prof.MaskedText != "masked text" {
		t.Fatalf("profile texts not preserved: %+v", prof)
	}
	if got := prof.Keywords[CategoryConditions]; len(got) != 1 || got[0] != "Non Small Cell Lung Cancer" {
		t.Fatalf("unexpected conditions: %v", got)
	}
	if got := prof.Keywords[CategoryKeywords]; len(got) != 2 {
		t.Fatalf("unexpected keywords: %v", got)
	}

	if !strings.Contains(stub.lastBody, "masked text") {
		t.Fatalf("prompt does not contain the masked profile: %s", stub.lastBody)
	}
	if strings.Contains(stub.lastBody, "raw text") {
		t.Fatalf("prompt must never contain the raw profile")
	}
}

func TestSummarizeRetriesOnSchemaViolation(t *testing.T) {
	stub := &stubGenerator{responses: []string{
		`{"conditions": [], "interventions": []}`,
		validExtraction,
	}}
	summarizer := NewSummarizer(stub, 1, 0, zap.NewNop())

	prof, err := summarizer.Summarize(context.Background(), "raw", "masked")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", stub.calls)
	}
	if !prof.HasKeywords() {
		t.Fatalf("expected extracted keywords")
	}
}

func TestSummarizeExhaustsRetries(t *testing.T) {
	stub := &stubGenerator{responses: []string{`not json at all`}}
	summarizer := NewSummarizer(stub, 2, 0, zap.NewNop())

	_, err := summarizer.Summarize(context.Background(), "raw", "masked")
	if err == nil {
		t.Fatalf("expected error after exhausted retries")
	}
	if stub.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", stub.calls)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSummarizeGeneratorError(t *testing.T) {
	stub := &stubGenerator{
		errs:      []error{errors.New("rate limited"), nil},
		responses: []string{"", validExtraction},
	}
	summarizer := NewSummarizer(stub, 1, 0, zap.NewNop())

	if _, err := summarizer.Summarize(context.Background(), "raw", "masked"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", stub.calls)
	}
}

func TestSummarizeEmptyArraysAreValid(t *testing.T) {
	stub := &stubGenerator{responses: []string{
		`{"conditions": [], "interventions": [], "keywords": [], "biomarkers": [], "demographics": []}`,
	}}
	summarizer := NewSummarizer(stub, 0, 0, zap.NewNop())

	prof, err := summarizer.Summarize(context.Background(), "raw", "masked")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prof.HasKeywords() {
		t.Fatalf("expected no keywords")
	}
}

func TestSummarizeRequiresMaskedText(t *testing.T) {
	summarizer := NewSummarizer(&stubGenerator{responses: []string{validExtraction}}, 0, 0, zap.NewNop())
	if _, err := summarizer.Summarize(context.Background(), "raw", "  "); err == nil {
		t.Fatalf("expected error for empty masked text")
	}
}

func TestTermsStableOrder(t *testing.T) {
	prof := &PatientProfile{Keywords: map[Category][]string{
		CategoryDemographics: {"adult"},
		CategoryConditions:   {"NSCLC", " "},
		CategoryBiomarkers:   {"EGFR L858R"},
	}}

	terms := prof.Terms()
	want := []string{"NSCLC", "EGFR L858R", "adult"}
	if len(terms) != len(want) {
		t.Fatalf("expected %d terms, got %v", len(want), terms)
	}
	for i, term := range want {
		if terms[i] != term {
			t.Fatalf("expected %q at %d, got %q", term, i, terms[i])
		}
	}
}
