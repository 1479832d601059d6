package trialindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestParseCriteria(t *testing.T) {
	text := `Inclusion Criteria:

- Histologically confirmed NSCLC
- EGFR activating mutation

Exclusion Criteria:
- Prior EGFR TKI therapy
`

	criteria := ParseCriteria(text)

	if len(criteria) != 3 {
		t.Fatalf("expected 3 criteria, got %d", len(criteria))
	}

	if criteria[0].Polarity != PolarityInclusion || criteria[0].Text != "Histologically confirmed NSCLC" {
		t.Fatalf("unexpected first criterion: %+v", criteria[0])
	}

	if criteria[2].Polarity != PolarityExclusion || criteria[2].Text != "Prior EGFR TKI therapy" {
		t.Fatalf("unexpected exclusion criterion: %+v", criteria[2])
	}

	for i, criterion := range criteria {
		if criterion.Index != i {
			t.Fatalf("expected index %d, got %d", i, criterion.Index)
		}
	}
}

func TestParseCriteriaDefaultsToInclusion(t *testing.T) {
	criteria := ParseCriteria("Age 18 or older")

	if len(criteria) != 1 || criteria[0].Polarity != PolarityInclusion {
		t.Fatalf("expected single inclusion criterion, got %+v", criteria)
	}
}

func TestParseCriteriaEmpty(t *testing.T) {
	if got := ParseCriteria(""); len(got) != 0 {
		t.Fatalf("expected no criteria, got %d", len(got))
	}
}

func TestCandidatesExcludeAndDedupe(t *testing.T) {
	c := &Candidates{Items: []*TrialCandidate{
		{NCTID: "NCT001"},
		{NCTID: "NCT002"},
		{NCTID: "NCT001"},
		{NCTID: "NCT003"},
	}}

	dropped := c.Dedupe()
	if len(dropped) != 1 || dropped[0] != "NCT001" {
		t.Fatalf("unexpected dedupe result: %v", dropped)
	}

	removed := c.Exclude([]string{"NCT003"})
	if len(removed) != 1 || removed[0] != "NCT003" {
		t.Fatalf("unexpected exclude result: %v", removed)
	}

	if c.Len() != 2 {
		t.Fatalf("expected 2 candidates left, got %d", c.Len())
	}
}

func TestSearchOrdersAndBounds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding search body: %v", err)
		}
		if body["size"] != float64(2) {
			t.Fatalf("expected size 2, got %v", body["size"])
		}

		response := map[string]any{
			"hits": map[string]any{
				"total": map[string]any{"value": 3},
				"hits": []any{
					map[string]any{"_score": 2.5, "_source": map[string]any{
						"nct_id":               "NCT222",
						"brief_title":          "Trial B",
						"eligibility_criteria": "Inclusion Criteria:\n- Adult patients",
					}},
					map[string]any{"_score": 2.5, "_source": map[string]any{
						"nct_id":      "NCT111",
						"brief_title": "Trial A",
					}},
					map[string]any{"_score": 7.1, "_source": map[string]any{
						"nct_id":         "NCT333",
						"official_title": "Trial C",
					}},
				},
			},
		}
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := New(zap.NewNop(), server.URL)

	query := &SearchQuery{Terms: []QueryTerm{
		{Text: "NSCLC", Weight: WeightOriginal, Origin: TermOriginal},
		{Text: "lung carcinoma", Weight: WeightSynonym, Origin: TermSynonym},
	}}

	candidates, err := client.Search(context.Background(), query, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if candidates.Len() != 2 {
		t.Fatalf("expected 2 candidates, got %d", candidates.Len())
	}

	// Highest score first, then the score tie broken by NCT ID.
	if candidates.Items[0].NCTID != "NCT333" || candidates.Items[1].NCTID != "NCT111" {
		t.Fatalf("unexpected ordering: %v", candidates.IDs())
	}

	if candidates.Items[0].Rank != 1 || candidates.Items[1].Rank != 2 {
		t.Fatalf("unexpected ranks: %+v", candidates.Items)
	}

	if candidates.Items[0].Title != "Trial C" {
		t.Fatalf("expected official title fallback, got %q", candidates.Items[0].Title)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	client := New(zap.NewNop(), "http://unused")

	candidates, err := client.Search(context.Background(), &SearchQuery{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if candidates.Len() != 0 {
		t.Fatalf("expected no candidates, got %d", candidates.Len())
	}
}

func TestSearchBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "index down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(zap.NewNop(), server.URL)
	query := &SearchQuery{Terms: []QueryTerm{{Text: "NSCLC", Weight: WeightOriginal}}}

	if _, err := client.Search(context.Background(), query, 5); err == nil {
		t.Fatalf("expected error for bad status")
	}
}

func TestBuildSearchBodySecondaryClause(t *testing.T) {
	query := &SearchQuery{Terms: []QueryTerm{
		{Text: "NSCLC", Weight: WeightOriginal},
		{Text: "lung carcinoma", Weight: WeightSynonym},
	}}

	body := buildSearchBody(query, 5)

	boolQuery, ok := body["query"].(map[string]any)["bool"]
	if !ok {
		t.Fatalf("expected bool query when derived terms present: %v", body["query"])
	}

	clauses := boolQuery.(map[string]any)
	if len(clauses["must"].([]any)) != 1 || len(clauses["should"].([]any)) != 1 {
		t.Fatalf("unexpected clause structure: %v", clauses)
	}

	onlyPrimary := &SearchQuery{Terms: []QueryTerm{{Text: "NSCLC", Weight: WeightOriginal}}}
	body = buildSearchBody(onlyPrimary, 5)
	if _, ok := body["query"].(map[string]any)["multi_match"]; !ok {
		t.Fatalf("expected bare multi_match without derived terms: %v", body["query"])
	}
}
