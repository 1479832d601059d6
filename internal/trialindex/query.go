package trialindex

import "strings"

// TermOrigin records how a query term entered the query.
type TermOrigin string

const (
	TermOriginal TermOrigin = "original"
	TermSynonym  TermOrigin = "synonym"
	TermRelated  TermOrigin = "related"
)

// Term weights by origin. Extracted keywords dominate; derived terms only
// widen recall.
const (
	WeightOriginal = 1.0
	WeightSynonym  = 0.6
	WeightRelated  = 0.4
)

type QueryTerm struct {
	Text   string
	Weight float64
	Origin TermOrigin
}

// SearchQuery is an ordered, weighted term list built from a patient
// profile plus enrichment. Consumed once by the retriever.
type SearchQuery struct {
	Terms []QueryTerm
	// Degraded is set when enrichment failed and only the unexpanded
	// keyword set is present.
	Degraded bool
}

func (q *SearchQuery) IsEmpty() bool {
	return q == nil || len(q.Terms) == 0
}

// Primary returns the texts of full-weight (extracted) terms.
func (q *SearchQuery) Primary() []string {
	return q.texts(func(t QueryTerm) bool { return t.Weight >= WeightOriginal })
}

// Secondary returns the texts of derived (synonym/related) terms.
func (q *SearchQuery) Secondary() []string {
	return q.texts(func(t QueryTerm) bool { return t.Weight < WeightOriginal })
}

func (q *SearchQuery) texts(keep func(QueryTerm) bool) []string {
	texts := make([]string, 0, len(q.Terms))
	for _, term := range q.Terms {
		text := strings.TrimSpace(term.Text)
		if text == "" || !keep(term) {
			continue
		}
		texts = append(texts, text)
	}
	return texts
}
