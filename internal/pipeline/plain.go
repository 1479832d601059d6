package pipeline

import (
	"context"

	"github.com/medmatch/trial-matcher/internal/profile"
	"github.com/medmatch/trial-matcher/internal/trialindex"
)

// PlainQueryBuilder turns extracted keywords into a full-weight query
// without calling an enrichment backend. Used when enrichment is disabled.
type PlainQueryBuilder struct{}

func NewPlainQueryBuilder() *PlainQueryBuilder { return &PlainQueryBuilder{} }

func (PlainQueryBuilder) BuildQuery(_ context.Context, prof *profile.PatientProfile) *trialindex.SearchQuery {
	query := &trialindex.SearchQuery{}
	for _, term := range prof.Terms() {
		query.Terms = append(query.Terms, trialindex.QueryTerm{
			Text:   term,
			Weight: trialindex.WeightOriginal,
			Origin: trialindex.TermOriginal,
		})
	}
	return query
}
