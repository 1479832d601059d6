package profile

import "strings"

// Category partitions extracted keywords the way the trial index is
// organized: conditions, interventions, free keywords, biomarkers and
// demographics.
type Category string

const (
	CategoryConditions    Category = "conditions"
	CategoryInterventions Category = "interventions"
	CategoryKeywords      Category = "keywords"
	CategoryBiomarkers    Category = "biomarkers"
	CategoryDemographics  Category = "demographics"
)

// Categories lists all keyword categories in their stable output order.
var Categories = []Category{
	CategoryConditions,
	CategoryInterventions,
	CategoryKeywords,
	CategoryBiomarkers,
	CategoryDemographics,
}

// PatientProfile holds the raw narrative, its masked form, and the
// categorized keyword set extracted from the masked text. Immutable once
// built by the summarizer.
type PatientProfile struct {
	RawText    string
	MaskedText string
	Keywords   map[Category][]string
}

// Terms flattens the keyword map in stable category order.
func (p *PatientProfile) Terms() []string {
	terms := make([]string, 0)
	for _, category := range Categories {
		for _, term := range p.Keywords[category] {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			terms = append(terms, term)
		}
	}
	return terms
}

// HasKeywords reports whether any category contains at least one keyword.
func (p *PatientProfile) HasKeywords() bool {
	return len(p.Terms()) > 0
}
