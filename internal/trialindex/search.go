package trialindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

const searchPath = "_search"

// Fields searched for extracted keywords, boosted towards titles and
// structured condition/intervention lists.
var primaryFields = []string{
	"brief_title^3",
	"official_title^2.5",
	"conditions^2",
	"interventions^2",
	"keywords^1.5",
}

// Same fields at lower boosts for derived terms: they widen recall but
// must not outrank direct keyword hits.
var secondaryFields = []string{
	"brief_title^1.5",
	"official_title^1.2",
	"conditions^1",
	"interventions^1",
	"keywords^0.8",
}

var sourceFields = []string{
	"nct_id",
	"brief_title",
	"official_title",
	"conditions",
	"interventions",
	"keywords",
	"brief_summary",
	"eligibility_criteria",
}

// trialDocument mirrors the indexed trial document. Decoded from the hit
// source via mapstructure so unknown index fields are ignored.
type trialDocument struct {
	NCTID               string   `json:"nct_id"`
	BriefTitle          string   `json:"brief_title"`
	OfficialTitle       string   `json:"official_title"`
	BriefSummary        string   `json:"brief_summary"`
	Conditions          []string `json:"conditions"`
	Interventions       []string `json:"interventions"`
	Keywords            []string `json:"keywords"`
	EligibilityCriteria string   `json:"eligibility_criteria"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type searchHit struct {
	Score  float64        `json:"_score"`
	Source map[string]any `json:"_source"`
}

// Search runs the ranked query against the trial index and returns at most
// size candidates, ordered by score with NCT ID tie-break. No matches is an
// empty list, not an error.
func (c *Client) Search(ctx context.Context, query *SearchQuery, size int) (*Candidates, error) {
	if size <= 0 {
		return &Candidates{}, nil
	}
	if query.IsEmpty() {
		c.logger.Warn("empty search query, skipping retrieval")
		return &Candidates{}, nil
	}

	body := buildSearchBody(query, size)
	searchURL := fmt.Sprintf("%s/%s/%s", c.APIURL, c.Index, searchPath)

	var response searchResponse
	if err := c.postJSON(ctx, searchURL, body, &response); err != nil {
		return nil, fmt.Errorf("search trial index: %w", err)
	}

	c.logger.Debug("got response from trial index",
		zap.Int("total", response.Hits.Total.Value),
		zap.Int("returned", len(response.Hits.Hits)),
	)

	candidates := &Candidates{}
	for _, hit := range response.Hits.Hits {
		var doc trialDocument

		cfg := &mapstructure.DecoderConfig{
			Metadata: nil,
			Result:   &doc,
			TagName:  "json",
		}
		decoder, _ := mapstructure.NewDecoder(cfg)
		if err := decoder.Decode(hit.Source); err != nil {
			c.logger.Warn("skipping undecodable hit", zap.Error(err))
			continue
		}

		if doc.NCTID == "" {
			continue
		}

		title := doc.BriefTitle
		if title == "" {
			title = doc.OfficialTitle
		}

		candidates.Items = append(candidates.Items, &TrialCandidate{
			NCTID:           doc.NCTID,
			Title:           title,
			Score:           hit.Score,
			EligibilityText: doc.EligibilityCriteria,
			Criteria:        ParseCriteria(doc.EligibilityCriteria),
		})
	}

	candidates.sortDeterministic()

	if len(candidates.Items) > size {
		candidates.Items = candidates.Items[:size]
	}

	return candidates, nil
}

// buildSearchBody assembles the query: extracted terms as a boosted
// multi_match must-clause, derived terms as an optional lower-boost
// should-clause.
func buildSearchBody(query *SearchQuery, size int) map[string]any {
	primary := query.Primary()
	secondary := query.Secondary()

	primaryQuery := map[string]any{
		"multi_match": map[string]any{
			"query":    joinTerms(primary),
			"fields":   primaryFields,
			"type":     "best_fields",
			"operator": "or",
		},
	}

	var q map[string]any
	if len(secondary) > 0 {
		secondaryQuery := map[string]any{
			"multi_match": map[string]any{
				"query":    joinTerms(secondary),
				"fields":   secondaryFields,
				"type":     "best_fields",
				"operator": "or",
			},
		}

		q = map[string]any{
			"bool": map[string]any{
				"must":                 []any{primaryQuery},
				"should":               []any{secondaryQuery},
				"minimum_should_match": 0,
			},
		}
	} else {
		q = primaryQuery
	}

	return map[string]any{
		"query":   q,
		"size":    size,
		"from":    0,
		"_source": sourceFields,
	}
}

func joinTerms(terms []string) string {
	return strings.Join(terms, " ")
}
