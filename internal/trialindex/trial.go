package trialindex

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
)

// Polarity tags an eligibility criterion as belonging to the inclusion or
// exclusion section of its trial.
type Polarity string

const (
	PolarityInclusion Polarity = "inclusion"
	PolarityExclusion Polarity = "exclusion"
)

// Criterion is a single eligibility statement owned by its trial.
type Criterion struct {
	Text     string   `json:"text"`
	Polarity Polarity `json:"polarity"`
	Index    int      `json:"index"`
}

// TrialCandidate is one trial returned by retrieval, immutable thereafter.
type TrialCandidate struct {
	NCTID           string  `json:"nct_id"`
	Title           string  `json:"title"`
	Score           float64 `json:"score"`
	Rank            int     `json:"rank"`
	EligibilityText string  `json:"-"`
	Criteria        []Criterion
}

type Candidates struct {
	Items []*TrialCandidate
}

func (c *Candidates) Len() int {
	return len(c.Items)
}

func (c *Candidates) IDs() []string {
	ids := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.NCTID)
	}
	return ids
}

func (c *Candidates) FindByID(nctID string) *TrialCandidate {
	for _, item := range c.Items {
		if item.NCTID == nctID {
			return item
		}
	}
	return nil
}

// Exclude removes candidates whose NCT ID is in the provided list and
// returns the removed IDs.
func (c *Candidates) Exclude(nctIDs []string) []string {
	if len(nctIDs) == 0 {
		return nil
	}

	drop := make(map[string]struct{}, len(nctIDs))
	for _, id := range nctIDs {
		drop[id] = struct{}{}
	}

	kept := make([]*TrialCandidate, 0, len(c.Items))
	removed := make([]string, 0)
	for _, item := range c.Items {
		if _, ok := drop[item.NCTID]; ok {
			removed = append(removed, item.NCTID)
			continue
		}
		kept = append(kept, item)
	}

	c.Items = kept
	return removed
}

// Dedupe collapses repeated NCT IDs keeping the first (best ranked)
// occurrence and returns the IDs that had duplicates.
func (c *Candidates) Dedupe() []string {
	seen := make(map[string]struct{}, len(c.Items))
	kept := make([]*TrialCandidate, 0, len(c.Items))
	dropped := make([]string, 0)

	for _, item := range c.Items {
		if _, ok := seen[item.NCTID]; ok {
			dropped = append(dropped, item.NCTID)
			continue
		}
		seen[item.NCTID] = struct{}{}
		kept = append(kept, item)
	}

	c.Items = kept
	return dropped
}

// sortDeterministic orders candidates by descending retrieval score with
// NCT ID as the tie-break, then renumbers ranks from 1. Backend ordering
// for equal scores is not stable across calls; this is.
func (c *Candidates) sortDeterministic() {
	sort.SliceStable(c.Items, func(i, j int) bool {
		if c.Items[i].Score != c.Items[j].Score {
			return c.Items[i].Score > c.Items[j].Score
		}
		return c.Items[i].NCTID < c.Items[j].NCTID
	})

	for i, item := range c.Items {
		item.Rank = i + 1
	}
}

// ExcludedTrials is the on-disk format of the exclude file: trials the user
// has already reviewed and wants skipped on future runs.
type ExcludedTrials struct {
	Items []*ExcludedTrial
}

type ExcludedTrial struct {
	NCTID  string `json:"nct_id"`
	Reason string `json:"reason,omitempty"`
}

func (e *ExcludedTrials) IDs() []string {
	ids := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		ids = append(ids, item.NCTID)
	}
	return ids
}

func GetExcludedTrialsFromFile(path string) (*ExcludedTrials, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &ExcludedTrials{}, nil
	}

	var excluded ExcludedTrials
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, err
	}
	return &excluded, nil
}

// ParseCriteria splits raw eligibility text into polarity-tagged criteria.
// Section headers ("Inclusion Criteria:", "Exclusion Criteria:") switch the
// current polarity; every other non-empty line becomes one criterion. Text
// before any header defaults to inclusion.
func ParseCriteria(text string) []Criterion {
	criteria := make([]Criterion, 0)
	current := PolarityInclusion

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "inclusion criteria") {
			current = PolarityInclusion
			continue
		}
		if strings.HasPrefix(lower, "exclusion criteria") {
			current = PolarityExclusion
			continue
		}

		line = strings.TrimSpace(strings.TrimLeft(line, "-*•~"))
		if line == "" {
			continue
		}

		criteria = append(criteria, Criterion{
			Text:     line,
			Polarity: current,
			Index:    len(criteria),
		})
	}

	return criteria
}
