package criteria

import (
	"context"

	"github.com/medmatch/trial-matcher/internal/trialindex"
	"go.uber.org/zap"
)

type cache interface {
	Get(ctx context.Context, nctID string) ([]trialindex.Criterion, bool)
	Put(ctx context.Context, nctID string, criteria []trialindex.Criterion)
}

type registry interface {
	Lookup(ctx context.Context, nctID string) ([]trialindex.Criterion, bool, error)
}

// Source resolves the criteria to evaluate for a candidate. Resolution
// order is cache, then registry with a cache write-back, then the criteria
// already parsed from the candidate's indexed eligibility text. Cache and
// registry are both optional; a missing or failing tier falls through
// silently so retrieval output alone is always enough to evaluate.
type Source struct {
	cache    cache
	registry registry
	logger   *zap.Logger
}

func NewSource(cache *Cache, registry *Registry, log *zap.Logger) *Source {
	source := &Source{logger: log.With(zap.String("component", "criteria-source"))}
	// Typed nils must not survive into the interface fields.
	if cache != nil {
		source.cache = cache
	}
	if registry != nil {
		source.registry = registry
	}
	return source
}

// Resolve returns the criteria list for a candidate.
func (s *Source) Resolve(ctx context.Context, candidate *trialindex.TrialCandidate) []trialindex.Criterion {
	if s.cache != nil {
		if criteria, ok := s.cache.Get(ctx, candidate.NCTID); ok {
			s.logger.Debug("criteria cache hit", zap.String("nct_id", candidate.NCTID))
			return criteria
		}
	}

	if s.registry != nil {
		criteria, ok, err := s.registry.Lookup(ctx, candidate.NCTID)
		if err != nil {
			s.logger.Debug("registry lookup failed, using indexed criteria",
				zap.String("nct_id", candidate.NCTID),
				zap.Error(err),
			)
		} else if ok {
			if s.cache != nil {
				s.cache.Put(ctx, candidate.NCTID, criteria)
			}
			return criteria
		}
	}

	return candidate.Criteria
}
