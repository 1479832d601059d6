package criteria

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/medmatch/trial-matcher/internal/trialindex"
	"go.uber.org/zap"
)

// eligibilityQuery reads the authoritative eligibility block from an AACT
// style registry schema.
const eligibilityQuery = `SELECT criteria FROM ctgov.eligibilities WHERE nct_id = $1 LIMIT 1`

// Registry looks up canonical eligibility text in a trial registry
// database and parses it into criteria.
type Registry struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewRegistry(dsn string, log *zap.Logger) (*Registry, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("registry dsn is required")
	}

	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening registry database: %w", err)
	}
	db.SetMaxOpenConns(4)

	return &Registry{
		db:     db,
		logger: log.With(zap.String("component", "criteria-registry")),
	}, nil
}

// Lookup fetches and parses the registry's criteria for a trial. A trial
// absent from the registry is (nil, false), not an error.
func (r *Registry) Lookup(ctx context.Context, nctID string) ([]trialindex.Criterion, bool, error) {
	var text string
	if err := r.db.GetContext(ctx, &text, eligibilityQuery, nctID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("querying eligibility criteria for %s: %w", nctID, err)
	}

	criteria := trialindex.ParseCriteria(text)
	if len(criteria) == 0 {
		return nil, false, nil
	}

	r.logger.Debug("criteria loaded from registry",
		zap.String("nct_id", nctID),
		zap.Int("criteria_count", len(criteria)),
	)

	return criteria, true, nil
}

// Close releases the database pool.
func (r *Registry) Close() error {
	return r.db.Close()
}
