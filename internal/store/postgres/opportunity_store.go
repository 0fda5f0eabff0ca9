package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

// NewOpportunityStore creates a store backed by the given connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunityCols = `id, market_id, sum_price, profit_percent,
	yes_price, yes_size, no_price, no_size,
	max_volume_usd, expected_profit_usd, detected_at`

// Insert journals one detected opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, market_id, sum_price, profit_percent,
			yes_price, yes_size, no_price, no_size,
			max_volume_usd, expected_profit_usd, detected_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11
		)`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.MarketID, opp.SumPrice, opp.ProfitPercent,
		opp.YesPrice, opp.YesSize, opp.NoPrice, opp.NoSize,
		opp.MaxVolumeUSD, opp.ExpectedProfitUSD, opp.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecent returns the newest opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM opportunities
		ORDER BY detected_at DESC
		LIMIT $1`, opportunityCols)

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()
	return scanOpportunities(rows)
}

// ListBefore returns opportunities detected strictly before cutoff, oldest
// first, for archival.
func (s *OpportunityStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Opportunity, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM opportunities
		WHERE detected_at < $1
		ORDER BY detected_at ASC
		LIMIT $2`, opportunityCols)

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanOpportunities(rows)
}

// DeleteBefore removes opportunities detected strictly before cutoff and
// returns the number of rows deleted.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM opportunities WHERE detected_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanOpportunities(rows pgx.Rows) ([]domain.Opportunity, error) {
	var opps []domain.Opportunity
	for rows.Next() {
		var opp domain.Opportunity
		if err := rows.Scan(
			&opp.ID, &opp.MarketID, &opp.SumPrice, &opp.ProfitPercent,
			&opp.YesPrice, &opp.YesSize, &opp.NoPrice, &opp.NoSize,
			&opp.MaxVolumeUSD, &opp.ExpectedProfitUSD, &opp.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate opportunities: %w", err)
	}
	return opps, nil
}
