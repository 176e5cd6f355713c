package postgres

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/core/ports"
)

var _ ports.AnalysisRunRepository = (*AnalysisRunRepo)(nil)

// AnalysisRunRepo implements ports.AnalysisRunRepository with pgx.
type AnalysisRunRepo struct {
	db *DB
}

// NewAnalysisRunRepo creates a new AnalysisRunRepo.
func NewAnalysisRunRepo(db *DB) *AnalysisRunRepo {
	return &AnalysisRunRepo{db: db}
}

// Insert records one completed analysis. Redelivered events are ignored.
func (r *AnalysisRunRepo) Insert(ctx context.Context, e *domain.AnalysisCompleted) error {
	datasets, err := json.Marshal(e.Datasets)
	if err != nil {
		return fmt.Errorf("encode datasets: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO analysis_runs (endpoint, cache_key, lat, lng, radius_m, geostore_id, area_ha,
		                           start_date, end_date, datasets, built_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10::jsonb, $11)
		ON CONFLICT (cache_key, built_at) DO NOTHING
	`, string(e.Endpoint), e.CacheKey, e.Coordinate.Lat, e.Coordinate.Lng, e.Radius,
		e.GeostoreID, e.AreaHa, e.DateRange.Start, e.DateRange.End, string(datasets), e.BuiltAt)
	if err != nil {
		return fmt.Errorf("insert analysis run: %w", err)
	}
	return nil
}

// CountByEndpoint returns how many runs were recorded per endpoint.
func (r *AnalysisRunRepo) CountByEndpoint(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT endpoint, count(*) FROM analysis_runs GROUP BY endpoint`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var endpoint string
		var n int64
		if err := rows.Scan(&endpoint, &n); err != nil {
			return nil, err
		}
		out[endpoint] = n
	}
	return out, rows.Err()
}
