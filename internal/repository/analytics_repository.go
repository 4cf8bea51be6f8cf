package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/internal/tenant"
)

// AnalyticsRepository serves the reporting projection over the pipeline.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository constructs the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// CountByStatus aggregates applications per status in a single query.
func (r *AnalyticsRepository) CountByStatus(ctx context.Context) (map[models.ApplicationStatus]int, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	const query = `SELECT status, COUNT(*) AS total FROM applications WHERE tenant_id = $1 GROUP BY status`
	rows, err := r.db.QueryxContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count applications by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ApplicationStatus]int)
	for rows.Next() {
		var status models.ApplicationStatus
		var total int
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = total
	}
	return counts, rows.Err()
}
