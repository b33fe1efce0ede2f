package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/unclebandit/storecast-backend/internal/model"
)

type DeliveryRepositoryInterface interface {
	Record(ctx context.Context, d *model.Delivery) error
	ListByJob(ctx context.Context, jobID string) ([]model.Delivery, error)
}

// DeliveryRepository is the per-store outcome log of broadcast jobs.
type DeliveryRepository struct {
	DB *sql.DB
}

// Record logs one store's outcome. It is idempotent per (job, store): the first
// outcome written wins and later writes are ignored.
func (r *DeliveryRepository) Record(ctx context.Context, d *model.Delivery) error {
	d.CreatedAt = time.Now()
	query := `
        INSERT INTO broadcast_deliveries (job_id, store_id, success, error, request_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (job_id, store_id) DO NOTHING
    `
	_, err := r.DB.ExecContext(ctx, query, d.JobID, d.StoreID, d.Success, d.Error, d.RequestID, d.CreatedAt)
	return err
}

func (r *DeliveryRepository) ListByJob(ctx context.Context, jobID string) ([]model.Delivery, error) {
	query := `
        SELECT id, job_id, store_id, success, error, request_id, created_at
        FROM broadcast_deliveries
        WHERE job_id = $1
        ORDER BY id
    `
	rows, err := r.DB.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, lookupError(err, "broadcast job", jobID)
	}
	defer rows.Close()

	deliveries := []model.Delivery{}
	for rows.Next() {
		var d model.Delivery
		if err := rows.Scan(&d.ID, &d.JobID, &d.StoreID, &d.Success, &d.Error, &d.RequestID, &d.CreatedAt); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

var _ DeliveryRepositoryInterface = (*DeliveryRepository)(nil)
