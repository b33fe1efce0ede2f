package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/storecast-backend/internal/errors"
	"github.com/unclebandit/storecast-backend/internal/model"
)

type StoreRepositoryInterface interface {
	List(ctx context.Context) ([]*model.Store, error)
	GetByID(ctx context.Context, id string) (*model.Store, error)
	GetByIDs(ctx context.Context, ids []string) ([]*model.Store, error)
	Create(ctx context.Context, s *model.Store) error
	Update(ctx context.Context, id string, u model.StoreUpdate) (*model.Store, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type StoreRepository struct {
	DB *sql.DB
}

const storeColumns = `id, name, line_channel_id, line_channel_secret, line_channel_access_token, webhook_url, created_at, updated_at`

func scanStore(row rowScanner) (*model.Store, error) {
	var s model.Store
	err := row.Scan(&s.ID, &s.Name, &s.LineChannelID, &s.LineChannelSecret,
		&s.LineChannelAccessToken, &s.WebhookURL, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *StoreRepository) List(ctx context.Context) ([]*model.Store, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+storeColumns+` FROM stores ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := []*model.Store{}
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

func (r *StoreRepository) GetByID(ctx context.Context, id string) (*model.Store, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+storeColumns+` FROM stores WHERE id = $1`, id)
	s, err := scanStore(row)
	if err != nil {
		return nil, lookupError(err, "store", id)
	}
	return s, nil
}

// GetByIDs returns the stores that still exist, in the order of ids. Unknown ids are skipped.
func (r *StoreRepository) GetByIDs(ctx context.Context, ids []string) ([]*model.Store, error) {
	stores := []*model.Store{}
	if len(ids) == 0 {
		return stores, nil
	}
	query := `
        SELECT ` + storeColumns + `
        FROM stores
        WHERE id::text = ANY($1)
        ORDER BY array_position($1::text[], id::text)
    `
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

func (r *StoreRepository) Create(ctx context.Context, s *model.Store) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now

	query := `
        INSERT INTO stores (id, name, line_channel_id, line_channel_secret, line_channel_access_token, webhook_url, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err := r.DB.ExecContext(ctx, query, s.ID, s.Name, s.LineChannelID, s.LineChannelSecret,
		s.LineChannelAccessToken, s.WebhookURL, s.CreatedAt, s.UpdatedAt)
	return writeError(err, "store")
}

// Update applies the non-nil fields of u.
func (r *StoreRepository) Update(ctx context.Context, id string, u model.StoreUpdate) (*model.Store, error) {
	if u.Empty() {
		return nil, appErrors.NewValidation("no fields to update")
	}
	query := `
        UPDATE stores SET
            name = COALESCE($2, name),
            line_channel_id = COALESCE($3, line_channel_id),
            line_channel_secret = COALESCE($4, line_channel_secret),
            line_channel_access_token = COALESCE($5, line_channel_access_token),
            webhook_url = COALESCE($6, webhook_url),
            updated_at = NOW()
        WHERE id = $1
        RETURNING ` + storeColumns
	row := r.DB.QueryRowContext(ctx, query, id, u.Name, u.LineChannelID, u.LineChannelSecret,
		u.LineChannelAccessToken, u.WebhookURL)
	s, err := scanStore(row)
	if err != nil {
		return nil, lookupError(err, "store", id)
	}
	return s, nil
}

func (r *StoreRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, id)
	return requireRow(res, err, "store", id)
}

func (r *StoreRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM stores`).Scan(&n)
	return n, err
}

var _ StoreRepositoryInterface = (*StoreRepository)(nil)
