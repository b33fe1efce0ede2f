package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/storecast-backend/internal/errors"
	"github.com/unclebandit/storecast-backend/internal/model"
)

type MediaRepositoryInterface interface {
	List(ctx context.Context) ([]*model.Media, error)
	Create(ctx context.Context, m *model.Media) error
	Delete(ctx context.Context, id string) error
}

type MediaRepository struct {
	DB *sql.DB
}

func (r *MediaRepository) List(ctx context.Context) ([]*model.Media, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, name, created_at FROM media ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	media := []*model.Media{}
	for rows.Next() {
		var m model.Media
		if err := rows.Scan(&m.ID, &m.Name, &m.CreatedAt); err != nil {
			return nil, err
		}
		media = append(media, &m)
	}
	return media, rows.Err()
}

// Create inserts a media entry; a duplicate name yields ConflictError.
func (r *MediaRepository) Create(ctx context.Context, m *model.Media) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now()

	_, err := r.DB.ExecContext(ctx, `INSERT INTO media (id, name, created_at) VALUES ($1, $2, $3)`, m.ID, m.Name, m.CreatedAt)
	if err != nil {
		err = writeError(err, "media")
		if appErrors.IsConflict(err) {
			return appErrors.NewConflict("media named %q already exists", m.Name)
		}
		return err
	}
	return nil
}

func (r *MediaRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM media WHERE id = $1`, id)
	return requireRow(res, err, "media", id)
}

var _ MediaRepositoryInterface = (*MediaRepository)(nil)
