package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/storecast-backend/internal/errors"
	"github.com/unclebandit/storecast-backend/internal/model"
)

type TemplateRepositoryInterface interface {
	List(ctx context.Context) ([]*model.Template, error)
	GetByID(ctx context.Context, id string) (*model.Template, error)
	Create(ctx context.Context, t *model.Template) error
	Update(ctx context.Context, id string, u model.TemplateUpdate) (*model.Template, error)
	Delete(ctx context.Context, id string) error
}

type TemplateRepository struct {
	DB *sql.DB
}

const templateColumns = `id, name, json_content, thumbnail_url, created_at, updated_at`

func scanTemplate(row rowScanner) (*model.Template, error) {
	var (
		t       model.Template
		content []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &content, &t.ThumbnailURL, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.JSONContent = json.RawMessage(content)
	return &t, nil
}

func (r *TemplateRepository) List(ctx context.Context) ([]*model.Template, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []*model.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*model.Template, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if err != nil {
		return nil, lookupError(err, "template", id)
	}
	return t, nil
}

func (r *TemplateRepository) Create(ctx context.Context, t *model.Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now

	query := `
        INSERT INTO templates (id, name, json_content, thumbnail_url, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := r.DB.ExecContext(ctx, query, t.ID, t.Name, rawJSONParam(t.JSONContent), t.ThumbnailURL, t.CreatedAt, t.UpdatedAt)
	return writeError(err, "template")
}

func (r *TemplateRepository) Update(ctx context.Context, id string, u model.TemplateUpdate) (*model.Template, error) {
	if u.Empty() {
		return nil, appErrors.NewValidation("no fields to update")
	}
	query := `
        UPDATE templates SET
            name = COALESCE($2, name),
            json_content = COALESCE($3::jsonb, json_content),
            thumbnail_url = COALESCE($4, thumbnail_url),
            updated_at = NOW()
        WHERE id = $1
        RETURNING ` + templateColumns
	row := r.DB.QueryRowContext(ctx, query, id, u.Name, rawJSONParam(u.JSONContent), u.ThumbnailURL)
	t, err := scanTemplate(row)
	if err != nil {
		return nil, lookupError(err, "template", id)
	}
	return t, nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM templates WHERE id = $1`, id)
	return requireRow(res, err, "template", id)
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
