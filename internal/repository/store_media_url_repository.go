package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/unclebandit/storecast-backend/internal/model"
)

type StoreMediaURLRepositoryInterface interface {
	List(ctx context.Context, storeID string) ([]*model.StoreMediaURL, error)
	Find(ctx context.Context, storeID, mediaID string) (*model.StoreMediaURL, error)
	Upsert(ctx context.Context, storeID, mediaID, url string) (*model.StoreMediaURL, error)
	Delete(ctx context.Context, id string) error
}

type StoreMediaURLRepository struct {
	DB *sql.DB
}

const storeMediaURLColumns = `id, store_id, media_id, url, created_at, updated_at`

func scanStoreMediaURL(row rowScanner) (*model.StoreMediaURL, error) {
	var u model.StoreMediaURL
	if err := row.Scan(&u.ID, &u.StoreID, &u.MediaID, &u.URL, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns bindings joined with store and media names, optionally for one store.
func (r *StoreMediaURLRepository) List(ctx context.Context, storeID string) ([]*model.StoreMediaURL, error) {
	query := `
        SELECT u.id, u.store_id, u.media_id, u.url, u.created_at, u.updated_at, s.name, m.name
        FROM store_media_urls u
        JOIN stores s ON s.id = u.store_id
        JOIN media m ON m.id = u.media_id
    `
	args := []any{}
	if storeID != "" {
		query += fmt.Sprintf(" WHERE u.store_id = $%d", len(args)+1)
		args = append(args, storeID)
	}
	query += " ORDER BY u.created_at DESC"

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, lookupError(err, "store", storeID)
	}
	defer rows.Close()

	urls := []*model.StoreMediaURL{}
	for rows.Next() {
		var (
			u                    model.StoreMediaURL
			storeName, mediaName string
		)
		if err := rows.Scan(&u.ID, &u.StoreID, &u.MediaID, &u.URL, &u.CreatedAt, &u.UpdatedAt, &storeName, &mediaName); err != nil {
			return nil, err
		}
		u.Store = &model.NamedRef{ID: u.StoreID, Name: storeName}
		u.Media = &model.NamedRef{ID: u.MediaID, Name: mediaName}
		urls = append(urls, &u)
	}
	return urls, rows.Err()
}

// Find returns the URL bound to (storeID, mediaID) or NotFoundError.
func (r *StoreMediaURLRepository) Find(ctx context.Context, storeID, mediaID string) (*model.StoreMediaURL, error) {
	query := `SELECT ` + storeMediaURLColumns + ` FROM store_media_urls WHERE store_id = $1 AND media_id = $2`
	u, err := scanStoreMediaURL(r.DB.QueryRowContext(ctx, query, storeID, mediaID))
	if err != nil {
		return nil, lookupError(err, "media URL", "")
	}
	return u, nil
}

// Upsert binds url to (storeID, mediaID), overwriting any previous URL for the pair.
func (r *StoreMediaURLRepository) Upsert(ctx context.Context, storeID, mediaID, url string) (*model.StoreMediaURL, error) {
	query := `
        INSERT INTO store_media_urls (id, store_id, media_id, url, created_at, updated_at)
        VALUES ($1, $2, $3, $4, NOW(), NOW())
        ON CONFLICT (store_id, media_id) DO UPDATE
        SET url = EXCLUDED.url, updated_at = NOW()
        RETURNING ` + storeMediaURLColumns
	u, err := scanStoreMediaURL(r.DB.QueryRowContext(ctx, query, uuid.NewString(), storeID, mediaID, url))
	if err != nil {
		return nil, writeError(err, "store media URL")
	}
	return u, nil
}

func (r *StoreMediaURLRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM store_media_urls WHERE id = $1`, id)
	return requireRow(res, err, "store media URL", id)
}

var _ StoreMediaURLRepositoryInterface = (*StoreMediaURLRepository)(nil)
