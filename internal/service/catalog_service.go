package service

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/storecast-backend/internal/errors"
	"github.com/unclebandit/storecast-backend/internal/model"
	"github.com/unclebandit/storecast-backend/internal/repository"
)

type CreateStoreRequest struct {
	Name                   string  `json:"name" validate:"required"`
	LineChannelID          *string `json:"line_channel_id"`
	LineChannelSecret      *string `json:"line_channel_secret"`
	LineChannelAccessToken string  `json:"line_channel_access_token" validate:"required"`
	WebhookURL             *string `json:"webhook_url" validate:"omitempty,url"`
}

type CreateTemplateRequest struct {
	Name         string          `json:"name" validate:"required"`
	JSONContent  json.RawMessage `json:"json_content" validate:"required"`
	ThumbnailURL *string         `json:"thumbnail_url" validate:"omitempty,url"`
}

type UpsertMediaURLRequest struct {
	StoreID string `json:"store_id" validate:"required"`
	MediaID string `json:"media_id" validate:"required"`
	URL     string `json:"url" validate:"required,url"`
}

// CatalogService manages the records a broadcast reads: stores, templates, media and store media URLs.
type CatalogService struct {
	Stores    repository.StoreRepositoryInterface
	Templates repository.TemplateRepositoryInterface
	Media     repository.MediaRepositoryInterface
	MediaURLs repository.StoreMediaURLRepositoryInterface
	Logger    *zap.Logger
}

func (s *CatalogService) ListStores(ctx context.Context) ([]*model.Store, error) {
	return s.Stores.List(ctx)
}

func (s *CatalogService) GetStore(ctx context.Context, id string) (*model.Store, error) {
	return s.Stores.GetByID(ctx, id)
}

func (s *CatalogService) CreateStore(ctx context.Context, req CreateStoreRequest) (*model.Store, error) {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.LineChannelAccessToken) == "" {
		return nil, appErrors.NewValidation("name and line_channel_access_token are required")
	}
	st := &model.Store{
		Name:                   strings.TrimSpace(req.Name),
		LineChannelID:          req.LineChannelID,
		LineChannelSecret:      req.LineChannelSecret,
		LineChannelAccessToken: strings.TrimSpace(req.LineChannelAccessToken),
		WebhookURL:             req.WebhookURL,
	}
	if err := s.Stores.Create(ctx, st); err != nil {
		return nil, err
	}
	s.Logger.Info("store created", zap.String("store_id", st.ID))
	return st, nil
}

func (s *CatalogService) UpdateStore(ctx context.Context, id string, u model.StoreUpdate) (*model.Store, error) {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return nil, appErrors.NewValidation("name cannot be empty")
	}
	if u.LineChannelAccessToken != nil && strings.TrimSpace(*u.LineChannelAccessToken) == "" {
		return nil, appErrors.NewValidation("line_channel_access_token cannot be empty")
	}
	return s.Stores.Update(ctx, id, u)
}

func (s *CatalogService) DeleteStore(ctx context.Context, id string) error {
	if err := s.Stores.Delete(ctx, id); err != nil {
		return err
	}
	s.Logger.Info("store deleted", zap.String("store_id", id))
	return nil
}

func (s *CatalogService) ListTemplates(ctx context.Context) ([]*model.Template, error) {
	return s.Templates.List(ctx)
}

func (s *CatalogService) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	return s.Templates.GetByID(ctx, id)
}

func (s *CatalogService) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (*model.Template, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, appErrors.NewValidation("name is required")
	}
	if err := requireJSONObject(req.JSONContent); err != nil {
		return nil, err
	}
	t := &model.Template{
		Name:         strings.TrimSpace(req.Name),
		JSONContent:  req.JSONContent,
		ThumbnailURL: req.ThumbnailURL,
	}
	if err := s.Templates.Create(ctx, t); err != nil {
		return nil, err
	}
	s.Logger.Info("template created", zap.String("template_id", t.ID))
	return t, nil
}

func (s *CatalogService) UpdateTemplate(ctx context.Context, id string, u model.TemplateUpdate) (*model.Template, error) {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return nil, appErrors.NewValidation("name cannot be empty")
	}
	if len(u.JSONContent) > 0 {
		if err := requireJSONObject(u.JSONContent); err != nil {
			return nil, err
		}
	}
	return s.Templates.Update(ctx, id, u)
}

func (s *CatalogService) DeleteTemplate(ctx context.Context, id string) error {
	return s.Templates.Delete(ctx, id)
}

func (s *CatalogService) ListMedia(ctx context.Context) ([]*model.Media, error) {
	return s.Media.List(ctx)
}

func (s *CatalogService) CreateMedia(ctx context.Context, name string) (*model.Media, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, appErrors.NewValidation("name is required")
	}
	m := &model.Media{Name: name}
	if err := s.Media.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *CatalogService) DeleteMedia(ctx context.Context, id string) error {
	return s.Media.Delete(ctx, id)
}

// ListMediaURLs returns every binding, or only storeID's when it is set.
func (s *CatalogService) ListMediaURLs(ctx context.Context, storeID string) ([]*model.StoreMediaURL, error) {
	return s.MediaURLs.List(ctx, storeID)
}

// UpsertMediaURL keeps one URL per (store, media): a second call overwrites the first.
func (s *CatalogService) UpsertMediaURL(ctx context.Context, req UpsertMediaURLRequest) (*model.StoreMediaURL, error) {
	if req.StoreID == "" || req.MediaID == "" || strings.TrimSpace(req.URL) == "" {
		return nil, appErrors.NewValidation("store_id, media_id and url are required")
	}
	return s.MediaURLs.Upsert(ctx, req.StoreID, req.MediaID, strings.TrimSpace(req.URL))
}

func (s *CatalogService) DeleteMediaURL(ctx context.Context, id string) error {
	return s.MediaURLs.Delete(ctx, id)
}

// requireJSONObject accepts only a JSON object, the shape of a Flex container.
func requireJSONObject(doc json.RawMessage) error {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 {
		return appErrors.NewValidation("json_content is required")
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return appErrors.NewValidation("json_content must be a JSON object")
	}
	return nil
}
