// internal/model/template.go
package model

import (
	"encoding/json"
	"time"
)

// Template holds a Flex Message container document. String values inside the
// document may carry {{variable}} placeholders.
type Template struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	JSONContent  json.RawMessage `db:"json_content" json:"json_content"`
	ThumbnailURL *string         `db:"thumbnail_url" json:"thumbnail_url"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

type TemplateUpdate struct {
	Name         *string         `json:"name"`
	JSONContent  json.RawMessage `json:"json_content"`
	ThumbnailURL *string         `json:"thumbnail_url"`
}

func (u TemplateUpdate) Empty() bool {
	return u.Name == nil && len(u.JSONContent) == 0 && u.ThumbnailURL == nil
}

// TemplateRef is the template projection embedded in job listings.
type TemplateRef struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	JSONContent json.RawMessage `json:"json_content,omitempty"`
}
