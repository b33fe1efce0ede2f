// internal/model/store.go
package model

import "time"

// Store is one retail location bound to its own LINE channel.
type Store struct {
	ID                     string    `db:"id" json:"id"`
	Name                   string    `db:"name" json:"name"`
	LineChannelID          *string   `db:"line_channel_id" json:"line_channel_id"`
	LineChannelSecret      *string   `db:"line_channel_secret" json:"line_channel_secret"`
	LineChannelAccessToken string    `db:"line_channel_access_token" json:"line_channel_access_token"`
	WebhookURL             *string   `db:"webhook_url" json:"webhook_url"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// StoreUpdate carries a partial edit; nil fields are left unchanged.
type StoreUpdate struct {
	Name                   *string `json:"name"`
	LineChannelID          *string `json:"line_channel_id"`
	LineChannelSecret      *string `json:"line_channel_secret"`
	LineChannelAccessToken *string `json:"line_channel_access_token"`
	WebhookURL             *string `json:"webhook_url"`
}

func (u StoreUpdate) Empty() bool {
	return u.Name == nil && u.LineChannelID == nil && u.LineChannelSecret == nil &&
		u.LineChannelAccessToken == nil && u.WebhookURL == nil
}
