// internal/model/media.go
package model

import "time"

// Media is a named external platform (a reservation site, for example).
type Media struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StoreMediaURL is a store's page on one media platform, unique per (store, media).
type StoreMediaURL struct {
	ID        string    `db:"id" json:"id"`
	StoreID   string    `db:"store_id" json:"store_id"`
	MediaID   string    `db:"media_id" json:"media_id"`
	URL       string    `db:"url" json:"url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Store *NamedRef `json:"store,omitempty"`
	Media *NamedRef `json:"media,omitempty"`
}

type NamedRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
