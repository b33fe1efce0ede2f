// internal/model/delivery.go
package model

import "time"

// Delivery is one store's logged outcome inside a broadcast job.
type Delivery struct {
	ID        int       `db:"id" json:"id"`
	JobID     string    `db:"job_id" json:"job_id"`
	StoreID   string    `db:"store_id" json:"store_id"`
	Success   bool      `db:"success" json:"success"`
	Error     string    `db:"error" json:"error,omitempty"`
	RequestID string    `db:"request_id" json:"request_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
