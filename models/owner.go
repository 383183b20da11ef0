package models

import "time"

// Owner is the account that every ingested event and auto-registered site is
// attributed to. Owner records are created by the dashboard, never by ingest.
type Owner struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
