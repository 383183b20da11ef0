package models

import (
	"errors"
	"time"
)

// ErrOwnerNotFound is returned when a site write references an owner that
// does not exist in the users table.
var ErrOwnerNotFound = errors.New("owner record not found")

// Site is a tracked web property. An empty UserID marks an orphan site whose
// owner record was missing at registration time.
type Site struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id,omitempty"`
	Name              string    `json:"name"`
	URL               string    `json:"url"`
	TrackingDomain    string    `json:"tracking_domain,omitempty"`
	AssociatedDomains []string  `json:"associated_domains,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// PageRule overrides the content type of one path on one site.
type PageRule struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	Path      string    `json:"path"`
	PageType  string    `json:"page_type"`
	CreatedAt time.Time `json:"created_at"`
}
