package models

// Per-event outcome statuses reported by the ingest endpoint.
const (
	StatusStored     = "stored"
	StatusDropped    = "dropped"
	StatusRejected   = "rejected"
	StatusFailed     = "failed"
	StatusSuperseded = "superseded"
)

// EventResult is the outcome of one submitted event.
type EventResult struct {
	Index       int    `json:"index"`
	ID          string `json:"id,omitempty"`
	Table       Table  `json:"table,omitempty"`
	Status      string `json:"status"`
	SiteID      string `json:"site_id,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Error       string `json:"error,omitempty"`
}

// IngestResponse is the success body of the ingest endpoint. Count is the
// number of events actually persisted.
type IngestResponse struct {
	Success bool          `json:"success"`
	Count   int           `json:"count"`
	Results []EventResult `json:"results,omitempty"`
}
