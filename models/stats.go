package models

import "time"

type EventCountByTime struct {
	Time      time.Time `json:"time"`
	EventKind *string   `json:"eventKind,omitempty"`
	Count     uint64    `json:"count"`
}

type TopPathResult struct {
	PagePath string `json:"pagePath"`
	Count    uint64 `json:"count"`
}

type ContentTypeCount struct {
	ContentType string `json:"contentType"`
	EventKind   string `json:"eventKind"`
	Count       uint64 `json:"count"`
}

type RevenueSummary struct {
	Currency  string  `json:"currency"`
	Purchases uint64  `json:"purchases"`
	Revenue   float64 `json:"revenue"`
}
