// Package model - domain events and enrichment requests raised by a version check.
package model

import (
	"errors"
	"time"
)

// ErrNotFound is returned by storage lookups for missing documents.
var ErrNotFound = errors.New("not found")

// Domain event types.
const (
	EventVersionNew      = "version.new"
	EventVersionCritical = "version.critical"
	EventCVEDetected     = "cve.detected"
	EventItemEOL         = "item.eol"
)

// EventPayload describes the item state that triggered a domain event.
type EventPayload struct {
	ItemKey        string    `json:"item_key"`
	ItemName       string    `json:"item_name"`
	ItemType       string    `json:"item_type"`
	Purl           string    `json:"purl,omitempty"`
	CurrentVersion string    `json:"current_version,omitempty"`
	OldVersion     string    `json:"old_version,omitempty"`
	NewVersion     string    `json:"new_version"`
	Status         Status    `json:"status"`
	CVEs           []string  `json:"cves,omitempty"`
	EOLDate        string    `json:"eol_date,omitempty"`
	ReleaseURL     string    `json:"release_url,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// EnrichContext is handed to vulnerability enrichment when the deployed version
// drifts from the latest one.
type EnrichContext struct {
	ItemKey        string `json:"item_key"`
	ItemName       string `json:"item_name"`
	ItemType       string `json:"item_type"`
	Purl           string `json:"purl,omitempty"`
	CurrentVersion string `json:"current_version"`
	LatestVersion  string `json:"latest_version"`
	SourceType     string `json:"source_type"`
	SourceID       string `json:"source_id,omitempty"`
}
