// Package model - MonitoredItem defines the tracked asset stored in the item collection.
package model

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle classification of a monitored item.
type Status string

// Lifecycle statuses. StatusCritical is reserved for the scoring collaborator and is never
// produced by the classifier.
const (
	StatusUpToDate  Status = "up_to_date"
	StatusOutdated  Status = "outdated"
	StatusCritical  Status = "critical"
	StatusEndOfLife Status = "end_of_life"
)

// Security states written to MonitoredItem.SecurityState.
const (
	SecurityStateNone       = "no_known_vulnerability"
	SecurityStateVulnerable = "vulnerable"
)

// CVEMetadataKey is the raw_metadata sub-object owned by CVE enrichment.
const CVEMetadataKey = "cve_metadata"

// MonitoredItem represents one tracked asset stored in the database.
type MonitoredItem struct {
	Key     string `json:"_key,omitempty"`
	ObjType string `json:"objtype,omitempty"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Purl    string `json:"purl,omitempty"`

	CurrentVersion *string `json:"current_version"`
	LatestVersion  *string `json:"latest_version"`

	// Structured check configuration. SourceID references a CheckSource document.
	SourceID     string          `json:"source_id,omitempty"`
	SourceParams json.RawMessage `json:"source_params,omitempty"`

	// Legacy check configuration: {"source": "<tag>", ...params}. Only read when SourceID is empty.
	CheckConfig json.RawMessage `json:"check_config,omitempty"`

	Status      Status     `json:"status,omitempty"`
	LastChecked *time.Time `json:"last_checked,omitempty"`

	ReleaseNotes string `json:"release_notes,omitempty"`
	ReleaseDate  string `json:"release_date,omitempty"`
	ReleaseURL   string `json:"release_url,omitempty"`
	Description  string `json:"description,omitempty"`
	DownloadURL  string `json:"download_url,omitempty"`

	EOLDate string `json:"eol_date,omitempty"` // date, or "true"/"false" when the catalog only knows a flag
	IsLTS   *bool  `json:"is_lts,omitempty"`

	CVEs             []string   `json:"cves"`
	ExternalScore    *float64   `json:"external_score"`
	ExternalSeverity *string    `json:"external_severity"`
	ExternalVector   *string    `json:"external_vector"`
	ExternalSource   *string    `json:"external_source"`
	EPSSPercent      *float64   `json:"epss_percent"`
	VPRScore         *float64   `json:"vpr_score"`
	InternalScore    *float64   `json:"internal_score"`
	InternalSeverity *string    `json:"internal_severity"`
	ScoreConfidence  *float64   `json:"score_confidence"`
	ScoreUpdatedAt   *time.Time `json:"score_updated_at"`
	SecurityState    string     `json:"security_state,omitempty"`

	RawMetadata json.RawMessage `json:"raw_metadata,omitempty"`
}

// NewMonitoredItem creates a new MonitoredItem with default values.
func NewMonitoredItem() *MonitoredItem {
	return &MonitoredItem{
		ObjType: "MonitoredItem",
		CVEs:    []string{},
	}
}

// Current returns the deployed version or "" when unknown.
func (i *MonitoredItem) Current() string {
	if i.CurrentVersion == nil {
		return ""
	}
	return *i.CurrentVersion
}

// Latest returns the last resolved catalog version or "" when the item was never checked.
func (i *MonitoredItem) Latest() string {
	if i.LatestVersion == nil {
		return ""
	}
	return *i.LatestVersion
}

// ItemPatch is a partial document update applied to an item in a single write.
// Keys are JSON attribute names; nil values clear the attribute.
type ItemPatch map[string]any
