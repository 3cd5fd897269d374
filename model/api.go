// Package model - API types for connector results and check summaries
package model

import "strings"

// VersionCheckResult is what a connector returns for one lookup.
// An empty Version means the catalog produced no signal.
type VersionCheckResult struct {
	Version      string         `json:"version,omitempty"`
	ReleaseNotes string         `json:"release_notes,omitempty"`
	ReleaseDate  string         `json:"release_date,omitempty"`
	ReleaseURL   string         `json:"release_url,omitempty"`
	CVEs         []string       `json:"cves,omitempty"`
	Description  string         `json:"description,omitempty"`
	DownloadURL  string         `json:"download_url,omitempty"`
	EOLDate      string         `json:"eol_date,omitempty"`
	IsLTS        *bool          `json:"is_lts,omitempty"`
	RawMetadata  map[string]any `json:"raw_metadata,omitempty"`
}

// HasVersion reports whether the connector resolved a version.
func (r VersionCheckResult) HasVersion() bool {
	return strings.TrimSpace(r.Version) != ""
}

// CheckResult summarizes one completed check for the caller.
type CheckResult struct {
	ItemKey       string   `json:"item_key"`
	LatestVersion string   `json:"latest_version"`
	Status        Status   `json:"status"`
	Changed       bool     `json:"changed"`
	ReleaseNotes  string   `json:"release_notes,omitempty"`
	ReleaseDate   string   `json:"release_date,omitempty"`
	ReleaseURL    string   `json:"release_url,omitempty"`
	CVEs          []string `json:"cves,omitempty"`
	Description   string   `json:"description,omitempty"`
	DownloadURL   string   `json:"download_url,omitempty"`
	EOLDate       string   `json:"eol_date,omitempty"`
	IsLTS         *bool    `json:"is_lts,omitempty"`
}

// CheckRequest asks a worker to run a check for one item.
type CheckRequest struct {
	ItemKey     string `json:"item_key"`
	RequestedBy string `json:"requested_by,omitempty"`
}
