// Package model - CheckSource and VersionLog documents.
package model

import (
	"encoding/json"
	"time"
)

// CheckSource is a registered connector configuration referenced by items through SourceID.
type CheckSource struct {
	Key     string          `json:"_key,omitempty"`
	ObjType string          `json:"objtype,omitempty"`
	Name    string          `json:"name,omitempty"`
	Type    string          `json:"type"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// VersionLog is an append-only history entry for a latest-version transition.
type VersionLog struct {
	Key          string    `json:"_key,omitempty"`
	ObjType      string    `json:"objtype,omitempty"`
	ItemKey      string    `json:"item_key"`
	OldVersion   string    `json:"old_version"`
	NewVersion   string    `json:"new_version"`
	ReleaseNotes string    `json:"release_notes,omitempty"`
	ReleaseURL   string    `json:"release_url,omitempty"`
	CVEs         []string  `json:"cves"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewVersionLog creates a history entry for an old -> new transition.
func NewVersionLog(itemKey, oldVersion, newVersion string, at time.Time) *VersionLog {
	return &VersionLog{
		ObjType:    "VersionLog",
		ItemKey:    itemKey,
		OldVersion: oldVersion,
		NewVersion: newVersion,
		CVEs:       []string{},
		CreatedAt:  at.UTC(),
	}
}
