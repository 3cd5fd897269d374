// Package model - AI enrichment result.
package model

import "time"

// Remediation priorities accepted in AI output.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// AIVerifiedData holds facts already known about the item. It is always rebuilt from the
// stored item, never from model output.
type AIVerifiedData struct {
	ItemKey          string   `json:"item_key"`
	Name             string   `json:"name"`
	Type             string   `json:"type"`
	Purl             string   `json:"purl,omitempty"`
	CurrentVersion   string   `json:"current_version,omitempty"`
	LatestVersion    string   `json:"latest_version,omitempty"`
	Status           Status   `json:"status,omitempty"`
	EOLDate          string   `json:"eol_date,omitempty"`
	CVECount         int      `json:"cve_count"`
	CVEs             []string `json:"cves"`
	ExternalScore    *float64 `json:"external_score"`
	ExternalSeverity *string  `json:"external_severity"`
	EPSSPercent      *float64 `json:"epss_percent"`
	InternalScore    *float64 `json:"internal_score"`
	InternalSeverity *string  `json:"internal_severity"`
}

// AIGeneratedData is unverified model output.
type AIGeneratedData struct {
	RiskSummary              string   `json:"risk_summary" validate:"max=4000"`
	ExploitabilityAssessment string   `json:"exploitability_assessment" validate:"max=4000"`
	BusinessImpact           string   `json:"business_impact" validate:"max=4000"`
	RemediationPriority      string   `json:"remediation_priority" validate:"oneof=low medium high critical"`
	RecommendedActions       []string `json:"recommended_actions" validate:"max=12,dive,required,max=1000"`
}

// AIEnrichmentResult keeps verified facts and generated analysis side by side, never merged.
type AIEnrichmentResult struct {
	VerifiedData    AIVerifiedData  `json:"verified_data"`
	AIGeneratedData AIGeneratedData `json:"ai_generated_data"`
	ConfidenceLevel int             `json:"confidence_level"`
	Sources         []string        `json:"sources"`
	Notes           []string        `json:"notes"`
	Provider        string          `json:"provider"`
	Model           string          `json:"model,omitempty"`
	GeneratedAt     time.Time       `json:"generated_at"`
}
