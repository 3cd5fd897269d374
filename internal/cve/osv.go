// Package cve looks up known vulnerabilities for a drifted item's deployed version in OSV.dev
// and records them on the item.
package cve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/osv-scanner/pkg/models"
	"github.com/ortelius/versionwatch/internal/checker"
	"github.com/ortelius/versionwatch/model"
	"github.com/ortelius/versionwatch/util"
	"go.uber.org/zap"
)

const (
	queryTimeout = 20 * time.Second
	sourceName   = "osv"
)

// Store is the subset of persistence the enricher uses.
type Store interface {
	GetItem(ctx context.Context, key string) (*model.MonitoredItem, error)
	UpdateItem(ctx context.Context, key string, patch model.ItemPatch) error
}

// OSVEnricher implements checker.EnrichmentTrigger against the OSV query API.
type OSVEnricher struct {
	store   Store
	baseURL string
	client  *http.Client
	logger  *zap.Logger
	now     func() time.Time
}

var _ checker.EnrichmentTrigger = (*OSVEnricher)(nil)

// NewOSVEnricher creates an enricher querying baseURL (e.g. https://api.osv.dev).
func NewOSVEnricher(store Store, baseURL string, logger *zap.Logger) *OSVEnricher {
	return &OSVEnricher{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  logger.Named("cve"),
		now:     time.Now,
	}
}

type osvQuery struct {
	Version string          `json:"version"`
	Package osvQueryPackage `json:"package"`
}

type osvQueryPackage struct {
	Purl string `json:"purl"`
}

type osvResponse struct {
	Vulns []models.Vulnerability `json:"vulns"`
}

// cveDetail is what cve_metadata keeps per finding.
type cveDetail struct {
	OSVID    string   `json:"osv_id"`
	Summary  string   `json:"summary,omitempty"`
	Score    float64  `json:"score,omitempty"`
	Severity string   `json:"severity,omitempty"`
	FixedIn  []string `json:"fixed_in,omitempty"`
}

// Enrich queries OSV for the item's current version and writes the findings in one update.
// Items without a purl are skipped.
func (e *OSVEnricher) Enrich(ctx context.Context, ec model.EnrichContext) error {
	if strings.TrimSpace(ec.Purl) == "" {
		e.logger.Debug("Skipping vulnerability lookup, item has no purl", zap.String("item", ec.ItemName))
		return nil
	}
	if strings.TrimSpace(ec.CurrentVersion) == "" {
		return nil
	}

	basePurl, err := util.GetBasePURL(ec.Purl)
	if err != nil {
		return fmt.Errorf("parsing purl %q: %w", ec.Purl, err)
	}

	vulns, err := e.query(ctx, basePurl, ec.CurrentVersion)
	if err != nil {
		return err
	}

	item, err := e.store.GetItem(ctx, ec.ItemKey)
	if err != nil {
		return fmt.Errorf("loading item %s: %w", ec.ItemKey, err)
	}

	now := e.now()
	patch := e.findingsPatch(item, ec.CurrentVersion, vulns, now)
	if err := e.store.UpdateItem(ctx, ec.ItemKey, patch); err != nil {
		return fmt.Errorf("recording vulnerabilities for %s: %w", ec.ItemName, err)
	}

	e.logger.Info("Vulnerability lookup complete",
		zap.String("item", ec.ItemName),
		zap.String("version", ec.CurrentVersion),
		zap.Int("cves", len(patch["cves"].([]string))))
	return nil
}

func (e *OSVEnricher) query(ctx context.Context, purl, version string) ([]models.Vulnerability, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	body, err := json.Marshal(osvQuery{
		Version: util.NormalizeVersion(util.CleanVersion(version)),
		Package: osvQueryPackage{Purl: purl},
	})
	if err != nil {
		return nil, err
	}

	url := e.baseURL + "/v1/query"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("POST %s: unexpected status %d", url, resp.StatusCode)
	}

	var result osvResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding OSV response: %w", err)
	}
	return result.Vulns, nil
}

// findingsPatch turns OSV records into an item update. No affecting records means the
// security fields are cleared.
func (e *OSVEnricher) findingsPatch(item *model.MonitoredItem, version string, vulns []models.Vulnerability, now time.Time) model.ItemPatch {
	details := map[string]cveDetail{}
	var vectors []string

	for _, vuln := range vulns {
		// OSV already filters by version; ranges are rechecked for ecosystems it matches loosely.
		if len(vuln.Affected) > 0 && !util.IsVersionAffectedAny(version, vuln.Affected) {
			continue
		}

		var vulnVectors []string
		for _, sev := range vuln.Severity {
			if sev.Type == "CVSS_V3" || sev.Type == "CVSS_V4" {
				vulnVectors = append(vulnVectors, sev.Score)
			}
		}
		score, _ := util.HighestCVSS(vulnVectors)
		vectors = append(vectors, vulnVectors...)

		detail := cveDetail{
			OSVID:   vuln.ID,
			Summary: vuln.Summary,
			Score:   score,
			FixedIn: fixedVersions(vuln.Affected),
		}
		if score > 0 {
			detail.Severity = util.GetSeverityRating(score)
		}
		details[cveID(vuln)] = detail
	}

	if len(details) == 0 {
		return checker.InvalidationPatch(item.RawMetadata, now)
	}

	ids := make([]string, 0, len(details))
	for id := range details {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	patch := model.ItemPatch{
		"cves":             ids,
		"security_state":   model.SecurityStateVulnerable,
		"external_source":  sourceName,
		"score_updated_at": now.UTC(),
	}

	if score, vector := util.HighestCVSS(vectors); score > 0 {
		patch["external_score"] = score
		patch["external_severity"] = util.GetSeverityRating(score)
		patch["external_vector"] = vector
	}

	if raw, ok := withCVEMetadata(item.RawMetadata, version, details, now); ok {
		patch["raw_metadata"] = raw
	} else {
		e.logger.Warn("Existing raw_metadata is not a JSON object, leaving it unchanged", zap.String("item", item.Name))
	}
	return patch
}

// cveID prefers the CVE alias of an OSV record.
func cveID(vuln models.Vulnerability) string {
	if strings.HasPrefix(vuln.ID, "CVE-") {
		return vuln.ID
	}
	for _, alias := range vuln.Aliases {
		if strings.HasPrefix(alias, "CVE-") {
			return alias
		}
	}
	return vuln.ID
}

func fixedVersions(affected []models.Affected) []string {
	seen := map[string]bool{}
	var fixed []string
	for _, a := range affected {
		for _, r := range a.Ranges {
			for _, ev := range r.Events {
				if ev.Fixed != "" && !seen[ev.Fixed] {
					seen[ev.Fixed] = true
					fixed = append(fixed, ev.Fixed)
				}
			}
		}
	}
	return fixed
}

func withCVEMetadata(existing json.RawMessage, version string, details map[string]cveDetail, now time.Time) (json.RawMessage, bool) {
	doc := map[string]json.RawMessage{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &doc); err != nil {
			return nil, false
		}
		if doc == nil {
			doc = map[string]json.RawMessage{}
		}
	}

	encoded, err := json.Marshal(map[string]any{
		"source":          sourceName,
		"queried_version": version,
		"queried_at":      now.UTC(),
		"findings":        details,
	})
	if err != nil {
		return nil, false
	}
	doc[model.CVEMetadataKey] = encoded

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, false
	}
	return out, true
}
