package connectors

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	pep440 "github.com/aquasecurity/go-pep440-version"
	"github.com/ortelius/versionwatch/model"
)

// PyPIConfig is the CheckSource config for the pypi source type.
type PyPIConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
}

// PyPIParams names a project directly or through its PURL.
type PyPIParams struct {
	Package string `json:"package" validate:"required_without=Purl"`
	Purl    string `json:"purl" validate:"omitempty,startswith=pkg:pypi/"`
}

// PyPI resolves the highest stable release of a Python project.
type PyPI struct {
	Timeout time.Duration
}

type pypiFile struct {
	UploadTime string `json:"upload_time_iso_8601"`
	URL        string `json:"url"`
	Yanked     bool   `json:"yanked"`
}

type pypiProject struct {
	Info struct {
		Version     string            `json:"version"`
		Summary     string            `json:"summary"`
		HomePage    string            `json:"home_page"`
		ProjectURLs map[string]string `json:"project_urls"`
	} `json:"info"`
	Releases map[string][]pypiFile `json:"releases"`
}

// Type implements Connector.
func (p *PyPI) Type() string { return "pypi" }

// Fetch implements Connector.
func (p *PyPI) Fetch(ctx context.Context, cfg PyPIConfig, params PyPIParams) (model.VersionCheckResult, error) {
	name, err := packageFromParams(params.Package, params.Purl)
	if err != nil {
		return model.VersionCheckResult{}, err
	}

	name = normalizePyPIName(name)

	var doc pypiProject
	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/pypi/" + url.PathEscape(name) + "/json"
	if err := getJSON(ctx, endpoint, p.Timeout, nil, &doc); err != nil {
		return model.VersionCheckResult{}, err
	}

	latest := maxStablePyPI(doc.Releases)
	if latest == "" {
		latest = doc.Info.Version
	}
	if latest == "" {
		return model.VersionCheckResult{}, nil
	}

	result := model.VersionCheckResult{
		Version:     latest,
		ReleaseURL:  "https://pypi.org/project/" + name + "/" + latest + "/",
		Description: doc.Info.Summary,
		RawMetadata: map[string]any{
			"home_page":    doc.Info.HomePage,
			"project_urls": doc.Info.ProjectURLs,
		},
	}
	if files := doc.Releases[latest]; len(files) > 0 {
		result.ReleaseDate = files[0].UploadTime
		result.DownloadURL = files[0].URL
	}
	return result, nil
}

var pypiSeparators = regexp.MustCompile(`[-_.]+`)

// normalizePyPIName applies PEP 503 name normalization.
func normalizePyPIName(name string) string {
	return pypiSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// maxStablePyPI picks the highest release by PEP 440 that is neither a prerelease
// nor fully yanked.
func maxStablePyPI(releases map[string][]pypiFile) string {
	var best pep440.Version
	bestRaw := ""
	for raw, files := range releases {
		if len(files) == 0 || allYanked(files) {
			continue
		}
		v, err := pep440.Parse(raw)
		if err != nil || v.IsPreRelease() {
			continue
		}
		if bestRaw == "" || v.GreaterThan(best) {
			best = v
			bestRaw = raw
		}
	}
	return bestRaw
}

func allYanked(files []pypiFile) bool {
	for _, f := range files {
		if !f.Yanked {
			return false
		}
	}
	return true
}
