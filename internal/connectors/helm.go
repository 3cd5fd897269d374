package connectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ortelius/versionwatch/model"
	"github.com/ortelius/versionwatch/util"
	"gopkg.in/yaml.v2"
)

// HelmConfig is the CheckSource config for the helm source type.
type HelmConfig struct {
	RepoURL string `json:"repo_url" validate:"required,url"`
}

// HelmParams names a chart in the repository.
type HelmParams struct {
	Chart      string `json:"chart" validate:"required"`
	Constraint string `json:"constraint" validate:"omitempty,semverconstraint"`
}

// Helm resolves the highest chart version published in a chart repository index.
type Helm struct {
	Timeout time.Duration
}

type helmIndex struct {
	Entries map[string][]helmChartVersion `yaml:"entries"`
}

type helmChartVersion struct {
	Version     string   `yaml:"version"`
	AppVersion  string   `yaml:"appVersion"`
	Created     string   `yaml:"created"`
	Description string   `yaml:"description"`
	Home        string   `yaml:"home"`
	URLs        []string `yaml:"urls"`
	Deprecated  bool     `yaml:"deprecated"`
}

// Type implements Connector.
func (h *Helm) Type() string { return "helm" }

// Fetch implements Connector.
func (h *Helm) Fetch(ctx context.Context, cfg HelmConfig, params HelmParams) (model.VersionCheckResult, error) {
	endpoint := strings.TrimRight(cfg.RepoURL, "/") + "/index.yaml"
	body, err := getBytes(ctx, endpoint, h.Timeout, nil)
	if err != nil {
		return model.VersionCheckResult{}, err
	}

	var index helmIndex
	if err := yaml.Unmarshal(body, &index); err != nil {
		return model.VersionCheckResult{}, fmt.Errorf("decoding %s: %w", endpoint, err)
	}

	entries, ok := index.Entries[params.Chart]
	if !ok {
		return model.VersionCheckResult{}, fmt.Errorf("chart %q: %w", params.Chart, ErrNotFound)
	}

	byVersion := make(map[string]helmChartVersion, len(entries))
	candidates := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Deprecated {
			continue
		}
		byVersion[e.Version] = e
		candidates = append(candidates, e.Version)
	}

	latest, err := util.LatestSemver(candidates, params.Constraint, false)
	if err != nil {
		return model.VersionCheckResult{}, err
	}
	if latest == "" {
		return model.VersionCheckResult{}, nil
	}

	chart := byVersion[latest]
	result := model.VersionCheckResult{
		Version:     latest,
		ReleaseDate: chart.Created,
		ReleaseURL:  chart.Home,
		Description: chart.Description,
		RawMetadata: map[string]any{
			"app_version": chart.AppVersion,
		},
	}
	if len(chart.URLs) > 0 {
		result.DownloadURL = chart.URLs[0]
	}
	return result, nil
}
