package connectors

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/ortelius/versionwatch/model"
	"github.com/ortelius/versionwatch/util"
)

// DockerHubConfig is the CheckSource config for the dockerhub source type.
type DockerHubConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
}

// DockerHubParams identifies an image repository. Namespace defaults to "library".
type DockerHubParams struct {
	Namespace  string `json:"namespace"`
	Repository string `json:"repository" validate:"required"`
	Constraint string `json:"constraint" validate:"omitempty,semverconstraint"`
}

// DockerHub resolves the highest semver tag of an image.
type DockerHub struct {
	Timeout time.Duration
}

type dockerTagPage struct {
	Results []struct {
		Name        string `json:"name"`
		LastUpdated string `json:"last_updated"`
	} `json:"results"`
}

// Type implements Connector.
func (d *DockerHub) Type() string { return "dockerhub" }

// Fetch implements Connector.
func (d *DockerHub) Fetch(ctx context.Context, cfg DockerHubConfig, params DockerHubParams) (model.VersionCheckResult, error) {
	namespace := params.Namespace
	if namespace == "" {
		namespace = "library"
	}

	var page dockerTagPage
	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/v2/repositories/" +
		url.PathEscape(namespace) + "/" + url.PathEscape(params.Repository) + "/tags?page_size=100&ordering=last_updated"
	if err := getJSON(ctx, endpoint, d.Timeout, nil, &page); err != nil {
		return model.VersionCheckResult{}, err
	}

	names := make([]string, 0, len(page.Results))
	updated := make(map[string]string, len(page.Results))
	for _, tag := range page.Results {
		names = append(names, tag.Name)
		updated[tag.Name] = tag.LastUpdated
	}

	latest, err := util.LatestSemver(names, params.Constraint, false)
	if err != nil {
		return model.VersionCheckResult{}, err
	}
	if latest == "" {
		return model.VersionCheckResult{}, nil
	}

	image := params.Repository
	if namespace != "library" {
		image = namespace + "/" + params.Repository
	}

	return model.VersionCheckResult{
		Version:     latest,
		ReleaseDate: updated[latest],
		ReleaseURL:  "https://hub.docker.com/r/" + namespace + "/" + params.Repository + "/tags?name=" + url.QueryEscape(latest),
		DownloadURL: "docker.io/" + image + ":" + latest,
		RawMetadata: map[string]any{
			"tags_scanned": len(names),
		},
	}, nil
}
