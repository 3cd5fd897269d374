package connectors

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ortelius/versionwatch/model"
	"github.com/ortelius/versionwatch/util"
)

// GitHubConfig is the CheckSource config for the github source type.
type GitHubConfig struct {
	APIURL string `json:"api_url" validate:"required,url"`
	Token  string `json:"token"`
}

// GitHubParams identifies a repository.
type GitHubParams struct {
	Owner string `json:"owner" validate:"required"`
	Repo  string `json:"repo" validate:"required"`
	// UseTags resolves from the tag list instead of the latest release, for projects
	// that tag without publishing GitHub releases.
	UseTags    bool   `json:"use_tags"`
	Constraint string `json:"constraint" validate:"omitempty,semverconstraint"`
}

// GitHub resolves the latest release of a repository.
type GitHub struct {
	Timeout time.Duration
}

type githubRelease struct {
	TagName     string `json:"tag_name"`
	Name        string `json:"name"`
	Body        string `json:"body"`
	HTMLURL     string `json:"html_url"`
	PublishedAt string `json:"published_at"`
	Prerelease  bool   `json:"prerelease"`
	Draft       bool   `json:"draft"`
	TarballURL  string `json:"tarball_url"`
	Assets      []struct {
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

type githubTag struct {
	Name string `json:"name"`
}

// Type implements Connector.
func (g *GitHub) Type() string { return "github" }

// Fetch implements Connector.
func (g *GitHub) Fetch(ctx context.Context, cfg GitHubConfig, params GitHubParams) (model.VersionCheckResult, error) {
	base := strings.TrimRight(cfg.APIURL, "/")
	repoPath := url.PathEscape(params.Owner) + "/" + url.PathEscape(params.Repo)

	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}

	if params.UseTags || params.Constraint != "" {
		return g.fromTags(ctx, base+"/repos/"+repoPath+"/tags?per_page=100", headers, params)
	}

	var rel githubRelease
	if err := getJSON(ctx, base+"/repos/"+repoPath+"/releases/latest", g.Timeout, headers, &rel); err != nil {
		return model.VersionCheckResult{}, err
	}
	if rel.TagName == "" {
		return model.VersionCheckResult{}, fmt.Errorf("%s/%s: latest release has no tag", params.Owner, params.Repo)
	}

	result := model.VersionCheckResult{
		Version:      util.NormalizeVersion(util.CleanVersion(rel.TagName)),
		ReleaseNotes: rel.Body,
		ReleaseDate:  rel.PublishedAt,
		ReleaseURL:   rel.HTMLURL,
		Description:  rel.Name,
		DownloadURL:  rel.TarballURL,
		RawMetadata: map[string]any{
			"tag_name":   rel.TagName,
			"prerelease": rel.Prerelease,
		},
	}
	if len(rel.Assets) > 0 {
		result.DownloadURL = rel.Assets[0].BrowserDownloadURL
	}
	return result, nil
}

func (g *GitHub) fromTags(ctx context.Context, tagsURL string, headers map[string]string, params GitHubParams) (model.VersionCheckResult, error) {
	var tags []githubTag
	if err := getJSON(ctx, tagsURL, g.Timeout, headers, &tags); err != nil {
		return model.VersionCheckResult{}, err
	}

	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}

	latest, err := util.LatestSemver(names, params.Constraint, false)
	if err != nil {
		return model.VersionCheckResult{}, err
	}
	if latest == "" {
		return model.VersionCheckResult{}, nil
	}

	return model.VersionCheckResult{
		Version:    util.NormalizeVersion(util.CleanVersion(latest)),
		ReleaseURL: fmt.Sprintf("https://github.com/%s/%s/releases/tag/%s", params.Owner, params.Repo, url.PathEscape(latest)),
		RawMetadata: map[string]any{
			"tag_name": latest,
		},
	}, nil
}
