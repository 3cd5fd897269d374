package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	npm "github.com/aquasecurity/go-npm-version/pkg"
	"github.com/ortelius/versionwatch/model"
	"github.com/ortelius/versionwatch/util"
)

// NPMConfig is the CheckSource config for the npm source type.
type NPMConfig struct {
	RegistryURL string `json:"registry_url" validate:"required,url"`
}

// NPMParams names a package directly or through its PURL.
type NPMParams struct {
	Package string `json:"package" validate:"required_without=Purl"`
	Purl    string `json:"purl" validate:"omitempty,startswith=pkg:npm/"`
}

// NPM resolves the latest published version of an npm package.
type NPM struct {
	Timeout time.Duration
}

type npmPackument struct {
	Description string            `json:"description"`
	Homepage    string            `json:"homepage"`
	DistTags    map[string]string `json:"dist-tags"`
	Time        map[string]string `json:"time"`
	Versions    map[string]struct {
		Dist struct {
			Tarball string `json:"tarball"`
		} `json:"dist"`
	} `json:"versions"`
}

// Type implements Connector.
func (n *NPM) Type() string { return "npm" }

// Fetch implements Connector.
func (n *NPM) Fetch(ctx context.Context, cfg NPMConfig, params NPMParams) (model.VersionCheckResult, error) {
	name, err := packageFromParams(params.Package, params.Purl)
	if err != nil {
		return model.VersionCheckResult{}, err
	}

	var doc npmPackument
	endpoint := strings.TrimRight(cfg.RegistryURL, "/") + "/" + url.PathEscape(name)
	if err := getJSON(ctx, endpoint, n.Timeout, map[string]string{"Accept": "application/json"}, &doc); err != nil {
		return model.VersionCheckResult{}, err
	}

	latest := doc.DistTags["latest"]
	if latest == "" {
		latest = maxStableNPM(doc)
	}
	if latest == "" {
		return model.VersionCheckResult{}, nil
	}

	return model.VersionCheckResult{
		Version:     latest,
		ReleaseDate: doc.Time[latest],
		ReleaseURL:  "https://www.npmjs.com/package/" + name + "/v/" + latest,
		Description: doc.Description,
		DownloadURL: doc.Versions[latest].Dist.Tarball,
		RawMetadata: map[string]any{
			"homepage":  doc.Homepage,
			"dist_tags": doc.DistTags,
		},
	}, nil
}

func maxStableNPM(doc npmPackument) string {
	var best npm.Version
	bestRaw := ""
	for raw := range doc.Versions {
		if strings.Contains(raw, "-") {
			continue
		}
		v, err := npm.NewVersion(raw)
		if err != nil {
			continue
		}
		if bestRaw == "" || v.GreaterThan(best) {
			best = v
			bestRaw = raw
		}
	}
	return bestRaw
}

// packageFromParams returns the explicit package name or the one carried by a PURL.
func packageFromParams(pkg, purl string) (string, error) {
	if pkg = strings.TrimSpace(pkg); pkg != "" {
		return pkg, nil
	}
	if purl == "" {
		return "", errors.New("no package name or purl")
	}
	parsed, err := util.ParsePURL(purl)
	if err != nil {
		return "", fmt.Errorf("parsing purl %q: %w", purl, err)
	}
	return util.PackageName(parsed), nil
}
