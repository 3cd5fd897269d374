package connectors

import (
	"github.com/ortelius/versionwatch/config"
	"go.uber.org/zap"
)

// NewDefaultRegistry registers the built-in catalogs. github, npm, pypi and dockerhub are
// also reachable from legacy check_config blobs.
func NewDefaultRegistry(logger *zap.Logger, cfg config.SourcesConfig) *Registry {
	r := NewRegistry(logger)
	timeout := cfg.FetchTimeout

	Register[GitHubConfig, GitHubParams](r, &GitHub{Timeout: timeout},
		GitHubConfig{APIURL: cfg.GitHubAPI, Token: cfg.GitHubToken}, Legacy())
	Register[NPMConfig, NPMParams](r, &NPM{Timeout: timeout},
		NPMConfig{RegistryURL: cfg.NPMRegistry}, Legacy())
	Register[PyPIConfig, PyPIParams](r, &PyPI{Timeout: timeout},
		PyPIConfig{BaseURL: cfg.PyPIURL}, Legacy())
	Register[DockerHubConfig, DockerHubParams](r, &DockerHub{Timeout: timeout},
		DockerHubConfig{BaseURL: cfg.DockerHubURL}, Legacy())
	Register[EndOfLifeConfig, EndOfLifeParams](r, &EndOfLife{Timeout: timeout},
		EndOfLifeConfig{BaseURL: cfg.EndOfLifeURL})
	Register[HelmConfig, HelmParams](r, &Helm{Timeout: timeout}, HelmConfig{})

	return r
}
