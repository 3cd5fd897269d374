package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ortelius/versionwatch/model"
)

// EndOfLifeConfig is the CheckSource config for the endoflife source type.
type EndOfLifeConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
}

// EndOfLifeParams selects a product and optionally one release cycle.
// Without a cycle the newest cycle is used.
type EndOfLifeParams struct {
	Product string `json:"product" validate:"required"`
	Cycle   string `json:"cycle"`
}

// EndOfLife resolves the latest patch release and support dates of a product cycle
// from an endoflife.date compatible catalog.
type EndOfLife struct {
	Timeout time.Duration
}

// eolCycle mirrors one cycle entry. Several fields are either a date string or a boolean.
type eolCycle struct {
	Cycle             json.RawMessage `json:"cycle"`
	Latest            string          `json:"latest"`
	LatestReleaseDate string          `json:"latestReleaseDate"`
	ReleaseDate       string          `json:"releaseDate"`
	EOL               json.RawMessage `json:"eol"`
	LTS               json.RawMessage `json:"lts"`
	Support           json.RawMessage `json:"support"`
	Link              *string         `json:"link"`
}

// Type implements Connector.
func (e *EndOfLife) Type() string { return "endoflife" }

// Fetch implements Connector.
func (e *EndOfLife) Fetch(ctx context.Context, cfg EndOfLifeConfig, params EndOfLifeParams) (model.VersionCheckResult, error) {
	var cycles []eolCycle
	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/api/" + url.PathEscape(params.Product) + ".json"
	if err := getJSON(ctx, endpoint, e.Timeout, nil, &cycles); err != nil {
		return model.VersionCheckResult{}, err
	}
	if len(cycles) == 0 {
		return model.VersionCheckResult{}, nil
	}

	selected := &cycles[0]
	if params.Cycle != "" {
		selected = nil
		for i := range cycles {
			if rawScalar(cycles[i].Cycle) == params.Cycle {
				selected = &cycles[i]
				break
			}
		}
		if selected == nil {
			return model.VersionCheckResult{}, fmt.Errorf("%s: cycle %q not found", params.Product, params.Cycle)
		}
	}

	result := model.VersionCheckResult{
		Version:     selected.Latest,
		ReleaseDate: selected.LatestReleaseDate,
		EOLDate:     rawScalar(selected.EOL),
		IsLTS:       ltsFlag(selected.LTS, time.Now()),
		RawMetadata: map[string]any{
			"cycle":   rawScalar(selected.Cycle),
			"support": rawScalar(selected.Support),
		},
	}
	if selected.Link != nil {
		result.ReleaseURL = *selected.Link
	}
	return result, nil
}

// rawScalar renders a JSON string, number or boolean as plain text; "" otherwise.
func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

// ltsFlag reads "lts", which is a boolean or the date the cycle became LTS.
func ltsFlag(raw json.RawMessage, now time.Time) *bool {
	if len(raw) == 0 {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return &b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			lts := !t.After(now)
			return &lts
		}
	}
	return nil
}
