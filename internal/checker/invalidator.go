package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ortelius/versionwatch/model"
)

// Invalidator clears an item's vulnerability and risk-score fields once the drift that
// justified them is gone.
type Invalidator struct {
	store Store
	now   func() time.Time
}

// Invalidate clears the security fields of item in one update.
func (inv *Invalidator) Invalidate(ctx context.Context, item *model.MonitoredItem) error {
	if err := inv.store.UpdateItem(ctx, item.Key, InvalidationPatch(item.RawMetadata, inv.now())); err != nil {
		return fmt.Errorf("clearing security data for %s: %w", item.Name, err)
	}
	return nil
}

// InvalidationPatch builds the update that empties every security-score field and drops
// cve_metadata from rawMetadata. Unparseable metadata is left untouched.
func InvalidationPatch(rawMetadata json.RawMessage, now time.Time) model.ItemPatch {
	patch := model.ItemPatch{
		"cves":              []string{},
		"security_state":    model.SecurityStateNone,
		"external_score":    nil,
		"external_severity": nil,
		"external_vector":   nil,
		"external_source":   nil,
		"epss_percent":      nil,
		"vpr_score":         nil,
		"internal_score":    nil,
		"internal_severity": nil,
		"score_confidence":  nil,
		"score_updated_at":  now.UTC(),
	}

	if stripped, ok := withoutCVEMetadata(rawMetadata); ok {
		patch["raw_metadata"] = stripped
	}
	return patch
}

// withoutCVEMetadata returns rawMetadata minus its cve_metadata key. ok is false when
// there is nothing to rewrite or the metadata is not a JSON object.
func withoutCVEMetadata(rawMetadata json.RawMessage) (json.RawMessage, bool) {
	if len(rawMetadata) == 0 {
		return nil, false
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(rawMetadata, &doc); err != nil || doc == nil {
		return nil, false
	}
	if _, present := doc[model.CVEMetadataKey]; !present {
		return nil, false
	}
	delete(doc, model.CVEMetadataKey)

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, false
	}
	return out, true
}
