package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"github.com/Swrve/swrve-smarttv-sdk/internal/storage"
)

// TransformDiff splits a resources diff into the old and new attribute maps,
// each keyed by resource uid.
func TransformDiff(diffs []models.ResourceDiff) (old, updated map[string]models.Resource) {
	old = make(map[string]models.Resource, len(diffs))
	updated = make(map[string]models.Resource, len(diffs))
	for _, d := range diffs {
		o := make(models.Resource, len(d.Diff))
		n := make(models.Resource, len(d.Diff))
		for key, v := range d.Diff {
			o[key] = v.Old
			n[key] = v.New
		}
		old[d.UID] = o
		updated[d.UID] = n
	}
	return old, updated
}

// StoreDiff persists the last fetched diff of userID with a checksum.
func StoreDiff(ctx context.Context, store *storage.Store, userID string, diffs []models.ResourceDiff) error {
	b, err := json.Marshal(diffs)
	if err != nil {
		return fmt.Errorf("failed to encode resources diff: %w", err)
	}
	return store.SetChecked(ctx, storage.ResourcesDiffKey(userID), string(b))
}

// LoadDiff returns the last stored diff of userID, or an empty one.
func LoadDiff(ctx context.Context, store *storage.Store, userID string) []models.ResourceDiff {
	raw, err := store.GetChecked(ctx, storage.ResourcesDiffKey(userID))
	if err != nil || raw == "" {
		return []models.ResourceDiff{}
	}
	var diffs []models.ResourceDiff
	if err := json.Unmarshal([]byte(raw), &diffs); err != nil {
		return []models.ResourceDiff{}
	}
	return diffs
}
