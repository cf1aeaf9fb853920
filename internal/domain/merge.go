package domain

import (
	"fmt"

	"dario.cat/mergo"

	json "github.com/eleven-am/loom/internal/xjson"
)

// MergeSettings overlays saved node settings on a node's defaults. Objects
// merge key by key with the overlay winning; any other shape replaces the
// base outright.
func MergeSettings(base, overlay json.RawMessage) (json.RawMessage, error) {
	if len(base) == 0 {
		return overlay, nil
	}

	if len(overlay) == 0 {
		return base, nil
	}

	var baseData, overlayData interface{}

	if err := json.Unmarshal(base, &baseData); err != nil {
		return nil, fmt.Errorf("merge settings: unmarshal base: %w", err)
	}

	if err := json.Unmarshal(overlay, &overlayData); err != nil {
		return nil, fmt.Errorf("merge settings: unmarshal overlay: %w", err)
	}

	baseMap, baseIsObject := baseData.(map[string]interface{})
	overlayMap, overlayIsObject := overlayData.(map[string]interface{})
	if !baseIsObject || !overlayIsObject {
		return overlay, nil
	}

	if err := mergo.Merge(&baseMap, overlayMap, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge settings: %w", err)
	}

	merged, err := json.Marshal(baseMap)
	if err != nil {
		return nil, fmt.Errorf("merge settings: marshal: %w", err)
	}
	return merged, nil
}
