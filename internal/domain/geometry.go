package domain

import (
	"encoding/json"
	"fmt"
)

// StripGeometry removes "geometry" members from a GeoJSON document: the
// top-level one and the one on each entry of "features". Other members are
// passed through untouched.
func StripGeometry(raw []byte) (json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	delete(doc, "geometry")

	if features, ok := doc["features"]; ok {
		var list []map[string]json.RawMessage
		// Non-object features are left as-is.
		if err := json.Unmarshal(features, &list); err == nil {
			for _, f := range list {
				delete(f, "geometry")
			}
			b, err := json.Marshal(list)
			if err != nil {
				return nil, fmt.Errorf("encode features: %w", err)
			}
			doc["features"] = b
		}
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode geojson: %w", err)
	}
	return out, nil
}
