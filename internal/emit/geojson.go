// Package emit serializes the canonical dataset and the review queue.
package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/cafemap/cafemap/internal/cafemap"
)

type feature struct {
	Type       string         `json:"type"`
	Geometry   geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

// WriteDataset writes the canonical locations as a GeoJSON
// FeatureCollection, ordered by post id ascending so diffs across runs stay
// reviewable.
func WriteDataset(w io.Writer, locations []cafemap.CanonicalLocation) error {
	sorted := append([]cafemap.CanonicalLocation(nil), locations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PostID < sorted[j].PostID })

	fc := featureCollection{Type: "FeatureCollection", Features: []feature{}}
	for _, loc := range sorted {
		props := map[string]any{
			"key":             loc.Key,
			"post_id":         loc.PostID,
			"name":            loc.Name,
			"tags":            tagsOrEmpty(loc.Tags),
			"attrs":           attrsOrEmpty(loc.Attrs),
			"source_stage":    string(loc.SourceStage),
			"human_confirmed": loc.HumanConfirmed,
		}
		if loc.Address != "" {
			props["address"] = loc.Address
		}
		if loc.Permalink != "" {
			props["source"] = loc.Permalink
		}
		if loc.Thumb != "" {
			props["thumb"] = loc.Thumb
		}
		fc.Features = append(fc.Features, feature{
			Type: "Feature",
			Geometry: geometry{
				Type: "Point",
				// GeoJSON position order is longitude first.
				Coordinates: [2]float64{loc.Coordinate.Lng, loc.Coordinate.Lat},
			},
			Properties: props,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fc); err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	return nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func attrsOrEmpty(attrs map[string]any) map[string]any {
	if attrs == nil {
		return map[string]any{}
	}
	return attrs
}
