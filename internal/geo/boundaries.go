// Package geo loads country boundary polygons and derives map geometry from them.
package geo

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang/geo/s2"
)

// FeatureCollection is the subset of GeoJSON the map needs.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one country polygon; ID is the ISO alpha-3 code.
type Feature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Properties map[string]any `json:"properties"`
	Geometry   Geometry       `json:"geometry"`
}

// Geometry keeps coordinates raw so they are re-emitted unchanged.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Boundaries indexes features by alpha-3 code.
type Boundaries struct {
	features map[string]Feature
	bounds   map[string]s2.Rect
	labels   map[string]s2.LatLng
}

// Load reads a boundaries file from disk.
func Load(path string) (*Boundaries, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boundaries: %w", err)
	}
	return Parse(data)
}

// Parse decodes a GeoJSON FeatureCollection. Features without an id are dropped.
func Parse(data []byte) (*Boundaries, error) {
	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode boundaries: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("decode boundaries: expected a FeatureCollection, got %q", fc.Type)
	}

	b := &Boundaries{
		features: make(map[string]Feature, len(fc.Features)),
		bounds:   make(map[string]s2.Rect, len(fc.Features)),
		labels:   make(map[string]s2.LatLng, len(fc.Features)),
	}
	for _, f := range fc.Features {
		if f.ID == "" {
			continue
		}
		polygons, err := f.Geometry.polygons()
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", f.ID, err)
		}
		bound := s2.EmptyRect()
		largest := s2.EmptyRect()
		for _, rings := range polygons {
			if len(rings) == 0 {
				continue
			}
			// The outer ring bounds the polygon; holes never extend it.
			r := ringRect(rings[0])
			bound = bound.Union(r)
			if largest.IsEmpty() || r.Area() > largest.Area() {
				largest = r
			}
		}
		b.features[f.ID] = f
		b.bounds[f.ID] = bound
		if !largest.IsEmpty() {
			b.labels[f.ID] = largest.Center()
		}
	}
	return b, nil
}

func ringRect(ring [][]float64) s2.Rect {
	rect := s2.EmptyRect()
	for _, pt := range ring {
		if len(pt) < 2 {
			continue
		}
		rect = rect.AddPoint(s2.LatLngFromDegrees(pt[1], pt[0]))
	}
	return rect
}

// polygons normalizes Polygon and MultiPolygon coordinates to a list of polygons.
func (g Geometry) polygons() ([][][][]float64, error) {
	switch g.Type {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("decode polygon: %w", err)
		}
		return [][][][]float64{rings}, nil
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return nil, fmt.Errorf("decode multipolygon: %w", err)
		}
		return polys, nil
	default:
		return nil, fmt.Errorf("unsupported geometry %q", g.Type)
	}
}

// Len returns the number of indexed features.
func (b *Boundaries) Len() int { return len(b.features) }

// Feature returns a copy of the feature for alpha3 with its own properties map.
func (b *Boundaries) Feature(alpha3 string) (Feature, bool) {
	f, ok := b.features[alpha3]
	if !ok {
		return Feature{}, false
	}
	props := make(map[string]any, len(f.Properties))
	for k, v := range f.Properties {
		props[k] = v
	}
	f.Properties = props
	return f, true
}

// LabelPoint returns a point inside the bounding box of the country's largest polygon.
func (b *Boundaries) LabelPoint(alpha3 string) (s2.LatLng, bool) {
	ll, ok := b.labels[alpha3]
	return ll, ok
}

// Bounds returns the rectangle covering every listed feature. Unknown ids are ignored.
func (b *Boundaries) Bounds(alpha3s ...string) s2.Rect {
	rect := s2.EmptyRect()
	for _, id := range alpha3s {
		if r, ok := b.bounds[id]; ok {
			rect = rect.Union(r)
		}
	}
	return rect
}

// LatLngBounds converts a rectangle to [[south, west], [north, east]] degrees.
// A rectangle crossing the antimeridian gets an east edge above 180 so that
// west < east always holds.
func LatLngBounds(r s2.Rect) [2][2]float64 {
	west, east := r.Lo().Lng.Degrees(), r.Hi().Lng.Degrees()
	if r.Lng.IsInverted() {
		east += 360
	}
	return [2][2]float64{
		{r.Lo().Lat.Degrees(), west},
		{r.Hi().Lat.Degrees(), east},
	}
}
