package session

import "github.com/paulmach/orb"

// SourceSpec describes a map source to create.
type SourceSpec struct {
	Type    string   // "vector" or "geojson"
	Tiles   []string // tile URL templates, vector sources only
	Data    string   // GeoJSON URL, geojson sources only
	MinZoom int
	MaxZoom int
}

// LayerSpec describes a paint layer to create.
type LayerSpec struct {
	ID          string
	Type        string // "fill" or "line"
	Source      string
	SourceLayer string
	Paint       map[string]any
	Layout      map[string]any
	Filter      []any
}

// Engine is the handle to the underlying map. The session owns every source
// and layer it creates through this interface; no other component mutates
// them. Implementations return an error for unknown ids; the session decides
// which failures to swallow.
type Engine interface {
	AddSource(id string, spec SourceSpec) error
	RemoveSource(id string) error
	HasSource(id string) bool

	AddLayer(spec LayerSpec) error
	RemoveLayer(id string) error
	HasLayer(id string) bool

	SetPaintProperty(layerID, name string, value any) error
	SetLayoutProperty(layerID, name string, value any) error
	SetFilter(layerID string, filter []any) error

	// FitBounds animates the viewport to the bound with uniform padding.
	FitBounds(bound orb.Bound, padding int)
}
