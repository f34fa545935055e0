// Package styledoc materializes a map layer session into a MapLibre GL
// style document that the browser viewer renders directly.
package styledoc

import (
	"fmt"
	"sync"

	"github.com/paulmach/orb"

	"github.com/spatiallens/lens/internal/session"
)

// Document is a MapLibre GL style document.
type Document struct {
	Version int               `json:"version"`
	Name    string            `json:"name,omitempty"`
	Center  []float64         `json:"center,omitempty"`
	Zoom    float64           `json:"zoom,omitempty"`
	Sources map[string]Source `json:"sources"`
	Layers  []Layer           `json:"layers"`
}

// Source is a style document source: vector tiles or a GeoJSON URL.
type Source struct {
	Type    string   `json:"type"`
	Tiles   []string `json:"tiles,omitempty"`
	Data    string   `json:"data,omitempty"`
	MinZoom int      `json:"minzoom,omitempty"`
	MaxZoom int      `json:"maxzoom,omitempty"`
}

// Layer is a style document paint layer.
type Layer struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Source      string         `json:"source"`
	SourceLayer string         `json:"source-layer,omitempty"`
	Filter      []any          `json:"filter,omitempty"`
	Layout      map[string]any `json:"layout,omitempty"`
	Paint       map[string]any `json:"paint,omitempty"`
}

// Viewport is the most recent fit-bounds request, consumed by the viewer to
// animate the camera.
type Viewport struct {
	Bounds  [4]float64 `json:"bounds"` // [minX, minY, maxX, maxY]
	Padding int        `json:"padding"`
}

// Engine implements session.Engine by keeping the style document in memory.
// Layer order is insertion order, matching the map engine's paint order.
type Engine struct {
	name   string
	center []float64
	zoom   float64

	mu       sync.RWMutex
	sources  map[string]Source
	layers   []Layer
	viewport *Viewport
	revision uint64
}

// NewEngine creates an empty style engine. Center and zoom seed the
// document's initial camera.
func NewEngine(name string, center [2]float64, zoom float64) *Engine {
	return &Engine{
		name:    name,
		center:  []float64{center[0], center[1]},
		zoom:    zoom,
		sources: make(map[string]Source),
	}
}

// AddSource implements session.Engine.
func (e *Engine) AddSource(id string, spec session.SourceSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.sources[id]; exists {
		return fmt.Errorf("source %q already exists", id)
	}
	e.sources[id] = Source{
		Type:    spec.Type,
		Tiles:   append([]string(nil), spec.Tiles...),
		Data:    spec.Data,
		MinZoom: spec.MinZoom,
		MaxZoom: spec.MaxZoom,
	}
	e.revision++
	return nil
}

// RemoveSource implements session.Engine. Removing a source still referenced
// by a layer is an error, mirroring the map engine's contract.
func (e *Engine) RemoveSource(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.sources[id]; !exists {
		return fmt.Errorf("source %q not found", id)
	}
	for _, l := range e.layers {
		if l.Source == id {
			return fmt.Errorf("source %q is still in use by layer %q", id, l.ID)
		}
	}
	delete(e.sources, id)
	e.revision++
	return nil
}

// HasSource implements session.Engine.
func (e *Engine) HasSource(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.sources[id]
	return ok
}

// AddLayer implements session.Engine.
func (e *Engine) AddLayer(spec session.LayerSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.indexOf(spec.ID) >= 0 {
		return fmt.Errorf("layer %q already exists", spec.ID)
	}
	if _, ok := e.sources[spec.Source]; !ok {
		return fmt.Errorf("layer %q references unknown source %q", spec.ID, spec.Source)
	}
	e.layers = append(e.layers, Layer{
		ID:          spec.ID,
		Type:        spec.Type,
		Source:      spec.Source,
		SourceLayer: spec.SourceLayer,
		Filter:      append([]any(nil), spec.Filter...),
		Layout:      copyMap(spec.Layout),
		Paint:       copyMap(spec.Paint),
	})
	e.revision++
	return nil
}

// RemoveLayer implements session.Engine.
func (e *Engine) RemoveLayer(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexOf(id)
	if i < 0 {
		return fmt.Errorf("layer %q not found", id)
	}
	e.layers = append(e.layers[:i], e.layers[i+1:]...)
	e.revision++
	return nil
}

// HasLayer implements session.Engine.
func (e *Engine) HasLayer(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.indexOf(id) >= 0
}

// SetPaintProperty implements session.Engine.
func (e *Engine) SetPaintProperty(layerID, name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexOf(layerID)
	if i < 0 {
		return fmt.Errorf("layer %q not found", layerID)
	}
	if e.layers[i].Paint == nil {
		e.layers[i].Paint = make(map[string]any)
	}
	e.layers[i].Paint[name] = value
	e.revision++
	return nil
}

// SetLayoutProperty implements session.Engine.
func (e *Engine) SetLayoutProperty(layerID, name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexOf(layerID)
	if i < 0 {
		return fmt.Errorf("layer %q not found", layerID)
	}
	if e.layers[i].Layout == nil {
		e.layers[i].Layout = make(map[string]any)
	}
	e.layers[i].Layout[name] = value
	e.revision++
	return nil
}

// SetFilter implements session.Engine.
func (e *Engine) SetFilter(layerID string, filter []any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexOf(layerID)
	if i < 0 {
		return fmt.Errorf("layer %q not found", layerID)
	}
	e.layers[i].Filter = append([]any(nil), filter...)
	e.revision++
	return nil
}

// FitBounds implements session.Engine by recording the requested viewport.
func (e *Engine) FitBounds(bound orb.Bound, padding int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewport = &Viewport{
		Bounds:  [4]float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]},
		Padding: padding,
	}
	e.revision++
}

// Snapshot returns a copy of the current style document.
func (e *Engine) Snapshot() Document {
	e.mu.RLock()
	defer e.mu.RUnlock()

	doc := Document{
		Version: 8,
		Name:    e.name,
		Center:  append([]float64(nil), e.center...),
		Zoom:    e.zoom,
		Sources: make(map[string]Source, len(e.sources)),
		Layers:  make([]Layer, 0, len(e.layers)),
	}
	for id, src := range e.sources {
		src.Tiles = append([]string(nil), src.Tiles...)
		doc.Sources[id] = src
	}
	for _, l := range e.layers {
		l.Filter = append([]any(nil), l.Filter...)
		l.Layout = copyMap(l.Layout)
		l.Paint = copyMap(l.Paint)
		doc.Layers = append(doc.Layers, l)
	}
	return doc
}

// Viewport returns the most recent fit-bounds request, or nil.
func (e *Engine) Viewport() *Viewport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.viewport == nil {
		return nil
	}
	v := *e.viewport
	return &v
}

// Revision increments on every mutation; the viewer uses it to detect
// changes between SSE ticks.
func (e *Engine) Revision() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.revision
}

// indexOf requires the caller to hold the lock.
func (e *Engine) indexOf(id string) int {
	for i, l := range e.layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
