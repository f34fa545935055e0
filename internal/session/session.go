// Package session implements the map layer session: the state machine that
// turns catalog descriptors into live, styled, interactive map layers and
// keeps visibility, highlight and style state consistent while layers are
// added, removed, toggled and styled.
package session

import (
	"context"
	"sync"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/spatiallens/lens/internal/backend"
	"github.com/spatiallens/lens/internal/inspect"
	"github.com/spatiallens/lens/internal/state"
)

// StyleResolver resolves per-layer paint styles. Implementations never fail;
// they fall back to a default style instead.
type StyleResolver interface {
	Resolve(ctx context.Context, slug string) backend.LayerStyle
	Invalidate(slug string)
}

// BBoxResolver resolves per-layer bounding boxes. A nil result means "leave
// the viewport unchanged".
type BBoxResolver interface {
	Resolve(ctx context.Context, slug string) *backend.BBox
}

// AddedLayer is a catalog descriptor that is live in the session.
type AddedLayer struct {
	backend.LayerDescriptor
	Kind string `json:"kind"` // currently always "mvt"
}

// ClickedFeature carries the map engine's view of a clicked feature into the
// session.
type ClickedFeature struct {
	Slug       string
	LayerName  string
	ID         any // engine-assigned feature id, may be nil
	Properties map[string]any
	Geometry   orb.Geometry
	LngLat     orb.Point
}

// Config wires a Session.
type Config struct {
	Engine Engine
	Styles StyleResolver
	BBoxes BBoxResolver
	Store  *state.Store // optional; enables the handoff add on Start

	// TileURL builds the vector tile template URL for a slug.
	TileURL func(slug string) string
	// BoundaryURL locates the administrative-boundary overlay GeoJSON.
	BoundaryURL string
	// FitPadding is the viewport padding for Focus, in pixels.
	FitPadding int

	Logger zerolog.Logger
}

// Session is the map layer session. All public operations are safe for
// concurrent use; async style/bbox completions re-enter through the same
// lock and are discarded when stale.
type Session struct {
	engine      Engine
	styles      StyleResolver
	bboxes      BBoxResolver
	store       *state.Store
	bus         *Bus
	log         zerolog.Logger
	tileURL     func(slug string) string
	boundaryURL string
	fitPadding  int

	mu         sync.Mutex
	added      []AddedLayer
	visible    map[string]bool
	gen        map[string]uint64
	popup      *inspect.PopupInfo
	boundaryOn bool

	wg sync.WaitGroup
}

// Deterministic map-primitive ids per layer slug.
func sourceID(slug string) string    { return "mvt-src-" + slug }
func fillID(slug string) string      { return "mvt-fill-" + slug }
func lineID(slug string) string      { return "mvt-line-" + slug }
func highlightID(slug string) string { return "mvt-highlight-" + slug }

// Boundary overlay primitives.
const (
	boundarySourceID = "admin-boundary-src"
	boundaryFillID   = "admin-boundary-fill"
	boundaryLineID   = "admin-boundary-line"
)

// emptyFilter matches no features.
func emptyFilter() []any { return []any{"==", "id", ""} }

// New creates a session around the given engine and resolvers.
func New(cfg Config) *Session {
	padding := cfg.FitPadding
	if padding <= 0 {
		padding = 40
	}
	tileURL := cfg.TileURL
	if tileURL == nil {
		tileURL = func(string) string { return "" }
	}
	return &Session{
		engine:      cfg.Engine,
		styles:      cfg.Styles,
		bboxes:      cfg.BBoxes,
		store:       cfg.Store,
		bus:         NewBus(),
		log:         cfg.Logger,
		tileURL:     tileURL,
		boundaryURL: cfg.BoundaryURL,
		fitPadding:  padding,
		visible:     make(map[string]bool),
		gen:         make(map[string]uint64),
	}
}

// Bus returns the session event bus.
func (s *Session) Bus() *Bus { return s.bus }

// Start boots the session: it creates the boundary overlay primitives and
// consumes the one-shot handoff record, adding its layer if present. The
// record is cleared even when unusable.
func (s *Session) Start(ctx context.Context) {
	s.EnsureBoundary()

	if s.store == nil {
		return
	}
	p := s.store.TakePendingAdd()
	if p == nil || p.Slug == "" {
		return
	}
	s.Add(ctx, backend.LayerDescriptor{
		Name:    p.Name,
		Slug:    p.Slug,
		MinZoom: p.MinZoom,
		MaxZoom: p.MaxZoom,
	})
}

// Add creates the map primitives for a descriptor: one vector source and
// fill, line and highlight layers, initially painted with the default style.
// Style and bbox resolution run asynchronously and are applied when they
// complete. Adding an already-added slug is a no-op.
func (s *Session) Add(ctx context.Context, d backend.LayerDescriptor) {
	d = backend.Normalize(d)
	slug := d.Slug
	def := backend.DefaultStyle()

	s.mu.Lock()
	if s.engine.HasSource(sourceID(slug)) {
		s.mu.Unlock()
		return
	}

	if err := s.engine.AddSource(sourceID(slug), SourceSpec{
		Type:    "vector",
		Tiles:   []string{s.tileURL(slug)},
		MinZoom: d.MinZoom,
		MaxZoom: d.MaxZoom,
	}); err != nil {
		s.mu.Unlock()
		s.log.Error().Err(err).Str("slug", slug).Msg("add source failed")
		return
	}

	_ = s.engine.AddLayer(LayerSpec{
		ID:          fillID(slug),
		Type:        "fill",
		Source:      sourceID(slug),
		SourceLayer: slug,
		Paint: map[string]any{
			"fill-color":   def.FillColor,
			"fill-opacity": def.FillOpacity,
		},
		Layout: map[string]any{"visibility": "visible"},
	})
	_ = s.engine.AddLayer(LayerSpec{
		ID:          lineID(slug),
		Type:        "line",
		Source:      sourceID(slug),
		SourceLayer: slug,
		Paint: map[string]any{
			"line-color": def.LineColor,
			"line-width": def.LineWidth,
		},
		Layout: map[string]any{"visibility": "visible"},
	})
	_ = s.engine.AddLayer(LayerSpec{
		ID:          highlightID(slug),
		Type:        "line",
		Source:      sourceID(slug),
		SourceLayer: slug,
		Paint: map[string]any{
			"line-color": "#1e5a8e",
			"line-width": 4,
		},
		Layout: map[string]any{"visibility": "visible"},
		Filter: emptyFilter(),
	})

	s.added = append(s.added, AddedLayer{LayerDescriptor: d, Kind: "mvt"})
	s.visible[slug] = true
	s.gen[slug]++
	gen := s.gen[slug]
	s.mu.Unlock()

	s.bus.Publish(Event{Type: EventLayerAdded, Slug: slug})

	// Resolutions outlive the caller: a canceled request context must not
	// abort the style fetch and memoize the fallback. Staleness is handled
	// by the generation counter, never by cancellation.
	rctx := context.WithoutCancel(ctx)

	s.wg.Add(2)
	go s.resolveStyle(rctx, slug, gen)
	go s.resolveBBox(rctx, slug, gen)
}

// resolveStyle applies the resolved style to the layer's paint primitives,
// unless the layer generation changed while the fetch was in flight.
func (s *Session) resolveStyle(ctx context.Context, slug string, gen uint64) {
	defer s.wg.Done()

	style := s.styles.Resolve(ctx, slug)

	s.mu.Lock()
	if s.gen[slug] != gen {
		s.mu.Unlock()
		s.log.Debug().Str("slug", slug).Msg("discarding stale style resolution")
		return
	}
	s.applyStyleLocked(slug, style)
	s.mu.Unlock()

	s.bus.Publish(Event{Type: EventStyleResolved, Slug: slug})
}

// resolveBBox pre-warms the bbox cache for later Focus calls.
func (s *Session) resolveBBox(ctx context.Context, slug string, gen uint64) {
	defer s.wg.Done()

	box := s.bboxes.Resolve(ctx, slug)

	s.mu.Lock()
	stale := s.gen[slug] != gen
	s.mu.Unlock()
	if stale {
		s.log.Debug().Str("slug", slug).Msg("discarding stale bbox resolution")
		return
	}
	if box != nil {
		s.bus.Publish(Event{Type: EventBBoxResolved, Slug: slug})
	}
}

func (s *Session) applyStyleLocked(slug string, style backend.LayerStyle) {
	fillColor := any(style.FillColor)
	if style.FillExpression != nil {
		fillColor = []any(style.FillExpression)
	}
	lineColor := any(style.LineColor)
	if style.LineExpression != nil {
		lineColor = []any(style.LineExpression)
	}

	if s.engine.HasLayer(fillID(slug)) {
		_ = s.engine.SetPaintProperty(fillID(slug), "fill-color", fillColor)
		_ = s.engine.SetPaintProperty(fillID(slug), "fill-opacity", style.FillOpacity)
	}
	if s.engine.HasLayer(lineID(slug)) {
		_ = s.engine.SetPaintProperty(lineID(slug), "line-color", lineColor)
		_ = s.engine.SetPaintProperty(lineID(slug), "line-width", style.LineWidth)
	}
}

// Remove tears down the layer's paint layers and source, children before
// parent. Partially-initialized layers are still removable; removing an
// unknown slug is a no-op.
func (s *Session) Remove(slug string) {
	s.mu.Lock()

	for _, id := range []string{highlightID(slug), fillID(slug), lineID(slug)} {
		if s.engine.HasLayer(id) {
			_ = s.engine.RemoveLayer(id)
		}
	}
	if s.engine.HasSource(sourceID(slug)) {
		_ = s.engine.RemoveSource(sourceID(slug))
	}

	removed := false
	kept := s.added[:0]
	for _, l := range s.added {
		if l.Slug == slug {
			removed = true
			continue
		}
		kept = append(kept, l)
	}
	s.added = kept
	delete(s.visible, slug)
	if removed {
		// Invalidate in-flight style/bbox completions for this incarnation.
		s.gen[slug]++
	}
	s.mu.Unlock()

	if removed {
		s.bus.Publish(Event{Type: EventLayerRemoved, Slug: slug})
	}
}

// ToggleVisibility flips the layer's visibility and updates the fill, line
// and highlight layout properties. Unknown slugs are a no-op.
func (s *Session) ToggleVisibility(slug string) {
	s.mu.Lock()
	cur, ok := s.visible[slug]
	if !ok {
		s.mu.Unlock()
		return
	}
	next := "visible"
	if cur {
		next = "none"
	}
	s.setVisibilityLocked(slug, next)
	s.visible[slug] = !cur
	s.mu.Unlock()

	s.bus.Publish(Event{Type: EventVisibilityChanged, Slug: slug})
}

func (s *Session) setVisibilityLocked(slug, visibility string) {
	for _, id := range []string{fillID(slug), lineID(slug), highlightID(slug)} {
		if s.engine.HasLayer(id) {
			_ = s.engine.SetLayoutProperty(id, "visibility", visibility)
		}
	}
}

// Focus forces the layer visible and fits the viewport to its bounding box:
// descriptor-provided, else resolver-cached, else fetched. Without a
// resolvable box the viewport is left unchanged.
func (s *Session) Focus(ctx context.Context, slug string) {
	s.mu.Lock()
	var box *backend.BBox
	for _, l := range s.added {
		if l.Slug == slug {
			box = l.BBox
			break
		}
	}
	if _, ok := s.visible[slug]; ok {
		s.setVisibilityLocked(slug, "visible")
		s.visible[slug] = true
	}
	s.mu.Unlock()

	if box == nil {
		box = s.bboxes.Resolve(ctx, slug)
	}
	if box == nil {
		return
	}

	s.engine.FitBounds(box.Bound(), s.fitPadding)
	s.bus.Publish(Event{Type: EventViewportFit, Slug: slug})
}

// ApplyStyle re-resolves the layer style and re-applies the paint
// properties. Safe to call for a slug with no live layers.
func (s *Session) ApplyStyle(ctx context.Context, slug string) {
	style := s.styles.Resolve(ctx, slug)

	s.mu.Lock()
	s.applyStyleLocked(slug, style)
	s.mu.Unlock()

	s.bus.Publish(Event{Type: EventStyleResolved, Slug: slug})
}

// ReloadStyle drops the memoized style and re-applies, used after a style
// edit on the admin surface.
func (s *Session) ReloadStyle(ctx context.Context, slug string) {
	s.styles.Invalidate(slug)
	s.ApplyStyle(ctx, slug)
}

// HandleFeatureClick updates the highlight filter to the clicked feature and
// opens the popup. Features without a usable id skip highlighting but still
// open the popup.
func (s *Session) HandleFeatureClick(f ClickedFeature) {
	popup := inspect.New(f.LayerName, f.LngLat, f.Properties, f.Geometry)

	s.mu.Lock()
	id := f.ID
	if id == nil || id == "" {
		if v, ok := f.Properties["id"]; ok {
			id = v
		} else {
			id = nil
		}
	}
	if id != nil && s.engine.HasLayer(highlightID(f.Slug)) {
		_ = s.engine.SetFilter(highlightID(f.Slug), []any{"==", "id", id})
	}
	s.popup = popup
	s.mu.Unlock()

	s.bus.Publish(Event{Type: EventFeatureClicked, Slug: f.Slug, Popup: popup})
}

// Popup returns the live popup, or nil.
func (s *Session) Popup() *inspect.PopupInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.popup
}

// ClosePopup destroys the popup and resets every added layer's highlight
// filter to match nothing.
func (s *Session) ClosePopup() {
	s.mu.Lock()
	s.popup = nil
	for _, l := range s.added {
		if s.engine.HasLayer(highlightID(l.Slug)) {
			_ = s.engine.SetFilter(highlightID(l.Slug), emptyFilter())
		}
	}
	s.mu.Unlock()

	s.bus.Publish(Event{Type: EventPopupClosed})
}

// EnsureBoundary creates the administrative-boundary overlay primitives if
// they do not exist yet, hidden by default.
func (s *Session) EnsureBoundary() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boundaryURL == "" || s.engine.HasSource(boundarySourceID) {
		return
	}

	_ = s.engine.AddSource(boundarySourceID, SourceSpec{
		Type: "geojson",
		Data: s.boundaryURL,
	})
	_ = s.engine.AddLayer(LayerSpec{
		ID:     boundaryFillID,
		Type:   "fill",
		Source: boundarySourceID,
		Paint:  map[string]any{"fill-color": "#2e7d32", "fill-opacity": 0},
		Layout: map[string]any{"visibility": "none"},
	})
	_ = s.engine.AddLayer(LayerSpec{
		ID:     boundaryLineID,
		Type:   "line",
		Source: boundarySourceID,
		Paint:  map[string]any{"line-color": "#1b5e20", "line-width": 1.2},
		Layout: map[string]any{"visibility": "none"},
	})
}

// ToggleBoundary flips the boundary overlay visibility.
func (s *Session) ToggleBoundary() {
	s.EnsureBoundary()

	s.mu.Lock()
	next := "visible"
	if s.boundaryOn {
		next = "none"
	}
	for _, id := range []string{boundaryFillID, boundaryLineID} {
		if s.engine.HasLayer(id) {
			_ = s.engine.SetLayoutProperty(id, "visibility", next)
		}
	}
	s.boundaryOn = !s.boundaryOn
	s.mu.Unlock()

	s.bus.Publish(Event{Type: EventBoundaryToggled})
}

// BoundaryVisible reports whether the boundary overlay is shown.
func (s *Session) BoundaryVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundaryOn
}

// Added returns a snapshot of the layers currently in the session.
func (s *Session) Added() []AddedLayer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AddedLayer(nil), s.added...)
}

// Visible reports the visibility flag for slug; false for unknown slugs.
func (s *Session) Visible(slug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible[slug]
}

// VisibleLayers returns a snapshot of the visibility map.
func (s *Session) VisibleLayers() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.visible))
	for k, v := range s.visible {
		out[k] = v
	}
	return out
}

// Wait blocks until all in-flight style and bbox resolutions complete.
func (s *Session) Wait() {
	s.wg.Wait()
}
