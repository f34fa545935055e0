package backend

import (
	"context"
	"encoding/json"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// Expression is a raw map-engine style expression, e.g.
// ["match", ["get", "KLAS"], "hutan", "#1b5e20", "#690000"].
type Expression []any

// LayerStyle is the resolved paint style for one layer. When expressions are
// present they encode a category-to-color match keyed by a feature property;
// otherwise the flat colors apply to the whole layer.
type LayerStyle struct {
	FillColor      string     `json:"fillColor"`
	LineColor      string     `json:"lineColor"`
	FillOpacity    float64    `json:"fillOpacity"`
	LineWidth      float64    `json:"lineWidth"`
	FillExpression Expression `json:"fillExpression,omitempty"`
	LineExpression Expression `json:"lineExpression,omitempty"`
}

// DefaultStyle is the fallback applied whenever the style endpoint fails
// or returns something unusable.
func DefaultStyle() LayerStyle {
	return LayerStyle{
		FillColor:   "#690000",
		LineColor:   "#4a0000",
		FillOpacity: 0.6,
		LineWidth:   1,
	}
}

const styleCacheSize = 256

// StyleResolver fetches and memoizes per-layer paint styles. Resolve never
// fails: any error substitutes DefaultStyle.
type StyleResolver struct {
	client *Client
	cache  *lru.Cache[string, LayerStyle]
	log    zerolog.Logger
}

// NewStyleResolver creates a resolver with a session-lifetime cache.
func NewStyleResolver(client *Client, log zerolog.Logger) *StyleResolver {
	cache, _ := lru.New[string, LayerStyle](styleCacheSize)
	return &StyleResolver{client: client, cache: cache, log: log}
}

// Resolve returns the style for slug, fetching it on first use. Results,
// including fallbacks, are memoized until Invalidate.
func (r *StyleResolver) Resolve(ctx context.Context, slug string) LayerStyle {
	if style, ok := r.cache.Get(slug); ok {
		return style
	}

	raw, err := r.client.getRaw(ctx, "/api/layers/"+slug+"/style")
	if err != nil {
		r.log.Debug().Err(err).Str("slug", slug).Msg("style fetch failed, using default")
		raw = nil
	}

	style := ParseStyle(raw)
	r.cache.Add(slug, style)
	return style
}

// Invalidate drops the cached style for slug, e.g. after a style edit.
func (r *StyleResolver) Invalidate(slug string) {
	r.cache.Remove(slug)
}

// ParseStyle parses a style payload, which may be a JSON object or a
// JSON-encoded string of one. Unusable payloads and out-of-range numeric
// fields fall back per-field to DefaultStyle. Never returns an error.
func ParseStyle(raw []byte) LayerStyle {
	def := DefaultStyle()
	if len(raw) == 0 {
		return def
	}

	// The backend stores style_json verbatim, so the body is sometimes a
	// JSON string wrapping the object.
	var wrapped string
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		raw = []byte(wrapped)
	}

	var obj struct {
		FillColor      string     `json:"fillColor"`
		LineColor      string     `json:"lineColor"`
		FillOpacity    *float64   `json:"fillOpacity"`
		LineWidth      *float64   `json:"lineWidth"`
		FillExpression Expression `json:"fillExpression"`
		LineExpression Expression `json:"lineExpression"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return def
	}

	style := LayerStyle{
		FillColor:      def.FillColor,
		LineColor:      def.LineColor,
		FillOpacity:    def.FillOpacity,
		LineWidth:      def.LineWidth,
		FillExpression: obj.FillExpression,
		LineExpression: obj.LineExpression,
	}
	if obj.FillColor != "" {
		style.FillColor = obj.FillColor
	}
	if obj.LineColor != "" {
		style.LineColor = obj.LineColor
	}
	if v := obj.FillOpacity; v != nil && isFinite(*v) && *v >= 0 {
		style.FillOpacity = *v
	}
	if v := obj.LineWidth; v != nil && isFinite(*v) && *v > 0 {
		style.LineWidth = *v
	}
	return style
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
