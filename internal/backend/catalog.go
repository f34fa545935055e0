package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/paulmach/orb"
)

// ErrNotFound is returned when a layer slug is unknown to the catalog.
var ErrNotFound = errors.New("layer not found")

// StatusPublished is the catalog status visible to public viewers.
const StatusPublished = "Published"

// BBox is an axis-aligned [minX, minY, maxX, maxY] box in EPSG:4326.
type BBox [4]float64

// Bound converts the box to an orb.Bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b[0], b[1]},
		Max: orb.Point{b[2], b[3]},
	}
}

// LayerDescriptor identifies a publishable dataset in the backend catalog.
type LayerDescriptor struct {
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Status       string `json:"status,omitempty"` // "Draft" | "Published"
	Category     string `json:"category,omitempty"`
	MinZoom      int    `json:"minzoom"`
	MaxZoom      int    `json:"maxzoom"`
	FeatureCount int64  `json:"featureCount,omitempty"`
	BBox         *BBox  `json:"bbox,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// Published reports whether the layer is visible to public viewers. An empty
// status counts as published, matching the viewer's permissive filter.
func (d LayerDescriptor) Published() bool {
	return d.Status == "" || strings.EqualFold(d.Status, StatusPublished)
}

// Slugify derives a URL-safe slug from a display name: trimmed, internal
// whitespace runs collapsed to underscores.
func Slugify(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "layer"
	}
	return strings.Join(strings.Fields(name), "_")
}

// Normalize produces the canonical descriptor shape: slug derived from the
// name when absent, zoom range defaulted to 0..22. Identity is never
// re-derived downstream of this function.
func Normalize(d LayerDescriptor) LayerDescriptor {
	if d.Slug == "" {
		d.Slug = Slugify(d.Name)
	}
	if d.MinZoom < 0 {
		d.MinZoom = 0
	}
	if d.MaxZoom <= 0 {
		d.MaxZoom = 22
	}
	return d
}

// Catalog is a read-only cache of the backend layer catalog. The list is
// fetched once and reused until Refresh.
type Catalog struct {
	client *Client

	mu     sync.Mutex
	layers []LayerDescriptor
	loaded bool
}

// NewCatalog creates a catalog client.
func NewCatalog(client *Client) *Catalog {
	return &Catalog{client: client}
}

// List returns all catalog descriptors, normalized. The first call performs
// one HTTP GET; later calls reuse the cached result.
func (c *Catalog) List(ctx context.Context) ([]LayerDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return append([]LayerDescriptor(nil), c.layers...), nil
	}

	var raw []LayerDescriptor
	if err := c.client.getJSON(ctx, "/api/layers/meta", &raw); err != nil {
		return nil, err
	}

	layers := make([]LayerDescriptor, 0, len(raw))
	for _, d := range raw {
		layers = append(layers, Normalize(d))
	}

	c.layers = layers
	c.loaded = true
	return append([]LayerDescriptor(nil), layers...), nil
}

// Refresh drops the cached list; the next List re-fetches.
func (c *Catalog) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.layers = nil
}

// GetBySlug returns the descriptor for slug, or ErrNotFound.
func (c *Catalog) GetBySlug(ctx context.Context, slug string) (LayerDescriptor, error) {
	layers, err := c.List(ctx)
	if err != nil {
		return LayerDescriptor{}, err
	}
	for _, d := range layers {
		if d.Slug == slug {
			return d, nil
		}
	}
	return LayerDescriptor{}, fmt.Errorf("%w: %s", ErrNotFound, slug)
}

// Published filters to publicly visible layers. Client-side on purpose: the
// backend list endpoint returns drafts to privileged users.
func Published(layers []LayerDescriptor) []LayerDescriptor {
	out := make([]LayerDescriptor, 0, len(layers))
	for _, d := range layers {
		if d.Published() {
			out = append(out, d)
		}
	}
	return out
}

// Search filters by case-insensitive substring match on the display name and
// sorts the result alphabetically.
func Search(layers []LayerDescriptor, query string) []LayerDescriptor {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]LayerDescriptor, 0, len(layers))
	for _, d := range layers {
		if q == "" || strings.Contains(strings.ToLower(d.Name), q) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Categories returns the distinct layer categories known to the backend.
func (c *Catalog) Categories(ctx context.Context) ([]string, error) {
	var cats []string
	if err := c.client.getJSON(ctx, "/api/layers/meta/categories", &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// SetStatus changes a layer's Draft/Published status (admin only). The cached
// list is refreshed on success.
func (c *Catalog) SetStatus(ctx context.Context, slug, status string) error {
	body := struct {
		Status string `json:"status"`
	}{Status: status}
	if err := c.client.sendJSON(ctx, http.MethodPut, "/api/layers/meta/"+slug+"/status", body, nil); err != nil {
		return err
	}
	c.Refresh()
	return nil
}
