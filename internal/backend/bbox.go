package backend

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const bboxCacheSize = 256

// BBoxResolver fetches and memoizes per-layer bounding boxes. A nil result
// means "do not change the viewport", never a fatal condition.
type BBoxResolver struct {
	client *Client
	cache  *lru.Cache[string, BBox]
	log    zerolog.Logger
}

// NewBBoxResolver creates a resolver with a session-lifetime cache.
func NewBBoxResolver(client *Client, log zerolog.Logger) *BBoxResolver {
	cache, _ := lru.New[string, BBox](bboxCacheSize)
	return &BBoxResolver{client: client, cache: cache, log: log}
}

// Resolve returns the bounding box for slug, or nil when the metadata lacks
// one or the fetch fails. Only successful lookups are cached.
func (r *BBoxResolver) Resolve(ctx context.Context, slug string) *BBox {
	if box, ok := r.cache.Get(slug); ok {
		return &box
	}

	var meta LayerDescriptor
	if err := r.client.getJSON(ctx, "/api/layers/meta/"+slug, &meta); err != nil {
		r.log.Debug().Err(err).Str("slug", slug).Msg("bbox fetch failed")
		return nil
	}
	if meta.BBox == nil {
		return nil
	}

	r.cache.Add(slug, *meta.BBox)
	box := *meta.BBox
	return &box
}

// Cached returns the memoized box without fetching, or nil.
func (r *BBoxResolver) Cached(slug string) *BBox {
	if box, ok := r.cache.Get(slug); ok {
		return &box
	}
	return nil
}
