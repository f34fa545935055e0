package backend

import (
	"context"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
)

// Boundary fetches the static administrative-boundary overlay. The feature
// collection is fetched once per process and reused; the request URL carries
// a cache-bust timestamp so a fresh process never sees a stale CDN copy.
type Boundary struct {
	client *Client
	log    zerolog.Logger

	mu sync.Mutex
	fc *geojson.FeatureCollection
}

// NewBoundary creates a boundary overlay client.
func NewBoundary(client *Client, log zerolog.Logger) *Boundary {
	return &Boundary{client: client, log: log}
}

// Fetch returns the boundary feature collection, loading it on first use.
func (b *Boundary) Fetch(ctx context.Context) (*geojson.FeatureCollection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fc != nil {
		return b.fc, nil
	}

	url := b.client.BoundaryURL()
	raw, err := b.client.getRaw(ctx, url[len(b.client.BaseURL()):])
	if err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, err
	}

	b.fc = fc
	b.log.Debug().Int("features", len(fc.Features)).Msg("boundary overlay loaded")
	return fc, nil
}
