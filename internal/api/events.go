package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/spatiallens/lens/internal/session"
	"github.com/spatiallens/lens/internal/styledoc"
)

// EventHandler streams session change events to the Datastar UI via SSE.
// Each event also carries the current style document revision so the client
// knows when to refetch /viewer/style.json.
type EventHandler struct {
	bus    *session.Bus
	engine *styledoc.Engine
}

// NewEventHandler creates a new event handler.
func NewEventHandler(bus *session.Bus, engine *styledoc.Engine) *EventHandler {
	return &EventHandler{bus: bus, engine: engine}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/session/events", h.Events,
		huma.OperationTags("session"),
	)
}

func (h *EventHandler) Events(ctx context.Context, input *EmptyInput) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSE(humaCtx)
			ch := h.bus.Subscribe()
			defer h.bus.Unsubscribe(ch)

			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-ch:
					if !ok {
						return
					}
					sse.Signals(map[string]any{
						"sessionRevision": h.engine.Revision(),
					})
					payload := map[string]any{
						"event": string(ev.Type),
						"slug":  ev.Slug,
					}
					if ev.Popup != nil {
						payload["popup"] = ev.Popup
					}
					sse.DispatchCustomEvent("session-changed", payload)
				}
			}
		},
	}, nil
}
