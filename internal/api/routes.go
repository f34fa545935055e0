// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/spatiallens/lens/internal/backend"
	"github.com/spatiallens/lens/internal/inspect"
	"github.com/spatiallens/lens/internal/session"
	"github.com/spatiallens/lens/internal/state"
	"github.com/spatiallens/lens/internal/styledoc"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Session  *session.Session
	Catalog  *backend.Catalog
	Auth     *backend.Auth
	Boundary *backend.Boundary
	Engine   *styledoc.Engine
	Store    *state.Store
}

// Types

type SlugInput struct {
	Slug string `path:"slug" doc:"Layer slug" example:"sungai"`
}

type CatalogInput struct {
	Q string `query:"q" doc:"Case-insensitive name filter"`
}

type CatalogOutput struct {
	Body []backend.LayerDescriptor
}

type CategoriesOutput struct {
	Body []string
}

type StatusInput struct {
	SlugInput
	Body struct {
		Status string `json:"status" doc:"New layer status" example:"published"`
	}
}

type SessionLayersBody struct {
	Layers   []session.AddedLayer `json:"layers" doc:"Layers currently added to the session"`
	Visible  map[string]bool      `json:"visible" doc:"Visibility per slug"`
	Boundary bool                 `json:"boundary" doc:"Administrative boundary overlay visibility"`
}

type AddLayerInput struct {
	Body struct {
		Slug string `json:"slug" doc:"Catalog slug of the layer to add" example:"sungai"`
	}
}

type AddedLayerOutput struct {
	Body session.AddedLayer
}

type VisibilityBody struct {
	Slug    string `json:"slug"`
	Visible bool   `json:"visible"`
}

type ClickInput struct {
	Body struct {
		Slug       string            `json:"slug" doc:"Slug of the clicked layer"`
		LayerName  string            `json:"layerName" doc:"Display name of the clicked layer"`
		ID         any               `json:"id,omitempty" doc:"Engine-assigned feature id"`
		Properties map[string]any    `json:"properties"`
		Geometry   *geojson.Geometry `json:"geometry,omitempty" doc:"Clicked feature geometry as GeoJSON"`
		LngLat     [2]float64        `json:"lngLat" doc:"Click location as [lng, lat]"`
	}
}

type PopupOutput struct {
	Body struct {
		Popup *inspect.PopupInfo `json:"popup" doc:"Open popup, or null"`
	}
}

type ViewportOutput struct {
	Body struct {
		Viewport *styledoc.Viewport `json:"viewport" doc:"Pending viewport fit, or null"`
		Revision uint64             `json:"revision" doc:"Style document revision counter"`
	}
}

type LoginInput struct {
	Body struct {
		Email    string `json:"email" format:"email" doc:"Account email"`
		Password string `json:"password" doc:"Account password"`
	}
}

type LoginOutput struct {
	Body backend.LoginResult
}

type UserOutput struct {
	Body struct {
		User *state.User `json:"user" doc:"Signed-in user, or null"`
	}
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// backendError maps upstream failures onto HTTP errors: unknown slugs are
// 404, auth rejections pass through as 401, everything else is a bad gateway.
func backendError(err error) error {
	if errors.Is(err, backend.ErrNotFound) {
		return huma.Error404NotFound("layer not found")
	}
	var se *backend.StatusError
	if errors.As(err, &se) && se.Code == 401 {
		return huma.Error401Unauthorized(err.Error())
	}
	return huma.Error502BadGateway(err.Error())
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterCatalog registers layer catalog routes.
func (h *APIHandler) RegisterCatalog(api huma.API) {
	huma.Get(api, "/api/v1/catalog", h.GetCatalog, huma.OperationTags("catalog"))
	huma.Get(api, "/api/v1/catalog/categories", h.GetCategories, huma.OperationTags("catalog"))
	huma.Put(api, "/api/v1/catalog/{slug}/status", h.PutStatus, huma.OperationTags("catalog"))
}

// RegisterSession registers session layer routes.
func (h *APIHandler) RegisterSession(api huma.API) {
	huma.Get(api, "/api/v1/session/layers", h.GetSessionLayers, huma.OperationTags("session"))
	huma.Post(api, "/api/v1/session/layers", h.AddSessionLayer, huma.OperationTags("session"))
	huma.Delete(api, "/api/v1/session/layers/{slug}", h.RemoveSessionLayer, huma.OperationTags("session"))
	huma.Post(api, "/api/v1/session/layers/{slug}/visibility", h.ToggleVisibility, huma.OperationTags("session"))
	huma.Post(api, "/api/v1/session/layers/{slug}/focus", h.FocusLayer, huma.OperationTags("session"))
	huma.Post(api, "/api/v1/session/layers/{slug}/style", h.ReloadStyle, huma.OperationTags("session"))
	huma.Post(api, "/api/v1/session/click", h.FeatureClick, huma.OperationTags("session"))
	huma.Get(api, "/api/v1/session/popup", h.GetPopup, huma.OperationTags("session"))
	huma.Post(api, "/api/v1/session/popup/close", h.ClosePopup, huma.OperationTags("session"))
	huma.Post(api, "/api/v1/session/boundary", h.ToggleBoundary, huma.OperationTags("session"))
	huma.Get(api, "/api/v1/session/viewport", h.GetViewport, huma.OperationTags("session"))
}

// RegisterAuth registers authentication routes.
func (h *APIHandler) RegisterAuth(api huma.API) {
	huma.Post(api, "/api/v1/auth/login", h.Login, huma.OperationTags("auth"))
	huma.Post(api, "/api/v1/auth/logout", h.Logout, huma.OperationTags("auth"))
	huma.Get(api, "/api/v1/auth/me", h.GetUser, huma.OperationTags("auth"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetCatalog(ctx context.Context, input *CatalogInput) (*CatalogOutput, error) {
	layers, err := h.svc.Catalog.List(ctx)
	if err != nil {
		return nil, backendError(err)
	}
	layers = backend.Published(layers)
	if input.Q != "" {
		layers = backend.Search(layers, input.Q)
	}
	return &CatalogOutput{Body: layers}, nil
}

func (h *APIHandler) GetCategories(ctx context.Context, input *struct{}) (*CategoriesOutput, error) {
	categories, err := h.svc.Catalog.Categories(ctx)
	if err != nil {
		return nil, backendError(err)
	}
	return &CategoriesOutput{Body: categories}, nil
}

func (h *APIHandler) PutStatus(ctx context.Context, input *StatusInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Catalog.SetStatus(ctx, input.Slug, input.Body.Status); err != nil {
		return nil, backendError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Status updated"}}, nil
}

func (h *APIHandler) GetSessionLayers(ctx context.Context, input *struct{}) (*struct{ Body SessionLayersBody }, error) {
	return &struct{ Body SessionLayersBody }{Body: SessionLayersBody{
		Layers:   h.svc.Session.Added(),
		Visible:  h.svc.Session.VisibleLayers(),
		Boundary: h.svc.Session.BoundaryVisible(),
	}}, nil
}

func (h *APIHandler) AddSessionLayer(ctx context.Context, input *AddLayerInput) (*AddedLayerOutput, error) {
	d, err := h.svc.Catalog.GetBySlug(ctx, input.Body.Slug)
	if err != nil {
		return nil, backendError(err)
	}
	h.svc.Session.Add(ctx, d)
	return &AddedLayerOutput{Body: session.AddedLayer{LayerDescriptor: d, Kind: "mvt"}}, nil
}

func (h *APIHandler) RemoveSessionLayer(ctx context.Context, input *SlugInput) (*struct{ Body MessageBody }, error) {
	h.svc.Session.Remove(input.Slug)
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layer removed"}}, nil
}

func (h *APIHandler) ToggleVisibility(ctx context.Context, input *SlugInput) (*struct{ Body VisibilityBody }, error) {
	h.svc.Session.ToggleVisibility(input.Slug)
	return &struct{ Body VisibilityBody }{Body: VisibilityBody{
		Slug:    input.Slug,
		Visible: h.svc.Session.Visible(input.Slug),
	}}, nil
}

func (h *APIHandler) FocusLayer(ctx context.Context, input *SlugInput) (*struct{ Body MessageBody }, error) {
	h.svc.Session.Focus(ctx, input.Slug)
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Focused"}}, nil
}

func (h *APIHandler) ReloadStyle(ctx context.Context, input *SlugInput) (*struct{ Body MessageBody }, error) {
	h.svc.Session.ReloadStyle(ctx, input.Slug)
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Style reloaded"}}, nil
}

func (h *APIHandler) FeatureClick(ctx context.Context, input *ClickInput) (*PopupOutput, error) {
	var geom orb.Geometry
	if input.Body.Geometry != nil {
		geom = input.Body.Geometry.Geometry()
	}
	h.svc.Session.HandleFeatureClick(session.ClickedFeature{
		Slug:       input.Body.Slug,
		LayerName:  input.Body.LayerName,
		ID:         input.Body.ID,
		Properties: input.Body.Properties,
		Geometry:   geom,
		LngLat:     orb.Point(input.Body.LngLat),
	})
	out := &PopupOutput{}
	out.Body.Popup = h.svc.Session.Popup()
	return out, nil
}

func (h *APIHandler) GetPopup(ctx context.Context, input *struct{}) (*PopupOutput, error) {
	out := &PopupOutput{}
	out.Body.Popup = h.svc.Session.Popup()
	return out, nil
}

func (h *APIHandler) ClosePopup(ctx context.Context, input *struct{}) (*struct{ Body MessageBody }, error) {
	h.svc.Session.ClosePopup()
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Popup closed"}}, nil
}

func (h *APIHandler) ToggleBoundary(ctx context.Context, input *struct{}) (*struct{ Body VisibilityBody }, error) {
	h.svc.Session.ToggleBoundary()
	return &struct{ Body VisibilityBody }{Body: VisibilityBody{
		Slug:    "admin-boundary",
		Visible: h.svc.Session.BoundaryVisible(),
	}}, nil
}

func (h *APIHandler) GetViewport(ctx context.Context, input *struct{}) (*ViewportOutput, error) {
	out := &ViewportOutput{}
	out.Body.Viewport = h.svc.Engine.Viewport()
	out.Body.Revision = h.svc.Engine.Revision()
	return out, nil
}

func (h *APIHandler) Login(ctx context.Context, input *LoginInput) (*LoginOutput, error) {
	result, err := h.svc.Auth.Login(ctx, input.Body.Email, input.Body.Password)
	if err != nil {
		return nil, backendError(err)
	}
	return &LoginOutput{Body: *result}, nil
}

func (h *APIHandler) Logout(ctx context.Context, input *struct{}) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Auth.Logout(); err != nil {
		return nil, huma.Error500InternalServerError(err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Signed out"}}, nil
}

func (h *APIHandler) GetUser(ctx context.Context, input *struct{}) (*UserOutput, error) {
	out := &UserOutput{}
	out.Body.User = h.svc.Store.User()
	return out, nil
}

// RegisterRoutes registers all REST routes with the given API.
func RegisterRoutes(humaAPI huma.API, svc *Services) {
	handler := NewAPIHandler(svc)
	huma.AutoRegister(humaAPI, handler)
}
