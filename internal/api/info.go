package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	svc        *Services
	dataDir    string
	backendURL string
}

func NewInfoHandler(svc *Services, dataDir, backendURL string) *InfoHandler {
	return &InfoHandler{svc: svc, dataDir: dataDir, backendURL: backendURL}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name       string `json:"name" doc:"Service name"`
	Version    string `json:"version" doc:"Service version"`
	DataDir    string `json:"data_dir" doc:"Session state directory"`
	BackendURL string `json:"backend_url" doc:"Upstream Spatial Lens API"`
	Layers     int    `json:"layers" doc:"Layers currently in the session"`
	SignedIn   bool   `json:"signed_in" doc:"Whether a user session exists"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:       "spatial-lens",
		Version:    "0.1.0",
		DataDir:    h.dataDir,
		BackendURL: h.backendURL,
		Layers:     len(h.svc.Session.Added()),
		SignedIn:   h.svc.Store.User() != nil,
	}}, nil
}
