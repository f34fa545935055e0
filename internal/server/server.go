// Package server wires the backend clients, the map layer session and the
// HTTP surface into one local viewer server.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rs/zerolog"

	"github.com/spatiallens/lens/internal/api"
	"github.com/spatiallens/lens/internal/backend"
	"github.com/spatiallens/lens/internal/config"
	"github.com/spatiallens/lens/internal/session"
	"github.com/spatiallens/lens/internal/state"
	"github.com/spatiallens/lens/internal/styledoc"
)

// Server is the Spatial Lens viewer server.
type Server struct {
	cfg      config.Config
	mux      *http.ServeMux
	humaAPI  huma.API
	log      zerolog.Logger
	services *api.Services
}

// New creates a new viewer server around the given configuration.
func New(cfg config.Config, log zerolog.Logger) *Server {
	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("Spatial Lens API", "1.0.0")
	humaConfig.Info.Description = "Local map layer session server: browse the layer catalog, add vector tile layers, inspect features."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port), Description: "Local server"},
	}
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}

	humaAPI := humago.New(mux, humaConfig)

	store := state.NewStore(cfg.Data.Dir)
	client := backend.New(cfg.API.BaseURL,
		backend.WithTokenSource(store),
		backend.WithLogger(log),
		backend.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.API.TimeoutSeconds) * time.Second}),
	)

	catalog := backend.NewCatalog(client)
	styles := backend.NewStyleResolver(client, log)
	bboxes := backend.NewBBoxResolver(client, log)
	auth := backend.NewAuth(client, store)
	boundary := backend.NewBoundary(client, log)

	engine := styledoc.NewEngine("spatial-lens", cfg.Map.Center, cfg.Map.Zoom)

	sess := session.New(session.Config{
		Engine: engine,
		Styles: styles,
		BBoxes: bboxes,
		Store:  store,
		TileURL: func(slug string) string {
			return client.TileURLTemplate(slug, cfg.Map.TileExtension)
		},
		BoundaryURL: client.BoundaryURL(),
		FitPadding:  cfg.Map.FitPadding,
		Logger:      log,
	})

	services := &api.Services{
		Session:  sess,
		Catalog:  catalog,
		Auth:     auth,
		Boundary: boundary,
		Engine:   engine,
		Store:    store,
	}

	s := &Server{
		cfg:      cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		log:      log,
		services: services,
	}

	s.routes()
	return s
}

// Start boots the session: boundary overlay primitives plus the one-shot
// handoff layer, if a catalog page stashed one.
func (s *Server) Start(ctx context.Context) {
	s.services.Session.Start(ctx)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI description.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Services exposes the wired service dependencies, mainly for tests.
func (s *Server) Services() *api.Services {
	return s.services
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)

	// Session event stream (Huma + Datastar SSE)
	events := api.NewEventHandler(s.services.Session.Bus(), s.services.Engine)
	events.RegisterRoutes(s.humaAPI)

	info := api.NewInfoHandler(s.services, s.cfg.Data.Dir, s.cfg.API.BaseURL)
	info.RegisterRoutes(s.humaAPI)

	// Raw document routes that bypass Huma's schema layer: the style
	// document and the boundary overlay are map-engine formats, not API
	// models.
	s.mux.HandleFunc("/viewer/style.json", s.handleStyleJSON)
	s.mux.HandleFunc("/api/v1/boundary", s.handleBoundary)

	// Static files
	if s.cfg.Server.WebDir != "" {
		staticDir := filepath.Join(s.cfg.Server.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	// Page routes
	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)
}

// handleStyleJSON serves the current MapLibre style document. The viewer
// page re-fetches it whenever the session revision signal changes.
func (s *Server) handleStyleJSON(w http.ResponseWriter, r *http.Request) {
	doc := s.services.Engine.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		s.log.Error().Err(err).Msg("encode style document")
	}
}

// handleBoundary proxies the administrative boundary overlay GeoJSON,
// cached after the first fetch.
func (s *Server) handleBoundary(w http.ResponseWriter, r *http.Request) {
	fc, err := s.services.Boundary.Fetch(r.Context())
	if err != nil {
		http.Error(w, "Boundary not available: "+err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		s.log.Error().Err(err).Msg("encode boundary collection")
	}
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	templatePath := filepath.Join(s.cfg.Server.WebDir, "templates", "viewer.html")
	http.ServeFile(w, r, templatePath)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "spatial-lens",
		"status":  "running",
	})
}
