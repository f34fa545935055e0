package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/spatiallens/lens/internal/config"
	"github.com/spatiallens/lens/internal/server"
)

// fakeUpstream stands in for the Spatial Lens backend API.
func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/layers/meta", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"slug":"sungai","name":"Sungai","status":"Published","minzoom":0,"maxzoom":14,"bbox":[106.7,-6.3,106.9,-6.1]},
			{"slug":"rencana","name":"Rencana Tata Ruang","status":"Draft","minzoom":0,"maxzoom":12}
		]`))
	})

	mux.HandleFunc("/api/layers/sungai/style", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"fillColor":"#003366","lineColor":"#001122","fillOpacity":0.4,"lineWidth":1.5}`))
	})

	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "secret" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"tok-1","id":7,"fullName":"Tari Wijaya","email":"` + creds.Email + `","role":"ADMIN"}`))
	})

	mux.HandleFunc("/batas-admin/BatasAdmin.geojson", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"type":"FeatureCollection","features":[
			{"type":"Feature","properties":{"NAMOBJ":"Kota"},"geometry":{"type":"Polygon","coordinates":[[[106,-7],[107,-7],[107,-6],[106,-6],[106,-7]]]}}
		]}`))
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func newTestServer(t *testing.T) (*server.Server, *httptest.Server) {
	t.Helper()
	upstream := fakeUpstream(t)

	cfg := config.DefaultConfig()
	cfg.API.BaseURL = upstream.URL
	cfg.Data.Dir = t.TempDir()
	cfg.Server.WebDir = ""

	srv := server.New(*cfg, zerolog.Nop())
	srv.Start(context.Background())

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)

	var body struct {
		Status string `json:"status"`
	}
	if code := getJSON(t, ts.URL+"/health", &body); code != http.StatusOK {
		t.Fatalf("code=%d, want 200", code)
	}
	if body.Status != "ok" {
		t.Fatalf("status=%q, want ok", body.Status)
	}
}

func TestViewerPage(t *testing.T) {
	upstream := fakeUpstream(t)

	cfg := config.DefaultConfig()
	cfg.API.BaseURL = upstream.URL
	cfg.Data.Dir = t.TempDir()
	cfg.Server.WebDir = "../../web"

	srv := server.New(*cfg, zerolog.Nop())
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/viewer")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("code=%d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("content-type=%q, want text/html", ct)
	}
}

func TestCatalogFiltersDrafts(t *testing.T) {
	_, ts := newTestServer(t)

	var layers []struct {
		Slug string `json:"slug"`
	}
	if code := getJSON(t, ts.URL+"/api/v1/catalog", &layers); code != http.StatusOK {
		t.Fatalf("code=%d, want 200", code)
	}
	if len(layers) != 1 || layers[0].Slug != "sungai" {
		t.Fatalf("layers=%v, want only sungai", layers)
	}
}

func TestCatalogSearchMiss(t *testing.T) {
	_, ts := newTestServer(t)

	var layers []struct {
		Slug string `json:"slug"`
	}
	getJSON(t, ts.URL+"/api/v1/catalog?q=nothing", &layers)
	if len(layers) != 0 {
		t.Fatalf("layers=%v, want empty", layers)
	}
}

func TestAddLayerBuildsStyleDocument(t *testing.T) {
	srv, ts := newTestServer(t)

	code := postJSON(t, ts.URL+"/api/v1/session/layers", map[string]string{"slug": "sungai"}, nil)
	if code != http.StatusOK {
		t.Fatalf("add code=%d, want 200", code)
	}
	srv.Services().Session.Wait()

	var doc struct {
		Version int                        `json:"version"`
		Sources map[string]json.RawMessage `json:"sources"`
		Layers  []struct {
			ID    string         `json:"id"`
			Paint map[string]any `json:"paint"`
		} `json:"layers"`
	}
	if code := getJSON(t, ts.URL+"/viewer/style.json", &doc); code != http.StatusOK {
		t.Fatalf("style code=%d, want 200", code)
	}
	if doc.Version != 8 {
		t.Fatalf("version=%d, want 8", doc.Version)
	}
	if _, ok := doc.Sources["mvt-src-sungai"]; !ok {
		t.Fatal("missing source mvt-src-sungai")
	}

	paints := map[string]map[string]any{}
	for _, l := range doc.Layers {
		paints[l.ID] = l.Paint
	}
	for _, id := range []string{"mvt-fill-sungai", "mvt-line-sungai", "mvt-highlight-sungai"} {
		if _, ok := paints[id]; !ok {
			t.Fatalf("missing layer %s", id)
		}
	}
	// resolved style applied, not the default
	if got := paints["mvt-fill-sungai"]["fill-color"]; got != "#003366" {
		t.Fatalf("fill-color=%v, want #003366", got)
	}
}

func TestAddUnknownLayer(t *testing.T) {
	_, ts := newTestServer(t)

	code := postJSON(t, ts.URL+"/api/v1/session/layers", map[string]string{"slug": "nope"}, nil)
	if code != http.StatusNotFound {
		t.Fatalf("code=%d, want 404", code)
	}
}

func TestRemoveLayerCleansDocument(t *testing.T) {
	srv, ts := newTestServer(t)

	postJSON(t, ts.URL+"/api/v1/session/layers", map[string]string{"slug": "sungai"}, nil)
	srv.Services().Session.Wait()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/session/layers/sungai", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete code=%d, want 200", resp.StatusCode)
	}

	var doc struct {
		Sources map[string]json.RawMessage `json:"sources"`
	}
	getJSON(t, ts.URL+"/viewer/style.json", &doc)
	if _, ok := doc.Sources["mvt-src-sungai"]; ok {
		t.Fatal("source mvt-src-sungai still present after remove")
	}
}

func TestVisibilityToggle(t *testing.T) {
	srv, ts := newTestServer(t)

	postJSON(t, ts.URL+"/api/v1/session/layers", map[string]string{"slug": "sungai"}, nil)
	srv.Services().Session.Wait()

	var vis struct {
		Visible bool `json:"visible"`
	}
	postJSON(t, ts.URL+"/api/v1/session/layers/sungai/visibility", nil, &vis)
	if vis.Visible {
		t.Fatal("first toggle should hide the layer")
	}
	postJSON(t, ts.URL+"/api/v1/session/layers/sungai/visibility", nil, &vis)
	if !vis.Visible {
		t.Fatal("second toggle should show the layer again")
	}
}

func TestFocusSetsViewport(t *testing.T) {
	srv, ts := newTestServer(t)

	postJSON(t, ts.URL+"/api/v1/session/layers", map[string]string{"slug": "sungai"}, nil)
	srv.Services().Session.Wait()

	if code := postJSON(t, ts.URL+"/api/v1/session/layers/sungai/focus", nil, nil); code != http.StatusOK {
		t.Fatalf("focus code=%d, want 200", code)
	}

	var out struct {
		Viewport *struct {
			Bounds  [4]float64 `json:"bounds"`
			Padding int        `json:"padding"`
		} `json:"viewport"`
		Revision uint64 `json:"revision"`
	}
	getJSON(t, ts.URL+"/api/v1/session/viewport", &out)
	if out.Viewport == nil {
		t.Fatal("viewport not set after focus")
	}
	want := [4]float64{106.7, -6.3, 106.9, -6.1}
	if out.Viewport.Bounds != want {
		t.Fatalf("bounds=%v, want %v", out.Viewport.Bounds, want)
	}
	if out.Viewport.Padding != 40 {
		t.Fatalf("padding=%d, want 40", out.Viewport.Padding)
	}
	if out.Revision == 0 {
		t.Fatal("revision should advance with document changes")
	}
}

func TestFeatureClickPopup(t *testing.T) {
	srv, ts := newTestServer(t)

	postJSON(t, ts.URL+"/api/v1/session/layers", map[string]string{"slug": "sungai"}, nil)
	srv.Services().Session.Wait()

	click := map[string]any{
		"slug":      "sungai",
		"layerName": "Sungai",
		"id":        42,
		"properties": map[string]any{
			"NAMOBJ": "Ciliwung",
		},
		"geometry": map[string]any{
			"type": "Polygon",
			"coordinates": [][][]float64{{
				{106.80, -6.20}, {106.81, -6.20}, {106.81, -6.19}, {106.80, -6.19}, {106.80, -6.20},
			}},
		},
		"lngLat": []float64{106.805, -6.195},
	}

	var out struct {
		Popup *struct {
			LayerName string         `json:"layerName"`
			Props     map[string]any `json:"properties"`
			AreaHa    *float64       `json:"areaHa"`
		} `json:"popup"`
	}
	if code := postJSON(t, ts.URL+"/api/v1/session/click", click, &out); code != http.StatusOK {
		t.Fatalf("click code=%d, want 200", code)
	}
	if out.Popup == nil {
		t.Fatal("popup not opened")
	}
	if out.Popup.LayerName != "Sungai" {
		t.Fatalf("layerName=%q, want Sungai", out.Popup.LayerName)
	}
	if out.Popup.AreaHa == nil || *out.Popup.AreaHa <= 0 {
		t.Fatalf("areaHa=%v, want positive", out.Popup.AreaHa)
	}

	postJSON(t, ts.URL+"/api/v1/session/popup/close", nil, nil)
	out.Popup = nil
	getJSON(t, ts.URL+"/api/v1/session/popup", &out)
	if out.Popup != nil {
		t.Fatal("popup still open after close")
	}
}

func TestLoginAndMe(t *testing.T) {
	_, ts := newTestServer(t)

	var login struct {
		Token    string `json:"token"`
		FullName string `json:"fullName"`
	}
	code := postJSON(t, ts.URL+"/api/v1/auth/login",
		map[string]string{"email": "tari@example.com", "password": "secret"}, &login)
	if code != http.StatusOK {
		t.Fatalf("login code=%d, want 200", code)
	}
	if login.Token != "tok-1" || login.FullName != "Tari Wijaya" {
		t.Fatalf("login=%+v", login)
	}

	var me struct {
		User *struct {
			FullName string `json:"fullName"`
		} `json:"user"`
	}
	getJSON(t, ts.URL+"/api/v1/auth/me", &me)
	if me.User == nil || me.User.FullName != "Tari Wijaya" {
		t.Fatalf("me=%+v, want Tari Wijaya", me.User)
	}
}

func TestLoginRejected(t *testing.T) {
	_, ts := newTestServer(t)

	code := postJSON(t, ts.URL+"/api/v1/auth/login",
		map[string]string{"email": "tari@example.com", "password": "wrong"}, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("code=%d, want 401", code)
	}
}

func TestBoundaryProxy(t *testing.T) {
	_, ts := newTestServer(t)

	var fc struct {
		Type     string `json:"type"`
		Features []any  `json:"features"`
	}
	if code := getJSON(t, ts.URL+"/api/v1/boundary", &fc); code != http.StatusOK {
		t.Fatalf("code=%d, want 200", code)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 {
		t.Fatalf("fc=%+v", fc)
	}
}

func TestBoundaryToggle(t *testing.T) {
	_, ts := newTestServer(t)

	var vis struct {
		Visible bool `json:"visible"`
	}
	postJSON(t, ts.URL+"/api/v1/session/boundary", nil, &vis)
	if !vis.Visible {
		t.Fatal("boundary should be visible after first toggle")
	}
	postJSON(t, ts.URL+"/api/v1/session/boundary", nil, &vis)
	if vis.Visible {
		t.Fatal("boundary should be hidden after second toggle")
	}
}

func TestSessionLayersListing(t *testing.T) {
	srv, ts := newTestServer(t)

	postJSON(t, ts.URL+"/api/v1/session/layers", map[string]string{"slug": "sungai"}, nil)
	srv.Services().Session.Wait()

	var out struct {
		Layers []struct {
			Slug string `json:"slug"`
			Kind string `json:"kind"`
		} `json:"layers"`
		Visible  map[string]bool `json:"visible"`
		Boundary bool            `json:"boundary"`
	}
	getJSON(t, ts.URL+"/api/v1/session/layers", &out)
	if len(out.Layers) != 1 || out.Layers[0].Slug != "sungai" || out.Layers[0].Kind != "mvt" {
		t.Fatalf("layers=%+v", out.Layers)
	}
	if !out.Visible["sungai"] {
		t.Fatal("added layer should start visible")
	}
	if out.Boundary {
		t.Fatal("boundary starts hidden")
	}
}
