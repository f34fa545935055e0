package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestCatalogListCachesAndNormalizes(t *testing.T) {
	calls := 0
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/layers/meta" {
			http.NotFound(w, r)
			return
		}
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"name":"Rivers","slug":"rivers","status":"Published","minzoom":0,"maxzoom":14},
			{"name":"City Parks","status":"Draft"}
		]`))
	})

	cat := NewCatalog(New(srv.URL))

	layers, err := cat.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(layers))
	}
	if layers[1].Slug != "City_Parks" {
		t.Errorf("slug not derived from name: %q", layers[1].Slug)
	}
	if layers[1].MaxZoom != 22 {
		t.Errorf("maxzoom default not applied: %d", layers[1].MaxZoom)
	}
	if layers[0].MaxZoom != 14 {
		t.Errorf("explicit maxzoom overwritten: %d", layers[0].MaxZoom)
	}

	if _, err := cat.List(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("expected one HTTP call, got %d", calls)
	}

	cat.Refresh()
	if _, err := cat.List(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("Refresh should force a re-fetch, got %d calls", calls)
	}
}

func TestCatalogGetBySlug(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"name":"Rivers","slug":"rivers","status":"Published"}]`))
	})
	cat := NewCatalog(New(srv.URL))

	if _, err := cat.GetBySlug(context.Background(), "rivers"); err != nil {
		t.Fatal(err)
	}
	_, err := cat.GetBySlug(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCatalogListSurfacesHTTPError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	cat := NewCatalog(New(srv.URL))

	_, err := cat.List(context.Background())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", se.Code)
	}
	if se.Error() != "502 Bad Gateway" {
		t.Errorf("unexpected error text: %q", se.Error())
	}
}

func TestPublishedFilter(t *testing.T) {
	layers := []LayerDescriptor{
		{Name: "a", Status: "Published"},
		{Name: "b", Status: "Draft"},
		{Name: "c"}, // no status counts as published
		{Name: "d", Status: "published"},
	}
	got := Published(layers)
	if len(got) != 3 {
		t.Fatalf("expected 3 published layers, got %d", len(got))
	}
	for _, d := range got {
		if d.Name == "b" {
			t.Error("draft layer leaked through the filter")
		}
	}
}

func TestSearch(t *testing.T) {
	layers := []LayerDescriptor{
		{Name: "Zoning"},
		{Name: "Rivers"},
		{Name: "River Basins"},
	}

	got := Search(layers, "riv")
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	// Sorted alphabetically.
	if got[0].Name != "River Basins" || got[1].Name != "Rivers" {
		t.Errorf("unexpected order: %v, %v", got[0].Name, got[1].Name)
	}

	if all := Search(layers, ""); len(all) != 3 {
		t.Errorf("empty query should return everything, got %d", len(all))
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Rivers", "Rivers"},
		{"  City  Parks ", "City_Parks"},
		{"", "layer"},
		{"   ", "layer"},
	}
	for _, c := range cases {
		if got := Slugify(c.in); got != c.want {
			t.Errorf("Slugify(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestClientInjectsBearerToken(t *testing.T) {
	var gotAuth string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})

	cat := NewCatalog(New(srv.URL, WithTokenSource(staticToken("tok123")), WithLogger(zerolog.Nop())))
	if _, err := cat.List(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
}

type staticToken string

func (s staticToken) Token() string { return string(s) }
