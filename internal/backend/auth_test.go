package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/spatiallens/lens/internal/state"
)

func TestLoginStoresSession(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var creds struct{ Email, Password string }
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Email != "admin@example.com" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"jwt-token","id":3,"fullName":"Site Admin","email":"admin@example.com","role":"ADMIN"}`))
	})

	store := state.NewStore(t.TempDir())
	auth := NewAuth(New(srv.URL, WithTokenSource(store)), store)

	res, err := auth.Login(context.Background(), "admin@example.com", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if res.Token != "jwt-token" || res.Role != "ADMIN" {
		t.Errorf("unexpected login result: %+v", res)
	}

	if store.Token() != "jwt-token" {
		t.Errorf("token not stored, got %q", store.Token())
	}
	u := store.User()
	if u == nil || u.FullName != "Site Admin" || u.ID != 3 {
		t.Errorf("user not stored: %+v", u)
	}

	if err := auth.Logout(); err != nil {
		t.Fatal(err)
	}
	if store.Token() != "" || store.User() != nil {
		t.Error("logout must clear the session store")
	}
}

func TestLoginFailureSurfacesStatus(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	})

	store := state.NewStore(t.TempDir())
	auth := NewAuth(New(srv.URL), store)

	if _, err := auth.Login(context.Background(), "x@y.z", "wrong"); err == nil {
		t.Fatal("expected error")
	}
	if store.Token() != "" {
		t.Error("failed login must not store a token")
	}
}
