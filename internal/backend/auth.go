package backend

import (
	"context"
	"net/http"

	"github.com/spatiallens/lens/internal/state"
)

// LoginResult is the backend's flat auth response.
type LoginResult struct {
	Token    string `json:"token"`
	ID       int64  `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Auth signs in against the backend and keeps the session store in sync.
type Auth struct {
	client *Client
	store  *state.Store
}

// NewAuth creates an auth client bound to a session store.
func NewAuth(client *Client, store *state.Store) *Auth {
	return &Auth{client: client, store: store}
}

// Login exchanges credentials for a bearer token and stores token and user
// profile in the session store.
func (a *Auth) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}

	var res LoginResult
	if err := a.client.sendJSON(ctx, http.MethodPost, "/api/auth/login", body, &res); err != nil {
		return nil, err
	}

	if err := a.store.SetToken(res.Token); err != nil {
		return nil, err
	}
	if err := a.store.SetUser(&state.User{
		ID:       res.ID,
		FullName: res.FullName,
		Email:    res.Email,
		Role:     res.Role,
	}); err != nil {
		return nil, err
	}
	return &res, nil
}

// Logout wipes the stored session context.
func (a *Auth) Logout() error {
	return a.store.Clear()
}
