package idp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkcms/authengine/internal/authapi"
	"github.com/arkcms/authengine/internal/identity"
)

func newTestServer(t *testing.T) (*httptest.Server, *authapi.Client) {
	t.Helper()
	store := NewStore()
	require.NoError(t, store.Seed(SeedUser{
		Email:    "editor@example.com",
		Password: "hunter2",
		Role:     "editor",
	}))
	svc, err := NewService(store, "dev-secret")
	require.NoError(t, err)

	srv := httptest.NewServer(New(svc, "test").Handler())
	t.Cleanup(srv.Close)

	client, err := authapi.NewClient(srv.URL)
	require.NoError(t, err)
	return srv, client
}

// The provider is exercised through the same client the engine uses, so
// both sides of the wire format are checked at once.
func TestFullAuthFlow(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	res, err := client.Login(ctx, "editor@example.com", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, identity.RoleEditor, res.Identity.Role)
	assert.Equal(t, "editor@example.com", res.Identity.Email)

	ident, err := client.CurrentUser(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.Identity.ID, ident.ID)

	refreshed, err := client.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, res.RefreshToken, refreshed.RefreshToken)

	require.NoError(t, client.Logout(ctx, refreshed.AccessToken))

	// Logout revoked the rotated refresh token.
	_, err = client.Refresh(ctx, refreshed.RefreshToken)
	assert.ErrorIs(t, err, authapi.ErrTokenExpired)
}

func TestLoginRejectionsOverHTTP(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	_, err := client.Login(ctx, "editor@example.com", "wrong")
	assert.ErrorIs(t, err, authapi.ErrInvalidCredentials)

	_, err = client.CurrentUser(ctx, "not-a-token")
	assert.ErrorIs(t, err, authapi.ErrTokenExpired)
}

func TestHealthAndInfo(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/v1/info")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	resp3, err := http.Post(srv.URL+"/v1/auth/me", "application/json", nil)
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp3.StatusCode)
}
