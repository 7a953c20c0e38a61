package credstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryStore(t *testing.T) (*Store, *Memory, *Memory) {
	t.Helper()
	durable := NewMemory()
	ephemeral := NewMemory()
	store, err := New(durable, ephemeral)
	require.NoError(t, err)
	return store, durable, ephemeral
}

func TestNewRequiresPartitions(t *testing.T) {
	_, err := New(nil, NewMemory())
	require.Error(t, err)
	_, err = New(NewMemory(), nil)
	require.Error(t, err)
}

func TestWriteRememberedKeepsAccessTokenDurable(t *testing.T) {
	ctx := context.Background()
	store, durable, ephemeral := newMemoryStore(t)

	// Seed a stale ephemeral access token from an earlier unremembered login.
	require.NoError(t, ephemeral.Set(ctx, keyAccessToken, "stale"))

	err := store.Write(ctx, Credentials{AccessToken: "acc-1", RefreshToken: "ref-1", RememberMe: true})
	require.NoError(t, err)

	v, ok, err := durable.Get(ctx, keyAccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "acc-1", v)

	_, ok, err = ephemeral.Get(ctx, keyAccessToken)
	require.NoError(t, err)
	assert.False(t, ok, "other partition must not keep the access token")

	v, ok, err = durable.Get(ctx, keyRefreshToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ref-1", v)

	v, ok, err = durable.Get(ctx, keyRememberMe)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "true", v)
}

func TestWriteUnrememberedKeepsRefreshTokenDurable(t *testing.T) {
	ctx := context.Background()
	store, durable, ephemeral := newMemoryStore(t)

	require.NoError(t, durable.Set(ctx, keyAccessToken, "stale"))

	err := store.Write(ctx, Credentials{AccessToken: "acc-2", RefreshToken: "ref-2", RememberMe: false})
	require.NoError(t, err)

	v, ok, err := ephemeral.Get(ctx, keyAccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "acc-2", v)

	_, ok, err = durable.Get(ctx, keyAccessToken)
	require.NoError(t, err)
	assert.False(t, ok, "durable partition must drop the access token")

	// The refresh token stays durable so silent re-auth works after restart.
	v, ok, err = durable.Get(ctx, keyRefreshToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ref-2", v)
}

func TestReadPrefersDurableAccessToken(t *testing.T) {
	ctx := context.Background()
	store, durable, ephemeral := newMemoryStore(t)

	// Both populated should never happen by construction; reads must still
	// resolve deterministically.
	require.NoError(t, durable.Set(ctx, keyAccessToken, "durable-token"))
	require.NoError(t, ephemeral.Set(ctx, keyAccessToken, "ephemeral-token"))
	require.NoError(t, durable.Set(ctx, keyRefreshToken, "ref"))
	require.NoError(t, durable.Set(ctx, keyRememberMe, "true"))

	creds, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "durable-token", creds.AccessToken)
	assert.Equal(t, "ref", creds.RefreshToken)
	assert.True(t, creds.RememberMe)
}

func TestReadEmptyStore(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newMemoryStore(t)

	creds, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, creds.AccessToken)
	assert.Empty(t, creds.RefreshToken)
	assert.False(t, creds.RememberMe)
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newMemoryStore(t)

	want := Credentials{AccessToken: "acc", RefreshToken: "ref", RememberMe: false}
	require.NoError(t, store.Write(ctx, want))

	got, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, durable, ephemeral := newMemoryStore(t)

	require.NoError(t, store.Write(ctx, Credentials{AccessToken: "a", RefreshToken: "r", RememberMe: true}))
	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))

	for _, p := range []*Memory{durable, ephemeral} {
		for _, key := range []string{keyAccessToken, keyRefreshToken, keyRememberMe} {
			_, ok, err := p.Get(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok, "key %s should be gone", key)
		}
	}
}
