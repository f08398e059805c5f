package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Store{
		"redis":  NewRedisStore(client),
		"memory": NewMemoryStore(),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			data := Data{
				Tenant: Tenant{Kind: TenantFederated, Key: "acme.com"},
				Next:   "https://app.acme.com/home",
				Fail:   "https://app.acme.com/login",
				Nonces: map[string]string{"state-1": "nonce-1"},
			}
			require.NoError(t, store.Save(ctx, "sess-1", data, time.Minute))

			exists, err := store.Exists(ctx, "sess-1")
			require.NoError(t, err)
			require.True(t, exists)

			loaded, ok, err := store.Load(ctx, "sess-1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, data, loaded)
		})
	}
}

func TestStoreMiss(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Load(ctx, "never-saved")
			require.NoError(t, err)
			require.False(t, ok)

			exists, err := store.Exists(ctx, "never-saved")
			require.NoError(t, err)
			require.False(t, exists)
		})
	}
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(ctx, "sess-2", Data{Next: "https://x"}, time.Minute))
			require.NoError(t, store.Delete(ctx, "sess-2"))

			exists, err := store.Exists(ctx, "sess-2")
			require.NoError(t, err)
			require.False(t, exists)
		})
	}
}

func TestSessionTenantMutualExclusivity(t *testing.T) {
	sess, err := New()
	require.NoError(t, err)
	require.Equal(t, TenantNone, sess.Tenant().Kind)

	sess.SetFederated("acme.com")
	require.Equal(t, Tenant{Kind: TenantFederated, Key: "acme.com"}, sess.Tenant())

	sess.SetGeneric("okta")
	require.Equal(t, Tenant{Kind: TenantGeneric, Key: "okta"}, sess.Tenant())

	sess.ClearTenant()
	require.Equal(t, Tenant{}, sess.Tenant())
}

func TestSessionConsumeSemantics(t *testing.T) {
	sess, err := New()
	require.NoError(t, err)
	sess.SetRedirects("https://app/home", "https://app/fail")
	sess.PutNonce("state-1", "nonce-1")

	require.Equal(t, "https://app/home", sess.ConsumeNext())
	require.Empty(t, sess.ConsumeNext())
	require.Equal(t, "https://app/fail", sess.ConsumeFail())
	require.Empty(t, sess.ConsumeFail())

	nonce, ok := sess.TakeNonce("state-1")
	require.True(t, ok)
	require.Equal(t, "nonce-1", nonce)
	_, ok = sess.TakeNonce("state-1")
	require.False(t, ok)
}

func TestSessionAdoptForcesIdentifier(t *testing.T) {
	sess, err := New()
	require.NoError(t, err)
	original := Data{Tenant: Tenant{Kind: TenantGeneric, Key: "okta"}, Next: "https://app"}

	sess.Adopt("original-id", original)
	require.Equal(t, "original-id", sess.ID())
	require.Equal(t, original, sess.Data())
	require.True(t, sess.Dirty())
}
