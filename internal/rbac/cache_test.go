package rbac

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCachePutGet(t *testing.T) {
	cache := NewSessionCache(time.Minute)
	perms := PermissionMap{"produits": {Read: true}}

	cache.Put("sess-1", "vendeur", perms)

	role, got, ok := cache.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, "vendeur", role)
	assert.Equal(t, perms, got)

	_, _, ok = cache.Get("sess-2")
	assert.False(t, ok)
}

func TestSessionCacheExpiry(t *testing.T) {
	cache := NewSessionCache(10 * time.Millisecond)
	cache.Put("sess-1", "vendeur", PermissionMap{})

	_, _, ok := cache.Get("sess-1")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, _, ok = cache.Get("sess-1")
	assert.False(t, ok, "expired entry must not be served")
}

func TestSessionCacheInvalidate(t *testing.T) {
	cache := NewSessionCache(time.Minute)
	cache.Put("sess-1", "vendeur", PermissionMap{})
	cache.Put("sess-2", "vendeur", PermissionMap{})

	cache.Invalidate("sess-1")

	_, _, ok := cache.Get("sess-1")
	assert.False(t, ok)
	_, _, ok = cache.Get("sess-2")
	assert.True(t, ok, "other sessions are untouched")
}

func TestSessionCacheInvalidateRole(t *testing.T) {
	cache := NewSessionCache(time.Minute)
	cache.Put("sess-1", "vendeur", PermissionMap{})
	cache.Put("sess-2", "vendeur", PermissionMap{})
	cache.Put("sess-3", "comptable", PermissionMap{})

	cache.InvalidateRole("vendeur")

	_, _, ok := cache.Get("sess-1")
	assert.False(t, ok)
	_, _, ok = cache.Get("sess-2")
	assert.False(t, ok)
	_, _, ok = cache.Get("sess-3")
	assert.True(t, ok, "sessions holding another role survive")
}

func TestSessionCacheDefaultTTL(t *testing.T) {
	cache := NewSessionCache(0)
	assert.Equal(t, DefaultCacheTTL, cache.ttl)
}

func TestSessionCacheReset(t *testing.T) {
	cache := NewSessionCache(time.Minute)
	cache.Put("sess-1", "vendeur", PermissionMap{})
	cache.Reset()
	_, _, ok := cache.Get("sess-1")
	assert.False(t, ok)
}
