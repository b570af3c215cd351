package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceForPath(t *testing.T) {
	tests := []struct {
		path string
		code string
		ok   bool
	}{
		{"/api/produits", "produits", true},
		{"/api/produits/42", "produits", true},
		{"/admin/produits", "produits", true},
		{"/api/commandes/7/statut", "commandes", true},
		{"/admin/roles", "roles", true},
		{"/api/ressources", "ressources", true},
		{"/api/journal", "journal", true},

		// Prefix matching is segment-aware, not substring-based.
		{"/api/produitsextra", "", false},

		// Unmapped paths resolve to nothing; the guard denies them.
		{"/api/export", "", false},
		{"/admin/secret", "", false},
		{"/", "", false},
	}

	for _, tt := range tests {
		code, ok := ResourceForPath(tt.path)
		assert.Equal(t, tt.ok, ok, "path %s", tt.path)
		assert.Equal(t, tt.code, code, "path %s", tt.path)
	}
}

func TestAPIAndPagePrefixesShareCodes(t *testing.T) {
	// Both surfaces of each resource must resolve to the same code so a
	// single permission row covers the page and its API.
	for _, code := range MappedResources() {
		apiCode, ok := ResourceForPath("/api/" + code)
		assert.True(t, ok, "api route for %s", code)
		pageCode, ok := ResourceForPath("/admin/" + code)
		assert.True(t, ok, "page route for %s", code)
		assert.Equal(t, apiCode, pageCode)
	}
}

func TestIsPublicPath(t *testing.T) {
	// "/ws" passes the guard because the websocket handler authenticates
	// its own query token; cross-origin upgrades carry no cookies.
	for _, path := range []string{"/", "/login", "/unauthorized", "/health", "/api/auth/login", "/api/auth/refresh", "/ws"} {
		assert.True(t, IsPublicPath(path), path)
	}
	for _, path := range []string{"/api/auth/logout", "/api/produits", "/compte", "/login/extra"} {
		assert.False(t, IsPublicPath(path), path)
	}
}

func TestIsAuthOnlyPath(t *testing.T) {
	for _, path := range []string{"/compte", "/compte/commandes", "/api/me", "/api/access/can", "/api/auth/logout"} {
		assert.True(t, IsAuthOnlyPath(path), path)
	}
	for _, path := range []string{"/api/produits", "/comptes", "/", "/api", "/ws"} {
		assert.False(t, IsAuthOnlyPath(path), path)
	}
}

func TestIsAssetPath(t *testing.T) {
	for _, path := range []string{"/swagger/index.html", "/assets/app.css", "/images/logo.png", "/favicon.ico", "/_next/static/chunk.js"} {
		assert.True(t, IsAssetPath(path), path)
	}
	assert.False(t, IsAssetPath("/api/produits"))
	assert.False(t, IsAssetPath("/imagesx"))
}

func TestIsAPIPath(t *testing.T) {
	assert.True(t, IsAPIPath("/api/produits"))
	assert.True(t, IsAPIPath("/api"))
	assert.False(t, IsAPIPath("/admin/produits"))
	assert.False(t, IsAPIPath("/apiary"))
}
