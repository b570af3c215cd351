package rbac

import (
	"sort"
	"strings"
)

// Route binds a URL path prefix to the resource code protecting it.
// The table is shared by the route guard and the access endpoint: both
// applications previously kept their own copy of this mapping, which let
// the two drift apart. Keeping it as data in one place removes that hazard.
type Route struct {
	Prefix   string
	Resource string
}

// routeTable maps path prefixes to resource codes. The back-office pages and
// the JSON API use different prefixes for the same logical resource; both
// rows resolve to the same code so permission rows apply uniformly.
var routeTable = []Route{
	{Prefix: "/api/produits", Resource: "produits"},
	{Prefix: "/admin/produits", Resource: "produits"},
	{Prefix: "/api/commandes", Resource: "commandes"},
	{Prefix: "/admin/commandes", Resource: "commandes"},
	{Prefix: "/api/paniers", Resource: "paniers"},
	{Prefix: "/admin/paniers", Resource: "paniers"},
	{Prefix: "/api/clients", Resource: "clients"},
	{Prefix: "/admin/clients", Resource: "clients"},
	{Prefix: "/api/campagnes", Resource: "campagnes"},
	{Prefix: "/admin/campagnes", Resource: "campagnes"},
	{Prefix: "/api/caisse", Resource: "caisse"},
	{Prefix: "/admin/caisse", Resource: "caisse"},
	{Prefix: "/api/statistiques", Resource: "statistiques"},
	{Prefix: "/admin/statistiques", Resource: "statistiques"},
	{Prefix: "/api/roles", Resource: "roles"},
	{Prefix: "/admin/roles", Resource: "roles"},
	{Prefix: "/api/ressources", Resource: "ressources"},
	{Prefix: "/admin/ressources", Resource: "ressources"},
	{Prefix: "/api/utilisateurs", Resource: "utilisateurs"},
	{Prefix: "/admin/utilisateurs", Resource: "utilisateurs"},
	{Prefix: "/api/journal", Resource: "journal"},
	{Prefix: "/admin/journal", Resource: "journal"},
}

// publicPaths pass the guard with no session at all. The websocket endpoint
// is listed here because its handler authenticates its own query token: the
// browser WebSocket constructor cannot send cookies cross-origin, so a
// cookie-based guard check would reject every upgrade before the handler runs.
var publicPaths = map[string]bool{
	"/":                 true,
	"/login":            true,
	"/unauthorized":     true,
	"/health":           true,
	"/api/auth/login":   true,
	"/api/auth/refresh": true,
	"/ws":               true,
}

// authOnlyPrefixes require a valid session but no specific resource.
// The customer account area and the access-check endpoint itself live here.
var authOnlyPrefixes = []string{
	"/compte",
	"/api/me",
	"/api/access",
	"/api/auth/logout",
}

// assetPrefixes are never intercepted (static files, docs, build assets).
var assetPrefixes = []string{
	"/swagger",
	"/assets",
	"/images",
	"/favicon.ico",
	"/_next",
}

func init() {
	// Longest prefix wins, so sort once and scan in order.
	sort.Slice(routeTable, func(i, j int) bool {
		return len(routeTable[i].Prefix) > len(routeTable[j].Prefix)
	})
}

func matchesPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// ResourceForPath resolves a request path to its protecting resource code.
// ok is false when no mapping exists; the caller decides what an unmapped
// path means (the guard denies it, see the fail-closed policy).
func ResourceForPath(path string) (code string, ok bool) {
	for _, r := range routeTable {
		if matchesPrefix(path, r.Prefix) {
			return r.Resource, true
		}
	}
	return "", false
}

// MappedResources returns the set of resource codes present in the table,
// used by coherence tests and by the resource seeder.
func MappedResources() []string {
	seen := make(map[string]bool, len(routeTable))
	codes := make([]string, 0, len(routeTable))
	for _, r := range routeTable {
		if !seen[r.Resource] {
			seen[r.Resource] = true
			codes = append(codes, r.Resource)
		}
	}
	sort.Strings(codes)
	return codes
}

// IsPublicPath reports whether the path needs no session.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}

// IsAuthOnlyPath reports whether the path needs a session but no resource.
func IsAuthOnlyPath(path string) bool {
	for _, p := range authOnlyPrefixes {
		if matchesPrefix(path, p) {
			return true
		}
	}
	return false
}

// IsAssetPath reports whether the guard should skip the path entirely.
func IsAssetPath(path string) bool {
	for _, p := range assetPrefixes {
		if matchesPrefix(path, p) {
			return true
		}
	}
	return false
}

// IsAPIPath distinguishes JSON API requests (status responses) from page
// requests (redirect responses) in the guard's denial handling.
func IsAPIPath(path string) bool {
	return matchesPrefix(path, "/api")
}
