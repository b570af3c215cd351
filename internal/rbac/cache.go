package rbac

import (
	"sync"
	"time"
)

// DefaultCacheTTL bounds how long a cached permission map is served before
// it is re-read from the store.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	role      string
	perms     PermissionMap
	expiresAt time.Time
}

// SessionCache holds one permission map per active session, keyed by the
// session id carried in the token. Keying by session rather than by role
// (or a single process-wide map) keeps one user's permissions from ever
// leaking into another's request, and lets logout invalidate exactly one
// session.
type SessionCache struct {
	entries sync.Map // sessionID -> cacheEntry
	ttl     time.Duration
}

// NewSessionCache creates a cache with the given TTL; ttl <= 0 falls back
// to DefaultCacheTTL.
func NewSessionCache(ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &SessionCache{ttl: ttl}
}

// Get returns the cached role name and permission map for a session, if
// present and not expired.
func (c *SessionCache) Get(sessionID string) (role string, perms PermissionMap, ok bool) {
	v, found := c.entries.Load(sessionID)
	if !found {
		return "", nil, false
	}
	entry := v.(cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.entries.Delete(sessionID)
		return "", nil, false
	}
	return entry.role, entry.perms, true
}

// Put stores the permission map resolved for a session.
func (c *SessionCache) Put(sessionID, role string, perms PermissionMap) {
	c.entries.Store(sessionID, cacheEntry{
		role:      role,
		perms:     perms,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Invalidate drops one session's entry. Called on logout: a stale entry
// here would hand the next login on this session id the previous user's
// permissions.
func (c *SessionCache) Invalidate(sessionID string) {
	c.entries.Delete(sessionID)
}

// InvalidateRole drops every session currently holding the given role.
// Called after a role's permission matrix is saved, so changes take effect
// without waiting out the TTL.
func (c *SessionCache) InvalidateRole(roleName string) {
	c.entries.Range(func(key, value interface{}) bool {
		if value.(cacheEntry).role == roleName {
			c.entries.Delete(key)
		}
		return true
	})
}

// Reset drops everything.
func (c *SessionCache) Reset() {
	c.entries.Range(func(key, _ interface{}) bool {
		c.entries.Delete(key)
		return true
	})
}
