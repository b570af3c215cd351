package middleware

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"time"

	"amap/internal/model"
	"amap/internal/rbac"
	"amap/internal/repository"
	"amap/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DefaultStoreTimeout bounds each permission-store read so a hung backend
// cannot hang the request indefinitely.
const DefaultStoreTimeout = 3 * time.Second

// DenialRecorder receives every authorization denial for the access journal.
// Recording is best effort: a journal failure never blocks the response.
type DenialRecorder interface {
	RecordDenial(ctx context.Context, entry model.AccessLog)
}

// GuardConfig wires the route guard's collaborators.
type GuardConfig struct {
	Store   repository.PermissionStore
	Cache   *rbac.SessionCache
	Audit   DenialRecorder // optional
	Timeout time.Duration  // per store call; defaults to DefaultStoreTimeout
}

// RouteGuard gates every request before any handler runs. Per request it
// moves through: session resolution, profile lookup, role and permission
// resolution, then the evaluator's decision. Each step gates the next; the
// outcome is always either pass-through or a redirect (pages) / status
// response (API) — never an exception and never a pending state.
//
// Failure policy is fail-closed: if the permission store is unreachable,
// resource-scoped routes are denied and the error is logged loudly. Only
// the explicit public allowlist stays reachable during an outage.
type RouteGuard struct {
	store   repository.PermissionStore
	cache   *rbac.SessionCache
	audit   DenialRecorder
	timeout time.Duration
}

func NewRouteGuard(cfg GuardConfig) *RouteGuard {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &RouteGuard{
		store:   cfg.Store,
		cache:   cfg.Cache,
		audit:   cfg.Audit,
		timeout: timeout,
	}
}

// Handler returns the gin middleware enforcing the guard.
func (g *RouteGuard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		// Static assets and docs are never intercepted.
		if rbac.IsAssetPath(path) {
			c.Next()
			return
		}

		if rbac.IsPublicPath(path) {
			c.Next()
			return
		}

		// --- Session resolution ---
		ident, err := ResolveSession(c)
		if err != nil {
			g.denyUnauthenticated(c)
			return
		}

		// Authenticated routes with no resource mapping required. A user
		// without any back-office role still owns their account area, so
		// this check runs before role resolution.
		if rbac.IsAuthOnlyPath(path) {
			g.setContext(c, ident, ident.RoleName)
			c.Next()
			return
		}

		// --- Role + permission resolution (cache, then store) ---
		roleName, perms, ok := g.cache.Get(ident.SessionID)
		if !ok {
			ctx, cancel := context.WithTimeout(c.Request.Context(), g.timeout)
			roleName, perms, err = g.store.LoadForUser(ctx, ident.UserID)
			cancel()

			switch {
			case err == nil:
				g.cache.Put(ident.SessionID, roleName, perms)
			case err == repository.ErrProfileNotFound:
				g.denyNoProfile(c, ident)
				return
			case err == repository.ErrRoleNotAssigned:
				g.denyNoRole(c, ident)
				return
			default:
				// Infrastructure failure: fail closed for anything
				// resource-scoped, and say so in the logs.
				log.Printf("route guard: permission store unavailable for %s %s: %v", c.Request.Method, path, err)
				g.denyStoreFailure(c, ident)
				return
			}
		}

		g.setContext(c, ident, roleName)

		resource, mapped := rbac.ResourceForPath(path)
		if !mapped {
			// Unmapped paths under the guard are denied outright, API or
			// not. The permissive legacy handling for unmapped API paths
			// is intentionally not kept. Only the superuser role, which
			// passes every authorization check, gets through.
			if roleName == rbac.SuperuserRole {
				c.Next()
				return
			}
			g.denyUnmapped(c, ident, roleName)
			return
		}

		action := rbac.ActionForMethod(c.Request.Method)
		decision := rbac.Evaluate(roleName, resource, action, perms)
		if !decision.Allowed {
			g.denyResource(c, ident, roleName, resource, action, decision.Reason)
			return
		}

		c.Next()
	}
}

func (g *RouteGuard) setContext(c *gin.Context, ident *Identity, roleName string) {
	c.Set(CtxUserID, ident.UserID.String())
	c.Set(CtxUserRole, roleName)
	c.Set(CtxSessionID, ident.SessionID)
}

// --- Denial terminals ---
// Every denial ends at one of three destinations: login (resumable),
// home (soft denial), or /unauthorized (hard denial, no role at all).

func (g *RouteGuard) denyUnauthenticated(c *gin.Context) {
	path := c.Request.URL.RequestURI()
	g.record(c, nil, "", path, "", "", model.DenialUnauthenticated, "no valid session")

	if rbac.IsAPIPath(c.Request.URL.Path) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authentication required"))
		return
	}
	target := "/login?auth=required&redirect=" + url.QueryEscape(path)
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

func (g *RouteGuard) denyNoProfile(c *gin.Context, ident *Identity) {
	g.record(c, &ident.UserID, "", c.Request.URL.Path, "", "", model.DenialNoProfile, "profile not found")

	if rbac.IsAPIPath(c.Request.URL.Path) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Profile not found"))
		return
	}
	c.Redirect(http.StatusFound, "/?error=no-admin-access")
	c.Abort()
}

func (g *RouteGuard) denyNoRole(c *gin.Context, ident *Identity) {
	g.record(c, &ident.UserID, "", c.Request.URL.Path, "", "", model.DenialNoRole, "no role assigned")

	if rbac.IsAPIPath(c.Request.URL.Path) {
		c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "No role assigned"))
		return
	}
	c.Redirect(http.StatusFound, "/unauthorized")
	c.Abort()
}

func (g *RouteGuard) denyStoreFailure(c *gin.Context, ident *Identity) {
	g.record(c, &ident.UserID, "", c.Request.URL.Path, "", "", model.DenialStoreFailure, "permission store unavailable")

	if rbac.IsAPIPath(c.Request.URL.Path) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, response.Error(http.StatusServiceUnavailable, "Authorization service unavailable"))
		return
	}
	c.Redirect(http.StatusFound, "/?error=access-error")
	c.Abort()
}

func (g *RouteGuard) denyUnmapped(c *gin.Context, ident *Identity, roleName string) {
	g.record(c, &ident.UserID, roleName, c.Request.URL.Path, "", "", model.DenialUnmappedPath, "path has no resource mapping")

	if rbac.IsAPIPath(c.Request.URL.Path) {
		c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied"))
		return
	}
	c.Redirect(http.StatusFound, "/")
	c.Abort()
}

func (g *RouteGuard) denyResource(c *gin.Context, ident *Identity, roleName, resource string, action rbac.Action, reason string) {
	g.record(c, &ident.UserID, roleName, c.Request.URL.Path, resource, string(action), model.DenialNotPermitted, reason)

	if rbac.IsAPIPath(c.Request.URL.Path) {
		c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: "+reason))
		return
	}
	// Soft denial: correct role, no rights on this section. Back to the dashboard.
	c.Redirect(http.StatusFound, "/")
	c.Abort()
}

func (g *RouteGuard) record(c *gin.Context, userID *uuid.UUID, roleName, path, resource, action, reason, detail string) {
	if g.audit == nil {
		return
	}
	g.audit.RecordDenial(c.Request.Context(), model.AccessLog{
		UserID:       userID,
		RoleName:     roleName,
		Path:         path,
		ResourceCode: resource,
		Action:       action,
		Reason:       reason,
		Detail:       detail,
	})
}
