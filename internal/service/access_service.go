package service

import (
	"context"
	"errors"
	"fmt"

	"amap/internal/model"
	"amap/internal/rbac"
	"amap/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PermissionMapResponse is the whole permission map for the current session,
// used by the admin UI to render its menu and gate its buttons.
type PermissionMapResponse struct {
	Role        string             `json:"role"`
	Permissions rbac.PermissionMap `json:"permissions"`
}

// AccessService is the client access-control adapter: the admin UI asks it
// "can I perform action X on resource Y" instead of re-implementing the
// rules. It shares the permission store and session cache with the route
// guard, so for any mapped (role, resource, action) the two always agree.
type AccessService interface {
	// Can applies the evaluator to the session's cached permission map.
	// A missing profile or role resolves to a denial, not an error; errors
	// are reserved for permission-store failures.
	Can(ctx context.Context, userID uuid.UUID, sessionID, resource string, action rbac.Action) (rbac.Decision, error)

	// Permissions returns the session's full permission map. The superuser
	// role gets every active resource with all four flags set.
	Permissions(ctx context.Context, userID uuid.UUID, sessionID string) (*PermissionMapResponse, error)

	// InvalidateSession drops the session's cache entry. Must be called on
	// logout, otherwise the next user on this client runtime inherits the
	// previous user's permissions.
	InvalidateSession(sessionID string)
}

type accessService struct {
	db    *gorm.DB
	store repository.PermissionStore
	cache *rbac.SessionCache
}

func NewAccessService(db *gorm.DB, store repository.PermissionStore, cache *rbac.SessionCache) AccessService {
	return &accessService{db: db, store: store, cache: cache}
}

// resolve returns the role name and permission map for a session, reading
// through the shared cache.
func (s *accessService) resolve(ctx context.Context, userID uuid.UUID, sessionID string) (string, rbac.PermissionMap, error) {
	if role, perms, ok := s.cache.Get(sessionID); ok {
		return role, perms, nil
	}

	role, perms, err := s.store.LoadForUser(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	s.cache.Put(sessionID, role, perms)
	return role, perms, nil
}

func (s *accessService) Can(ctx context.Context, userID uuid.UUID, sessionID, resource string, action rbac.Action) (rbac.Decision, error) {
	role, perms, err := s.resolve(ctx, userID, sessionID)
	if err != nil {
		// The two expected shapes are denials, not failures.
		if errors.Is(err, repository.ErrProfileNotFound) {
			return rbac.Decision{Allowed: false, Reason: "profile not found"}, nil
		}
		if errors.Is(err, repository.ErrRoleNotAssigned) {
			return rbac.Decision{Allowed: false, Reason: "no role assigned"}, nil
		}
		return rbac.Decision{}, fmt.Errorf("failed to resolve permissions: %w", err)
	}

	// Unknown resource codes are denied here exactly as the guard denies
	// unmapped paths; the UI gets no optimistic default.
	return rbac.Evaluate(role, resource, action, perms), nil
}

func (s *accessService) Permissions(ctx context.Context, userID uuid.UUID, sessionID string) (*PermissionMapResponse, error) {
	role, perms, err := s.resolve(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) || errors.Is(err, repository.ErrRoleNotAssigned) {
			return &PermissionMapResponse{Role: "", Permissions: rbac.PermissionMap{}}, nil
		}
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}

	if role == rbac.SuperuserRole {
		var resources []model.Resource
		if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&resources).Error; err != nil {
			return nil, fmt.Errorf("failed to fetch resources: %w", err)
		}
		full := make(rbac.PermissionMap, len(resources))
		for _, r := range resources {
			full[r.Code] = rbac.AllowAll
		}
		return &PermissionMapResponse{Role: role, Permissions: full}, nil
	}

	return &PermissionMapResponse{Role: role, Permissions: perms}, nil
}

func (s *accessService) InvalidateSession(sessionID string) {
	s.cache.Invalidate(sessionID)
}
