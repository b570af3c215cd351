package repository

import (
	"context"
	"errors"

	"amap/internal/model"
	"amap/internal/rbac"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrProfileNotFound means the session's user id resolves to no profile row.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrRoleNotAssigned means the profile exists but its role reference is
	// null or dangling. Authorized for nothing, but not a system error.
	ErrRoleNotAssigned = errors.New("no role assigned")
)

// PermissionStore reads the role and permission rows backing authorization
// decisions. The route guard and the access endpoint share one instance so
// they always see the same data.
type PermissionStore interface {
	// LoadForUser resolves a user id to its role name and permission map.
	// Returns ErrProfileNotFound / ErrRoleNotAssigned for the two expected
	// denial shapes; any other error is an infrastructure failure.
	LoadForUser(ctx context.Context, userID uuid.UUID) (roleName string, perms rbac.PermissionMap, err error)

	// LoadForRole builds the permission map for a role by name.
	LoadForRole(ctx context.Context, roleName string) (rbac.PermissionMap, error)
}

type permissionStore struct {
	db *gorm.DB
}

func NewPermissionStore(db *gorm.DB) PermissionStore {
	return &permissionStore{db: db}
}

func (s *permissionStore) LoadForUser(ctx context.Context, userID uuid.UUID) (string, rbac.PermissionMap, error) {
	var user model.User
	if err := GetDB(ctx, s.db).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrProfileNotFound
		}
		return "", nil, err
	}

	if user.RoleID == nil {
		return "", nil, ErrRoleNotAssigned
	}

	var role model.Role
	err := GetDB(ctx, s.db).
		Preload("Permissions.Resource").
		First(&role, "id = ?", *user.RoleID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Dangling role reference: treat like no role at all.
			return "", nil, ErrRoleNotAssigned
		}
		return "", nil, err
	}

	// A deactivated role authorizes nothing, same as an inactive resource
	// dropping out of the permission map.
	if !role.Active {
		return "", nil, ErrRoleNotAssigned
	}

	return role.Name, buildPermissionMap(role.Permissions), nil
}

func (s *permissionStore) LoadForRole(ctx context.Context, roleName string) (rbac.PermissionMap, error) {
	var role model.Role
	err := GetDB(ctx, s.db).
		Preload("Permissions.Resource").
		Where("name = ?", roleName).
		First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoleNotAssigned
		}
		return nil, err
	}
	if !role.Active {
		return nil, ErrRoleNotAssigned
	}
	return buildPermissionMap(role.Permissions), nil
}

// buildPermissionMap flattens permission rows into the resource-code keyed
// lookup the evaluator consumes. Rows whose resource was deleted or
// deactivated are skipped rather than erroring.
func buildPermissionMap(perms []model.Permission) rbac.PermissionMap {
	m := make(rbac.PermissionMap, len(perms))
	for _, p := range perms {
		if p.Resource == nil || !p.Resource.Active {
			continue
		}
		m[p.Resource.Code] = rbac.Flags{
			Create: p.CanCreate,
			Read:   p.CanRead,
			Update: p.CanUpdate,
			Delete: p.CanDelete,
		}
	}
	return m
}
