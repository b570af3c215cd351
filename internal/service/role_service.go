package service

import (
	"context"
	"fmt"

	"amap/internal/model"
	"amap/internal/rbac"
	"amap/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type UpdateRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

// PermissionGrant is one row of the permission matrix as saved by the
// role-management UI.
type PermissionGrant struct {
	ResourceID string `json:"resource_id" binding:"required"`
	CanCreate  bool   `json:"can_create"`
	CanRead    bool   `json:"can_read"`
	CanUpdate  bool   `json:"can_update"`
	CanDelete  bool   `json:"can_delete"`
}

type UpdateRolePermissionsRequest struct {
	Permissions []PermissionGrant `json:"permissions" binding:"required"`
}

type PermissionRowResponse struct {
	ResourceID   string `json:"resource_id"`
	ResourceCode string `json:"resource_code"`
	ResourceName string `json:"resource_name"`
	CanCreate    bool   `json:"can_create"`
	CanRead      bool   `json:"can_read"`
	CanUpdate    bool   `json:"can_update"`
	CanDelete    bool   `json:"can_delete"`
}

type RoleResponse struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	IsSystem    bool                    `json:"is_system"`
	Active      bool                    `json:"active"`
	Permissions []PermissionRowResponse `json:"permissions"`
	CreatedAt   string                  `json:"created_at"`
}

// ChangeNotifier fans out RBAC changes to connected admin clients so their
// cached permission maps can be dropped without waiting for the TTL.
type ChangeNotifier interface {
	PermissionsUpdated(roleName string)
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id string) (*RoleResponse, error)
	CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, id string) error
	UpdateRolePermissions(ctx context.Context, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error)
	SeedDefaults(ctx context.Context) error
}

type roleService struct {
	db        *gorm.DB
	txManager repository.TransactionManager
	cache     *rbac.SessionCache
	notifier  ChangeNotifier // optional
}

func NewRoleService(db *gorm.DB, txManager repository.TransactionManager, cache *rbac.SessionCache, notifier ChangeNotifier) RoleService {
	return &roleService{db: db, txManager: txManager, cache: cache, notifier: notifier}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	var roles []model.Role
	if err := s.db.WithContext(ctx).Preload("Permissions.Resource").Order("name ASC").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id string) (*RoleResponse, error) {
	roleID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid role id: %w", err)
	}

	var role model.Role
	if err := s.db.WithContext(ctx).Preload("Permissions.Resource").First(&role, "id = ?", roleID).Error; err != nil {
		return nil, fmt.Errorf("role not found: %w", err)
	}

	resp := toRoleResponse(role)
	return &resp, nil
}

func (s *roleService) CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error) {
	if req.Name == model.SuperuserRole {
		return nil, fmt.Errorf("role name '%s' is reserved", model.SuperuserRole)
	}

	role := model.Role{
		Name:        req.Name,
		Description: req.Description,
		IsSystem:    false,
		Active:      true,
	}
	if err := s.db.WithContext(ctx).Create(&role).Error; err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	return s.GetRole(ctx, role.ID.String())
}

func (s *roleService) UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error) {
	roleID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid role id: %w", err)
	}

	var role model.Role
	if err := s.db.WithContext(ctx).First(&role, "id = ?", roleID).Error; err != nil {
		return nil, fmt.Errorf("role not found: %w", err)
	}

	oldName := role.Name

	// A system role's identity is immutable; only its description may change.
	if req.Name != "" && req.Name != role.Name {
		if role.IsSystem {
			return nil, fmt.Errorf("cannot rename system role '%s'", role.Name)
		}
		if req.Name == model.SuperuserRole {
			return nil, fmt.Errorf("role name '%s' is reserved", model.SuperuserRole)
		}
		role.Name = req.Name
	}
	if req.Description != "" {
		role.Description = req.Description
	}
	if req.Active != nil {
		if role.IsSystem && !*req.Active {
			return nil, fmt.Errorf("cannot deactivate system role '%s'", role.Name)
		}
		role.Active = *req.Active
	}

	if err := s.db.WithContext(ctx).Save(&role).Error; err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	// Sessions cached under the previous identity must re-resolve:
	// a rename or deactivation takes effect now, not after the TTL.
	s.cache.InvalidateRole(oldName)

	return s.GetRole(ctx, id)
}

func (s *roleService) DeleteRole(ctx context.Context, id string) error {
	roleID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid role id: %w", err)
	}

	var role model.Role
	if err := s.db.WithContext(ctx).First(&role, "id = ?", roleID).Error; err != nil {
		return fmt.Errorf("role not found: %w", err)
	}

	if role.IsSystem {
		return fmt.Errorf("cannot delete system role '%s'", role.Name)
	}

	// Permission rows go with the role, in one transaction.
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		db := repository.GetDB(txCtx, s.db)
		if err := db.Where("role_id = ?", role.ID).Delete(&model.Permission{}).Error; err != nil {
			return fmt.Errorf("failed to delete permissions: %w", err)
		}
		if err := db.Delete(&role).Error; err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		// Users pointing at the deleted role fall back to no role at all.
		if err := db.Model(&model.User{}).Where("role_id = ?", role.ID).Update("role_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach users: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.InvalidateRole(role.Name)
	return nil
}

// UpdateRolePermissions replaces a role's permission matrix with a
// diff-based upsert inside one transaction: rows are added, changed and
// removed as a single batch. If anything fails the old matrix survives
// intact — the role can never be left with a partial set.
func (s *roleService) UpdateRolePermissions(ctx context.Context, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error) {
	id, err := uuid.Parse(roleID)
	if err != nil {
		return nil, fmt.Errorf("invalid role id: %w", err)
	}

	var roleName string
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		db := repository.GetDB(txCtx, s.db)

		var role model.Role
		if err := db.First(&role, "id = ?", id).Error; err != nil {
			return fmt.Errorf("role not found: %w", err)
		}
		roleName = role.Name

		if role.IsSystem && len(req.Permissions) == 0 {
			return fmt.Errorf("cannot wipe permissions of system role '%s'", role.Name)
		}

		// Validate every referenced resource before touching any row.
		desired := make(map[uuid.UUID]PermissionGrant, len(req.Permissions))
		resourceIDs := make([]uuid.UUID, 0, len(req.Permissions))
		for _, g := range req.Permissions {
			rid, parseErr := uuid.Parse(g.ResourceID)
			if parseErr != nil {
				return fmt.Errorf("invalid resource id '%s': %w", g.ResourceID, parseErr)
			}
			if _, dup := desired[rid]; dup {
				return fmt.Errorf("duplicate resource id '%s'", g.ResourceID)
			}
			desired[rid] = g
			resourceIDs = append(resourceIDs, rid)
		}

		if len(resourceIDs) > 0 {
			var count int64
			if err := db.Model(&model.Resource{}).Where("id IN ?", resourceIDs).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to validate resources: %w", err)
			}
			if count != int64(len(resourceIDs)) {
				return fmt.Errorf("unknown resource in permission matrix")
			}
		}

		var existing []model.Permission
		if err := db.Where("role_id = ?", role.ID).Find(&existing).Error; err != nil {
			return fmt.Errorf("failed to load current permissions: %w", err)
		}

		existingByRes := make(map[uuid.UUID]model.Permission, len(existing))
		for _, p := range existing {
			existingByRes[p.ResourceID] = p
		}

		// Added and changed rows.
		for rid, g := range desired {
			current, exists := existingByRes[rid]
			if !exists {
				row := model.Permission{
					RoleID:     role.ID,
					ResourceID: rid,
					CanCreate:  g.CanCreate,
					CanRead:    g.CanRead,
					CanUpdate:  g.CanUpdate,
					CanDelete:  g.CanDelete,
				}
				if err := db.Create(&row).Error; err != nil {
					return fmt.Errorf("failed to insert permission: %w", err)
				}
				continue
			}
			if current.CanCreate != g.CanCreate || current.CanRead != g.CanRead ||
				current.CanUpdate != g.CanUpdate || current.CanDelete != g.CanDelete {
				current.CanCreate = g.CanCreate
				current.CanRead = g.CanRead
				current.CanUpdate = g.CanUpdate
				current.CanDelete = g.CanDelete
				if err := db.Save(&current).Error; err != nil {
					return fmt.Errorf("failed to update permission: %w", err)
				}
			}
		}

		// Removed rows.
		for rid, p := range existingByRes {
			if _, keep := desired[rid]; !keep {
				if err := db.Delete(&model.Permission{}, "id = ?", p.ID).Error; err != nil {
					return fmt.Errorf("failed to remove permission: %w", err)
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	// Sessions holding this role must re-read on their next check.
	s.cache.InvalidateRole(roleName)
	if s.notifier != nil {
		s.notifier.PermissionsUpdated(roleName)
	}

	return s.GetRole(ctx, roleID)
}

// SeedDefaults creates the resource catalog, the admin system role and a
// sample "vendeur" role if not already present. Idempotent; runs at startup.
func (s *roleService) SeedDefaults(ctx context.Context) error {
	defaultResources := []model.Resource{
		{Code: "produits", Name: "Produits", Icon: "shopping-basket", Order: 1},
		{Code: "commandes", Name: "Commandes", Icon: "receipt", Order: 2},
		{Code: "paniers", Name: "Paniers hebdomadaires", Icon: "basket", Order: 3},
		{Code: "clients", Name: "Clients", Icon: "users", Order: 4},
		{Code: "campagnes", Name: "Campagnes email", Icon: "mail", Order: 5},
		{Code: "caisse", Name: "Caisse", Icon: "cash-register", Order: 6},
		{Code: "statistiques", Name: "Statistiques", Icon: "chart-bar", Order: 7},
		{Code: "utilisateurs", Name: "Utilisateurs", Icon: "user-cog", Order: 8},
		{Code: "roles", Name: "Rôles et permissions", Icon: "shield", Order: 9},
		{Code: "ressources", Name: "Ressources", Icon: "folder-tree", Order: 10},
		{Code: "journal", Name: "Journal des accès", Icon: "history", Order: 11},
	}

	resourceByCode := make(map[string]model.Resource, len(defaultResources))
	for i := range defaultResources {
		r := &defaultResources[i]
		var existing model.Resource
		result := s.db.WithContext(ctx).Where("code = ?", r.Code).First(&existing)
		if result.Error != nil {
			r.Active = true
			if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
				return fmt.Errorf("failed to seed resource '%s': %w", r.Code, err)
			}
		} else {
			r.ID = existing.ID
		}
		resourceByCode[r.Code] = *r
	}

	// The admin role must always exist and is a system role. Its permission
	// rows are irrelevant: the evaluator short-circuits on the name.
	var adminRole model.Role
	if err := s.db.WithContext(ctx).Where("name = ?", model.SuperuserRole).First(&adminRole).Error; err != nil {
		adminRole = model.Role{
			Name:        model.SuperuserRole,
			Description: "Administrateur — accès complet",
			IsSystem:    true,
			Active:      true,
		}
		if err := s.db.WithContext(ctx).Create(&adminRole).Error; err != nil {
			return fmt.Errorf("failed to seed admin role: %w", err)
		}
	}

	// Sample seller role for the point of sale and catalog sections.
	var vendeur model.Role
	if err := s.db.WithContext(ctx).Where("name = ?", "vendeur").First(&vendeur).Error; err != nil {
		vendeur = model.Role{
			Name:        "vendeur",
			Description: "Vendeur — catalogue, commandes et caisse",
			IsSystem:    true,
			Active:      true,
		}
		if err := s.db.WithContext(ctx).Create(&vendeur).Error; err != nil {
			return fmt.Errorf("failed to seed vendeur role: %w", err)
		}

		grants := map[string]rbac.Flags{
			"produits":  {Read: true},
			"commandes": {Read: true, Update: true},
			"caisse":    {Create: true, Read: true, Update: true},
		}
		for code, flags := range grants {
			res, ok := resourceByCode[code]
			if !ok {
				continue
			}
			row := model.Permission{
				RoleID:     vendeur.ID,
				ResourceID: res.ID,
				CanCreate:  flags.Create,
				CanRead:    flags.Read,
				CanUpdate:  flags.Update,
				CanDelete:  flags.Delete,
			}
			if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to seed vendeur permission '%s': %w", code, err)
			}
		}
	}

	return nil
}

// --- Helpers ---

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]PermissionRowResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		row := PermissionRowResponse{
			ResourceID: p.ResourceID.String(),
			CanCreate:  p.CanCreate,
			CanRead:    p.CanRead,
			CanUpdate:  p.CanUpdate,
			CanDelete:  p.CanDelete,
		}
		if p.Resource != nil {
			row.ResourceCode = p.Resource.Code
			row.ResourceName = p.Resource.Name
		}
		perms = append(perms, row)
	}

	return RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		Active:      r.Active,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
