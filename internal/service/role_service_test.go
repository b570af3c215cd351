package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"amap/internal/database"
	"amap/internal/model"
	"amap/internal/rbac"
	"amap/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

// stubNotifier records which roles were broadcast as updated.
type stubNotifier struct {
	mu    sync.Mutex
	roles []string
}

func (n *stubNotifier) PermissionsUpdated(roleName string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.roles = append(n.roles, roleName)
}

func newRoleServiceHarness(t *testing.T) (RoleService, *gorm.DB, *rbac.SessionCache, *stubNotifier) {
	t.Helper()
	db := newTestDB(t)
	cache := rbac.NewSessionCache(time.Minute)
	notifier := &stubNotifier{}
	svc := NewRoleService(db, repository.NewTransactionManager(db), cache, notifier)
	return svc, db, cache, notifier
}

func resourceIDByCode(t *testing.T, db *gorm.DB, code string) string {
	t.Helper()
	var res model.Resource
	require.NoError(t, db.Where("code = ?", code).First(&res).Error)
	return res.ID.String()
}

func roleByName(t *testing.T, db *gorm.DB, name string) model.Role {
	t.Helper()
	var role model.Role
	require.NoError(t, db.Preload("Permissions.Resource").Where("name = ?", name).First(&role).Error)
	return role
}

func TestSeedDefaultsIdempotent(t *testing.T) {
	svc, db, _, _ := newRoleServiceHarness(t)
	ctx := context.Background()

	require.NoError(t, svc.SeedDefaults(ctx))
	require.NoError(t, svc.SeedDefaults(ctx))

	var resourceCount, roleCount, permCount int64
	require.NoError(t, db.Model(&model.Resource{}).Count(&resourceCount).Error)
	require.NoError(t, db.Model(&model.Role{}).Count(&roleCount).Error)
	require.NoError(t, db.Model(&model.Permission{}).Count(&permCount).Error)

	assert.Equal(t, int64(11), resourceCount)
	assert.Equal(t, int64(2), roleCount)
	assert.Equal(t, int64(3), permCount, "vendeur grants are seeded once")

	admin := roleByName(t, db, model.SuperuserRole)
	assert.True(t, admin.IsSystem)
	assert.True(t, admin.Active)

	vendeur := roleByName(t, db, "vendeur")
	assert.True(t, vendeur.IsSystem)
	assert.Len(t, vendeur.Permissions, 3)
}

func TestSeedDefaultsCoversMappedResources(t *testing.T) {
	svc, db, _, _ := newRoleServiceHarness(t)
	require.NoError(t, svc.SeedDefaults(context.Background()))

	// Every resource code the route table references must exist, otherwise
	// a permission row for it could never be created.
	for _, code := range rbac.MappedResources() {
		var count int64
		require.NoError(t, db.Model(&model.Resource{}).Where("code = ?", code).Count(&count).Error)
		assert.Equal(t, int64(1), count, "missing seed for %s", code)
	}
}

func TestCreateRoleRejectsReservedName(t *testing.T) {
	svc, _, _, _ := newRoleServiceHarness(t)

	_, err := svc.CreateRole(context.Background(), CreateRoleRequest{Name: model.SuperuserRole})
	assert.Error(t, err)
}

func TestUpdateRoleSystemConstraints(t *testing.T) {
	svc, db, _, _ := newRoleServiceHarness(t)
	ctx := context.Background()
	require.NoError(t, svc.SeedDefaults(ctx))

	admin := roleByName(t, db, model.SuperuserRole)
	inactive := false

	_, err := svc.UpdateRole(ctx, admin.ID.String(), UpdateRoleRequest{Name: "root"})
	assert.Error(t, err, "system roles cannot be renamed")

	_, err = svc.UpdateRole(ctx, admin.ID.String(), UpdateRoleRequest{Active: &inactive})
	assert.Error(t, err, "system roles cannot be deactivated")

	// Description changes are fine.
	resp, err := svc.UpdateRole(ctx, admin.ID.String(), UpdateRoleRequest{Description: "updated"})
	require.NoError(t, err)
	assert.Equal(t, "updated", resp.Description)
}

func TestUpdateRolePartialFields(t *testing.T) {
	svc, _, _, _ := newRoleServiceHarness(t)
	ctx := context.Background()

	created, err := svc.CreateRole(ctx, CreateRoleRequest{Name: "comptable", Description: "Comptabilité"})
	require.NoError(t, err)

	// Toggling Active alone must not wipe the other fields.
	inactive := false
	resp, err := svc.UpdateRole(ctx, created.ID, UpdateRoleRequest{Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Comptabilité", resp.Description)
	assert.Equal(t, "comptable", resp.Name)
	assert.False(t, resp.Active)
}

func TestDeleteRole(t *testing.T) {
	svc, db, cache, _ := newRoleServiceHarness(t)
	ctx := context.Background()
	require.NoError(t, svc.SeedDefaults(ctx))

	created, err := svc.CreateRole(ctx, CreateRoleRequest{Name: "comptable"})
	require.NoError(t, err)
	_, err = svc.UpdateRolePermissions(ctx, created.ID, UpdateRolePermissionsRequest{
		Permissions: []PermissionGrant{
			{ResourceID: resourceIDByCode(t, db, "statistiques"), CanRead: true},
		},
	})
	require.NoError(t, err)

	role := roleByName(t, db, "comptable")
	user := model.User{Username: "marie", Email: "marie@test.local", Password: "x", RoleID: &role.ID, Active: true}
	require.NoError(t, db.Create(&user).Error)
	cache.Put("sess-marie", "comptable", rbac.PermissionMap{"statistiques": {Read: true}})

	require.NoError(t, svc.DeleteRole(ctx, created.ID))

	var permCount int64
	require.NoError(t, db.Model(&model.Permission{}).Where("role_id = ?", role.ID).Count(&permCount).Error)
	assert.Zero(t, permCount, "permission rows go with the role")

	var reloaded model.User
	require.NoError(t, db.First(&reloaded, "id = ?", user.ID).Error)
	assert.Nil(t, reloaded.RoleID, "users fall back to no role")

	_, _, ok := cache.Get("sess-marie")
	assert.False(t, ok, "sessions holding the role are invalidated")
}

func TestDeleteRoleRefusesSystemRole(t *testing.T) {
	svc, db, _, _ := newRoleServiceHarness(t)
	ctx := context.Background()
	require.NoError(t, svc.SeedDefaults(ctx))

	admin := roleByName(t, db, model.SuperuserRole)
	assert.Error(t, svc.DeleteRole(ctx, admin.ID.String()))
}

func TestUpdateRolePermissionsDiff(t *testing.T) {
	svc, db, _, notifier := newRoleServiceHarness(t)
	ctx := context.Background()
	require.NoError(t, svc.SeedDefaults(ctx))

	created, err := svc.CreateRole(ctx, CreateRoleRequest{Name: "gestionnaire"})
	require.NoError(t, err)

	produits := resourceIDByCode(t, db, "produits")
	commandes := resourceIDByCode(t, db, "commandes")
	clients := resourceIDByCode(t, db, "clients")

	// Initial matrix: produits read, commandes read.
	_, err = svc.UpdateRolePermissions(ctx, created.ID, UpdateRolePermissionsRequest{
		Permissions: []PermissionGrant{
			{ResourceID: produits, CanRead: true},
			{ResourceID: commandes, CanRead: true},
		},
	})
	require.NoError(t, err)

	// Replace: produits gains update, commandes is dropped, clients is added.
	resp, err := svc.UpdateRolePermissions(ctx, created.ID, UpdateRolePermissionsRequest{
		Permissions: []PermissionGrant{
			{ResourceID: produits, CanRead: true, CanUpdate: true},
			{ResourceID: clients, CanRead: true},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Permissions, 2)

	flags := make(map[string]PermissionRowResponse)
	for _, row := range resp.Permissions {
		flags[row.ResourceCode] = row
	}
	assert.True(t, flags["produits"].CanRead)
	assert.True(t, flags["produits"].CanUpdate)
	assert.True(t, flags["clients"].CanRead)
	_, hasCommandes := flags["commandes"]
	assert.False(t, hasCommandes)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Contains(t, notifier.roles, "gestionnaire")
}

func TestUpdateRolePermissionsRollsBackOnBadResource(t *testing.T) {
	svc, db, _, _ := newRoleServiceHarness(t)
	ctx := context.Background()
	require.NoError(t, svc.SeedDefaults(ctx))

	created, err := svc.CreateRole(ctx, CreateRoleRequest{Name: "gestionnaire"})
	require.NoError(t, err)

	produits := resourceIDByCode(t, db, "produits")
	_, err = svc.UpdateRolePermissions(ctx, created.ID, UpdateRolePermissionsRequest{
		Permissions: []PermissionGrant{{ResourceID: produits, CanRead: true}},
	})
	require.NoError(t, err)

	// One valid change plus one unknown resource: the whole batch must fail
	// and the previous matrix must survive untouched.
	_, err = svc.UpdateRolePermissions(ctx, created.ID, UpdateRolePermissionsRequest{
		Permissions: []PermissionGrant{
			{ResourceID: produits, CanRead: true, CanDelete: true},
			{ResourceID: "4ff81aa8-0000-0000-0000-000000000000", CanRead: true},
		},
	})
	require.Error(t, err)

	role := roleByName(t, db, "gestionnaire")
	require.Len(t, role.Permissions, 1)
	assert.True(t, role.Permissions[0].CanRead)
	assert.False(t, role.Permissions[0].CanDelete, "failed save must not leak partial changes")
}

func TestUpdateRolePermissionsRefusesWipingSystemRole(t *testing.T) {
	svc, db, _, _ := newRoleServiceHarness(t)
	ctx := context.Background()
	require.NoError(t, svc.SeedDefaults(ctx))

	vendeur := roleByName(t, db, "vendeur")
	_, err := svc.UpdateRolePermissions(ctx, vendeur.ID.String(), UpdateRolePermissionsRequest{
		Permissions: []PermissionGrant{},
	})
	assert.Error(t, err)

	reloaded := roleByName(t, db, "vendeur")
	assert.Len(t, reloaded.Permissions, 3, "seeded grants survive")
}

func TestUpdateRolePermissionsRejectsDuplicateResource(t *testing.T) {
	svc, db, _, _ := newRoleServiceHarness(t)
	ctx := context.Background()
	require.NoError(t, svc.SeedDefaults(ctx))

	created, err := svc.CreateRole(ctx, CreateRoleRequest{Name: "gestionnaire"})
	require.NoError(t, err)

	produits := resourceIDByCode(t, db, "produits")
	_, err = svc.UpdateRolePermissions(ctx, created.ID, UpdateRolePermissionsRequest{
		Permissions: []PermissionGrant{
			{ResourceID: produits, CanRead: true},
			{ResourceID: produits, CanDelete: true},
		},
	})
	assert.Error(t, err)
}

func TestUpdateRolePermissionsInvalidatesSessions(t *testing.T) {
	svc, db, cache, _ := newRoleServiceHarness(t)
	ctx := context.Background()
	require.NoError(t, svc.SeedDefaults(ctx))

	vendeur := roleByName(t, db, "vendeur")
	cache.Put("sess-1", "vendeur", rbac.PermissionMap{"produits": {Read: true}})
	cache.Put("sess-2", "comptable", rbac.PermissionMap{})

	_, err := svc.UpdateRolePermissions(ctx, vendeur.ID.String(), UpdateRolePermissionsRequest{
		Permissions: []PermissionGrant{
			{ResourceID: resourceIDByCode(t, db, "produits"), CanRead: true, CanCreate: true},
		},
	})
	require.NoError(t, err)

	_, _, ok := cache.Get("sess-1")
	assert.False(t, ok, "vendeur sessions re-read on their next check")
	_, _, ok = cache.Get("sess-2")
	assert.True(t, ok, "other roles keep their cache")
}
