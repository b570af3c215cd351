package service

import (
	"context"
	"fmt"
	"testing"

	"amap/internal/model"
	"amap/internal/rbac"
	"amap/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testSecret = []byte("test_secret")

func newUserServiceHarness(t *testing.T) (UserService, RoleService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	roles := NewRoleService(db, repository.NewTransactionManager(db), rbac.NewSessionCache(0), nil)
	users := NewUserService(repository.NewUserRepository(db), db, testSecret)
	return users, roles, db
}

func parseClaims(t *testing.T, tokenString string) jwt.MapClaims {
	t.Helper()
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return testSecret, nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)
	return token.Claims.(jwt.MapClaims)
}

func TestCreateUserAndLogin(t *testing.T) {
	users, roles, db := newUserServiceHarness(t)
	ctx := context.Background()
	require.NoError(t, roles.SeedDefaults(ctx))

	vendeur := roleByName(t, db, "vendeur")
	roleID := vendeur.ID.String()

	created, err := users.CreateUser(ctx, CreateUserRequest{
		Username: "paul",
		Email:    "paul@test.local",
		Password: "secret123",
		RoleID:   &roleID,
	})
	require.NoError(t, err)
	assert.Equal(t, "vendeur", created.Role)

	tokens, err := users.Login(ctx, LoginUserRequest{Email: "paul@test.local", Password: "secret123"})
	require.NoError(t, err)
	require.NotEmpty(t, tokens.Token)
	require.NotEmpty(t, tokens.RefreshToken)

	claims := parseClaims(t, tokens.Token)
	assert.Equal(t, created.ID.String(), claims["sub"])
	assert.Equal(t, "vendeur", claims["role"])
	assert.NotEmpty(t, claims["sid"], "every login opens a session")
}

func TestCreateUserEmailValidation(t *testing.T) {
	users, _, _ := newUserServiceHarness(t)
	ctx := context.Background()

	// Long and internal TLDs are legitimate.
	for i, email := range []string{"a@shop.online", "b@coop.agency", "c@backoffice.local"} {
		_, err := users.CreateUser(ctx, CreateUserRequest{
			Username: fmt.Sprintf("user%d", i),
			Email:    email,
			Password: "secret123",
		})
		assert.NoError(t, err, email)
	}

	for _, email := range []string{"not-an-email", "missing@tld", "@no.user", "paul@"} {
		_, err := users.CreateUser(ctx, CreateUserRequest{
			Username: "x" + email,
			Email:    email,
			Password: "secret123",
		})
		assert.Error(t, err, email)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	users, roles, _ := newUserServiceHarness(t)
	ctx := context.Background()
	require.NoError(t, roles.SeedDefaults(ctx))

	_, err := users.CreateUser(ctx, CreateUserRequest{
		Username: "paul", Email: "paul@test.local", Password: "secret123",
	})
	require.NoError(t, err)

	_, err = users.Login(ctx, LoginUserRequest{Email: "paul@test.local", Password: "wrong"})
	assert.Error(t, err)

	_, err = users.Login(ctx, LoginUserRequest{Email: "nobody@test.local", Password: "secret123"})
	assert.Error(t, err)
}

func TestLoginRejectsDeactivatedAccount(t *testing.T) {
	users, _, db := newUserServiceHarness(t)
	ctx := context.Background()

	created, err := users.CreateUser(ctx, CreateUserRequest{
		Username: "paul", Email: "paul@test.local", Password: "secret123",
	})
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.User{}).Where("id = ?", created.ID).Update("active", false).Error)

	_, err = users.Login(ctx, LoginUserRequest{Email: "paul@test.local", Password: "secret123"})
	assert.Error(t, err)
}

func TestRefreshRotatesTokenAndKeepsSession(t *testing.T) {
	users, _, _ := newUserServiceHarness(t)
	ctx := context.Background()

	_, err := users.CreateUser(ctx, CreateUserRequest{
		Username: "paul", Email: "paul@test.local", Password: "secret123",
	})
	require.NoError(t, err)

	tokens, err := users.Login(ctx, LoginUserRequest{Email: "paul@test.local", Password: "secret123"})
	require.NoError(t, err)
	originalSID := parseClaims(t, tokens.Token)["sid"]

	refreshed, err := users.Refresh(ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, refreshed.RefreshToken, "refresh tokens are single use")
	assert.Equal(t, originalSID, parseClaims(t, refreshed.Token)["sid"], "refresh keeps the session")

	// The consumed token no longer works.
	_, err = users.Refresh(ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	assert.Error(t, err)
}

func TestLogoutDeletesSessionTokens(t *testing.T) {
	users, _, db := newUserServiceHarness(t)
	ctx := context.Background()

	_, err := users.CreateUser(ctx, CreateUserRequest{
		Username: "paul", Email: "paul@test.local", Password: "secret123",
	})
	require.NoError(t, err)

	tokens, err := users.Login(ctx, LoginUserRequest{Email: "paul@test.local", Password: "secret123"})
	require.NoError(t, err)
	sid := parseClaims(t, tokens.Token)["sid"].(string)

	// A second login on another device keeps its own session.
	other, err := users.Login(ctx, LoginUserRequest{Email: "paul@test.local", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, users.Logout(ctx, sid))

	_, err = users.Refresh(ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	assert.Error(t, err, "logged-out session cannot refresh")

	_, err = users.Refresh(ctx, RefreshTokenRequest{RefreshToken: other.RefreshToken})
	assert.NoError(t, err, "other sessions survive")

	var count int64
	require.NoError(t, db.Model(&model.RefreshToken{}).Where("session_id = ?", sid).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUpdateUserRoleAssignment(t *testing.T) {
	users, roles, db := newUserServiceHarness(t)
	ctx := context.Background()
	require.NoError(t, roles.SeedDefaults(ctx))

	created, err := users.CreateUser(ctx, CreateUserRequest{
		Username: "paul", Email: "paul@test.local", Password: "secret123",
	})
	require.NoError(t, err)
	assert.Empty(t, created.Role)

	vendeur := roleByName(t, db, "vendeur")
	roleID := vendeur.ID.String()

	updated, err := users.UpdateUser(ctx, created.ID.String(), UpdateUserRequest{RoleID: &roleID})
	require.NoError(t, err)
	assert.Equal(t, "vendeur", updated.Role)

	cleared, err := users.UpdateUser(ctx, created.ID.String(), UpdateUserRequest{ClearRole: true})
	require.NoError(t, err)
	assert.Empty(t, cleared.Role)
	assert.Empty(t, cleared.RoleID)
}

func TestSeedAdminUser(t *testing.T) {
	users, roles, db := newUserServiceHarness(t)
	ctx := context.Background()

	// Without the admin role seeded first, the seeder refuses.
	err := users.SeedAdminUser(ctx, "admin", "admin@test.local", "secret123")
	assert.Error(t, err)

	require.NoError(t, roles.SeedDefaults(ctx))
	require.NoError(t, users.SeedAdminUser(ctx, "admin", "admin@test.local", "secret123"))
	// Idempotent on re-run.
	require.NoError(t, users.SeedAdminUser(ctx, "admin", "admin@test.local", "secret123"))

	var count int64
	require.NoError(t, db.Model(&model.User{}).Where("email = ?", "admin@test.local").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	tokens, err := users.Login(ctx, LoginUserRequest{Email: "admin@test.local", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, model.SuperuserRole, parseClaims(t, tokens.Token)["role"])
}
