package service

import (
	"context"
	"errors"
	"regexp"
	"time"

	"amap/internal/model"
	"amap/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DTOs for Request validation
type CreateUserRequest struct {
	Username string  `json:"username" binding:"required"`
	Email    string  `json:"email" binding:"required,email"`
	Phone    string  `json:"phone"`
	Password string  `json:"password" binding:"required,min=6"`
	RoleID   *string `json:"role_id"` // Optional: a user may exist without a role
}

type UpdateUserRequest struct {
	Username  string  `json:"username"`
	Email     string  `json:"email" binding:"omitempty,email"`
	Phone     string  `json:"phone"`
	RoleID    *string `json:"role_id"`
	ClearRole bool    `json:"clear_role"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	RoleID    string    `json:"role_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	Refresh(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error)
	Logout(ctx context.Context, sessionID string) error
	GetUserByID(ctx context.Context, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, id string) error
	SeedAdminUser(ctx context.Context, username, email, password string) error
}

type userService struct {
	repo   repository.UserRepository
	db     *gorm.DB
	secret []byte
}

// NewUserService returns a new instance of UserService
func NewUserService(repo repository.UserRepository, db *gorm.DB, secret []byte) UserService {
	return &userService{repo: repo, db: db, secret: secret}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	resp := &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Phone:     user.Phone,
		Active:    user.Active,
		CreatedAt: user.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: user.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if user.RoleID != nil {
		resp.RoleID = user.RoleID.String()
	}
	if user.Role != nil {
		resp.Role = user.Role.Name
	}
	return resp
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	// Basic Email format validation fallback. The TLD is open-ended:
	// capping its length rejects real domains (.online, .agency) and
	// internal ones (.local).
	emailRegex := regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)
	if !emailRegex.MatchString(req.Email) {
		return nil, errors.New("invalid email format")
	}

	// Double check username/email uniqueness via repo directly
	if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
		return nil, errors.New("username already exists")
	}
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, errors.New("email already exists")
	}

	var roleID *uuid.UUID
	if req.RoleID != nil && *req.RoleID != "" {
		parsed, err := uuid.Parse(*req.RoleID)
		if err != nil {
			return nil, errors.New("invalid role id")
		}
		var role model.Role
		if err := s.db.WithContext(ctx).First(&role, "id = ?", parsed).Error; err != nil {
			return nil, errors.New("role not found")
		}
		roleID = &parsed
	}

	// Hash password automatically
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.New("failed to hash password")
	}

	user := &model.User{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: string(hashedPassword),
		RoleID:   roleID,
		Active:   true,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return s.GetUserByID(ctx, user.ID.String())
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, errors.New("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, errors.New("invalid email or password")
	}

	if !user.Active {
		return nil, errors.New("account is deactivated")
	}

	// Each login opens a fresh session; the session id keys the permission
	// cache so invalidation on logout hits exactly this session.
	sessionID := uuid.NewString()

	tokenString, err := s.signAccessToken(user, sessionID)
	if err != nil {
		return nil, errors.New("failed to generate token")
	}

	refresh := &model.RefreshToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		SessionID: sessionID,
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	if err := s.db.WithContext(ctx).Create(refresh).Error; err != nil {
		return nil, errors.New("failed to persist refresh token")
	}

	return &TokenResponse{Token: tokenString, RefreshToken: refresh.Token}, nil
}

func (s *userService) Refresh(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, errors.New("refresh token is required")
	}

	var stored model.RefreshToken
	if err := s.db.WithContext(ctx).Where("token = ?", req.RefreshToken).First(&stored).Error; err != nil {
		return nil, errors.New("invalid refresh token")
	}

	if time.Now().After(stored.ExpiresAt) {
		s.db.WithContext(ctx).Delete(&stored)
		return nil, errors.New("refresh token expired")
	}

	user, err := s.repo.GetByID(ctx, stored.UserID.String())
	if err != nil {
		return nil, errors.New("user not found")
	}

	tokenString, err := s.signAccessToken(user, stored.SessionID)
	if err != nil {
		return nil, errors.New("failed to generate token")
	}

	// Rotate the refresh token; the old one is single use.
	stored.Token = uuid.NewString()
	stored.ExpiresAt = time.Now().Add(7 * 24 * time.Hour)
	if err := s.db.WithContext(ctx).Save(&stored).Error; err != nil {
		return nil, errors.New("failed to rotate refresh token")
	}

	return &TokenResponse{Token: tokenString, RefreshToken: stored.Token}, nil
}

func (s *userService) Logout(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&model.RefreshToken{}).Error
}

func (s *userService) signAccessToken(user *model.User, sessionID string) (string, error) {
	roleName := ""
	if user.Role != nil {
		roleName = user.Role.Name
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": roleName,
		"sid":  sessionID,
		"iat":  now.Unix(),
		"exp":  now.Add(24 * time.Hour).Unix(),
	})
	return token.SignedString(s.secret)
}

func (s *userService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.New("user not found")
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	users, total, err := s.repo.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, err
	}

	var responses []UserResponse
	for _, u := range users {
		responses = append(responses, *mapToResponse(&u))
	}

	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.New("user not found")
	}

	if req.ClearRole {
		user.RoleID = nil
		user.Role = nil
	} else if req.RoleID != nil && *req.RoleID != "" {
		parsed, parseErr := uuid.Parse(*req.RoleID)
		if parseErr != nil {
			return nil, errors.New("invalid role id")
		}
		var role model.Role
		if err := s.db.WithContext(ctx).First(&role, "id = ?", parsed).Error; err != nil {
			return nil, errors.New("role not found")
		}
		user.RoleID = &parsed
		user.Role = nil
	}

	if req.Username != "" && req.Username != user.Username {
		if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
			return nil, errors.New("username already exists")
		}
		user.Username = req.Username
	}

	if req.Email != "" && req.Email != user.Email {
		if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
			return nil, errors.New("email already exists")
		}
		user.Email = req.Email
	}

	if req.Phone != "" {
		user.Phone = req.Phone
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	return s.GetUserByID(ctx, id)
}

func (s *userService) DeleteUser(ctx context.Context, id string) error {
	_, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return errors.New("user not found")
	}
	return s.repo.Delete(ctx, id)
}

// SeedAdminUser creates the initial administrator account if no user with
// this email exists yet. Idempotent; wired to env configuration at startup.
func (s *userService) SeedAdminUser(ctx context.Context, username, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil
	}

	var adminRole model.Role
	if err := s.db.WithContext(ctx).Where("name = ?", model.SuperuserRole).First(&adminRole).Error; err != nil {
		return errors.New("admin role is not seeded")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.New("failed to hash password")
	}

	if username == "" {
		username = "admin"
	}

	user := &model.User{
		Username: username,
		Email:    email,
		Password: string(hashedPassword),
		RoleID:   &adminRole.ID,
		Active:   true,
	}
	return s.repo.Create(ctx, user)
}
