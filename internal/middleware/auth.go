package middleware

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func GetJWTSecret() []byte {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		if os.Getenv("GIN_MODE") == "release" {
			panic("FATAL: JWT_SECRET environment variable is required in production mode")
		}
		secret = "default_super_secret_key" // Development fallback only — DO NOT use in production
	}
	return []byte(secret)
}

// SetTokenCookies sets access_token and refresh_token as HttpOnly cookies
func SetTokenCookies(c *gin.Context, accessToken, refreshToken string) {
	// Production (cross-origin): SameSiteNoneMode + Secure=true
	// Development (same-site):   SameSiteLaxMode  + Secure=false
	sameSite := http.SameSiteLaxMode
	secure := false
	if os.Getenv("GIN_MODE") == "release" {
		sameSite = http.SameSiteNoneMode
		secure = true
	}

	c.SetSameSite(sameSite)
	// access_token: 24h, path=/, domain="", secure, HttpOnly
	c.SetCookie("access_token", accessToken, 3600*24, "/", "", secure, true)
	// refresh_token: 7 days, path=/, domain="", secure, HttpOnly
	c.SetCookie("refresh_token", refreshToken, 3600*24*7, "/", "", secure, true)
}

// ClearTokenCookies removes access_token and refresh_token cookies
func ClearTokenCookies(c *gin.Context) {
	sameSite := http.SameSiteLaxMode
	secure := false
	if os.Getenv("GIN_MODE") == "release" {
		sameSite = http.SameSiteNoneMode
		secure = true
	}

	c.SetSameSite(sameSite)
	c.SetCookie("access_token", "", -1, "/", "", secure, true)
	c.SetCookie("refresh_token", "", -1, "/", "", secure, true)
}

// ErrNoSession means the request carries no usable credentials. A normal
// condition, handled by redirecting to login, never surfaced as a 500.
var ErrNoSession = errors.New("no valid session")

// Identity is the authenticated caller extracted from the request token.
// RoleName comes from the token claim and is advisory only; the route guard
// re-resolves the role from the permission store before deciding anything.
type Identity struct {
	UserID    uuid.UUID
	SessionID string
	RoleName  string
}

// Context keys set by the guard for downstream handlers
const (
	CtxUserID    = "userID"
	CtxUserRole  = "userRole"
	CtxSessionID = "sessionID"
)

// ResolveSession extracts the current identity from the access_token cookie,
// falling back to the Authorization header. Returns ErrNoSession when the
// request is anonymous or the token is invalid or expired.
func ResolveSession(c *gin.Context) (*Identity, error) {
	tokenString, cookieErr := c.Cookie("access_token")
	if cookieErr != nil || tokenString == "" {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			return nil, ErrNoSession
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return nil, ErrNoSession
		}
		tokenString = parts[1]
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return GetJWTSecret(), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrNoSession
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrNoSession
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrNoSession
	}

	sid, _ := claims["sid"].(string)
	if sid == "" {
		return nil, ErrNoSession
	}

	role, _ := claims["role"].(string)

	return &Identity{UserID: userID, SessionID: sid, RoleName: role}, nil
}

// IdentityFromContext reads the identity the guard stored for the request.
func IdentityFromContext(c *gin.Context) (*Identity, bool) {
	idStr, ok := c.Get(CtxUserID)
	if !ok {
		return nil, false
	}
	userID, err := uuid.Parse(idStr.(string))
	if err != nil {
		return nil, false
	}
	role, _ := c.Get(CtxUserRole)
	sid, _ := c.Get(CtxSessionID)
	roleName, _ := role.(string)
	sessionID, _ := sid.(string)
	return &Identity{UserID: userID, SessionID: sessionID, RoleName: roleName}, true
}
