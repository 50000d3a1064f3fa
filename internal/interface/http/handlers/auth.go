package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROLES
// ══════════════════════════════════════════════════════════════════════════════

// Role is the caller's platform role carried in the access token.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// rank orders roles so that a higher role satisfies any lower requirement.
func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleInstructor:
		return 2
	case RoleStudent:
		return 1
	default:
		return 0
	}
}

// Satisfies reports whether r is at least min.
func (r Role) Satisfies(min Role) bool {
	return r.rank() > 0 && r.rank() >= min.rank()
}

// ══════════════════════════════════════════════════════════════════════════════
// CLAIMS AND PRINCIPAL
// ══════════════════════════════════════════════════════════════════════════════

// Claims are the JWT claims accepted by the API. Subject holds the user id.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller attached to the request.
type Principal struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the caller is an administrator.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

const principalKey = "auth.principal"

// PrincipalFrom returns the caller set by RequireAuth.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// ══════════════════════════════════════════════════════════════════════════════
// JWT AUTHENTICATION MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid or expired token")
)

// ErrorWriter renders an error response in the API envelope.
type ErrorWriter func(c *gin.Context, status int, code, message string)

// JWTAuth verifies HS256 bearer tokens.
type JWTAuth struct {
	secret   []byte
	issuer   string
	writeErr ErrorWriter
}

// NewJWTAuth creates an authenticator. An empty issuer disables the issuer check.
func NewJWTAuth(secret, issuer string, writeErr ErrorWriter) *JWTAuth {
	if writeErr == nil {
		writeErr = func(c *gin.Context, status int, code, message string) {
			c.AbortWithStatusJSON(status, gin.H{"success": false, "error": gin.H{"code": code, "message": message}})
		}
	}
	return &JWTAuth{secret: []byte(secret), issuer: issuer, writeErr: writeErr}
}

// Parse validates a token string and returns its principal.
func (a *JWTAuth) Parse(tokenString string) (Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Principal{}, errInvalidToken
	}
	if claims.Role.rank() == 0 {
		return Principal{}, fmt.Errorf("%w: unknown role %q", errInvalidToken, claims.Role)
	}

	return Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

// Issue signs a token for the given user. Used by tooling and tests.
func (a *JWTAuth) Issue(userID string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// RequireAuth rejects requests without a valid bearer token.
func (a *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			a.writeErr(c, http.StatusUnauthorized, "unauthorized", errMissingToken.Error())
			return
		}

		principal, err := a.Parse(tokenString)
		if err != nil {
			a.writeErr(c, http.StatusUnauthorized, "unauthorized", errInvalidToken.Error())
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireRole rejects callers below min. It must run after RequireAuth.
func (a *JWTAuth) RequireRole(min Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			a.writeErr(c, http.StatusUnauthorized, "unauthorized", errMissingToken.Error())
			return
		}
		if !p.Role.Satisfies(min) {
			a.writeErr(c, http.StatusForbidden, "forbidden", "requires role "+string(min))
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
