package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRoleHierarchy(t *testing.T) {
	assert.True(t, RoleAdmin.Satisfies(RoleInstructor))
	assert.True(t, RoleInstructor.Satisfies(RoleStudent))
	assert.True(t, RoleStudent.Satisfies(RoleStudent))
	assert.False(t, RoleStudent.Satisfies(RoleInstructor))
	assert.False(t, Role("guest").Satisfies(RoleStudent))
}

func TestJWTAuthParse(t *testing.T) {
	auth := NewJWTAuth("secret", "lms", nil)

	tok, err := auth.Issue("u-1", RoleInstructor, time.Hour)
	require.NoError(t, err)

	p, err := auth.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "u-1", Role: RoleInstructor}, p)

	_, err = NewJWTAuth("other", "lms", nil).Parse(tok)
	assert.ErrorIs(t, err, errInvalidToken)

	unknownRole, err := auth.Issue("u-1", Role("guest"), time.Hour)
	require.NoError(t, err)
	_, err = auth.Parse(unknownRole)
	assert.ErrorIs(t, err, errInvalidToken)

	noneAlg := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "lms"},
	})
	unsigned, err := noneAlg.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.Parse(unsigned)
	assert.ErrorIs(t, err, errInvalidToken)
}

func TestRequireRole(t *testing.T) {
	auth := NewJWTAuth("secret", "", nil)

	r := gin.New()
	r.GET("/staff", auth.RequireAuth(), auth.RequireRole(RoleInstructor), func(c *gin.Context) {
		p, _ := PrincipalFrom(c)
		c.String(http.StatusOK, p.UserID)
	})

	call := func(role Role) int {
		tok, err := auth.Issue("u-"+string(role), role, time.Minute)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/staff", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, call(RoleStudent))
	assert.Equal(t, http.StatusOK, call(RoleInstructor))
	assert.Equal(t, http.StatusOK, call(RoleAdmin))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("1.1.1.1"))

	now = now.Add(2 * time.Minute)
	rl.Cleanup()
	assert.Empty(t, rl.requests)
}

func TestHealthRegistry(t *testing.T) {
	hc := NewHealthRegistry("v1", 50*time.Millisecond)

	report := hc.Check(context.Background())
	assert.True(t, report.Healthy())
	assert.Empty(t, report.Checks)
	assert.Equal(t, "all checks passed", report.Summary())

	hc.AddCheck("database", func(context.Context) error { return nil })
	hc.AddOptionalCheck("cache", func(context.Context) error { return errors.New("refused") })

	report = hc.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.True(t, report.Ready())
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "cache", report.Checks[0].Name, "results are ordered by name")
	assert.Equal(t, "refused", report.Checks[0].Error)
	assert.False(t, report.Checks[0].Critical)

	hc.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	report = hc.Check(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.False(t, report.Ready())
	assert.Equal(t, "failing: cache, slow", report.Summary())

	hc.AddCheck("slow", func(context.Context) error { return nil })
	report = hc.Check(context.Background())
	assert.Len(t, report.Checks, 3, "re-adding a name replaces the check")
	assert.True(t, report.Ready())
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestNewPingCheck(t *testing.T) {
	assert.NoError(t, NewPingCheck(pinger{})(context.Background()))
	assert.Error(t, NewPingCheck(pinger{err: errors.New("down")})(context.Background()))
}
