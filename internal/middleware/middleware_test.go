package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/internal/visibility"
	appErrors "github.com/noah-isme/institute-backoffice-api/pkg/errors"
)

type staticValidator struct {
	token  string
	claims *models.JWTClaims
}

func (v staticValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != v.token {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

type scopeResolverFunc func(ctx context.Context, actor *models.JWTClaims) (visibility.Scope, error)

func (f scopeResolverFunc) Resolve(ctx context.Context, actor *models.JWTClaims) (visibility.Scope, error) {
	return f(ctx, actor)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", append(handlers, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})...)
	return r
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTRequiresBearerToken(t *testing.T) {
	member := &models.JWTClaims{Role: models.RoleMember, Email: "m@x.com"}
	r := newRouter(JWT(staticValidator{token: "good", claims: member}))

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Token good")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good")
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

func TestJWTQueryTokenOnlyForWebSocket(t *testing.T) {
	member := &models.JWTClaims{Role: models.RoleMember, Email: "m@x.com"}
	r := newRouter(JWT(staticValidator{token: "good", claims: member}))

	req := httptest.NewRequest(http.MethodGet, "/protected?access_token=good", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/protected?access_token=good", nil)
	req.Header.Set("Upgrade", "websocket")
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

func TestRequireRoles(t *testing.T) {
	setClaims := func(claims *models.JWTClaims) gin.HandlerFunc {
		return func(c *gin.Context) { c.Set(ContextUserKey, claims) }
	}

	r := newRouter(setClaims(&models.JWTClaims{Role: models.RoleMember}), AdminOnly())
	assert.Equal(t, http.StatusForbidden, serve(r, httptest.NewRequest(http.MethodGet, "/protected", nil)).Code)

	r = newRouter(setClaims(&models.JWTClaims{Role: models.RoleAdmin}), AdminOnly())
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/protected", nil)).Code)

	r = newRouter(AdminOnly())
	assert.Equal(t, http.StatusUnauthorized, serve(r, httptest.NewRequest(http.MethodGet, "/protected", nil)).Code)
}

func TestScopeMiddleware(t *testing.T) {
	claims := &models.JWTClaims{UserID: "m-1", Role: models.RoleMember, Email: "m@x.com"}
	var seen visibility.Scope
	resolver := scopeResolverFunc(func(ctx context.Context, actor *models.JWTClaims) (visibility.Scope, error) {
		return visibility.ForMember(actor.UserID, actor.Email, []string{"p1"}), nil
	})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", func(c *gin.Context) { c.Set(ContextUserKey, claims) }, Scope(resolver), func(c *gin.Context) {
		seen, _ = ScopeFromContext(c)
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/protected", nil)).Code)
	assert.Equal(t, []string{"p1"}, seen.ProjectIDs)

	failing := scopeResolverFunc(func(ctx context.Context, actor *models.JWTClaims) (visibility.Scope, error) {
		return visibility.Scope{}, errors.New("db down")
	})
	r = gin.New()
	r.GET("/protected", func(c *gin.Context) { c.Set(ContextUserKey, claims) }, Scope(failing), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusInternalServerError, serve(r, httptest.NewRequest(http.MethodGet, "/protected", nil)).Code)

	inactive := scopeResolverFunc(func(ctx context.Context, actor *models.JWTClaims) (visibility.Scope, error) {
		return visibility.Scope{}, visibility.ErrInactive
	})
	r = gin.New()
	r.GET("/protected", func(c *gin.Context) { c.Set(ContextUserKey, claims) }, Scope(inactive), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusUnauthorized, serve(r, httptest.NewRequest(http.MethodGet, "/protected", nil)).Code)
}

type recordingObserver struct {
	paths []string
}

func (o *recordingObserver) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.paths = append(o.paths, path)
}

func TestMetricsSkipsConfiguredPaths(t *testing.T) {
	observer := &recordingObserver{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(observer, "/metrics"))
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/students/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/students/42", nil))
	assert.Equal(t, []string{"/students/:id"}, observer.paths)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	r := gin.New()
	r.GET("/dashboard", WithResponseMeta(), func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	serve(r, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ExtractMeta(c))
	SetMeta(c, "source", "db")
	assert.Equal(t, "db", ExtractMeta(c)["source"])
}
