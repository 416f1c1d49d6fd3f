package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tieredmemory/internal/config"
	"tieredmemory/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func testToken(t *testing.T, secret string, u *user.User) string {
	t.Helper()
	token, err := GenerateJWT(secret, u, time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}
	return token
}

// unreachableRedis is fine for tests whose request never produces a
// valid session: every lookup errors, which reads as "no session".
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
}

func middlewareRouter(cfg *config.Config, rdb *redis.Client, requireAdmin bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(cfg, rdb, requireAdmin))
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ownerId": c.GetString("ownerId")})
	})
	return r
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.JWTSecret = "secret"
	r := middlewareRouter(cfg, unreachableRedis(), false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.JWTSecret = "secret"
	r := middlewareRouter(cfg, unreachableRedis(), false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer not.a.valid.jwt")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for invalid JWT, got %d", w.Code)
	}
}

func TestAuthMiddleware_SessionInvalid(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.JWTSecret = "secret"
	r := middlewareRouter(cfg, unreachableRedis(), false)

	token := testToken(t, cfg.Server.JWTSecret, &user.User{ID: 123, Username: "user", Role: user.RoleUser})
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	// Valid JWT but no stored session: rejected.
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for session error, got %d", w.Code)
	}
}

func TestAuthMiddleware_NonAdminForbidden(t *testing.T) {
	rdb := liveRedis(t)
	cfg := &config.Config{}
	cfg.Server.JWTSecret = "secret"

	u := &user.User{ID: 123, Username: "normaluser", Role: user.RoleUser}
	token := testToken(t, cfg.Server.JWTSecret, u)
	ctx := context.Background()
	_ = SetSession(ctx, rdb, u.MemoryOwnerID(), token, time.Minute)
	defer DeleteSession(ctx, rdb, u.MemoryOwnerID())

	r := middlewareRouter(cfg, rdb, true)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d", w.Code)
	}
}

func TestAuthMiddleware_AdminAllowedAndOwnerScoped(t *testing.T) {
	rdb := liveRedis(t)
	cfg := &config.Config{}
	cfg.Server.JWTSecret = "secret"

	u := &user.User{ID: 222, Username: "adminuser", Role: user.RoleAdmin}
	token := testToken(t, cfg.Server.JWTSecret, u)
	ctx := context.Background()
	_ = SetSession(ctx, rdb, u.MemoryOwnerID(), token, time.Minute)
	defer DeleteSession(ctx, rdb, u.MemoryOwnerID())

	r := middlewareRouter(cfg, rdb, true)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", w.Code)
	}
	if body := w.Body.String(); !strings.Contains(body, "user-222") {
		t.Errorf("expected handler to see ownerId user-222, got: %s", body)
	}
}
