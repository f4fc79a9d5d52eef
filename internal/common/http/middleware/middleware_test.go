package middleware_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/http/middleware"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/contextkey"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

func TestTraceMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.TraceMiddleware())
	var seen interface{}
	router.GET("/trace", func(c *gin.Context) {
		seen = c.Request.Context().Value(contextkey.TraceID)
		c.Status(http.StatusOK)
	})

	rec, _, err := performRequest(router, http.MethodGet, "/trace", map[string]string{"X-Request-Id": "req-123"})
	if err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	traceID := rec.Header().Get("X-Trace-Id")
	if traceID == "" || seen != traceID {
		t.Fatalf("expected trace id in header and request context")
	}
	if rec.Header().Get("X-Request-Id") != "req-123" {
		t.Fatalf("expected request id to be preserved")
	}
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name       string
		config     middleware.CORSConfig
		method     string
		origin     string
		wantStatus int
		wantHeader bool
	}{
		{
			name:       "disabled",
			config:     middleware.CORSConfig{Enabled: false},
			method:     http.MethodGet,
			origin:     "https://editor.example.com",
			wantStatus: http.StatusOK,
		},
		{
			name: "allowed preflight",
			config: middleware.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"https://editor.example.com"},
				AllowedMethods: []string{"GET", "POST"},
				AllowedHeaders: []string{"Authorization"},
			},
			method:     http.MethodOptions,
			origin:     "https://editor.example.com",
			wantStatus: http.StatusNoContent,
			wantHeader: true,
		},
		{
			name:       "blocked preflight",
			config:     middleware.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://editor.example.com"}},
			method:     http.MethodOptions,
			origin:     "https://evil.example.com",
			wantStatus: http.StatusForbidden,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.Use(middleware.CORSMiddleware(tc.config))
			router.GET("/resource", func(c *gin.Context) { c.Status(http.StatusOK) })

			rec, _, err := performRequest(router, tc.method, "/resource", map[string]string{"Origin": tc.origin})
			if err != nil {
				t.Fatalf("decode response failed: %v", err)
			}
			if rec.Code != tc.wantStatus {
				t.Fatalf("unexpected status: %d", rec.Code)
			}
			if tc.wantHeader && rec.Header().Get("Access-Control-Allow-Origin") == "" {
				t.Fatalf("expected cors headers")
			}
		})
	}
}

func newAuthRouter(t *testing.T, auth *middleware.Authenticator, roles ...string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.TraceMiddleware(), middleware.AuthMiddleware(auth, roles...))
	router.GET("/me", func(c *gin.Context) {
		id, ok := middleware.UserID(c)
		if !ok || id != 42 {
			t.Errorf("unexpected user id %d", id)
		}
		if c.Request.Context().Value(contextkey.UserID) != "42" {
			t.Errorf("user id missing from request context")
		}
		c.Status(http.StatusOK)
	})
	return router
}

func TestAuthMiddleware(t *testing.T) {
	auth, err := middleware.NewAuthenticator("secret", "codearena")
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	valid, err := auth.Issue(42, "user", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	expired, _ := auth.Issue(42, "user", -time.Minute)
	refresh, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42", "iss": "codearena", "typ": "refresh", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	foreign, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42", "iss": "codearena", "typ": "access", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other"))

	cases := []struct {
		name     string
		path     string
		header   string
		wantCode int
		wantErr  pkgerrors.ErrorCode
	}{
		{name: "valid header", path: "/me", header: "Bearer " + valid, wantCode: http.StatusOK},
		{name: "valid query", path: "/me?access_token=" + valid, wantCode: http.StatusOK},
		{name: "missing", path: "/me", wantCode: http.StatusUnauthorized, wantErr: pkgerrors.Unauthorized},
		{name: "expired", path: "/me", header: "Bearer " + expired, wantCode: http.StatusUnauthorized, wantErr: pkgerrors.TokenExpired},
		{name: "refresh token", path: "/me", header: "Bearer " + refresh, wantCode: http.StatusUnauthorized, wantErr: pkgerrors.TokenInvalid},
		{name: "bad signature", path: "/me", header: "Bearer " + foreign, wantCode: http.StatusUnauthorized, wantErr: pkgerrors.TokenInvalid},
	}
	router := newAuthRouter(t, auth)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.header != "" {
				headers["Authorization"] = tc.header
			}
			rec, resp, err := performRequest(router, http.MethodGet, tc.path, headers)
			if err != nil {
				t.Fatalf("decode response failed: %v", err)
			}
			if rec.Code != tc.wantCode {
				t.Fatalf("unexpected status: %d", rec.Code)
			}
			if tc.wantErr != 0 && resp.Code != int(tc.wantErr) {
				t.Fatalf("unexpected error code: %d", resp.Code)
			}
		})
	}
}

func TestAuthMiddlewareRoles(t *testing.T) {
	auth, _ := middleware.NewAuthenticator("secret", "")
	token, _ := auth.Issue(42, "user", time.Hour)
	router := newAuthRouter(t, auth, "admin", "setter")
	rec, _, err := performRequest(router, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer " + token})
	if err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	auth, _ := middleware.NewAuthenticator("secret", "")
	token, _ := auth.Issue(42, "user", time.Hour)

	router := gin.New()
	router.Use(middleware.AuthMiddleware(auth))
	router.POST("/submit",
		middleware.RateLimitMiddleware(middleware.NewRateLimiter(redisCache, time.Second), "submit", 2, time.Minute),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	headers := map[string]string{"Authorization": "Bearer " + token}
	for i := 0; i < 2; i++ {
		rec, _, _ := performRequest(router, http.MethodPost, "/submit", headers)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: unexpected status %d", i, rec.Code)
		}
	}
	rec, resp, _ := performRequest(router, http.MethodPost, "/submit", headers)
	if rec.Code != http.StatusTooManyRequests || resp.Code != int(pkgerrors.SubmitTooFrequently) {
		t.Fatalf("expected rate limit, got %d/%d", rec.Code, resp.Code)
	}
	if ttl := mr.TTL("arena:rate:submit:42"); ttl <= 0 {
		t.Fatalf("rate limit key should expire, ttl=%v", ttl)
	}
}

func TestRateLimiterDisabledWithoutCache(t *testing.T) {
	var limiter *middleware.RateLimiter
	if err := limiter.Allow(context.Background(), "k", 1, time.Minute); err != nil {
		t.Fatalf("nil limiter should allow: %v", err)
	}
}
