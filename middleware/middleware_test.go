package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cr4all/supportservices/config"
	"github.com/cr4all/supportservices/limiter"
	"github.com/cr4all/supportservices/services"
	"github.com/cr4all/supportservices/testutil"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whoami(c echo.Context) error {
	if op := OperatorFrom(c); op != nil {
		return c.String(http.StatusOK, op.Username)
	}
	return c.String(http.StatusOK, "anonymous")
}

func TestOptionalOperator(t *testing.T) {
	auth := services.NewAuthService(testutil.NewDB(t), &config.AuthConfig{Enabled: true, JWTSecret: "s", TokenExpiry: 1})
	_, err := auth.RegisterOperator(context.Background(), "alice", "pw")
	require.NoError(t, err)
	resp, err := auth.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)

	e := echo.New()
	e.GET("/me", whoami, OptionalOperator(auth))

	cases := []struct {
		name   string
		target string
		header string
		code   int
		body   string
	}{
		{"anonymous", "/me", "", http.StatusOK, "anonymous"},
		{"header", "/me", "Bearer " + resp.AccessToken, http.StatusOK, "alice"},
		{"query", "/me?token=" + resp.AccessToken, "", http.StatusOK, "alice"},
		{"bad scheme", "/me", "Basic abc", http.StatusUnauthorized, ""},
		{"bad token", "/me", "Bearer nope", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	e := echo.New()
	limit := NewRateLimitMiddleware(limiter.NewManager(client, &limiter.FixedWindowStrategy{}), RateLimitConfig{
		Limit:   2,
		Window:  time.Minute,
		KeyFunc: RouteKey,
	})
	e.POST("/a", whoami, limit)
	e.POST("/b", whoami, limit)

	post := func(path string) int {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, post("/a"))
	assert.Equal(t, http.StatusOK, post("/a"))
	assert.Equal(t, http.StatusTooManyRequests, post("/a"))
	assert.Equal(t, http.StatusOK, post("/b"))

	// Fail open while Redis is broken.
	mr.SetError("down")
	assert.Equal(t, http.StatusOK, post("/a"))
}
