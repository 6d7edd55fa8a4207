package middleware

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/cachewatch/cmd/server/config"
	"github.com/TFMV/cachewatch/pkg/errors"
)

func setupTestAuthMiddleware(t *testing.T, authType string) *AuthMiddleware {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	cfg := config.AuthConfig{
		Enabled: true,
		Type:    authType,
	}

	switch authType {
	case "basic":
		cfg.BasicAuth.Users = map[string]config.UserInfo{
			"testuser": {
				Password: "testpass",
				Roles:    []string{"admin"},
			},
		}
	case "bearer":
		cfg.BearerAuth.Tokens = map[string]string{
			"test-token": "testuser",
		}
	case "jwt":
		cfg.JWTAuth = config.JWTAuthConfig{
			Secret:   "test-secret",
			Issuer:   "test-issuer",
			Audience: "test-audience",
		}
	}

	return NewAuthMiddleware(cfg, logger)
}

func requestWithAuth(header string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return r
}

func assertUnauthorized(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnauthorized, errors.GetCode(err))
}

func TestNewAuthMiddleware(t *testing.T) {
	t.Run("basic auth", func(t *testing.T) {
		middleware := setupTestAuthMiddleware(t, "basic")
		assert.NotNil(t, middleware)
		assert.True(t, middleware.config.Enabled)
		assert.Equal(t, "basic", middleware.config.Type)
	})

	t.Run("jwt auth", func(t *testing.T) {
		middleware := setupTestAuthMiddleware(t, "jwt")
		assert.Equal(t, "test-secret", string(middleware.HSKey))
		assert.Equal(t, "test-issuer", middleware.Iss)
		assert.Equal(t, "test-audience", middleware.Aud)
	})
}

func TestAuthMiddleware_AuthenticateBasic(t *testing.T) {
	middleware := setupTestAuthMiddleware(t, "basic")

	t.Run("successful authentication", func(t *testing.T) {
		auth := base64.StdEncoding.EncodeToString([]byte("testuser:testpass"))
		ctx, err := middleware.authenticateBasic(requestWithAuth("Basic " + auth))
		require.NoError(t, err)

		user, ok := GetUser(ctx)
		assert.True(t, ok)
		assert.Equal(t, "testuser", user)

		roles, ok := GetRoles(ctx)
		assert.True(t, ok)
		assert.Equal(t, []string{"admin"}, roles)
	})

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing authorization header", header: ""},
		{name: "invalid authorization header", header: "Invalid test"},
		{name: "invalid encoding", header: "Basic !!!"},
		{name: "missing colon", header: "Basic " + base64.StdEncoding.EncodeToString([]byte("testuser"))},
		{name: "unknown user", header: "Basic " + base64.StdEncoding.EncodeToString([]byte("other:testpass"))},
		{name: "invalid credentials", header: "Basic " + base64.StdEncoding.EncodeToString([]byte("testuser:wrongpass"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := middleware.authenticateBasic(requestWithAuth(tt.header))
			assertUnauthorized(t, err)
		})
	}
}

func TestAuthMiddleware_AuthenticateBearer(t *testing.T) {
	middleware := setupTestAuthMiddleware(t, "bearer")

	t.Run("successful authentication", func(t *testing.T) {
		ctx, err := middleware.authenticateBearer(requestWithAuth("Bearer test-token"))
		require.NoError(t, err)
		assert.Equal(t, "testuser", AuthenticatedUser(ctx))
	})

	t.Run("missing authorization header", func(t *testing.T) {
		_, err := middleware.authenticateBearer(requestWithAuth(""))
		assertUnauthorized(t, err)
	})

	t.Run("invalid token", func(t *testing.T) {
		_, err := middleware.authenticateBearer(requestWithAuth("Bearer invalid-token"))
		assertUnauthorized(t, err)
	})
}

func TestAuthMiddleware_AuthenticateJWT(t *testing.T) {
	middleware := setupTestAuthMiddleware(t, "jwt")

	validClaims := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub": "testuser",
			"exp": time.Now().Add(time.Hour).Unix(),
			"iss": "test-issuer",
			"aud": "test-audience",
		}
	}

	t.Run("successful authentication with HMAC", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
		tokenString, err := token.SignedString(middleware.HSKey)
		require.NoError(t, err)

		ctx, err := middleware.authenticateJWT(requestWithAuth("Bearer " + tokenString))
		require.NoError(t, err)
		assert.Equal(t, "testuser", AuthenticatedUser(ctx))
	})

	t.Run("successful authentication with RSA", func(t *testing.T) {
		privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		m := setupTestAuthMiddleware(t, "jwt")
		m.RSKey = privateKey.Public()

		token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
		tokenString, err := token.SignedString(privateKey)
		require.NoError(t, err)

		ctx, err := m.authenticateJWT(requestWithAuth("Bearer " + tokenString))
		require.NoError(t, err)
		assert.Equal(t, "testuser", AuthenticatedUser(ctx))
	})

	t.Run("successful authentication with ECDSA", func(t *testing.T) {
		privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		m := setupTestAuthMiddleware(t, "jwt")
		m.RSKey = privateKey.Public()

		token := jwt.NewWithClaims(jwt.SigningMethodES256, validClaims())
		tokenString, err := token.SignedString(privateKey)
		require.NoError(t, err)

		ctx, err := m.authenticateJWT(requestWithAuth("Bearer " + tokenString))
		require.NoError(t, err)
		assert.Equal(t, "testuser", AuthenticatedUser(ctx))
	})

	t.Run("RSA token without RSA key", func(t *testing.T) {
		privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
		tokenString, err := token.SignedString(privateKey)
		require.NoError(t, err)

		_, err = middleware.authenticateJWT(requestWithAuth("Bearer " + tokenString))
		assertUnauthorized(t, err)
	})

	t.Run("missing authorization header", func(t *testing.T) {
		_, err := middleware.authenticateJWT(requestWithAuth(""))
		assertUnauthorized(t, err)
	})

	t.Run("invalid token", func(t *testing.T) {
		_, err := middleware.authenticateJWT(requestWithAuth("Bearer invalid.token.here"))
		assertUnauthorized(t, err)
	})

	claimTests := []struct {
		name   string
		modify func(jwt.MapClaims)
	}{
		{name: "expired token", modify: func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }},
		{name: "missing expiry", modify: func(c jwt.MapClaims) { delete(c, "exp") }},
		{name: "invalid issuer", modify: func(c jwt.MapClaims) { c["iss"] = "wrong-issuer" }},
		{name: "invalid audience", modify: func(c jwt.MapClaims) { c["aud"] = "wrong-audience" }},
		{name: "missing subject", modify: func(c jwt.MapClaims) { delete(c, "sub") }},
	}
	for _, tt := range claimTests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims()
			tt.modify(claims)
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
			tokenString, err := token.SignedString(middleware.HSKey)
			require.NoError(t, err)

			_, err = middleware.authenticateJWT(requestWithAuth("Bearer " + tokenString))
			assertUnauthorized(t, err)
		})
	}
}

func TestAuthMiddleware_Handler(t *testing.T) {
	middleware := setupTestAuthMiddleware(t, "basic")

	var seenUser string
	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = AuthenticatedUser(r.Context())
		io.WriteString(w, "ok")
	}))

	t.Run("health check bypass", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("authentication required", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, `Basic realm="cachewatch"`, rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("authenticated request", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/actions/shutdown", nil)
		req.SetBasicAuth("testuser", "testpass")
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "testuser", seenUser)
	})
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	middleware := NewAuthMiddleware(config.AuthConfig{Enabled: false, Type: "basic"}, zerolog.Nop())
	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthMiddleware_Preflight(t *testing.T) {
	m := setupTestAuthMiddleware(t, "bearer")
	reached := false
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name    string
		method  string
		headers map[string]string
		reached bool
		code    int
	}{
		{
			name:    "preflight passes without credentials",
			method:  http.MethodOptions,
			headers: map[string]string{"Origin": "https://ops.example", "Access-Control-Request-Method": "GET"},
			reached: true,
			code:    http.StatusNoContent,
		},
		{
			name:    "options without preflight headers is challenged",
			method:  http.MethodOptions,
			headers: map[string]string{"Origin": "https://ops.example"},
			code:    http.StatusUnauthorized,
		},
		{
			name:    "cross-origin request still needs a token",
			method:  http.MethodGet,
			headers: map[string]string{"Origin": "https://ops.example", "Access-Control-Request-Method": "GET"},
			code:    http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached = false
			req := httptest.NewRequest(tt.method, "/api/snapshot", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.reached, reached)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}
