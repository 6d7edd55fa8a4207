// Package middleware provides HTTP middleware for the dashboard server.
package middleware

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/TFMV/cachewatch/cmd/server/config"
	"github.com/TFMV/cachewatch/pkg/errors"
)

const realm = "cachewatch"

// AuthMiddleware provides authentication middleware.
type AuthMiddleware struct {
	config config.AuthConfig
	logger zerolog.Logger

	// JWT verification keys and expected claims.
	HSKey []byte
	RSKey crypto.PublicKey
	Iss   string
	Aud   string

	// Paths served without credentials.
	public map[string]bool
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(cfg config.AuthConfig, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		config: cfg,
		logger: logger,
		HSKey:  []byte(cfg.JWTAuth.Secret),
		Iss:    cfg.JWTAuth.Issuer,
		Aud:    cfg.JWTAuth.Audience,
		public: map[string]bool{"/healthz": true},
	}
}

// Handler wraps next with authentication.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth for health checks
		if m.public[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		// Browsers send CORS preflights without credentials.
		if isPreflight(r) {
			next.ServeHTTP(w, r)
			return
		}

		authCtx, err := m.authenticate(r)
		if err != nil {
			m.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Authentication failed")
			m.challenge(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(authCtx))
	})
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Origin") != "" &&
		r.Header.Get("Access-Control-Request-Method") != ""
}

func (m *AuthMiddleware) challenge(w http.ResponseWriter, err error) {
	switch m.config.Type {
	case "basic":
		w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
	default:
		w.Header().Set("WWW-Authenticate", `Bearer realm="`+realm+`"`)
	}
	http.Error(w, errors.GetMessage(err), errors.HTTPStatus(err))
}

// authenticate performs authentication based on configured type.
func (m *AuthMiddleware) authenticate(r *http.Request) (context.Context, error) {
	if !m.config.Enabled {
		return r.Context(), nil
	}

	switch m.config.Type {
	case "basic":
		return m.authenticateBasic(r)
	case "bearer":
		return m.authenticateBearer(r)
	case "jwt":
		return m.authenticateJWT(r)
	default:
		return nil, errors.New(errors.CodeInternal, "unsupported auth type").WithDetail("type", m.config.Type)
	}
}

// authenticateBasic performs basic authentication.
func (m *AuthMiddleware) authenticateBasic(r *http.Request) (context.Context, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, unauthorized("missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Basic ") {
		return nil, unauthorized("invalid authorization header")
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authHeader, "Basic "))
	if err != nil {
		return nil, unauthorized("invalid credentials encoding")
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return nil, unauthorized("invalid credentials format")
	}

	userInfo, ok := m.config.BasicAuth.Users[username]
	if !ok {
		return nil, unauthorized("invalid credentials")
	}

	// Constant time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(password), []byte(userInfo.Password)) != 1 {
		return nil, unauthorized("invalid credentials")
	}

	ctx := context.WithValue(r.Context(), contextKeyUser, username)
	ctx = context.WithValue(ctx, contextKeyRoles, userInfo.Roles)
	return ctx, nil
}

// authenticateBearer performs bearer token authentication.
func (m *AuthMiddleware) authenticateBearer(r *http.Request) (context.Context, error) {
	token, err := bearerToken(r)
	if err != nil {
		return nil, err
	}

	username, ok := m.config.BearerAuth.Tokens[token]
	if !ok {
		return nil, unauthorized("invalid token")
	}

	return context.WithValue(r.Context(), contextKeyUser, username), nil
}

// authenticateJWT validates a signed token and its issuer, audience and expiry.
func (m *AuthMiddleware) authenticateJWT(r *http.Request) (context.Context, error) {
	raw, err := bearerToken(r)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}),
		jwt.WithExpirationRequired(),
	}
	if m.Iss != "" {
		opts = append(opts, jwt.WithIssuer(m.Iss))
	}
	if m.Aud != "" {
		opts = append(opts, jwt.WithAudience(m.Aud))
	}

	token, err := jwt.Parse(raw, m.keyFunc, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnauthorized, "invalid token")
	}
	if !token.Valid {
		return nil, unauthorized("invalid token")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return nil, unauthorized("token has no subject")
	}

	return context.WithValue(r.Context(), contextKeyUser, subject), nil
}

func (m *AuthMiddleware) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(m.HSKey) == 0 {
			return nil, unauthorized("no HMAC key configured")
		}
		return m.HSKey, nil
	case *jwt.SigningMethodRSA:
		if key, ok := m.RSKey.(*rsa.PublicKey); ok {
			return key, nil
		}
	case *jwt.SigningMethodECDSA:
		if key, ok := m.RSKey.(*ecdsa.PublicKey); ok {
			return key, nil
		}
	}
	return nil, unauthorized("no key for signing method").WithDetail("alg", token.Method.Alg())
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", unauthorized("missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", unauthorized("invalid authorization header")
	}
	return strings.TrimPrefix(authHeader, "Bearer "), nil
}

func unauthorized(message string) *errors.MonitorError {
	return errors.New(errors.CodeUnauthorized, message)
}

// Context keys for authentication
type contextKey string

const (
	contextKeyUser      contextKey = "user"
	contextKeyRoles     contextKey = "roles"
	contextKeyRequestID contextKey = "request_id"
)

// GetUser extracts the authenticated user from context.
func GetUser(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(contextKeyUser).(string)
	return user, ok
}

// GetRoles extracts the user's roles from context.
func GetRoles(ctx context.Context) ([]string, bool) {
	roles, ok := ctx.Value(contextKeyRoles).([]string)
	return roles, ok
}

// AuthenticatedUser returns the authenticated user, or "" for anonymous requests.
func AuthenticatedUser(ctx context.Context) string {
	user, _ := GetUser(ctx)
	return user
}
