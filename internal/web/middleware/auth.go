package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/JonMunkholm/catalogsync/internal/core"
)

// Claims are the bearer token claims. The subject is the user id.
type Claims struct {
	Restaurants  []string `json:"restaurants"`
	Capabilities []string `json:"capabilities"`
	jwt.RegisteredClaims
}

// Principal converts the claims to the caller the service authorizes.
func (c *Claims) Principal() core.Principal {
	caps := make([]core.Capability, len(c.Capabilities))
	for i, name := range c.Capabilities {
		caps[i] = core.Capability(name)
	}
	return core.Principal{
		UserID:       c.Subject,
		Restaurants:  c.Restaurants,
		Capabilities: caps,
	}
}

// IssueToken signs an HS256 bearer token for a principal.
func IssueToken(secret []byte, p core.Principal, ttl time.Duration) (string, error) {
	caps := make([]string, len(p.Capabilities))
	for i, c := range p.Capabilities {
		caps[i] = string(c)
	}
	now := time.Now()
	claims := &Claims{
		Restaurants:  p.Restaurants,
		Capabilities: caps,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies a bearer token and returns its claims.
func ParseToken(secret []byte, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Authenticate attaches the caller to the request context. When required is
// false every request runs as core.SystemPrincipal; otherwise a valid
// "Authorization: Bearer" token is mandatory.
func Authenticate(secret []byte, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !required {
				ctx := core.ContextWithPrincipal(r.Context(), core.SystemPrincipal())
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				slog.Warn("auth: missing bearer token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeError(w, http.StatusUnauthorized, "missing bearer token", "AUTH_MISSING_TOKEN")
				return
			}

			claims, err := ParseToken(secret, raw)
			if err != nil {
				slog.Warn("auth: invalid bearer token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				writeError(w, http.StatusUnauthorized, "invalid bearer token", "AUTH_INVALID_TOKEN")
				return
			}

			ctx := core.ContextWithPrincipal(r.Context(), claims.Principal())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
