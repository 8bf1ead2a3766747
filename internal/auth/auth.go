// Package auth implements the dashboard's single-password login gate.
// A successful login yields an HS256 token naming the operator.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingUsername    = errors.New("username is required")
	ErrInvalidCredentials = errors.New("invalid password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Claims carries the operator name in the subject.
type Claims struct {
	jwt.RegisteredClaims
}

// Gate issues and verifies session tokens.
type Gate struct {
	password []byte
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewGate creates a gate. An empty password disables the gate; an empty
// secret is replaced with a random one, invalidating tokens on restart.
func NewGate(password, secret string, ttl time.Duration) (*Gate, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate auth secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Gate{
		password: []byte(password),
		secret:   key,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Enabled reports whether a password is configured.
func (g *Gate) Enabled() bool {
	return len(g.password) > 0
}

// NormalizeUsername lowercases and trims the operator name.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Login checks the password and returns a signed token for the normalized
// username. A disabled gate accepts any password.
func (g *Gate) Login(username, password string) (string, string, error) {
	user := NormalizeUsername(username)
	if user == "" {
		return "", "", ErrMissingUsername
	}
	if g.Enabled() && subtle.ConstantTimeCompare([]byte(password), g.password) != 1 {
		return "", "", ErrInvalidCredentials
	}

	now := g.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	})
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	return signed, user, nil
}

// Verify returns the username carried by a valid token.
func (g *Gate) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

type userKey struct{}

// WithUser stores the operator name on the context.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom returns the operator name stored by Middleware.
func UserFrom(ctx context.Context) string {
	user, _ := ctx.Value(userKey{}).(string)
	return user
}

// Middleware rejects requests without a valid bearer token. A disabled gate
// lets every request through.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			unauthorized(w, "Authorization header is missing")
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			unauthorized(w, "Invalid token format, must be Bearer token")
			return
		}
		user, err := g.Verify(tokenString)
		if err != nil {
			unauthorized(w, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
