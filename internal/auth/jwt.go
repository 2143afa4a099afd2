package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"ecycle/internal/model"
)

type contextKey string

const actorKey contextKey = "actor"

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SecretKey string
}

// NewJWTConfig creates a new JWT config
func NewJWTConfig(secretKey string) *JWTConfig {
	if secretKey == "" {
		secretKey = "default-secret-key-change-in-production" // Default for development
	}
	return &JWTConfig{SecretKey: secretKey}
}

// ActorFromToken parses and validates a token string into an Actor.
func (c *JWTConfig) ActorFromToken(tokenString string) (model.Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(c.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return model.Actor{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return model.Actor{}, errors.New("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return model.Actor{}, errors.New("token missing subject")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = string(model.RoleUser)
	}
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)

	return model.Actor{
		ID:    sub,
		Name:  name,
		Email: email,
		Role:  model.Role(role),
	}, nil
}

// IssueToken mints a token for an actor. Used by tests and local tooling; a
// production deployment sits behind an identity provider that signs with the
// same secret.
func (c *JWTConfig) IssueToken(actor model.Actor) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   actor.ID,
		"role":  string(actor.Role),
		"name":  actor.Name,
		"email": actor.Email,
	})
	return token.SignedString([]byte(c.SecretKey))
}

// Middleware authenticates every request. Unlike the dashboard prototype this
// service replaces, there is no anonymous path: every role gate in the
// lifecycle core needs a concrete actor.
func (c *JWTConfig) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			http.Error(w, "Missing authorization", http.StatusUnauthorized)
			return
		}

		actor, err := c.ActorFromToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	// WebSocket clients cannot set headers from the browser; allow the token
	// as a query parameter on the upgrade request.
	return r.URL.Query().Get("token")
}

// GetActor extracts the authenticated actor from context.
func GetActor(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(model.Actor)
	return actor, ok
}
