package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "shepherd/pkg/domain"
)

// Context keys for storing authenticated caller information.
type contextKeyActorID struct{}
type contextKeyRole struct{}

var (
	ContextKeyActorID = contextKeyActorID{}
	ContextKeyRole    = contextKeyRole{}
)

// GetActorID retrieves the authenticated caller ID from the context.
func GetActorID(ctx context.Context) id.ActorID {
	actorID, ok := ctx.Value(ContextKeyActorID).(id.ActorID)
	if !ok {
		return ""
	}
	return actorID
}

// GetRole retrieves the caller's role claim ("parent" or "staff").
func GetRole(ctx context.Context) string {
	role, ok := ctx.Value(ContextKeyRole).(string)
	if !ok {
		return ""
	}
	return role
}

// TokenValidator verifies bearer tokens. Token issuance and refresh live in
// the auth backend; this side only needs "who is the caller".
type TokenValidator struct {
	signingKey []byte
}

func NewTokenValidator(signingKey string) *TokenValidator {
	return &TokenValidator{signingKey: []byte(signingKey)}
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Validate parses and verifies a bearer token, returning the caller identity.
func (v *TokenValidator) Validate(tokenString string) (id.ActorID, string, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.signingKey, nil
	})
	if err != nil {
		return "", "", err
	}
	if !token.Valid || c.Subject == "" {
		return "", "", jwt.ErrTokenInvalidSubject
	}
	return id.ActorID(c.Subject), c.Role, nil
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller identity in the request context for handlers.
func RequireAuth(validator *TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				unauthorized(w)
				return
			}

			actorID, role, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token", "error", err)
				unauthorized(w)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, ContextKeyActorID, actorID)
			ctx = context.WithValue(ctx, ContextKeyRole, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Invalid or expired token"}`))
}
