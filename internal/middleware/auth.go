package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/mangaverse/backend/internal/services"
)

type contextKey string

const userIDKey contextKey = "userID"

var errMissingSubject = errors.New("token has no user_id claim")

// WithUserID stores the authenticated user in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated user stored by the auth middleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// Authenticator validates bearer tokens. Revoked tokens are kept in Redis
// under blacklist:<token> until they would have expired anyway.
type Authenticator struct {
	secret []byte
	redis  *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewAuthenticator(secret string, rdb *redis.Client, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{secret: []byte(secret), redis: rdb, logger: logger, now: time.Now}
}

func blacklistKey(token string) string {
	return fmt.Sprintf("blacklist:%s", token)
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
			return
		}

		if a.redis != nil {
			revoked, err := a.redis.Exists(r.Context(), blacklistKey(token)).Result()
			if err != nil {
				a.logger.Warn("token blacklist lookup failed", zap.Error(err))
			} else if revoked > 0 {
				services.SendErrorResponse(w, "Token has been revoked", http.StatusUnauthorized, nil)
				return
			}
		}

		userID, _, err := a.validateToken(token)
		if err != nil {
			services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// Revoke blacklists the request's bearer token for the rest of its lifetime.
func (a *Authenticator) Revoke(ctx context.Context, token string) error {
	if a.redis == nil {
		return errors.New("token revocation unavailable")
	}
	_, expiresAt, err := a.validateToken(token)
	if err != nil {
		return err
	}
	ttl := expiresAt.Sub(a.now())
	if expiresAt.IsZero() {
		ttl = 24 * time.Hour
	}
	if ttl <= 0 {
		return nil
	}
	return a.redis.Set(ctx, blacklistKey(token), "revoked", ttl).Err()
}

// Logout revokes the caller's token.
// @Summary Logout
// @Description Revoke the bearer token of the caller
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{message=string}
// @Failure 401 {object} services.ErrorResponse
// @Router /auth/logout [post]
func (a *Authenticator) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
		return
	}
	if err := a.Revoke(r.Context(), token); err != nil {
		a.logger.Warn("failed to revoke token", zap.Error(err))
		services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
		return
	}
	services.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func (a *Authenticator) validateToken(tokenString string) (string, time.Time, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return "", time.Time{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", time.Time{}, errMissingSubject
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		userID, _ = claims.GetSubject()
	}
	if userID == "" {
		return "", time.Time{}, errMissingSubject
	}

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	return userID, expiresAt, nil
}

// SecurityHeaders sets the response headers every API reply carries.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
