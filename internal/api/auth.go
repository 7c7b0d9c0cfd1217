package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/cardledger/internal/ratelimit"
)

const RoleAdmin = "ADMIN"

// Claims carried by bearer tokens issued by the identity service.
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Actor is the authenticated caller of a request.
type Actor struct {
	UserID int64
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type actorKey struct{}

func withActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored by AuthMiddleware.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// SignToken issues an HS256 token for userID. Used by tooling and tests; the
// API itself only verifies tokens.
func SignToken(secret []byte, userID int64, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseToken(secret []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("token without user id")
	}
	return claims, nil
}

// AuthMiddleware verifies the bearer token and stores the Actor in the request
// context. Rejected tokens count as auth attempts against the client IP; once
// that allowance is used up the IP gets 429 until the window ends, valid
// token or not.
func AuthMiddleware(secret []byte, limiter *ratelimit.Limiter, logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ipKey := "ip:" + ClientIP(r)
			if limiter.IsBlocked(ipKey, ratelimit.AuthAttempt) {
				respondRateLimited(w)
				return
			}

			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				limiter.RecordAttempt(ipKey, ratelimit.AuthAttempt)
				respondError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			claims, err := parseToken(secret, tokenString)
			if err != nil {
				limiter.RecordAttempt(ipKey, ratelimit.AuthAttempt)
				logger.WithError(err).WithField("client_ip", ClientIP(r)).Debug("rejected bearer token")
				respondError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := withActor(r.Context(), Actor{UserID: claims.UserID, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers without the ADMIN role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFrom(r.Context())
		if !ok || !actor.IsAdmin() {
			respondError(w, http.StatusForbidden, "Administrator role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
