package handler

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-tracker/internal/auth"
	"github.com/segyhp/loan-tracker/internal/domain"
	customError "github.com/segyhp/loan-tracker/pkg/errors"
	"github.com/segyhp/loan-tracker/pkg/response"
)

// Authenticator resolves a bearer token to the calling user
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Actor, error)
}

// Enforcer decides whether a role may call a method on a path
type Enforcer interface {
	Enforce(rvals ...interface{}) (bool, error)
}

// JWTMiddleware authenticates the bearer token and stores the actor in the request context
func JWTMiddleware(authn Authenticator, log logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			token = strings.TrimSpace(token)
			if !found || token == "" {
				response.Unauthorized(w, "Missing bearer token")
				return
			}

			actor, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				writeError(w, log, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}

// RBACMiddleware enforces role/path/method policy for the authenticated actor
func RBACMiddleware(enforcer Enforcer, log logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := auth.ActorFrom(r.Context())
			if !ok {
				response.Unauthorized(w, "Missing bearer token")
				return
			}

			allowed, err := enforcer.Enforce(string(actor.Role), r.URL.Path, r.Method)
			if err != nil {
				log.WithError(err).Error("RBAC enforce failed")
				response.InternalServerError(w, "Authorization check failed", nil)
				return
			}
			if !allowed {
				log.WithFields(logrus.Fields{
					"user_id": actor.UserID,
					"role":    actor.Role,
					"path":    r.URL.Path,
					"method":  r.Method,
				}).Warn("Access denied")
				writeError(w, log, customError.WrapForbidden("Insufficient permissions"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RealIPMiddleware takes the client address from the first X-Forwarded-For
// hop. Only enable it behind a proxy that overwrites the header.
func RealIPMiddleware(trustProxy bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if !trustProxy {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
				first, _, _ := strings.Cut(fwd, ",")
				if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
					r.RemoteAddr = net.JoinHostPort(ip.String(), "0")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccessLogMiddleware logs every HTTP request
func AccessLogMiddleware(log logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// capture the status code
			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(recorder, r)

			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   recorder.statusCode,
				"duration": time.Since(start).String(),
				"ip":       clientIP(r),
			}).Info("HTTP request")
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *responseRecorder) WriteHeader(statusCode int) {
	rec.statusCode = statusCode
	rec.ResponseWriter.WriteHeader(statusCode)
}
