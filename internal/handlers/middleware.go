package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wacrm/internal/auth"
	"wacrm/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFrom returns the request id assigned by the RequestID middleware.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RequestID reuses the caller's X-Request-ID or assigns a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// Logging logs one line per request and recovers handler panics as 500s.
func Logging(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if p := recover(); p != nil {
					log.Error("handler panic",
						zap.Any("panic", p),
						zap.String("path", r.URL.Path),
						zap.String("request_id", RequestIDFrom(r.Context())),
					)
					jsonError(rec, "Internal server error", http.StatusInternalServerError)
				}

				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", rec.status),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", RequestIDFrom(r.Context())),
				}
				if rec.status >= http.StatusInternalServerError {
					log.Warn("request", fields...)
					return
				}
				log.Info("request", fields...)
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

// Instrument records request count and latency under a fixed route label.
func Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RecordRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(start).Seconds())
	})
}

// RequireAuth rejects requests without a valid bearer token and stores the
// token's tenant in the request context.
func RequireAuth(verifier TokenVerifier, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(raw) == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="wacrm"`)
				jsonError(w, "Missing bearer token", http.StatusUnauthorized)
				return
			}

			claims, err := verifier.Verify(strings.TrimSpace(raw))
			if err != nil {
				log.Debug("rejected token", zap.Error(err), zap.String("request_id", RequestIDFrom(r.Context())))
				w.Header().Set("WWW-Authenticate", `Bearer realm="wacrm", error="invalid_token"`)
				jsonError(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := auth.WithTenant(r.Context(), claims.Tenant)
			ctx = auth.WithAdmin(ctx, claims.Admin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin lets only admin tokens through. It runs after RequireAuth.
func RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			jsonError(w, "Admin token required", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}
