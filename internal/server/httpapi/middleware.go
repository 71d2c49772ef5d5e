package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ovenbird/recipebook/internal/common"
	"github.com/ovenbird/recipebook/internal/server/auth"
)

type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"
	contextKeyClaim     contextKey = "claim"
)

// claimFrom returns the verified identity attached to the request, or nil
// for anonymous requests.
func claimFrom(ctx context.Context) *auth.Claim {
	claim, _ := ctx.Value(contextKeyClaim).(*auth.Claim)
	return claim
}

// common wraps a handler with the middleware every API route gets.
func (s *Server) common(handler http.HandlerFunc) http.HandlerFunc {
	return s.metricsMiddleware(
		s.requestIDMiddleware(
			s.panicRecoveryMiddleware(
				s.rateLimitMiddleware(
					s.timeoutMiddleware(
						s.loggingMiddleware(handler),
					),
				),
			),
		),
	)
}

func (s *Server) requestIDMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func (s *Server) panicRecoveryMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				panicRecoveries.Inc()
				s.logger.Error(r.Context(), "panic recovered",
					"panic", fmt.Sprintf("%v", rec),
					"method", r.Method,
					"path", r.URL.Path,
				)
				writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	}
}

func (s *Server) rateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			rateLimitRejects.Inc()
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorBody("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	}
}

// timeoutMiddleware applies the uniform request deadline; everything below
// only propagates the context.
func (s *Server) timeoutMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func (s *Server) loggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)

		next.ServeHTTP(rw, r)

		s.logger.Info(r.Context(), "request",
			"request_id", r.Context().Value(contextKeyRequestID),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

// authStrict requires a valid identity token; requests without one never
// reach the handler.
func (s *Server) authStrict(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(common.AuthTokenHeaderName)
		if token == "" {
			writeError(s.logger, w, r, common.ErrorUnauthenticated)
			return
		}

		claim, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			writeError(s.logger, w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyClaim, claim)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// authObserve attaches an identity when a valid token is present but never
// rejects: a missing or invalid token means the request proceeds anonymous.
func (s *Server) authObserve(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(common.AuthTokenHeaderName)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claim, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			s.logger.Warn(r.Context(), "ignoring invalid token on observational route",
				"path", r.URL.Path, "error", err.Error())
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyClaim, claim)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}
