// Package middleware provides the HTTP middleware chain: request
// logging with trace IDs, panic recovery, and token auth.
package middleware

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Vova4kaua/UADIA/pkg/common"
	"github.com/Vova4kaua/UADIA/pkg/errors"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain combines middlewares into one; the first argument is the
// outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type traceIDKey struct{}

// TraceID returns the request's trace ID, empty when the Logger
// middleware has not run.
func TraceID(r *http.Request) string {
	v, _ := r.Context().Value(traceIDKey{}).(string)
	return v
}

// Logger logs each request with method, path, status, duration and
// trace ID. An X-Trace-ID header is honored when present and generated
// otherwise; either way it is propagated to the response and the
// request context.
func Logger() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" {
				traceID = uuid.NewString()
			}
			ctx := context.WithValue(r.Context(), traceIDKey{}, traceID)
			r = r.WithContext(ctx)
			w.Header().Set("X-Trace-ID", traceID)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			fields := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote", r.RemoteAddr),
				slog.Int("status", wrapped.statusCode),
				slog.String("duration", duration.String()),
				slog.Int64("bytes", wrapped.bytesWritten),
				slog.String("trace_id", traceID),
			}

			switch {
			case wrapped.statusCode >= http.StatusInternalServerError:
				slog.Error("request", fields...)
			case wrapped.statusCode >= http.StatusBadRequest:
				slog.Warn("request", fields...)
			default:
				slog.Info("request", fields...)
			}
		})
	}
}

// responseWriter captures status code and bytes written, and keeps
// Flush and Hijack available for streaming and WebSocket upgrades.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("hijacking not supported by underlying ResponseWriter")
}

// Recovery converts handler panics into error responses. An APIError
// panic keeps its own status code; anything else becomes a 500.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					fields := []any{
						slog.Any("error", err),
						slog.String("stack", string(debug.Stack())),
					}
					if traceID := TraceID(r); traceID != "" {
						fields = append(fields, slog.String("trace_id", traceID))
					}
					slog.Error("panic recovered", fields...)

					switch e := err.(type) {
					case *errors.APIError:
						errors.WriteErrorResponse(w, e)
					case error:
						common.WriteErrorResponse(w, common.StatusPanic, "%s", e.Error())
					default:
						common.WriteErrorResponse(w, common.StatusPanic, "Unknown error occurred")
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// TokenAuth validates the access token. Browser WebSocket clients
// cannot set headers, so a token query parameter is accepted alongside
// Authorization: Bearer.
func TokenAuth(expectedToken string, skipPaths []string) Middleware {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token := ""
			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			} else {
				token = r.URL.Query().Get("token")
			}

			if token == "" || token != expectedToken {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte("Unauthorized"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
