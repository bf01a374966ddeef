package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"github.com/dmitrijs2005/authcore/internal/server/threat"
	"github.com/google/uuid"
)

// maxScreenBody is the largest request body accepted. The threat screen
// reads every body in full, so anything larger is refused.
const maxScreenBody = 1 << 20

type middleware func(http.Handler) http.Handler

// chain wraps h so that mws run in the order given.
func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type ctxKey string

const userKey ctxKey = "user"

func withUser(ctx context.Context, u *services.UserInfo) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func currentUser(ctx context.Context) *services.UserInfo {
	u, _ := ctx.Value(userKey).(*services.UserInfo)
	return u
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLog() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			s.logger.Info(r.Context(), "request",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"client_ip", s.clientIP(r),
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}

var secureHeaders = map[string]string{
	"X-Frame-Options":           "DENY",
	"X-Content-Type-Options":    "nosniff",
	"X-XSS-Protection":          "1; mode=block",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Content-Security-Policy":   "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline';",
}

func securityHeaders() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range secureHeaders {
				w.Header().Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) rateLimit() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.limiter.allow(s.clientIP(r), r.URL.Path) {
				s.logger.Warn(r.Context(), "request rate limit exceeded", "client_ip", s.clientIP(r), "path", r.URL.Path)
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// screen runs the threat detector over the URL and, for POST and PUT, the
// whole body. The body is restored so handlers can read it again.
func (s *Server) screen() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := threat.Request{
				Method:    r.Method,
				Path:      r.URL.Path,
				Query:     r.URL.RawQuery,
				UserAgent: r.UserAgent(),
				ClientIP:  s.clientIP(r),
			}

			if (r.Method == http.MethodPost || r.Method == http.MethodPut) && r.Body != nil {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxScreenBody+1))
				if err != nil {
					writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
					return
				}
				if len(body) > maxScreenBody {
					s.logger.Warn(r.Context(), "request body too large", "client_ip", s.clientIP(r), "path", r.URL.Path)
					writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "Request body too large"})
					return
				}
				r.Body = struct {
					io.Reader
					io.Closer
				}{bytes.NewReader(body), r.Body}
				req.Body = body
			}

			v := s.screener.Screen(r.Context(), req)
			if !v.Allowed {
				switch v.Source {
				case threat.SourceUserAgent:
					writeJSON(w, http.StatusForbidden, errorBody{Error: "Forbidden"})
				case threat.SourceBody:
					writeJSON(w, http.StatusForbidden, errorBody{Error: "Security threat detected in request body"})
				default:
					writeJSON(w, http.StatusForbidden, errorBody{Error: "Security threat detected"})
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sessionToken reads the session cookie, then an Authorization Bearer header.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(common.SessionTokenName); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Authentication required"})
			return
		}

		user, err := s.auth.ValidateSession(r.Context(), token)
		if err != nil {
			if errors.Is(err, common.ErrSessionInvalid) {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Invalid or expired session"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Authentication check failed"})
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

func requireRole(role models.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r.Context())
		if u == nil || u.Role != role {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "Admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
