package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/services"
)

const maxJSONBody = 64 << 10

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type loginResponse struct {
	Success      bool      `json:"success"`
	User         userJSON  `json:"user"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type failureResponse struct {
	Success          bool              `json:"success"`
	Error            string            `json:"error,omitempty"`
	Errors           map[string]string `json:"errors,omitempty"`
	Details          []string          `json:"details,omitempty"`
	Strength         string            `json:"strength,omitempty"`
	MinutesRemaining int               `json:"minutes_remaining,omitempty"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	return dec.Decode(v)
}

func (s *Server) meta(r *http.Request) services.ClientMeta {
	return services.ClientMeta{IP: s.clientIP(r), UserAgent: r.UserAgent()}
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionTokenName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionTokenName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, failureResponse{Error: "Invalid request body"})
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	missing := map[string]string{}
	if req.Username == "" {
		missing["username"] = "username is required"
	}
	if req.Password == "" {
		missing["password"] = "password is required"
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, failureResponse{Errors: missing})
		return
	}

	res, err := s.auth.Login(r.Context(), req.Username, req.Password, s.meta(r), req.Remember)
	if err != nil {
		var limited *common.RateLimitedError
		switch {
		case errors.As(err, &limited):
			w.Header().Set("Retry-After", strconv.Itoa(limited.MinutesRemaining*60))
			writeJSON(w, http.StatusTooManyRequests, failureResponse{
				Error:            "Too many failed login attempts",
				MinutesRemaining: limited.MinutesRemaining,
			})
		case errors.Is(err, common.ErrInvalidCredentials):
			writeJSON(w, http.StatusUnauthorized, failureResponse{Error: "Invalid credentials"})
		default:
			writeJSON(w, http.StatusInternalServerError, failureResponse{Error: "Login failed"})
		}
		return
	}

	setSessionCookie(w, r, res.Token, res.ExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{
		Success:      true,
		User:         toUserJSON(&res.User),
		SessionToken: res.Token,
		ExpiresAt:    res.ExpiresAt,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if _, err := s.auth.LogoutSession(r.Context(), token); err != nil {
			writeJSON(w, http.StatusInternalServerError, failureResponse{Error: "Logout failed"})
			return
		}
	}
	clearSessionCookie(w, r)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"authenticated": true,
		"user":          toUserJSON(currentUser(r.Context())),
	})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, failureResponse{Error: "Invalid request body"})
		return
	}

	user := currentUser(r.Context())
	err := s.auth.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword, s.clientIP(r))
	if err != nil {
		var invalid *common.ValidationError
		switch {
		case errors.As(err, &invalid):
			writeJSON(w, http.StatusBadRequest, failureResponse{
				Error:    "validation_failed",
				Details:  invalid.Reasons,
				Strength: invalid.Strength,
			})
		case errors.Is(err, common.ErrInvalidCredentials):
			writeJSON(w, http.StatusBadRequest, failureResponse{Error: "invalid_current_password"})
		case errors.Is(err, common.ErrorNotFound):
			writeJSON(w, http.StatusNotFound, failureResponse{Error: "user_not_found"})
		default:
			writeJSON(w, http.StatusInternalServerError, failureResponse{Error: "internal_error"})
		}
		return
	}

	// Every session of the user, this one included, is gone now.
	clearSessionCookie(w, r)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := services.DefaultAuditLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, failureResponse{Error: "limit must be an integer"})
			return
		}
		limit = n
	}

	events, err := s.auth.RecentAuditEvents(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, failureResponse{Error: "Failed to read audit log"})
		return
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "events": events})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
