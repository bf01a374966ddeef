package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authcore/internal/server/services"
)

type errorBody struct {
	Error string `json:"error"`
}

type userJSON struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Role             string     `json:"role"`
	SessionCreatedAt *time.Time `json:"session_created_at,omitempty"`
	SessionExpiresAt *time.Time `json:"session_expires_at,omitempty"`
}

func toUserJSON(u *services.UserInfo) userJSON {
	out := userJSON{ID: u.ID, Username: u.Username, Role: string(u.Role)}
	if !u.SessionCreatedAt.IsZero() {
		out.SessionCreatedAt = &u.SessionCreatedAt
	}
	if !u.SessionExpiresAt.IsZero() {
		out.SessionExpiresAt = &u.SessionExpiresAt
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
