package httpapi

import (
	"net/http"
	"time"

	"ecowatch.org/internal/audit"
	"ecowatch.org/internal/auth"
	"ecowatch.org/internal/domain"
	"ecowatch.org/internal/monitor"
)

type tokenResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      domain.User `json:"user"`
}

// handleAuthToken exchanges a vouched-for identity for a bearer token,
// provisioning the user on first login.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	var id monitor.Identity
	if !decodeBody(w, r, &id) {
		return
	}

	u, err := a.monitor.ProvisionUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	token, err := auth.GenerateToken(u.ID, u.Role, auth.DefaultTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(auth.DefaultTTL)
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user_id":    u.ID,
		"role":       string(u.Role),
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      u,
	})
}
