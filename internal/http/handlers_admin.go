package httpx

import (
	"net/http"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
)

// AdminHandlers serves the pages and endpoints behind the session gate.
type AdminHandlers struct {
	Renderer *TemplateRenderer
	Policy   domainauth.Policy
}

// Dashboard handles GET /admin.
func (h *AdminHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	admin, ok := GetAdminFromContext(r.Context())
	if !ok {
		redirectToLogin(w, r)
		return
	}
	h.Renderer.renderOrFail(w, http.StatusOK, PageDashboard, PageData{
		Title:       "Dashboard",
		Admin:       admin,
		CSRFToken:   GetCSRFToken(r),
		SessionDays: int(h.Policy.SessionDuration.Hours() / 24),
		IdleMinutes: int(h.Policy.IdleTimeout.Minutes()),
	})
}

// Me handles GET /api/admin/me.
func (h *AdminHandlers) Me(w http.ResponseWriter, r *http.Request) {
	admin, ok := GetAdminFromContext(r.Context())
	if !ok {
		writeAuthRequired(w)
		return
	}
	WriteJSON(w, http.StatusOK, admin)
}

// SessionPolicy handles GET /api/admin/session-policy (admin role only).
func (h *AdminHandlers) SessionPolicy(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"session_duration_seconds": int64(h.Policy.SessionDuration.Seconds()),
		"idle_timeout_seconds":     int64(h.Policy.IdleTimeout.Seconds()),
	})
}
