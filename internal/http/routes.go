package httpx

import (
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	catalogadmin "github.com/target/catalog-admin"
	domainauth "github.com/target/catalog-admin/internal/domain/auth"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Auth              AuthServiceInterface // Required
	Policy            domainauth.Policy
	Cookie            SessionCookie
	LoginMode         LoginMode
	ProviderLogoutURL string
	Renderer          *TemplateRenderer // Optional: built from the embedded templates when nil
	Readiness         []ReadinessCheck
	IsDev             bool         // Development mode: templates are re-read from disk
	Logger            *slog.Logger // Optional
}

// NewRouter creates the HTTP handler: public auth routes, the gated admin
// pages and the JSON API.
func NewRouter(services RouterServices) (http.Handler, error) {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := services.Renderer
	if renderer == nil {
		var err error
		renderer, err = NewTemplateRenderer(TemplateRendererConfig{
			TemplateFS: TemplateFS(services.IsDev),
			DevMode:    services.IsDev,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
	}

	cookie := services.Cookie
	gate := GateOptions{Auth: services.Auth, Cookie: cookie, Logger: logger}
	csrf := CSRFProtection(CSRFConfig{CookieDomain: cookie.Domain})

	authHandlers := &AuthHandlers{
		Svc:               services.Auth,
		Cookie:            cookie,
		Mode:              services.LoginMode,
		Renderer:          renderer,
		Logger:            logger,
		ProviderLogoutURL: services.ProviderLogoutURL,
	}
	adminHandlers := &AdminHandlers{Renderer: renderer, Policy: services.Policy}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)
	mux.Handle("GET /readyz", readinessHandler(services.Readiness, logger))
	mux.Handle("GET /{$}", http.RedirectHandler("/admin", http.StatusFound))

	registerAuthRoutes(mux, authHandlers, csrf)
	registerAdminRoutes(mux, adminHandlers, gate, csrf)

	var handler http.Handler = mux
	handler = CarrySessionToken(cookie)(handler)
	handler = BrowserDetection()(handler)
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler, nil
}

// TemplateFS returns the template tree: the working copy in dev mode,
// otherwise the embedded one.
func TemplateFS(isDev bool) fs.FS {
	if isDev {
		if _, err := os.Stat(catalogadmin.TemplateRoot); err == nil {
			return os.DirFS(catalogadmin.TemplateRoot)
		}
	}
	sub, err := fs.Sub(catalogadmin.TemplateFS, catalogadmin.TemplateRoot)
	if err != nil {
		// The embed directive guarantees the directory exists.
		panic(err)
	}
	return sub
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, csrf func(http.Handler) http.Handler) {
	mux.Handle("GET /auth/login", csrf(http.HandlerFunc(h.Login)))
	mux.Handle("POST /auth/login", csrf(http.HandlerFunc(h.PasswordLogin)))
	mux.HandleFunc("GET /auth/callback", h.Callback)
	mux.Handle("POST /auth/logout", csrf(http.HandlerFunc(h.Logout)))
	mux.HandleFunc("GET /auth/signed-out", h.SignedOut)

	// JSON clients rely on the SameSite=Lax session cookie instead of CSRF tokens.
	mux.HandleFunc("POST /api/auth/logout", h.APILogout)
	mux.HandleFunc("POST /api/auth/refresh", h.APIRefresh)
	mux.HandleFunc("GET /api/auth/session", h.APISession)
}

func registerAdminRoutes(mux *http.ServeMux, h *AdminHandlers, gate GateOptions, csrf func(http.Handler) http.Handler) {
	page := RequireAuthBrowser(gate)
	api := RequireAuth(gate)

	mux.Handle("GET /admin", page(csrf(http.HandlerFunc(h.Dashboard))))
	mux.Handle("GET /api/admin/me", api(http.HandlerFunc(h.Me)))
	mux.Handle("GET /api/admin/session-policy", api(RequireRole(domainauth.RoleAdmin)(http.HandlerFunc(h.SessionPolicy))))
}
