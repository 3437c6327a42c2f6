package httpx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/target/catalog-admin/internal/data"
	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	mockauth "github.com/target/catalog-admin/internal/mocks/auth"
	"github.com/target/catalog-admin/internal/service"
)

var httpT0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	testEmail    = "ada@example.com"
	testPassword = "correct horse"
)

type httpFixture struct {
	auth     *service.AuthService
	sessions *mockauth.MemorySessionStore
	provider *mockauth.MockAuthProvider
	clock    *data.FixedTimeProvider
	cookie   SessionCookie
	renderer *TemplateRenderer
	router   http.Handler
}

func newHTTPFixture(t *testing.T, mode LoginMode) *httpFixture {
	t.Helper()
	f := &httpFixture{
		sessions: mockauth.NewMemorySessionStore(),
		provider: mockauth.NewMockAuthProvider(),
		clock:    data.NewFixedTimeProvider(httpT0),
	}
	admins := mockauth.NewMemoryAdminDirectory(
		domainauth.AdminAccount{ID: "admin-1", Email: testEmail, Name: "Ada", PasswordHash: "plain:" + testPassword, Role: domainauth.RoleAdmin},
		domainauth.AdminAccount{ID: "editor-1", Email: "ed@example.com", Name: "Ed", PasswordHash: "plain:pw", Role: domainauth.RoleUser},
	)

	var n int
	f.auth = service.NewAuthService(service.AuthServiceOptions{
		Provider: f.provider,
		Sessions: f.sessions,
		Roles:    mockauth.StaticRoleMapper{AdminGroup: "catalog-admins", UserGroup: "catalog-editors"},
		Password: service.PasswordLoginDeps{Admins: admins, Passwords: &mockauth.PlainHasher{}},
		Policy:   domainauth.Policy{SessionDuration: 7 * 24 * time.Hour, IdleTimeout: 30 * time.Minute},
		Runtime: service.AuthRuntime{
			Clock:  f.clock,
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
			NewToken: func() (string, error) {
				n++
				return fmt.Sprintf("token-%d", n), nil
			},
		},
	})

	f.cookie = SessionCookie{Name: "admin_session", Now: f.clock.Now}
	f.renderer = requireTemplateRenderer(t)

	router, err := NewRouter(RouterServices{
		Auth:      f.auth,
		Policy:    f.auth.Policy(),
		Cookie:    f.cookie,
		LoginMode: mode,
		Renderer:  f.renderer,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	f.router = router
	return f
}

func requireTemplateRenderer(t *testing.T) *TemplateRenderer {
	t.Helper()
	tr, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: TemplateFS(false)})
	require.NoError(t, err)
	return tr
}

// login starts a session directly through the service.
func (f *httpFixture) login(t *testing.T, email, password string) *domainauth.Session {
	t.Helper()
	sess, err := f.auth.PasswordLogin(context.Background(), email, password)
	require.NoError(t, err)
	return sess
}

func (f *httpFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func withSession(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: "admin_session", Value: token})
	return req
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}
