package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/catalog-admin/internal/data"
	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	"github.com/target/catalog-admin/internal/mocks"
	mockauth "github.com/target/catalog-admin/internal/mocks/auth"
	"github.com/target/catalog-admin/internal/observability/metrics"
	"github.com/target/catalog-admin/internal/observability/statsd"
	"github.com/target/catalog-admin/internal/ports"
)

var authT0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type authFixture struct {
	svc      *AuthService
	sessions *mockauth.MemorySessionStore
	admins   *mockauth.MemoryAdminDirectory
	hasher   *mockauth.PlainHasher
	provider *mockauth.MockAuthProvider
	clock    *data.FixedTimeProvider
	metrics  *statsd.Recorder
}

func newAuthFixture(t *testing.T, policy domainauth.Policy) *authFixture {
	t.Helper()
	f := &authFixture{
		sessions: mockauth.NewMemorySessionStore(),
		admins: mockauth.NewMemoryAdminDirectory(domainauth.AdminAccount{
			ID:           "admin-1",
			Email:        "ada@example.com",
			Name:         "Ada",
			PasswordHash: "plain:correct horse",
			Role:         domainauth.RoleAdmin,
		}),
		hasher:   &mockauth.PlainHasher{},
		provider: mockauth.NewMockAuthProvider(),
		clock:    data.NewFixedTimeProvider(authT0),
		metrics:  &statsd.Recorder{},
	}

	var n int
	f.svc = NewAuthService(AuthServiceOptions{
		Provider: f.provider,
		Sessions: f.sessions,
		Roles:    mockauth.StaticRoleMapper{AdminGroup: "catalog-admins", UserGroup: "catalog-editors"},
		Password: PasswordLoginDeps{Admins: f.admins, Passwords: f.hasher},
		Policy:   policy,
		Runtime: AuthRuntime{
			Clock:   f.clock,
			Metrics: f.metrics,
			NewToken: func() (string, error) {
				n++
				return fmt.Sprintf("token-%d", n), nil
			},
		},
	})
	return f
}

func (f *authFixture) login(t *testing.T) *domainauth.Session {
	t.Helper()
	sess, err := f.svc.PasswordLogin(context.Background(), "ada@example.com", "correct horse")
	require.NoError(t, err)
	return sess
}

func TestNewAuthService_PanicsWithoutStore(t *testing.T) {
	assert.Panics(t, func() { NewAuthService(AuthServiceOptions{}) })
}

func TestNewAuthService_DefaultPolicy(t *testing.T) {
	svc := NewAuthService(AuthServiceOptions{Sessions: mockauth.NewMemorySessionStore()})
	assert.Equal(t, domainauth.DefaultPolicy(), svc.Policy())
}

func TestNewSessionToken(t *testing.T) {
	a, err := NewSessionToken()
	require.NoError(t, err)
	b, err := NewSessionToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

// Scenario 1: login then immediate validation.
func TestAuthService_LoginThenValidate(t *testing.T) {
	f := newAuthFixture(t, domainauth.NewPolicy(7, 1440))
	ctx := context.Background()

	sess := f.login(t)
	assert.Equal(t, "token-1", sess.Token)
	assert.Equal(t, authT0, sess.CreatedAt)
	assert.Equal(t, authT0, sess.LastActivityAt)
	assert.Equal(t, authT0.Add(7*24*time.Hour), sess.ExpiresAt)

	admin, err := f.svc.Authenticate(ctx, StaticToken(sess.Token))
	require.NoError(t, err)
	assert.Equal(t, domainauth.AdminUser{ID: "admin-1", Email: "ada@example.com", Name: "Ada", Role: domainauth.RoleAdmin}, *admin)
	assert.EqualValues(t, 1, f.metrics.Sum(metrics.AuthLogin, map[string]string{"result": "success", "method": "password"}))
}

func TestAuthService_ValidateBumpsLastActivity(t *testing.T) {
	f := newAuthFixture(t, domainauth.DefaultPolicy())
	sess := f.login(t)

	f.clock.AddTime(10 * time.Minute)
	_, err := f.svc.Validate(context.Background(), sess.Token)
	require.NoError(t, err)

	stored, ok := f.sessions.Peek(sess.Token)
	require.True(t, ok)
	assert.Equal(t, authT0.Add(10*time.Minute), stored.LastActivityAt)
	assert.Equal(t, sess.ExpiresAt, stored.ExpiresAt)
	assert.Equal(t, sess.CreatedAt, stored.CreatedAt)
}

func TestAuthService_ValidateNoToken(t *testing.T) {
	f := newAuthFixture(t, domainauth.DefaultPolicy())

	_, err := f.svc.Validate(context.Background(), "")
	require.ErrorIs(t, err, domainauth.ErrNoSession)

	_, err = f.svc.Authenticate(context.Background(), nil)
	require.ErrorIs(t, err, domainauth.ErrNoSession)
	assert.EqualValues(t, 2, f.metrics.Sum(metrics.AuthValidate, map[string]string{"result": "no_session"}))
}

func TestAuthService_ValidateUnknownToken(t *testing.T) {
	f := newAuthFixture(t, domainauth.DefaultPolicy())
	_, err := f.svc.Validate(context.Background(), "never-issued")
	require.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}

func TestAuthService_ValidateExpiredDeletesSession(t *testing.T) {
	f := newAuthFixture(t, domainauth.Policy{SessionDuration: time.Hour, IdleTimeout: 24 * time.Hour})
	ctx := context.Background()
	sess := f.login(t)

	f.clock.SetTime(sess.ExpiresAt)
	_, err := f.svc.Validate(ctx, sess.Token)
	require.ErrorIs(t, err, domainauth.ErrSessionExpired)
	assert.Equal(t, 0, f.sessions.Len())

	_, err = f.svc.Validate(ctx, sess.Token)
	require.ErrorIs(t, err, domainauth.ErrSessionNotFound)
	assert.EqualValues(t, 1, f.metrics.Sum(metrics.AuthValidate, map[string]string{"result": "expired"}))
}

func TestAuthService_ValidateIdleDeletesRegardlessOfExpiry(t *testing.T) {
	f := newAuthFixture(t, domainauth.Policy{SessionDuration: 30 * 24 * time.Hour, IdleTimeout: time.Hour})
	sess := f.login(t)

	f.clock.AddTime(time.Hour)
	_, err := f.svc.Validate(context.Background(), sess.Token)
	require.ErrorIs(t, err, domainauth.ErrSessionIdle)
	_, ok := f.sessions.Peek(sess.Token)
	assert.False(t, ok)
}

// Scenario 2: one minute idle timeout.
func TestAuthService_IdleTimeoutScenario(t *testing.T) {
	f := newAuthFixture(t, domainauth.NewPolicy(7, 1))
	ctx := context.Background()
	sess := f.login(t)

	f.clock.SetTime(authT0.Add(30 * time.Second))
	_, err := f.svc.Validate(ctx, sess.Token)
	require.NoError(t, err)

	f.clock.SetTime(authT0.Add(90 * time.Second))
	_, err = f.svc.Validate(ctx, sess.Token)
	require.ErrorIs(t, err, domainauth.ErrSessionIdle)

	_, err = f.svc.Validate(ctx, sess.Token)
	require.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}

// Scenario 3: refresh extends a one hour session.
func TestAuthService_RefreshScenario(t *testing.T) {
	f := newAuthFixture(t, domainauth.Policy{SessionDuration: time.Hour, IdleTimeout: 24 * time.Hour})
	ctx := context.Background()
	sess := f.login(t)

	f.clock.SetTime(authT0.Add(30 * time.Minute))
	refreshed, ok, err := f.svc.Refresh(ctx, sess.Token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, authT0.Add(90*time.Minute), refreshed.ExpiresAt)
	assert.Equal(t, authT0, refreshed.CreatedAt)
	assert.Equal(t, authT0.Add(30*time.Minute), refreshed.LastActivityAt)

	f.clock.SetTime(authT0.Add(61 * time.Minute))
	_, err = f.svc.Validate(ctx, sess.Token)
	require.NoError(t, err)
}

func TestAuthService_RefreshMissing(t *testing.T) {
	f := newAuthFixture(t, domainauth.DefaultPolicy())

	for _, token := range []string{"", "never-issued"} {
		sess, ok, err := f.svc.Refresh(context.Background(), token)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, sess)
	}
}

func TestAuthService_RefreshRejectsStaleSessions(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		outcome string
	}{
		{name: "expired", advance: 2 * time.Hour, outcome: "expired"},
		{name: "idle", advance: 31 * time.Minute, outcome: "idle_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := domainauth.Policy{SessionDuration: time.Hour, IdleTimeout: 30 * time.Minute}
			if tt.name == "expired" {
				policy.IdleTimeout = 24 * time.Hour
			}
			f := newAuthFixture(t, policy)
			sess := f.login(t)

			f.clock.AddTime(tt.advance)
			got, ok, err := f.svc.Refresh(context.Background(), sess.Token)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, got)
			assert.Equal(t, 0, f.sessions.Len())
			assert.EqualValues(t, 1, f.metrics.Sum(metrics.AuthRefresh, map[string]string{"result": tt.outcome}))
		})
	}
}

func TestAuthService_RefreshStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockSessionStore(ctrl)
	store.EXPECT().Update(gomock.Any(), "tok", gomock.Any()).Return(domainauth.Session{}, errors.New("redis down"))

	svc := NewAuthService(AuthServiceOptions{Sessions: store})
	sess, ok, err := svc.Refresh(context.Background(), "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.False(t, ok)
	assert.Nil(t, sess)
}

func TestAuthService_ValidateStoreFailureIsNotUnauthorized(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockSessionStore(ctrl)
	store.EXPECT().Update(gomock.Any(), "tok", gomock.Any()).Return(domainauth.Session{}, errors.New("connection refused"))

	svc := NewAuthService(AuthServiceOptions{Sessions: store})
	_, err := svc.Validate(context.Background(), "tok")
	require.Error(t, err)
	assert.False(t, domainauth.IsUnauthorized(err))
}

// Scenario 4 and idempotency.
func TestAuthService_Logout(t *testing.T) {
	f := newAuthFixture(t, domainauth.DefaultPolicy())
	ctx := context.Background()

	require.NoError(t, f.svc.Logout(ctx, "never-issued"))
	require.NoError(t, f.svc.Logout(ctx, ""))

	sess := f.login(t)
	require.NoError(t, f.svc.Logout(ctx, sess.Token))
	require.NoError(t, f.svc.Logout(ctx, sess.Token))
	assert.Equal(t, 0, f.sessions.Len())

	_, err := f.svc.Validate(ctx, sess.Token)
	require.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}

func TestAuthService_LogoutStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockSessionStore(ctrl)
	store.EXPECT().Delete(gomock.Any(), "tok").Return(errors.New("boom"))

	rec := &statsd.Recorder{}
	svc := NewAuthService(AuthServiceOptions{Sessions: store, Runtime: AuthRuntime{Metrics: rec}})
	err := svc.Logout(context.Background(), "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete session")
	assert.EqualValues(t, 1, rec.Sum(metrics.AuthLogout, map[string]string{"result": "error"}))
}

func TestAuthService_PasswordLoginFailures(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		setup    func(f *authFixture)
		wantErr  error
	}{
		{name: "blank email", email: " ", password: "x", wantErr: domainauth.ErrInvalidCredentials},
		{name: "wrong password", email: "ada@example.com", password: "nope", wantErr: domainauth.ErrInvalidCredentials},
		{name: "unknown email", email: "bob@example.com", password: "x", wantErr: domainauth.ErrInvalidCredentials},
		{
			name: "disabled", email: "ada@example.com", password: "correct horse",
			setup: func(f *authFixture) {
				f.admins.Put(domainauth.AdminAccount{
					ID: "admin-1", Email: "ada@example.com", PasswordHash: "plain:correct horse",
					Role: domainauth.RoleAdmin, Disabled: true,
				})
			},
			wantErr: domainauth.ErrAccountDisabled,
		},
		{
			name: "guest role", email: "ada@example.com", password: "correct horse",
			setup: func(f *authFixture) {
				f.admins.Put(domainauth.AdminAccount{
					ID: "admin-1", Email: "ada@example.com", PasswordHash: "plain:correct horse",
					Role: domainauth.RoleGuest,
				})
			},
			wantErr: domainauth.ErrAccessDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t, domainauth.DefaultPolicy())
			if tt.setup != nil {
				tt.setup(f)
			}
			sess, err := f.svc.PasswordLogin(context.Background(), tt.email, tt.password)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, sess)
			assert.Equal(t, 0, f.sessions.Len())
		})
	}
}

func TestAuthService_PasswordLoginUnknownEmailBurnsDummyCompare(t *testing.T) {
	f := newAuthFixture(t, domainauth.DefaultPolicy())
	_, err := f.svc.PasswordLogin(context.Background(), "ghost@example.com", "pw")
	require.ErrorIs(t, err, domainauth.ErrInvalidCredentials)
	assert.Equal(t, 1, f.hasher.DummyCalls())
	assert.Equal(t, 0, f.hasher.CompareCalls())
}

func TestAuthService_PasswordLoginCaseInsensitiveEmail(t *testing.T) {
	f := newAuthFixture(t, domainauth.DefaultPolicy())
	sess, err := f.svc.PasswordLogin(context.Background(), " ADA@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "admin-1", sess.AdminID)
}

func TestAuthService_PasswordLoginNotConfigured(t *testing.T) {
	svc := NewAuthService(AuthServiceOptions{Sessions: mockauth.NewMemorySessionStore()})
	_, err := svc.PasswordLogin(context.Background(), "a@example.com", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domainauth.ErrInvalidCredentials)
}

func TestAuthService_BeginLogin(t *testing.T) {
	f := newAuthFixture(t, domainauth.DefaultPolicy())

	result, err := f.svc.BeginLogin(context.Background(), "http://localhost:8080/auth/callback")
	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/auth", result.AuthURL)
	assert.Equal(t, "state-1", result.State)
	assert.Equal(t, "nonce-1", result.Nonce)

	_, err = f.svc.BeginLogin(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect URL is required")
}

func TestAuthService_BeginLogin_ProviderError(t *testing.T) {
	f := newAuthFixture(t, domainauth.DefaultPolicy())
	f.provider.BeginFunc = func(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
		return "", "", "", errors.New("provider error")
	}

	result, err := f.svc.BeginLogin(context.Background(), "http://localhost:8080/auth/callback")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "begin auth flow")
}

func TestAuthService_CompleteLogin(t *testing.T) {
	f := newAuthFixture(t, domainauth.NewPolicy(7, 1440))

	sess, err := f.svc.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})
	require.NoError(t, err)
	assert.Equal(t, "mock-admin-1", sess.AdminID)
	assert.Equal(t, "Mock Admin", sess.Name)
	assert.Equal(t, domainauth.RoleAdmin, sess.Role)
	// Session lifetime comes from policy, not from the IdP token.
	assert.Equal(t, authT0.Add(7*24*time.Hour), sess.ExpiresAt)
	assert.EqualValues(t, 1, f.metrics.Sum(metrics.AuthLogin, map[string]string{"method": "provider", "result": "success"}))
}

func TestAuthService_CompleteLogin_Validation(t *testing.T) {
	f := newAuthFixture(t, domainauth.DefaultPolicy())
	tests := map[string]CompleteLoginInput{
		"authorization code is required": {State: "s", Nonce: "n"},
		"state parameter is required":    {Code: "c", Nonce: "n"},
		"nonce parameter is required":    {Code: "c", State: "s"},
	}
	for want, in := range tests {
		_, err := f.svc.CompleteLogin(context.Background(), in)
		require.Error(t, err)
		assert.Contains(t, err.Error(), want)
	}
}

func TestAuthService_CompleteLogin_GuestDenied(t *testing.T) {
	f := newAuthFixture(t, domainauth.DefaultPolicy())
	f.provider.ExchangeFunc = func(context.Context, ports.ExchangeInput) (domainauth.Identity, error) {
		return domainauth.Identity{UserID: "u", Email: "u@example.com", Groups: []string{"nobody"}}, nil
	}

	_, err := f.svc.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})
	require.ErrorIs(t, err, domainauth.ErrAccessDenied)
	assert.Equal(t, 0, f.sessions.Len())
	assert.EqualValues(t, 1, f.metrics.Sum(metrics.AuthLogin, map[string]string{"result": "denied"}))
}

func TestAuthService_SaveFailure(t *testing.T) {
	f := newAuthFixture(t, domainauth.DefaultPolicy())
	f.sessions.Err = errors.New("store offline")

	_, err := f.svc.PasswordLogin(context.Background(), "ada@example.com", "correct horse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save session")
}

func TestAuthService_Session(t *testing.T) {
	f := newAuthFixture(t, domainauth.DefaultPolicy())
	sess := f.login(t)

	f.clock.AddTime(time.Minute)
	got, err := f.svc.Session(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.ExpiresAt, got.ExpiresAt)
	assert.Equal(t, authT0.Add(time.Minute), got.LastActivityAt)
}

func TestAuthService_ConcurrentValidateAndRefresh(t *testing.T) {
	f := newAuthFixture(t, domainauth.Policy{SessionDuration: time.Hour, IdleTimeout: time.Hour})
	sess := f.login(t)
	f.clock.SetTime(authT0.Add(10 * time.Minute))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, ok, err := f.svc.Refresh(context.Background(), sess.Token)
				assert.NoError(t, err)
				assert.True(t, ok)
				return
			}
			_, err := f.svc.Validate(context.Background(), sess.Token)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, ok := f.sessions.Peek(sess.Token)
	require.True(t, ok)
	assert.Equal(t, authT0.Add(70*time.Minute), stored.ExpiresAt)
	assert.Equal(t, authT0, stored.CreatedAt)
}
