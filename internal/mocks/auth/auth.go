// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	apperrors "github.com/target/catalog-admin/internal/errors"
	"github.com/target/catalog-admin/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider           = (*MockAuthProvider)(nil)
	_ ports.SessionStore           = (*MemorySessionStore)(nil)
	_ ports.RoleMapper             = (*StaticRoleMapper)(nil)
	_ ports.AdminDirectory         = (*MemoryAdminDirectory)(nil)
	_ ports.AdminAccountRepository = (*MemoryAdminDirectory)(nil)
	_ ports.PasswordHasher         = (*PlainHasher)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	// Deterministic values for predictable testing
	AuthURL     string
	StatePrefix string
	NoncePrefix string
	DefaultUser domainauth.Identity

	mu        sync.Mutex
	callCount int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		DefaultUser: domainauth.Identity{
			UserID:    "mock-admin-1",
			FirstName: "Mock",
			LastName:  "Admin",
			Email:     "mock.admin@example.com",
			Groups:    []string{"catalog-admins"},
		},
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	statePrefix := m.StatePrefix
	if statePrefix == "" {
		statePrefix = "state"
	}
	noncePrefix := m.NoncePrefix
	if noncePrefix == "" {
		noncePrefix = "nonce"
	}

	return authURL, fmt.Sprintf("%s-%d", statePrefix, n), fmt.Sprintf("%s-%d", noncePrefix, n), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}

	user := m.DefaultUser
	if user.UserID == "" {
		user = domainauth.Identity{
			UserID:    "mock-admin-1",
			FirstName: "Mock",
			LastName:  "Admin",
			Email:     "mock.admin@example.com",
			Groups:    []string{"catalog-admins"},
		}
	}
	user.ExpiresAt = time.Now().Add(time.Hour)
	return user, nil
}

// MemorySessionStore is an in-memory session store for unit tests.
// It is safe for concurrent use.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session

	// Err, when set, is returned from every call.
	Err error
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if m.Err != nil {
		return m.Err
	}
	if sess.Token == "" {
		return errors.New("session token cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.Token] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, token string) (domainauth.Session, error) {
	if m.Err != nil {
		return domainauth.Session{}, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[token]
	if !ok || token == "" {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Update(
	_ context.Context,
	token string,
	fn ports.SessionMutator,
) (domainauth.Session, error) {
	if m.Err != nil {
		return domainauth.Session{}, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[token]
	if !ok || token == "" {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	if err := fn(&sess); err != nil {
		if domainauth.IsTerminal(err) {
			delete(m.sessions, token)
		}
		return domainauth.Session{}, err
	}
	m.sessions[token] = sess
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, token string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Peek returns a stored session without going through the port.
func (m *MemorySessionStore) Peek(token string) (domainauth.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	return s, ok
}

// MemoryAdminDirectory serves admin accounts from a map keyed by lowercase email.
type MemoryAdminDirectory struct {
	mu       sync.Mutex
	accounts map[string]domainauth.AdminAccount
	seq      int
}

// NewMemoryAdminDirectory creates a directory seeded with accounts.
func NewMemoryAdminDirectory(accounts ...domainauth.AdminAccount) *MemoryAdminDirectory {
	d := &MemoryAdminDirectory{accounts: make(map[string]domainauth.AdminAccount)}
	for _, a := range accounts {
		d.Put(a)
	}
	return d
}

// Put adds or replaces an account.
func (d *MemoryAdminDirectory) Put(a domainauth.AdminAccount) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[strings.ToLower(a.Email)] = a
}

func (d *MemoryAdminDirectory) GetByEmail(_ context.Context, email string) (*domainauth.AdminAccount, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, domainauth.ErrAdminNotFound
	}
	return &a, nil
}

// Create adds an account, rejecting duplicate emails.
func (d *MemoryAdminDirectory) Create(_ context.Context, p ports.CreateAdminParams) (*domainauth.AdminAccount, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(p.Email))
	if _, ok := d.accounts[key]; ok {
		return nil, apperrors.Conflict("admin " + key + " already exists")
	}
	role := p.Role
	if role == "" {
		role = domainauth.RoleAdmin
	}
	d.seq++
	a := domainauth.AdminAccount{
		ID:           fmt.Sprintf("admin-%d", d.seq),
		Email:        key,
		Name:         p.Name,
		PasswordHash: p.PasswordHash,
		Role:         role,
	}
	d.accounts[key] = a
	return &a, nil
}

// List returns accounts ordered by email.
func (d *MemoryAdminDirectory) List(_ context.Context) ([]domainauth.AdminAccount, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domainauth.AdminAccount, 0, len(d.accounts))
	for _, a := range d.accounts {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b domainauth.AdminAccount) int { return strings.Compare(a.Email, b.Email) })
	return out, nil
}

func (d *MemoryAdminDirectory) SetPasswordHash(_ context.Context, email, hash string) error {
	return d.edit(email, func(a *domainauth.AdminAccount) { a.PasswordHash = hash })
}

func (d *MemoryAdminDirectory) SetDisabled(_ context.Context, email string, disabled bool) error {
	return d.edit(email, func(a *domainauth.AdminAccount) { a.Disabled = disabled })
}

func (d *MemoryAdminDirectory) edit(email string, fn func(*domainauth.AdminAccount)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(email))
	a, ok := d.accounts[key]
	if !ok {
		return domainauth.ErrAdminNotFound
	}
	fn(&a)
	d.accounts[key] = a
	return nil
}

// StaticRoleMapper maps groups by simple string membership rules.
type StaticRoleMapper struct {
	AdminGroup string
	UserGroup  string
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	for _, g := range groups {
		if m.AdminGroup != "" && g == m.AdminGroup {
			return domainauth.RoleAdmin
		}
	}
	for _, g := range groups {
		if m.UserGroup != "" && g == m.UserGroup {
			return domainauth.RoleUser
		}
	}
	return domainauth.RoleGuest
}

// PlainHasher is a PasswordHasher that stores "plain:" + password. Fast and
// obviously unsafe; tests only.
type PlainHasher struct {
	mu          sync.Mutex
	dummyCalls  int
	compareCall int
}

func (h *PlainHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	return "plain:" + password, nil
}

func (h *PlainHasher) Compare(hash, password string) error {
	h.mu.Lock()
	h.compareCall++
	h.mu.Unlock()
	if hash != "plain:"+password {
		return errors.New("password mismatch")
	}
	return nil
}

func (h *PlainHasher) CompareDummy(string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dummyCalls++
}

// DummyCalls reports how many times CompareDummy ran.
func (h *PlainHasher) DummyCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dummyCalls
}

// CompareCalls reports how many times Compare ran.
func (h *PlainHasher) CompareCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.compareCall
}
