package devauth

// Package devauth is a config-driven AuthProvider for AUTH_MODE=mock.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	"github.com/target/catalog-admin/internal/ports"
)

const (
	devCode        = "dev"
	pendingTTL     = 10 * time.Minute
	randomBytesLen = 24
)

// ErrUnknownState is returned when Exchange sees a state Begin never issued
// (or one already used).
var ErrUnknownState = errors.New("dev auth: unknown or reused state")

// Config controls the dev auth provider behavior.
// UserID and Email are required; Groups may be empty.
type Config struct {
	UserID string
	Email  string
	Groups []string
}

// Provider short-circuits the provider flow by redirecting straight back to
// our own callback. The state/nonce pair is still tracked so the callback
// handler runs the same checks it does against a real provider.
type Provider struct {
	identity domainauth.Identity

	mu      sync.Mutex
	pending map[string]pendingLogin
	now     func() time.Time
}

type pendingLogin struct {
	nonce    string
	issuedAt time.Time
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	local, _, _ := strings.Cut(cfg.Email, "@")
	return &Provider{
		identity: domainauth.Identity{
			UserID:    cfg.UserID,
			FirstName: local,
			LastName:  "(dev)",
			Email:     strings.ToLower(cfg.Email),
			Groups:    append([]string(nil), cfg.Groups...),
		},
		pending: make(map[string]pendingLogin),
		now:     time.Now,
	}, nil
}

// Begin returns a local callback URL carrying a fresh state.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomString()
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString()
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	p.mu.Lock()
	p.prune()
	p.pending[state] = pendingLogin{nonce: nonce, issuedAt: p.now()}
	p.mu.Unlock()

	q := url.Values{"code": {devCode}, "state": {state}}
	return "/auth/callback?" + q.Encode(), state, nonce, nil
}

// Exchange returns the configured identity once per issued state.
func (p *Provider) Exchange(_ context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.Code != devCode {
		return domainauth.Identity{}, errors.New("dev auth: unexpected code")
	}

	p.mu.Lock()
	login, ok := p.pending[in.State]
	delete(p.pending, in.State)
	p.mu.Unlock()

	if !ok || p.now().Sub(login.issuedAt) > pendingTTL {
		return domainauth.Identity{}, ErrUnknownState
	}
	if login.nonce != in.Nonce {
		return domainauth.Identity{}, errors.New("dev auth: nonce mismatch")
	}

	id := p.identity
	id.Groups = append([]string(nil), p.identity.Groups...)
	id.ExpiresAt = p.now().Add(time.Hour)
	return id, nil
}

// prune drops abandoned logins. Callers hold p.mu.
func (p *Provider) prune() {
	cutoff := p.now().Add(-pendingTTL)
	for state, login := range p.pending {
		if login.issuedAt.Before(cutoff) {
			delete(p.pending, state)
		}
	}
}

func randomString() (string, error) {
	b := make([]byte, randomBytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
