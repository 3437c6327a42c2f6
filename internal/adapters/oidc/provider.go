package oidc

// Package oidc signs admins in against an OpenID Connect identity provider.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	"github.com/target/catalog-admin/internal/ports"
)

const (
	stateLength = 32
	nonceLength = 32
)

// Provider implements ports.AuthProvider with go-oidc and x/oauth2.
type Provider struct {
	config    *oauth2.Config
	logoutURL string

	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	LogoutURL    string
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout
}

// DiscoveryDocument is the subset of the OIDC discovery document the provider reads.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
}

// NewProvider fetches the discovery document once and builds the verifier.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	op, err := gooidc.NewProvider(ctx, issuerFromDiscoveryURL(config.DiscoveryURL))
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	logoutURL := config.LogoutURL
	if logoutURL == "" {
		var meta DiscoveryDocument
		if claimsErr := op.Claims(&meta); claimsErr == nil {
			logoutURL = meta.EndSessionEndpoint
		}
	}

	return &Provider{
		logoutURL:    logoutURL,
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       strings.Fields(config.Scope),
			Endpoint:     op.Endpoint(),
		},
	}, nil
}

func issuerFromDiscoveryURL(raw string) string {
	issuer := strings.TrimSuffix(raw, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	return strings.TrimSuffix(issuer, ".well-known/openid-configuration")
}

// LogoutURL is the provider's end-session page, or "" when not configured.
func (p *Provider) LogoutURL() string { return p.logoutURL }

// Begin returns the authorization URL with a fresh state and nonce. The
// configured RedirectURL is used verbatim; in.RedirectURL is the local
// destination after sign-in and only has to be present.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	state, err := generateRandomString(stateLength)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(nonceLength)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	authURL := p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("response_type", "code"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

// Exchange trades the code for tokens, verifies the ID token and nonce, and
// fills gaps from the userinfo endpoint.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.Code == "" {
		return domainauth.Identity{}, errors.New("authorization code is required")
	}
	if in.State == "" {
		return domainauth.Identity{}, errors.New("state is required")
	}
	if in.Nonce == "" {
		return domainauth.Identity{}, errors.New("nonce is required")
	}

	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	var fields idFields
	if p.hasOpenIDScope() {
		fields, err = p.extractFromIDToken(ctx, token, in.Nonce)
		if err != nil {
			return domainauth.Identity{}, fmt.Errorf("extract id_token: %w", err)
		}
	}

	if fields.email == "" || fields.userID == "" || len(fields.groups) == 0 {
		var c identityClaims
		ui, uiErr := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(token))
		if uiErr != nil {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", uiErr)
		}
		if err := ui.Claims(&c); err != nil {
			return domainauth.Identity{}, fmt.Errorf("decode user info: %w", err)
		}
		fields.fillFrom(c.fields())
	}
	if fields.userID == "" {
		return domainauth.Identity{}, errors.New("identity has no subject")
	}

	expiresAt := time.Now().Add(time.Hour)
	if !token.Expiry.IsZero() {
		expiresAt = token.Expiry
	}

	return domainauth.Identity{
		UserID:    fields.userID,
		FirstName: fields.givenName,
		LastName:  fields.familyName,
		Email:     fields.email,
		Groups:    fields.groups,
		ExpiresAt: expiresAt,
	}, nil
}

func (p *Provider) extractFromIDToken(ctx context.Context, tok *oauth2.Token, expectedNonce string) (idFields, error) {
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return idFields{}, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return idFields{}, fmt.Errorf("verify id_token: %w", err)
	}
	var c identityClaims
	if err := idTok.Claims(&c); err != nil {
		return idFields{}, fmt.Errorf("parse id_token claims: %w", err)
	}
	if c.Nonce != expectedNonce {
		return idFields{}, errors.New("invalid nonce")
	}
	return c.fields(), nil
}

func (p *Provider) hasOpenIDScope() bool {
	return slices.Contains(p.config.Scopes, gooidc.ScopeOpenID)
}

// identityClaims accepts both standard OIDC claims and the AD/ADFS shape.
type identityClaims struct {
	Sub               string   `json:"sub"`
	PreferredUsername string   `json:"preferred_username"`
	SamAccountName    string   `json:"samaccountname"`
	Email             string   `json:"email"`
	Mail              string   `json:"mail"`
	GivenName         string   `json:"given_name"`
	FirstName         string   `json:"firstname"`
	FamilyName        string   `json:"family_name"`
	LastName          string   `json:"lastname"`
	Groups            []string `json:"groups"`
	MemberOf          []string `json:"memberof"`
	Nonce             string   `json:"nonce"`
}

type idFields struct {
	userID     string
	email      string
	givenName  string
	familyName string
	groups     []string
}

func (c identityClaims) fields() idFields {
	groups := c.Groups
	if len(groups) == 0 {
		groups = c.MemberOf
	}
	return idFields{
		userID:     firstNonEmpty(c.SamAccountName, c.PreferredUsername, c.Sub),
		email:      strings.ToLower(firstNonEmpty(c.Email, c.Mail)),
		givenName:  firstNonEmpty(c.GivenName, c.FirstName),
		familyName: firstNonEmpty(c.FamilyName, c.LastName),
		groups:     normalizeGroups(groups),
	}
}

// fillFrom copies fields that are still empty.
func (f *idFields) fillFrom(o idFields) {
	if f.userID == "" {
		f.userID = o.userID
	}
	if f.email == "" {
		f.email = o.email
	}
	if f.givenName == "" {
		f.givenName = o.givenName
	}
	if f.familyName == "" {
		f.familyName = o.familyName
	}
	if len(f.groups) == 0 {
		f.groups = o.groups
	}
}

// normalizeGroups reduces LDAP distinguished names to their CN so
// "CN=catalog-admins,OU=Groups,DC=corp" matches ADMIN_GROUP=catalog-admins.
func normalizeGroups(groups []string) []string {
	if len(groups) == 0 {
		return nil
	}
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if first, _, _ := strings.Cut(g, ","); len(first) > 3 && strings.EqualFold(first[:3], "cn=") {
			g = first[3:]
		}
		if g != "" {
			out = append(out, g)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// generateRandomString returns a URL-safe random string of exactly length chars.
func generateRandomString(length int) (string, error) {
	b := make([]byte, base64.RawURLEncoding.DecodedLen(length)+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}

func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
