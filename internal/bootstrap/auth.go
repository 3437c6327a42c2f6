package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/catalog-admin/config"
	"github.com/target/catalog-admin/internal/adapters/authroles"
	"github.com/target/catalog-admin/internal/adapters/devauth"
	"github.com/target/catalog-admin/internal/adapters/oidc"
	"github.com/target/catalog-admin/internal/adapters/passwords"
	redisadapter "github.com/target/catalog-admin/internal/adapters/redis"
	"github.com/target/catalog-admin/internal/data"
	httpx "github.com/target/catalog-admin/internal/http"
	"github.com/target/catalog-admin/internal/observability/statsd"
	"github.com/target/catalog-admin/internal/ports"
	"github.com/target/catalog-admin/internal/service"
)

// AuthConfig contains configuration for auth service.
type AuthConfig struct {
	Auth        config.AuthConfig
	Redis       config.RedisConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Metrics     statsd.Sink
	Logger      *slog.Logger
}

// AuthBundle is the wired auth service plus what the HTTP layer needs to
// know about how it was built.
type AuthBundle struct {
	Service           *service.AuthService
	LoginMode         httpx.LoginMode
	ProviderLogoutURL string
	Readiness         []httpx.ReadinessCheck
}

// BuildAuthService creates the auth service for the configured mode and
// session store. Unlike optional features, a misconfigured auth layer is fatal.
func BuildAuthService(cfg AuthConfig) (*AuthBundle, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, readiness, err := buildSessionStore(cfg)
	if err != nil {
		return nil, err
	}

	opts := service.AuthServiceOptions{
		Sessions: store,
		Policy:   cfg.Auth.Session.Policy(),
		Runtime: service.AuthRuntime{
			Logger:  logger,
			Metrics: cfg.Metrics,
		},
	}
	bundle := &AuthBundle{LoginMode: httpx.LoginModeProvider, Readiness: readiness}

	switch cfg.Auth.Mode {
	case config.AuthModePassword:
		if cfg.DB == nil {
			return nil, errors.New("password login requires a database connection")
		}
		opts.Password = service.PasswordLoginDeps{
			Admins:    data.NewAdminUserRepo(cfg.DB),
			Passwords: passwords.NewHasher(cfg.Auth.BcryptCost),
		}
		bundle.LoginMode = httpx.LoginModePassword

	case config.AuthModeMock:
		prov, provErr := buildDevAuthProvider(cfg.Auth)
		if provErr != nil {
			return nil, provErr
		}
		logger.Warn("dev auth enabled; every login succeeds as the configured identity",
			"email", cfg.Auth.DevAuth.Email)
		opts.Provider = prov
		opts.Roles = roleMapper(cfg.Auth)

	case config.AuthModeOAuth:
		prov, provErr := buildOAuthProvider(cfg.Auth.OAuth, logger)
		if provErr != nil {
			return nil, provErr
		}
		opts.Provider = prov
		opts.Roles = roleMapper(cfg.Auth)
		bundle.ProviderLogoutURL = prov.LogoutURL()

	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}

	bundle.Service = service.NewAuthService(opts)
	logger.Info("auth service configured",
		"mode", cfg.Auth.Mode,
		"session_store", cfg.Auth.Session.Store,
		"session_duration", opts.Policy.SessionDuration,
		"idle_timeout", opts.Policy.IdleTimeout,
	)
	return bundle, nil
}

//nolint:ireturn // the store kind is picked at runtime.
func buildSessionStore(cfg AuthConfig) (ports.SessionStore, []httpx.ReadinessCheck, error) {
	switch cfg.Auth.Session.Store {
	case config.SessionStorePostgres:
		if cfg.DB == nil {
			return nil, nil, errors.New("postgres session store requires a database connection")
		}
		db := cfg.DB
		return data.NewSessionRepo(db), []httpx.ReadinessCheck{{Name: "postgres", Check: db.PingContext}}, nil

	case config.SessionStoreRedis, "":
		if cfg.RedisClient == nil {
			return nil, nil, errors.New("redis session store requires a redis client")
		}
		client := cfg.RedisClient
		checks := []httpx.ReadinessCheck{{
			Name:  "redis",
			Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		}}
		if cfg.DB != nil {
			checks = append(checks, httpx.ReadinessCheck{Name: "postgres", Check: cfg.DB.PingContext})
		}
		return redisadapter.NewSessionStoreWithPrefix(client, cfg.Redis.KeyPrefix), checks, nil

	default:
		return nil, nil, fmt.Errorf("unsupported session store %q", cfg.Auth.Session.Store)
	}
}

func roleMapper(cfg config.AuthConfig) authroles.StaticRoleMapper {
	return authroles.StaticRoleMapper{
		AdminGroup: cfg.AdminGroup,
		UserGroup:  cfg.UserGroup,
	}
}

func buildDevAuthProvider(cfg config.AuthConfig) (*devauth.Provider, error) {
	prov, err := devauth.NewProvider(devauth.Config{
		UserID: cfg.DevAuth.UserID,
		Email:  cfg.DevAuth.Email,
		Groups: cfg.DevAuth.Groups,
	})
	if err != nil {
		return nil, fmt.Errorf("create dev auth provider: %w", err)
	}
	return prov, nil
}

func buildOAuthProvider(oauth config.OAuthConfig, logger *slog.Logger) (*oidc.Provider, error) {
	if oauth.DiscoveryURL == "" || oauth.ClientID == "" || oauth.ClientSecret == "" {
		logger.Error("AuthModeOAuth selected but required config missing",
			"discovery_url_empty", oauth.DiscoveryURL == "",
			"client_id_empty", oauth.ClientID == "",
			"client_secret_empty", oauth.ClientSecret == "",
		)
		return nil, errors.New("oauth mode requires discovery URL, client ID and client secret")
	}

	prov, err := oidc.NewProvider(oidc.ProviderConfig{
		ClientID:     oauth.ClientID,
		ClientSecret: oauth.ClientSecret,
		RedirectURL:  oauth.RedirectURL,
		Scope:        oauth.Scope,
		DiscoveryURL: oauth.DiscoveryURL,
		LogoutURL:    oauth.LogoutURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}
	return prov, nil
}
