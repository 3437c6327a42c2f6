package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/catalog-admin/config"
	httpx "github.com/target/catalog-admin/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig, errCh chan<- error) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler, err := buildHTTPHandler(appCfg, cfg.Services, logger)
	if err != nil {
		return nil, err
	}

	return startServer(logger, handler, appCfg.HTTP.Addr, errCh), nil
}

func buildHTTPHandler(appCfg *config.AppConfig, services ServiceContainer, logger *slog.Logger) (http.Handler, error) {
	if services.Auth == nil || services.Auth.Service == nil {
		return nil, errors.New("http server requires the auth service")
	}

	handler, err := httpx.NewRouter(httpx.RouterServices{
		Auth:      services.Auth.Service,
		Policy:    services.Auth.Service.Policy(),
		LoginMode: services.Auth.LoginMode,
		Cookie: httpx.SessionCookie{
			Name:   appCfg.Auth.Session.CookieName,
			Domain: appCfg.HTTP.CookieDomain,
		},
		ProviderLogoutURL: services.Auth.ProviderLogoutURL,
		Readiness:         services.Auth.Readiness,
		IsDev:             appCfg.IsDev,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}
	return handler, nil
}

func startServer(logger *slog.Logger, handler http.Handler, addr string, errCh chan<- error) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			if errCh != nil {
				select {
				case errCh <- fmt.Errorf("http server: %w", err):
				default:
				}
			}
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(cfg.Context, 10*time.Second)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
