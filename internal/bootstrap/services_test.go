package bootstrap

import (
	"context"
	"errors"
	"os"
	"reflect"
	"syscall"
	"testing"
	"time"

	"github.com/target/catalog-admin/config"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 0,
		},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  1,
		},
		{
			name:  "http and reaper",
			modes: []config.ServiceMode{config.ServiceModeHTTP, config.ServiceModeReaper},
			want:  2,
		},
		{
			name:  "unknown modes are ignored",
			modes: []config.ServiceMode{"scheduler"},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
			if got := errorChannelBufferSize(enabled); got != tt.want+1 {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want+1)
			}
		})
	}
}

func TestGetEnabledServices(t *testing.T) {
	cfg := &config.AppConfig{Services: "reaper, http"}
	if got, want := GetEnabledServices(cfg), []string{"http", "reaper"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("GetEnabledServices() = %v, want %v", got, want)
	}

	cfg.Services = "bogus"
	if got := GetEnabledServices(cfg); len(got) != 0 {
		t.Fatalf("GetEnabledServices() = %v, want empty", got)
	}
	if err := ValidateServiceConfig(cfg); err == nil {
		t.Fatal("ValidateServiceConfig() = nil, want error")
	}
}

func TestNewServicesReaperOnlySkipsAuth(t *testing.T) {
	services, err := NewServices(&ServiceDeps{
		Config: &config.AppConfig{Services: "reaper"},
		Logger: discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewServices() error = %v", err)
	}
	if services.Auth != nil {
		t.Fatal("auth should not be built without the http service")
	}
	if services.Observability.sink() != nil {
		t.Fatal("metrics sink should be nil when metrics are disabled")
	}
}

func TestBuildHTTPHandlerRequiresAuth(t *testing.T) {
	if _, err := buildHTTPHandler(&config.AppConfig{}, ServiceContainer{}, discardLogger()); err == nil {
		t.Fatal("buildHTTPHandler() = nil error, want error")
	}
}

func TestWaitForShutdown(t *testing.T) {
	t.Run("signal stops background services", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigs := make(chan os.Signal, 1)
		done := make(chan struct{})
		go func() {
			<-ctx.Done()
			close(done)
		}()

		sigs <- syscall.SIGTERM
		err := waitForShutdown(shutdownConfig{
			ctx:         ctx,
			cancel:      cancel,
			errCh:       make(chan error),
			logger:      discardLogger(),
			backgrounds: []backgroundServiceHandle{{name: "session reaper", done: done}},
			signals:     sigs,
		})
		if err != nil {
			t.Fatalf("waitForShutdown() error = %v", err)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("background service was not cancelled")
		}
	})

	t.Run("service error is returned", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		boom := errors.New("session reaper failed: db down")
		errCh := make(chan error, 1)
		errCh <- boom

		err := waitForShutdown(shutdownConfig{
			ctx:     ctx,
			cancel:  cancel,
			errCh:   errCh,
			logger:  discardLogger(),
			signals: make(chan os.Signal),
		})
		if !errors.Is(err, boom) {
			t.Fatalf("waitForShutdown() error = %v, want %v", err, boom)
		}
		if ctx.Err() == nil {
			t.Fatal("service context should be cancelled")
		}
	})
}

func TestNewSessionSweeper(t *testing.T) {
	cfg := &config.AppConfig{}

	cfg.Auth.Session.Store = config.SessionStorePostgres
	if _, err := NewSessionSweeper(cfg, nil, nil); err == nil {
		t.Fatal("postgres sweeper without db should fail")
	}
	if s, err := NewSessionSweeper(cfg, lazyDB(t), nil); err != nil || s == nil {
		t.Fatalf("postgres sweeper = %v, %v", s, err)
	}

	cfg.Auth.Session.Store = config.SessionStoreRedis
	if _, err := NewSessionSweeper(cfg, nil, nil); err == nil {
		t.Fatal("redis sweeper without client should fail")
	}
	if s, err := NewSessionSweeper(cfg, nil, lazyRedis(t)); err != nil || s == nil {
		t.Fatalf("redis sweeper = %v, %v", s, err)
	}
}
