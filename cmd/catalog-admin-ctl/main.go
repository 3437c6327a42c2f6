package main

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/target/catalog-admin/config"
	"github.com/target/catalog-admin/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 30 * time.Second
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations (or list them with --status)",
			run:         runMigrations,
		},
		"db-seed": {
			name:        "db-seed",
			description: "Run migrations and create development admin accounts",
			run:         runDBSeed,
		},
		"create-admin": {
			name:        "create-admin",
			description: "Create a local admin account; the password is read from stdin",
			run:         runCreateAdmin,
		},
		"set-password": {
			name:        "set-password",
			description: "Replace an admin password and sign the admin out everywhere",
			run:         runSetPassword,
		},
		"disable-admin": {
			name:        "disable-admin",
			description: "Disable an admin account and delete its sessions",
			run:         runDisableAdmin,
		},
		"enable-admin": {
			name:        "enable-admin",
			description: "Re-enable a disabled admin account",
			run:         runEnableAdmin,
		},
		"list-admins": {
			name:        "list-admins",
			description: "List local admin accounts",
			run:         runListAdmins,
		},
		"purge-sessions": {
			name:        "purge-sessions",
			description: "Delete every session of one admin",
			run:         runPurgeSessions,
		},
		"sweep-sessions": {
			name:        "sweep-sessions",
			description: "Delete expired and idle sessions once",
			run:         runSweepSessions,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: catalog-admin-ctl <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := cmds[name]
		if err := writef(os.Stdout, "  %-18s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}
