package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/catalog-admin/config"
	"github.com/target/catalog-admin/internal/bootstrap"
	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	"github.com/target/catalog-admin/internal/service"
)

const minPasswordLength = 12

type accountOptions struct {
	Email   string
	Name    string
	Role    string
	Yes     bool
	JSON    bool
	Timeout time.Duration
}

func parseAccountFlags(name string, args []string, needEmail bool) (accountOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := accountOptions{}
	fs.StringVar(&opts.Email, "email", "", "Admin email address")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")
	switch name {
	case "create-admin":
		fs.StringVar(&opts.Name, "name", "", "Display name")
		fs.StringVar(&opts.Role, "role", string(domainauth.RoleAdmin), "Role: admin or user")
	case "disable-admin", "purge-sessions":
		fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")
	case "list-admins":
		fs.BoolVar(&opts.JSON, "json", false, "Print JSON instead of a table")
	}

	if err := fs.Parse(args); err != nil {
		return accountOptions{}, err
	}
	opts.Email = strings.ToLower(strings.TrimSpace(opts.Email))
	if needEmail && opts.Email == "" {
		return accountOptions{}, errors.New("--email is required")
	}
	if opts.Timeout <= 0 {
		return accountOptions{}, errors.New("--timeout must be greater than zero")
	}
	if name == "create-admin" {
		switch domainauth.Role(opts.Role) {
		case domainauth.RoleAdmin, domainauth.RoleUser:
		default:
			return accountOptions{}, fmt.Errorf("--role must be admin or user, got %q", opts.Role)
		}
	}
	return opts, nil
}

// readPassword takes the first line of in. Piping keeps passwords out of
// shell history and process listings.
func readPassword(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	return password, nil
}

func runCreateAdmin(cmdCtx *commandContext, args []string) error {
	opts, err := parseAccountFlags("create-admin", args, true)
	if err != nil {
		return err
	}
	password, err := readPassword(os.Stdin)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		svc, svcErr := adminService(cmdCtx, &infra{DB: db}, nil)
		if svcErr != nil {
			return svcErr
		}
		account, createErr := svc.Create(ctx, service.CreateAdminInput{
			Email:    opts.Email,
			Name:     opts.Name,
			Password: password,
			Role:     domainauth.Role(opts.Role),
		})
		if createErr != nil {
			return createErr
		}
		return writef(os.Stdout, "Created %s (%s) with role %s\n", account.Email, account.ID, account.Role)
	})
}

func runSetPassword(cmdCtx *commandContext, args []string) error {
	opts, err := parseAccountFlags("set-password", args, true)
	if err != nil {
		return err
	}
	password, err := readPassword(os.Stdin)
	if err != nil {
		return err
	}

	return withSessionAdmin(cmdCtx, opts.Timeout, func(ctx context.Context, svc *service.AdminUserService) error {
		if setErr := svc.SetPassword(ctx, opts.Email, password); setErr != nil {
			return setErr
		}
		return writef(os.Stdout, "Password updated for %s; existing sessions were signed out\n", opts.Email)
	})
}

func runDisableAdmin(cmdCtx *commandContext, args []string) error {
	opts, err := parseAccountFlags("disable-admin", args, true)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(os.Stdin, opts.Yes, "disable "+opts.Email+" and sign out all of their sessions"); confirmErr != nil {
		return confirmErr
	}

	return withSessionAdmin(cmdCtx, opts.Timeout, func(ctx context.Context, svc *service.AdminUserService) error {
		if setErr := svc.SetDisabled(ctx, opts.Email, true); setErr != nil {
			return setErr
		}
		return writef(os.Stdout, "Disabled %s\n", opts.Email)
	})
}

func runEnableAdmin(cmdCtx *commandContext, args []string) error {
	opts, err := parseAccountFlags("enable-admin", args, true)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		svc, svcErr := adminService(cmdCtx, &infra{DB: db}, nil)
		if svcErr != nil {
			return svcErr
		}
		if setErr := svc.SetDisabled(ctx, opts.Email, false); setErr != nil {
			return setErr
		}
		return writef(os.Stdout, "Enabled %s\n", opts.Email)
	})
}

func runListAdmins(cmdCtx *commandContext, args []string) error {
	opts, err := parseAccountFlags("list-admins", args, false)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		svc, svcErr := adminService(cmdCtx, &infra{DB: db}, nil)
		if svcErr != nil {
			return svcErr
		}
		accounts, listErr := svc.List(ctx)
		if listErr != nil {
			return listErr
		}
		if opts.JSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(accounts)
		}
		return printAdmins(os.Stdout, accounts)
	})
}

func printAdmins(out io.Writer, accounts []domainauth.AdminAccount) error {
	if len(accounts) == 0 {
		return writeln(out, "No admin accounts.")
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writeln(w, "Email\tName\tRole\tStatus\tCreated"); err != nil {
		return fmt.Errorf("write admins header: %w", err)
	}
	for _, a := range accounts {
		status := "active"
		if a.Disabled {
			status = "disabled"
		}
		if err := writef(w, "%s\t%s\t%s\t%s\t%s\n",
			a.Email, a.Name, a.Role, status, a.CreatedAt.UTC().Format(time.DateOnly)); err != nil {
			return fmt.Errorf("write admin %s: %w", a.Email, err)
		}
	}
	return w.Flush()
}

func runPurgeSessions(cmdCtx *commandContext, args []string) error {
	opts, err := parseAccountFlags("purge-sessions", args, true)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(os.Stdin, opts.Yes, "sign out every session of "+opts.Email); confirmErr != nil {
		return confirmErr
	}

	return withSessionAdmin(cmdCtx, opts.Timeout, func(ctx context.Context, svc *service.AdminUserService) error {
		n, purgeErr := svc.PurgeSessions(ctx, opts.Email)
		if purgeErr != nil {
			return purgeErr
		}
		return writef(os.Stdout, "Deleted %d session(s) for %s\n", n, opts.Email)
	})
}

func runSweepSessions(cmdCtx *commandContext, args []string) error {
	opts, err := parseAccountFlags("sweep-sessions", args, false)
	if err != nil {
		return err
	}

	want := sessionInfra(&cmdCtx.Config)
	want.WantDB = cmdCtx.Config.Auth.Session.Store == config.SessionStorePostgres
	return withInfra(cmdCtx, opts.Timeout, want, func(ctx context.Context, in *infra) error {
		sweeper, sweepErr := sessionSweeper(cmdCtx, in)
		if sweepErr != nil {
			return sweepErr
		}
		runner, runnerErr := bootstrap.NewReaperRunner(bootstrap.ReaperConfig{
			Sweeper: sweeper,
			Logger:  cmdCtx.Logger,
			Config:  cmdCtx.Config.Reaper,
			Policy:  cmdCtx.Config.Auth.Session.Policy(),
		})
		if runnerErr != nil {
			return runnerErr
		}
		n, sweepErr := runner.SweepOnce(ctx)
		if sweepErr != nil {
			return sweepErr
		}
		return writef(os.Stdout, "Deleted %d stale session(s)\n", n)
	})
}

// withSessionAdmin runs f with an account service that can purge sessions
// from the configured store.
func withSessionAdmin(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(ctx context.Context, svc *service.AdminUserService) error,
) error {
	return withInfra(cmdCtx, timeout, sessionInfra(&cmdCtx.Config), func(ctx context.Context, in *infra) error {
		sweeper, err := sessionSweeper(cmdCtx, in)
		if err != nil {
			return err
		}
		svc, err := adminService(cmdCtx, in, sweeper)
		if err != nil {
			return err
		}
		return f(ctx, svc)
	})
}

func confirmAction(in io.Reader, yes bool, action string) error {
	if yes {
		return nil
	}
	if err := writef(os.Stdout, "About to %s.\n", action); err != nil {
		return fmt.Errorf("print confirmation message: %w", err)
	}
	if err := write(os.Stdout, "Continue? [y/N]: "); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return errors.New("aborted by user")
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}
