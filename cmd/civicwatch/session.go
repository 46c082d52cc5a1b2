package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/civicwatch/civicwatch/internal/bootstrap"
	domainauth "github.com/civicwatch/civicwatch/internal/domain/auth"
	"github.com/civicwatch/civicwatch/internal/service"
)

type loginOptions struct {
	Identifier string
	Password   string
	Role       string
}

func runLogin(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("login", cmdCtx.Stderr)
	var opts loginOptions
	fs.StringVar(&opts.Identifier, "identifier", "", "Email or username")
	fs.StringVar(&opts.Password, "password", "", "Password (read from the first stdin line when omitted)")
	fs.StringVar(&opts.Role, "role", string(domainauth.RoleCitizen), "Sign in as citizen or officer")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	opts.Identifier = strings.TrimSpace(opts.Identifier)
	if opts.Identifier == "" {
		return usageErrorf("login requires -identifier")
	}
	role, err := domainauth.ParseRole(opts.Role)
	if err != nil {
		return usageErrorf("%v", err)
	}
	if opts.Password == "" {
		pw, readErr := readLine(cmdCtx)
		if readErr != nil {
			return fmt.Errorf("read password: %w", readErr)
		}
		opts.Password = pw
	}

	return withApp(cmdCtx, func(app *bootstrap.App) error {
		if err := app.Session.Login(cmdCtx.Ctx, opts.Identifier, opts.Password, role); err != nil {
			return err
		}
		return printStatus(cmdCtx, app)
	})
}

func readLine(cmdCtx *commandContext) (string, error) {
	if cmdCtx.Stdin == nil {
		return "", errors.New("no input available")
	}
	scanner := bufio.NewScanner(cmdCtx.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", errors.New("no password provided")
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}

func runLogout(cmdCtx *commandContext, args []string) error {
	if err := parseFlags(newFlagSet("logout", cmdCtx.Stderr), args); err != nil {
		return err
	}
	return withApp(cmdCtx, func(app *bootstrap.App) error {
		if err := app.Session.Logout(cmdCtx.Ctx); err != nil {
			return err
		}
		return writeln(cmdCtx.Stdout, "signed out")
	})
}

type statusView struct {
	State         domainauth.State `json:"state"`
	Authenticated bool             `json:"authenticated"`
	IsOfficer     bool             `json:"isOfficer"`
	HasRefresh    bool             `json:"hasRefreshToken"`
}

func printStatus(cmdCtx *commandContext, app *bootstrap.App) error {
	snap := app.Session.Snapshot()
	_, hasRefresh := app.Vault.RefreshToken()
	return printJSON(cmdCtx.Stdout, statusView{
		State:         snap.State,
		Authenticated: snap.HasSession,
		IsOfficer:     snap.IsOfficer,
		HasRefresh:    hasRefresh,
	})
}

func runStatus(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("status", cmdCtx.Stderr)
	profile := fs.Bool("profile", false, "Also fetch the officer flag from the API")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	return withApp(cmdCtx, func(app *bootstrap.App) error {
		if *profile {
			if err := app.Session.LoadProfile(cmdCtx.Ctx); err != nil && !errors.Is(err, service.ErrUnauthenticated) {
				return err
			}
		}
		return printStatus(cmdCtx, app)
	})
}

func runCheck(cmdCtx *commandContext, args []string) error {
	if err := parseFlags(newFlagSet("check", cmdCtx.Stderr), args); err != nil {
		return err
	}
	return withApp(cmdCtx, func(app *bootstrap.App) error {
		state := app.Session.CheckAuthed(cmdCtx.Ctx)
		if err := printStatus(cmdCtx, app); err != nil {
			return err
		}
		if state != domainauth.StateAuthenticated {
			return fmt.Errorf("session %s: %w", state, service.ErrUnauthenticated)
		}
		return nil
	})
}

func runRefresh(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("refresh", cmdCtx.Stderr)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	return withApp(cmdCtx, func(app *bootstrap.App) error {
		// A new process is always inside the refresh interval, so the command forces.
		if !app.Session.RefreshToken(cmdCtx.Ctx, true) {
			return errors.New("token not refreshed")
		}
		return printStatus(cmdCtx, app)
	})
}

func runWatch(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("watch", cmdCtx.Stderr)
	interval := fs.Duration("interval", cmdCtx.Config.Auth.LivenessInterval, "Time between liveness checks")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *interval <= 0 {
		return usageErrorf("watch requires a positive -interval")
	}

	return withApp(cmdCtx, func(app *bootstrap.App) error {
		metricsCfg := cmdCtx.Config.Observability.Metrics
		if metricsCfg.IsEnabled() {
			server := bootstrap.StartMetricsServer(bootstrap.MetricsServerConfig{
				Addr:     metricsCfg.Address,
				Gatherer: app.Registry,
				Logger:   cmdCtx.Logger,
			})
			defer func() {
				if err := bootstrap.ShutdownMetricsServer(cmdCtx.Ctx, server, cmdCtx.Logger); err != nil {
					cmdCtx.Logger.Warn("metrics server shutdown failed", "error", err)
				}
			}()
		}

		unsubscribe := app.Session.Subscribe(func(snap domainauth.Snapshot) {
			cmdCtx.Logger.Info("session state changed", "state", snap.State, "is_officer", snap.IsOfficer)
		})
		defer unsubscribe()

		return app.Session.Watch(cmdCtx.Ctx, *interval)
	})
}
