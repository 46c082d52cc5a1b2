package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/civicwatch/civicwatch/config"
	"github.com/civicwatch/civicwatch/internal/bootstrap"
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
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// openApp builds the wired client. Tests replace it to inject a store and transport.
	openApp func(ctx context.Context) (*bootstrap.App, error)
}

// errUsage marks argument errors so main exits with status 2.
var errUsage = errors.New("usage error")

func main() {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}
	logger := bootstrap.InitLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(&commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}, os.Args[1:])
	stop()
	os.Exit(code) //nolint:forbidigo // CLI exit status reports command outcome
}

func run(cmdCtx *commandContext, args []string) int {
	if len(args) > 0 && (args[0] == "--ephemeral" || args[0] == "-ephemeral") {
		cmdCtx.Config.Storage.Mode = config.StorageModeMemory
		args = args[1:]
	}
	if len(args) < 1 {
		if err := printUsage(cmdCtx.Stderr); err != nil {
			cmdCtx.Logger.Error("print usage failed", "error", err)
		}
		return 2
	}

	cmdName := args[0]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(cmdCtx.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			cmdCtx.Logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(cmdCtx.Stderr); err != nil {
			cmdCtx.Logger.Error("print usage failed", "error", err)
		}
		return 2
	}

	if cmdCtx.openApp == nil {
		cmdCtx.openApp = func(ctx context.Context) (*bootstrap.App, error) {
			return bootstrap.NewApp(ctx, bootstrap.AppDeps{Config: cmdCtx.Config, Logger: cmdCtx.Logger})
		}
	}

	if err := cmd.run(cmdCtx, args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) || errors.Is(err, errFlagsReported) {
			return 2
		}
		if errors.Is(err, errUsage) {
			if werr := writef(cmdCtx.Stderr, "%v\n", err); werr != nil {
				cmdCtx.Logger.Error("print usage error failed", "error", werr)
			}
			return 2
		}
		cmdCtx.Logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", err)
		return 1
	}
	return 0
}

func commands() map[string]command {
	return map[string]command{
		"login": {
			name:        "login",
			description: "Sign in and store the token pair",
			run:         runLogin,
		},
		"logout": {
			name:        "logout",
			description: "Forget the stored session",
			run:         runLogout,
		},
		"status": {
			name:        "status",
			description: "Print the stored session state without contacting the API",
			run:         runStatus,
		},
		"check": {
			name:        "check",
			description: "Verify the session against the API, refreshing when required",
			run:         runCheck,
		},
		"refresh": {
			name:        "refresh",
			description: "Exchange the refresh token for a new pair",
			run:         runRefresh,
		},
		"watch": {
			name:        "watch",
			description: "Re-check the session periodically until interrupted",
			run:         runWatch,
		},
		"alert-get": {
			name:        "alert-get",
			description: "Fetch an alert draft by id",
			run:         runAlertGet,
		},
		"alert-save": {
			name:        "alert-save",
			description: "Create an alert, or update it when -id is given (officers only)",
			run:         runAlertSave,
		},
		"incident-get": {
			name:        "incident-get",
			description: "Fetch an incident report with its notes (officers only)",
			run:         runIncidentGet,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: civicwatch [--ephemeral] <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-14s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

// withApp opens the wired client for the duration of fn.
func withApp(cmdCtx *commandContext, fn func(app *bootstrap.App) error) error {
	app, err := cmdCtx.openApp(cmdCtx.Ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}
