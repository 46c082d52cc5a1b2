package main

import (
	"strings"

	"github.com/civicwatch/civicwatch/internal/bootstrap"
	"github.com/civicwatch/civicwatch/internal/domain/model"
)

func parseIDFlag(cmdCtx *commandContext, name string, args []string) (string, error) {
	fs := newFlagSet(name, cmdCtx.Stderr)
	id := fs.String("id", "", "Record id")
	if err := parseFlags(fs, args); err != nil {
		return "", err
	}
	if strings.TrimSpace(*id) == "" {
		return "", usageErrorf("%s requires -id", name)
	}
	return strings.TrimSpace(*id), nil
}

// requireOfficer loads the officer flag, which is not persisted between runs.
func requireOfficer(cmdCtx *commandContext, app *bootstrap.App) error {
	if err := app.Session.Authorize(false); err != nil {
		return err
	}
	if err := app.Session.LoadProfile(cmdCtx.Ctx); err != nil {
		return err
	}
	return app.Session.Authorize(true)
}

func runAlertGet(cmdCtx *commandContext, args []string) error {
	id, err := parseIDFlag(cmdCtx, "alert-get", args)
	if err != nil {
		return err
	}
	return withApp(cmdCtx, func(app *bootstrap.App) error {
		if err := app.Session.Authorize(false); err != nil {
			return err
		}
		alert, err := app.Alerts.Get(cmdCtx.Ctx, id)
		if err != nil {
			return err
		}
		return printJSON(cmdCtx.Stdout, alert)
	})
}

func runAlertSave(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("alert-save", cmdCtx.Stderr)
	var draft model.AlertDraft
	fs.StringVar(&draft.ID, "id", "", "Existing alert id; omit to create")
	fs.StringVar(&draft.Title, "title", "", "Alert title")
	fs.StringVar(&draft.Message, "message", "", "Alert message")
	fs.StringVar(&draft.Region, "region", "", "Affected region")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(draft.Title) == "" {
		return usageErrorf("alert-save requires -title")
	}

	return withApp(cmdCtx, func(app *bootstrap.App) error {
		if err := requireOfficer(cmdCtx, app); err != nil {
			return err
		}
		saved, err := app.Alerts.Save(cmdCtx.Ctx, draft)
		if err != nil {
			return err
		}
		return printJSON(cmdCtx.Stdout, saved)
	})
}

func runIncidentGet(cmdCtx *commandContext, args []string) error {
	id, err := parseIDFlag(cmdCtx, "incident-get", args)
	if err != nil {
		return err
	}
	return withApp(cmdCtx, func(app *bootstrap.App) error {
		if err := requireOfficer(cmdCtx, app); err != nil {
			return err
		}
		report, err := app.Incidents.Get(cmdCtx.Ctx, id)
		if err != nil {
			return err
		}
		return printJSON(cmdCtx.Stdout, report)
	})
}
