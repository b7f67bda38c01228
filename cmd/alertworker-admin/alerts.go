package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/upswyng/alert-worker/internal/data"
	"github.com/upswyng/alert-worker/internal/domain/model"
	"github.com/upswyng/alert-worker/internal/service"
)

type createAlertOptions struct {
	Request model.CreateAlertRequest
}

// parseCreateAlertFlags builds a create request. Start defaults to now and may
// be given as RFC 3339 or as a negative offset such as -90m.
func parseCreateAlertFlags(args []string, now time.Time) (createAlertOptions, error) {
	fs := flag.NewFlagSet("create-alert", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		req        model.CreateAlertRequest
		start, end string
	)
	fs.StringVar(&req.Title, "title", "", "Alert title (required)")
	fs.StringVar(&req.Category, "category", string(model.AlertCategoryGeneral), "Alert category")
	fs.StringVar(&req.Color, "color", "", "Display color")
	fs.StringVar(&req.Icon, "icon", "", "Display icon")
	fs.StringVar(&req.DetailExplanation, "detail", "", "Longer explanation")
	fs.StringVar(&start, "start", "", "Start time (RFC 3339 or offset like -30m); defaults to now")
	fs.StringVar(&end, "end", "", "End time (RFC 3339 or offset like 2h)")

	if err := fs.Parse(args); err != nil {
		return createAlertOptions{}, err
	}
	if req.Title == "" {
		return createAlertOptions{}, errors.New("--title is required")
	}

	startAt, err := parseTimeFlag(start, now)
	if err != nil {
		return createAlertOptions{}, fmt.Errorf("--start: %w", err)
	}
	req.Start = &startAt

	if end != "" {
		endAt, endErr := parseTimeFlag(end, now)
		if endErr != nil {
			return createAlertOptions{}, fmt.Errorf("--end: %w", endErr)
		}
		req.End = &endAt
	}

	return createAlertOptions{Request: req}, nil
}

func parseTimeFlag(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now.UTC(), nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return now.Add(d).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: expected RFC 3339 or a duration", raw)
	}
	return t.UTC(), nil
}

func runCreateAlert(cmdCtx *commandContext, args []string) error {
	opts, err := parseCreateAlertFlags(args, time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := openDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	alerts := service.MustNewAlertService(service.AlertServiceOptions{
		Repo:   data.NewAlertRepo(db, data.AlertRepoOptions{}),
		Logger: cmdCtx.Logger,
	})
	alert, err := alerts.Create(ctx, &opts.Request)
	if err != nil {
		return err
	}
	return printAlerts(cmdCtx.Out, []*model.Alert{alert}, time.Now())
}

type listAlertsOptions struct {
	Unprocessed bool
	Limit       int
	Offset      int
}

func parseListAlertsFlags(args []string) (listAlertsOptions, error) {
	fs := flag.NewFlagSet("list-alerts", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listAlertsOptions
	fs.BoolVar(&opts.Unprocessed, "unprocessed", false, "Only show alerts not yet processed")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum rows to show")
	fs.IntVar(&opts.Offset, "offset", 0, "Rows to skip")

	if err := fs.Parse(args); err != nil {
		return listAlertsOptions{}, err
	}
	if opts.Limit <= 0 {
		return listAlertsOptions{}, errors.New("--limit must be greater than zero")
	}
	if opts.Offset < 0 {
		return listAlertsOptions{}, errors.New("--offset must not be negative")
	}
	return opts, nil
}

func runListAlerts(cmdCtx *commandContext, args []string) error {
	opts, err := parseListAlertsFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := openDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	alerts := service.MustNewAlertService(service.AlertServiceOptions{
		Repo:   data.NewAlertRepo(db, data.AlertRepoOptions{}),
		Logger: cmdCtx.Logger,
	})
	list, err := alerts.List(ctx, &model.AlertListOptions{
		Unprocessed: opts.Unprocessed,
		Limit:       opts.Limit,
		Offset:      opts.Offset,
	})
	if err != nil {
		return err
	}
	return printAlerts(cmdCtx.Out, list, time.Now())
}

func printAlerts(w io.Writer, alerts []*model.Alert, now time.Time) error {
	if len(alerts) == 0 {
		return writeln(w, "No alerts found")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "ID\tTITLE\tCATEGORY\tSTART\tEND\tSTATE\tPROCESSED\n"); err != nil {
		return err
	}
	for _, a := range alerts {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			a.ID, a.Title, a.Category, formatTime(a.Start), formatTime(a.End), alertState(a, now), a.WasProcessed,
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func alertState(a *model.Alert, now time.Time) string {
	switch {
	case a.IsCancelled:
		return "cancelled"
	case a.Ended(now):
		return "ended"
	case a.ActiveAt(now):
		return "active"
	default:
		return "scheduled"
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
