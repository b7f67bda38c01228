package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/upswyng/alert-worker/internal/data"
	"github.com/upswyng/alert-worker/internal/domain/model"
	"github.com/upswyng/alert-worker/internal/service"
)

type enqueueOptions struct {
	Priority   int
	MaxRetries int
}

func parseEnqueueFlags(args []string, defaults enqueueOptions) (enqueueOptions, error) {
	fs := flag.NewFlagSet("enqueue-alert-check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := defaults
	fs.IntVar(&opts.Priority, "priority", defaults.Priority, "Job priority (0-100)")
	fs.IntVar(&opts.MaxRetries, "max-retries", defaults.MaxRetries, "Retries before the job is failed for good")

	if err := fs.Parse(args); err != nil {
		return enqueueOptions{}, err
	}
	if opts.Priority < 0 || opts.Priority > 100 {
		return enqueueOptions{}, errors.New("--priority must be between 0 and 100")
	}
	if opts.MaxRetries < 0 {
		return enqueueOptions{}, errors.New("--max-retries must not be negative")
	}
	return opts, nil
}

func newJobService(cmdCtx *commandContext, repo *data.JobRepo) (*service.JobService, error) {
	return service.NewJobService(service.JobServiceOptions{
		Repo:         repo,
		DefaultLease: cmdCtx.Config.AlertCheckRunner.JobLease,
		Logger:       cmdCtx.Logger,
	})
}

func runEnqueueAlertCheck(cmdCtx *commandContext, args []string) error {
	opts, err := parseEnqueueFlags(args, enqueueOptions{
		Priority:   cmdCtx.Config.Scheduler.Priority,
		MaxRetries: cmdCtx.Config.Scheduler.MaxRetries,
	})
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

	jobs, err := newJobService(cmdCtx, data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}))
	if err != nil {
		return err
	}

	metadata, err := json.Marshal(map[string]string{
		"trigger":  "admin",
		"fired_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode job metadata: %w", err)
	}

	job, err := jobs.Create(ctx, &model.CreateJobRequest{
		Kind:       model.JobKindCheckNewAlerts,
		Priority:   opts.Priority,
		MaxRetries: opts.MaxRetries,
		Metadata:   metadata,
	})
	if err != nil {
		return err
	}

	return writef(cmdCtx.Out, "Enqueued %s job %s (priority %d, max retries %d)\n",
		job.Kind, job.ID, job.Priority, job.MaxRetries)
}

func parseJobIDFlag(args []string) (string, error) {
	fs := flag.NewFlagSet("job-status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var id string
	fs.StringVar(&id, "id", "", "Job ID (required)")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if id == "" && fs.NArg() == 1 {
		id = fs.Arg(0)
	}
	if id == "" {
		return "", errors.New("--id is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("invalid job id %q: %w", id, err)
	}
	return id, nil
}

func runJobStatus(cmdCtx *commandContext, args []string) error {
	id, err := parseJobIDFlag(args)
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

	jobs, err := newJobService(cmdCtx, data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}))
	if err != nil {
		return err
	}
	status, err := jobs.GetStatus(ctx, id)
	if err != nil {
		return err
	}

	result, err := data.NewJobResultRepo(db).GetByJobID(ctx, id)
	if err != nil && !errors.Is(err, data.ErrJobResultsNotFound) {
		return err
	}

	return printJobStatus(cmdCtx.Out, id, status, result)
}

func printJobStatus(w io.Writer, id string, status *model.JobStatusResponse, result *model.JobResult) error {
	if err := writef(w, "Job:      %s\nStatus:   %s\nProgress: %d%%\n", id, status.Status, status.Progress); err != nil {
		return err
	}
	if status.CompletedAt != nil {
		if err := writef(w, "Finished: %s\n", status.CompletedAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	if status.LastError != nil && *status.LastError != "" {
		if err := writef(w, "Error:    %s\n", *status.LastError); err != nil {
			return err
		}
	}
	if result == nil {
		return writeln(w, "Result:   (none stored)")
	}

	var summary struct {
		AlertsProcessed []string `json:"alerts_processed"`
		FailedAlertID   string   `json:"failed_alert_id"`
	}
	if err := json.Unmarshal(result.Result, &summary); err != nil {
		return fmt.Errorf("decode stored result: %w", err)
	}
	if err := writef(w, "Processed: %d alert(s)\n", len(summary.AlertsProcessed)); err != nil {
		return err
	}
	for _, alertID := range summary.AlertsProcessed {
		if err := writef(w, "  - %s\n", alertID); err != nil {
			return err
		}
	}
	if summary.FailedAlertID != "" {
		return writef(w, "Stopped at alert %s\n", summary.FailedAlertID)
	}
	return nil
}

func runJobStats(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := openDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	jobs, err := newJobService(cmdCtx, data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}))
	if err != nil {
		return err
	}
	stats, err := jobs.Stats(ctx, model.JobKindCheckNewAlerts)
	if err != nil {
		return err
	}
	return printJobStats(cmdCtx.Out, stats)
}

func printJobStats(w io.Writer, stats *model.JobStats) error {
	return writef(w, "%s jobs\n  pending:   %d\n  running:   %d\n  completed: %d\n  failed:    %d\n",
		model.JobKindCheckNewAlerts, stats.Pending, stats.Running, stats.Completed, stats.Failed)
}
