package dispatcher

import (
	"context"
	"fmt"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/models"
	"igharvest/pkg/store"
)

// fail maps a phase error onto the job's next status. A dead session also
// alerts the operator and stops the worker.
func (d *Dispatcher) fail(ctx context.Context, run *jobRun, phase models.Phase, cause error) error {
	if ctx.Err() != nil {
		return d.park(run, phase, cause)
	}

	reason := cause.Error()
	opts := store.TransitionOptions{LastError: reason}
	var to models.JobStatus

	switch errs.TypeOf(cause) {
	case errs.ErrorTypeSessionDead:
		to = models.StatusDead
	case errs.ErrorTypeRateLimit:
		to = models.StatusRateLimited
		retryAt := d.now().Add(d.opts.Pacing.Cooldown())
		opts.RetryAfter = &retryAt
	case errs.ErrorTypePersistence:
		to = models.StatusFailed
	default:
		to = phase.Failed
	}

	if err := d.transition(ctx, run, phase.Running, to, string(errs.TypeOf(cause)), opts); err != nil {
		return err
	}

	if to == models.StatusDead {
		d.alertSessionDead(run, reason)
		return fmt.Errorf("job %d: %w", run.job.ID, ErrSessionDead)
	}
	return nil
}

// park hands a job interrupted by shutdown back to the queue. The write uses
// a fresh context because ctx is already cancelled.
func (d *Dispatcher) park(run *jobRun, phase models.Phase, cause error) error {
	now := d.now()
	err := d.transition(context.Background(), run, phase.Running, models.StatusRateLimited, "interrupted",
		store.TransitionOptions{LastError: "interrupted: " + cause.Error(), RetryAfter: &now})
	if err != nil {
		return err
	}
	return cause
}

func (d *Dispatcher) alertSessionDead(run *jobRun, reason string) {
	if d.opts.Notifier == nil {
		run.log.Warn("Session dead and no notifier configured")
		return
	}
	subject := "igharvest: upstream session is dead"
	body := fmt.Sprintf("Worker %s stopped while processing job %d (%s %s).\n"+
		"Refresh the session cookies, then revive the job with: igharvest jobs requeue --force %d",
		d.opts.WorkerID, run.job.ID, run.job.Type, run.job.EntityKey, run.job.ID)
	if !d.opts.Notifier.Notify(subject, body, &reason) {
		run.log.Error("Session dead alert was not delivered")
	}
}
