// Package dispatcher claims jobs and drives each through the account
// creation, account seed and content seed phases, writing every status
// change to the job store.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"igharvest/pkg/fetcher"
	"igharvest/pkg/instagram"
	"igharvest/pkg/logger"
	"igharvest/pkg/models"
	"igharvest/pkg/persister"
	"igharvest/pkg/retry"
	"igharvest/pkg/store"
)

// Notifier delivers operator alerts; it reports whether any channel accepted
type Notifier interface {
	Notify(subject, body string, details *string) bool
}

// Enricher expands the outbound links of a freshly seeded profile
type Enricher interface {
	Links(ctx context.Context, user *instagram.ProfileUser) []models.AccountLink
}

// ErrSessionDead stops the worker: every later request would fail the same way
var ErrSessionDead = errors.New("upstream session is dead")

// Options configures a Dispatcher
type Options struct {
	// WorkerID is written to locked_by; a random UUID when empty
	WorkerID string
	JobTypes []models.JobType
	// RunOnce stops the loop once no job is claimable
	RunOnce  bool
	Pacing   retry.Pacing
	Sleeper  retry.Sleeper
	Notifier Notifier
	Enricher Enricher
	Logger   logger.Logger
}

// Dispatcher is the single-goroutine job loop of one worker
type Dispatcher struct {
	store     *store.Store
	fetcher   *fetcher.Fetcher
	persister *persister.Persister
	session   instagram.Requester
	opts      Options
	logger    logger.Logger
	now       func() time.Time
}

// New creates a Dispatcher bound to one upstream session
func New(st *store.Store, f *fetcher.Fetcher, p *persister.Persister, sess instagram.Requester, opts Options) *Dispatcher {
	if opts.WorkerID == "" {
		opts.WorkerID = uuid.NewString()
	}
	if len(opts.JobTypes) == 0 {
		opts.JobTypes = []models.JobType{models.JobTypeProfile, models.JobTypePost}
	}
	if opts.Pacing.JobDelay == nil {
		opts.Pacing.JobDelay = retry.Fixed(0)
	}
	if opts.Pacing.Idle == nil {
		opts.Pacing.Idle = retry.Fixed(30 * time.Second)
	}
	if opts.Pacing.Cooldown == nil {
		opts.Pacing.Cooldown = retry.Fixed(15 * time.Minute)
	}
	if opts.Sleeper == nil {
		opts.Sleeper = retry.RealSleeper{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}

	return &Dispatcher{
		store:     st,
		fetcher:   f,
		persister: p,
		session:   sess,
		opts:      opts,
		logger:    opts.Logger.WithFields(map[string]interface{}{"component": "dispatcher", "worker_id": opts.WorkerID}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WorkerID returns the id written to claimed jobs
func (d *Dispatcher) WorkerID() string {
	return d.opts.WorkerID
}

// Run claims and processes jobs until ctx is cancelled, the session dies,
// or (with RunOnce) the queue has nothing claimable.
func (d *Dispatcher) Run(ctx context.Context) error {
	logger.LogComponentStart(d.logger, "dispatcher", map[string]interface{}{
		"job_types": d.opts.JobTypes,
		"run_once":  d.opts.RunOnce,
		"mode":      string(d.fetcher.Mode()),
	})

	processed := 0
	for {
		if ctx.Err() != nil {
			logger.LogComponentStop(d.logger, "dispatcher", "shutdown")
			return nil
		}

		job, err := d.store.Claim(ctx, d.opts.JobTypes, d.opts.WorkerID)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if d.opts.RunOnce {
				return fmt.Errorf("claim job: %w", err)
			}
			d.logger.WithError(err).Error("Failed to claim job")
			d.pause(ctx, d.opts.Pacing.Idle())
			continue
		}

		if job == nil {
			if d.opts.RunOnce {
				logger.LogComponentStop(d.logger, "dispatcher", fmt.Sprintf("queue drained after %d jobs", processed))
				return nil
			}
			d.logger.Debug("No claimable job, idling")
			d.pause(ctx, d.opts.Pacing.Idle())
			continue
		}

		processed++
		if err := d.Process(ctx, job); err != nil {
			if errors.Is(err, ErrSessionDead) {
				logger.LogComponentStop(d.logger, "dispatcher", "session_dead")
				return err
			}
			d.logger.WithError(err).WithField("job_id", job.ID).Error("Job processing aborted")
		}

		d.pause(ctx, d.opts.Pacing.JobDelay())
	}
}

func (d *Dispatcher) pause(ctx context.Context, delay time.Duration) {
	_ = d.opts.Sleeper.Sleep(ctx, delay)
}

// jobRun carries what one job learns across its phases
type jobRun struct {
	job     *models.Job
	log     logger.Logger
	handle  string
	account *models.Account
	entry   models.JobStatus
}

// Process runs a claimed job from its entry phase to SCRAPE_DONE or to the
// status its failure maps to. Only a dead session or a failed status write
// is returned.
func (d *Dispatcher) Process(ctx context.Context, job *models.Job) error {
	run := &jobRun{
		job:   job,
		entry: job.Status,
		log: d.logger.WithFields(map[string]interface{}{
			"job_id":     job.ID,
			"job_type":   string(job.Type),
			"entity_key": job.EntityKey,
		}),
	}
	run.log.InfoWithFields("Job claimed", map[string]interface{}{
		"status":   string(job.Status),
		"attempts": job.Attempts,
		"resume":   string(job.ResumePhase),
	})

	first, ok := models.PhaseFor(job.Status)
	if !ok {
		return fmt.Errorf("job %d claimed in non-running status %s", job.ID, job.Status)
	}

	started := false
	for i, phase := range models.Phases {
		if !started && phase != first {
			continue
		}
		started = true

		if err := d.runPhase(ctx, phase, run); err != nil {
			return d.fail(ctx, run, phase, err)
		}
		if err := d.transition(ctx, run, phase.Running, phase.Done, "", store.TransitionOptions{}); err != nil {
			return err
		}

		next := models.StatusScrapeDone
		if i+1 < len(models.Phases) {
			next = models.Phases[i+1].Running
		}
		if err := d.transition(ctx, run, phase.Done, next, "", store.TransitionOptions{}); err != nil {
			return err
		}
	}

	run.log.Info("Job finished")
	return nil
}

func (d *Dispatcher) runPhase(ctx context.Context, phase models.Phase, run *jobRun) error {
	switch phase {
	case models.PhaseAccountCreation:
		return d.createAccount(ctx, run)
	case models.PhaseAccountSeed:
		return d.seedAccount(ctx, run)
	case models.PhaseContentSeed:
		return d.seedContent(ctx, run)
	default:
		return fmt.Errorf("unknown phase %s", phase.Name)
	}
}

// transition writes one status change and logs it
func (d *Dispatcher) transition(ctx context.Context, run *jobRun, from, to models.JobStatus, reason string, opts store.TransitionOptions) error {
	if err := d.store.Transition(ctx, run.job.ID, from, to, opts); err != nil {
		run.log.WithError(err).WithFields(map[string]interface{}{
			"from": string(from), "to": string(to),
		}).Error("Failed to write job status")
		return err
	}
	run.job.Status = to
	if to.IsCompletedPhase() {
		run.job.ResumePhase = to
	}
	logger.LogJobTransition(run.log, run.job.ID, run.job.EntityKey, string(from), string(to), reason)
	return nil
}
