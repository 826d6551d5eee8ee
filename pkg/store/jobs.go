package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"igharvest/pkg/models"
)

// MaxErrorLength bounds last_error
const MaxErrorLength = 1000

const jobColumns = `id, job_type, entity_key, source, status, attempts, retry_after,
	last_error, locked_by, resume_phase, created_at, updated_at`

// claimCandidates is how many rows a SQLite claim tries before giving up
// on a contended queue
const claimCandidates = 5

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		j                   models.Job
		jobType, source     string
		status, resume      string
		retryAfter          sql.NullTime
		lastError, lockedBy sql.NullString
	)
	if err := row.Scan(&j.ID, &jobType, &j.EntityKey, &source, &status, &j.Attempts, &retryAfter,
		&lastError, &lockedBy, &resume, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Type = models.JobType(jobType)
	j.Source = models.JobSource(source)
	j.Status = models.JobStatus(status)
	j.ResumePhase = models.JobStatus(resume)
	j.RetryAfter = timePtr(retryAfter)
	j.LastError = stringPtr(lastError)
	j.LockedBy = stringPtr(lockedBy)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

// Enqueue inserts a PENDING job. A job with the same type and key is left
// untouched and reported with created=false.
func (s *Store) Enqueue(ctx context.Context, jobType models.JobType, entityKey string, source models.JobSource) (int64, bool, error) {
	if !jobType.Valid() {
		return 0, false, fmt.Errorf("invalid job type %q", jobType)
	}
	if !source.Valid() {
		return 0, false, fmt.Errorf("invalid job source %q", source)
	}
	entityKey = strings.TrimSpace(entityKey)
	if entityKey == "" {
		return 0, false, errors.New("entity key is required")
	}

	now := s.now()
	var id int64
	err := s.db.QueryRowContext(ctx, rebind(s.dialect, `
		INSERT INTO jobs (job_type, entity_key, source, status, attempts, resume_phase, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, '', ?, ?)
		ON CONFLICT (job_type, entity_key) DO NOTHING
		RETURNING id`),
		string(jobType), entityKey, string(source), string(models.StatusPending), now, now,
	).Scan(&id)
	switch {
	case err == nil:
		s.logger.DebugWithFields("Job enqueued", map[string]interface{}{
			"job_id": id, "job_type": jobType, "entity_key": entityKey, "source": source,
		})
		return id, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, false, fmt.Errorf("enqueue job: %w", err)
	}

	err = s.db.QueryRowContext(ctx, rebind(s.dialect,
		`SELECT id FROM jobs WHERE job_type = ? AND entity_key = ?`),
		string(jobType), entityKey,
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("lookup existing job: %w", err)
	}
	return id, false, nil
}

// Claim takes the oldest claimable job of the given types for workerID and
// moves it into the running status of its next phase. A job is claimable
// when PENDING, or RATE_LIMITED with retry_after in the past. It returns
// nil when nothing is claimable.
func (s *Store) Claim(ctx context.Context, types []models.JobType, workerID string) (*models.Job, error) {
	if len(types) == 0 {
		return nil, errors.New("claim: no job types")
	}

	var claimed *models.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if s.dialect == Postgres {
			claimed, err = s.claimLocked(ctx, tx, types, workerID)
		} else {
			claimed, err = s.claimGuarded(ctx, tx, types, workerID)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if claimed != nil {
		s.logger.InfoWithFields("Job claimed", map[string]interface{}{
			"job_id":     claimed.ID,
			"entity_key": claimed.EntityKey,
			"status":     claimed.Status,
			"attempts":   claimed.Attempts,
			"worker_id":  workerID,
		})
	}
	return claimed, nil
}

func claimFilter(types []models.JobType) (string, []interface{}) {
	marks := make([]string, len(types))
	args := make([]interface{}, 0, len(types)+3)
	for i, t := range types {
		marks[i] = "?"
		args = append(args, string(t))
	}
	where := `job_type IN (` + strings.Join(marks, ", ") + `)
		AND (status = ? OR (status = ? AND retry_after IS NOT NULL AND retry_after <= ?))`
	return where, args
}

// claimLocked selects with FOR UPDATE SKIP LOCKED so concurrent workers skip
// each other's rows instead of blocking
func (s *Store) claimLocked(ctx context.Context, tx *sql.Tx, types []models.JobType, workerID string) (*models.Job, error) {
	now := s.now()
	where, args := claimFilter(types)
	args = append(args, string(models.StatusPending), string(models.StatusRateLimited), now)

	job, err := scanJob(tx.QueryRowContext(ctx, rebind(s.dialect,
		`SELECT `+jobColumns+` FROM jobs WHERE `+where+`
		ORDER BY created_at, id LIMIT 1 FOR UPDATE SKIP LOCKED`), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.markClaimed(ctx, tx, job, workerID, now)
	if err != nil || !ok {
		return nil, err
	}
	return job, nil
}

// claimGuarded has no row locks to lean on, so the UPDATE re-checks the
// status it read and a zero row count means another worker won
func (s *Store) claimGuarded(ctx context.Context, tx *sql.Tx, types []models.JobType, workerID string) (*models.Job, error) {
	now := s.now()
	where, args := claimFilter(types)
	args = append(args, string(models.StatusPending), string(models.StatusRateLimited), now, claimCandidates)

	rows, err := tx.QueryContext(ctx, rebind(s.dialect,
		`SELECT `+jobColumns+` FROM jobs WHERE `+where+`
		ORDER BY created_at, id LIMIT ?`), args...)
	if err != nil {
		return nil, err
	}
	var candidates []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, job := range candidates {
		ok, err := s.markClaimed(ctx, tx, job, workerID, now)
		if err != nil {
			return nil, err
		}
		if ok {
			return job, nil
		}
	}
	return nil, nil
}

func (s *Store) markClaimed(ctx context.Context, tx *sql.Tx, job *models.Job, workerID string, now time.Time) (bool, error) {
	entry := models.EntryStatus(job.ResumePhase)
	// a parked job picks its attempt back up rather than starting another
	bump := 1
	if job.Status == models.StatusRateLimited {
		bump = 0
	}
	res, err := tx.ExecContext(ctx, rebind(s.dialect, `
		UPDATE jobs
		SET status = ?, attempts = attempts + ?, locked_by = ?, retry_after = NULL, updated_at = ?
		WHERE id = ? AND status = ?`),
		string(entry), bump, workerID, now, job.ID, string(job.Status))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	job.Status = entry
	job.Attempts += bump
	job.LockedBy = &workerID
	job.RetryAfter = nil
	job.UpdatedAt = now
	return true, nil
}

// TransitionOptions carries the optional columns a transition writes
type TransitionOptions struct {
	LastError  string
	RetryAfter *time.Time
}

// Transition moves a job from one status to another. The state machine must
// allow the edge and the row must still hold from; completed phases are
// recorded as the resume point.
func (s *Store) Transition(ctx context.Context, jobID int64, from, to models.JobStatus, opts TransitionOptions) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	set := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{string(to), s.now()}
	if to.IsCompletedPhase() {
		set = append(set, "resume_phase = ?")
		args = append(args, string(to))
	}
	if opts.LastError != "" {
		set = append(set, "last_error = ?")
		args = append(args, Truncate(opts.LastError, MaxErrorLength))
	}
	if opts.RetryAfter != nil {
		set = append(set, "retry_after = ?")
		args = append(args, opts.RetryAfter.UTC())
	}
	args = append(args, jobID, string(from))

	res, err := s.db.ExecContext(ctx, rebind(s.dialect,
		`UPDATE jobs SET `+strings.Join(set, ", ")+` WHERE id = ? AND status = ?`), args...)
	if err != nil {
		return fmt.Errorf("transition job %d: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition job %d: %w", jobID, err)
	}
	if n == 0 {
		current, err := s.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: job %d is %s, expected %s", ErrIllegalTransition, jobID, current.Status, from)
	}

	s.logger.DebugWithFields("Job status written", map[string]interface{}{
		"job_id": jobID, "from": from, "to": to,
	})
	return nil
}

// GetJob loads one job by id
func (s *Store) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, rebind(s.dialect,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

// JobFilter narrows ListJobs
type JobFilter struct {
	Type   models.JobType
	Status models.JobStatus
	Source models.JobSource
	Limit  int
}

// ListJobs returns jobs matching filter, oldest first
func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]models.Job, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Type != "" {
		where = append(where, "job_type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(filter.Source))
	}

	q := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, rebind(s.dialect, q), args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// CountJobsByStatus returns how many jobs sit in each status
func (s *Store) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	out := make(map[models.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[models.JobStatus(status)] = n
	}
	return out, rows.Err()
}

// Requeue puts a job back to PENDING. Terminal and running jobs need force.
// attempts and resume_phase are kept so the job resumes where it stopped.
func (s *Store) Requeue(ctx context.Context, id int64, force bool) (*models.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanRequeue(job.Status, force) {
		return nil, fmt.Errorf("%w: cannot requeue job %d in %s without force", ErrIllegalTransition, id, job.Status)
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx, rebind(s.dialect, `
		UPDATE jobs SET status = ?, retry_after = NULL, locked_by = NULL, updated_at = ?
		WHERE id = ? AND status = ?`),
		string(models.StatusPending), now, id, string(job.Status))
	if err != nil {
		return nil, fmt.Errorf("requeue job %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: job %d changed while requeueing", ErrIllegalTransition, id)
	}

	s.logger.InfoWithFields("Job requeued", map[string]interface{}{
		"job_id": id, "from": job.Status, "force": force,
	})
	job.Status = models.StatusPending
	job.RetryAfter = nil
	job.LockedBy = nil
	job.UpdatedAt = now
	return job, nil
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}
