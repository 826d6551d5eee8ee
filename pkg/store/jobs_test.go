package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/models"
)

var profileOnly = []models.JobType{models.JobTypeProfile}

func TestEnqueueIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	id, created, err := s.Enqueue(ctx, models.JobTypeProfile, "someone", models.JobSourceOriginA)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.Enqueue(ctx, models.JobTypeProfile, "someone", models.JobSourceFollowup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	job, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobSourceOriginA, job.Source, "collision must not touch the row")
	assert.Equal(t, models.StatusPending, job.Status)

	_, created, err = s.Enqueue(ctx, models.JobTypePost, "someone", models.JobSourceManual)
	require.NoError(t, err)
	assert.True(t, created, "uniqueness is per job type")
}

func TestEnqueueValidates(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, _, err := s.Enqueue(ctx, "STORY", "x", models.JobSourceManual)
	assert.Error(t, err)
	_, _, err = s.Enqueue(ctx, models.JobTypeProfile, "x", "SOMEWHERE")
	assert.Error(t, err)
	_, _, err = s.Enqueue(ctx, models.JobTypeProfile, "  ", models.JobSourceManual)
	assert.Error(t, err)
}

func TestClaimOldestFirst(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	first, _, err := s.Enqueue(ctx, models.JobTypeProfile, "first", models.JobSourceOriginA)
	require.NoError(t, err)
	_, _, err = s.Enqueue(ctx, models.JobTypeProfile, "second", models.JobSourceOriginA)
	require.NoError(t, err)
	_, _, err = s.Enqueue(ctx, models.JobTypePost, "ABC", models.JobSourceOriginA)
	require.NoError(t, err)

	job, err := s.Claim(ctx, profileOnly, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, first, job.ID)
	assert.Equal(t, models.StatusAccountCreationRunning, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.LockedBy)
	assert.Equal(t, "worker-1", *job.LockedBy)

	stored, err := s.GetJob(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccountCreationRunning, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
}

func TestClaimEmptyQueue(t *testing.T) {
	s := newSQLiteStore(t)
	job, err := s.Claim(context.Background(), profileOnly, "w")
	require.NoError(t, err)
	assert.Nil(t, job)

	_, err = s.Claim(context.Background(), nil, "w")
	assert.Error(t, err)
}

func TestClaimRespectsRetryAfter(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	id, _, err := s.Enqueue(ctx, models.JobTypeProfile, "someone", models.JobSourceOriginA)
	require.NoError(t, err)
	job, err := s.Claim(ctx, profileOnly, "w")
	require.NoError(t, err)
	require.NotNil(t, job)

	retryAt := clock.Add(3 * time.Minute)
	require.NoError(t, s.Transition(ctx, id, job.Status, models.StatusRateLimited,
		TransitionOptions{LastError: "rate_limit: profile", RetryAfter: &retryAt}))

	again, err := s.Claim(ctx, profileOnly, "w")
	require.NoError(t, err)
	assert.Nil(t, again, "still cooling down")

	clock = retryAt.Add(time.Second)
	again, err = s.Claim(ctx, profileOnly, "w")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, id, again.ID)
	assert.Nil(t, again.RetryAfter)

	// resuming a parked job is the same attempt
	assert.Equal(t, 1, again.Attempts)
	stored, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)

	// a requeue starts a fresh one
	require.NoError(t, s.Transition(ctx, id, again.Status, models.StatusFailed,
		TransitionOptions{LastError: "transient: profile"}))
	_, err = s.Requeue(ctx, id, false)
	require.NoError(t, err)
	again, err = s.Claim(ctx, profileOnly, "w")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, 2, again.Attempts)
}

func TestClaimResumesFromLastCommittedPhase(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	id, _, err := s.Enqueue(ctx, models.JobTypeProfile, "someone", models.JobSourceOriginA)
	require.NoError(t, err)
	job, err := s.Claim(ctx, profileOnly, "w")
	require.NoError(t, err)

	require.NoError(t, s.Transition(ctx, id, job.Status, models.StatusAccountCreated, TransitionOptions{}))
	require.NoError(t, s.Transition(ctx, id, models.StatusAccountCreated, models.StatusAccountSeedRunning, TransitionOptions{}))
	require.NoError(t, s.Transition(ctx, id, models.StatusAccountSeedRunning, models.StatusAccountSeeded, TransitionOptions{}))
	require.NoError(t, s.Transition(ctx, id, models.StatusAccountSeeded, models.StatusContentSeedRunning, TransitionOptions{}))
	require.NoError(t, s.Transition(ctx, id, models.StatusContentSeedRunning, models.StatusContentSeededFailed,
		TransitionOptions{LastError: "transient: feed"}))

	stored, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccountSeeded, stored.ResumePhase)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "transient: feed", *stored.LastError)

	_, err = s.Requeue(ctx, id, false)
	require.NoError(t, err)

	again, err := s.Claim(ctx, profileOnly, "w")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, models.StatusContentSeedRunning, again.Status)
}

func TestTransitionRejectsIllegalEdges(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	id, _, err := s.Enqueue(ctx, models.JobTypeProfile, "someone", models.JobSourceOriginA)
	require.NoError(t, err)

	err = s.Transition(ctx, id, models.StatusPending, models.StatusScrapeDone, TransitionOptions{})
	assert.ErrorIs(t, err, ErrIllegalTransition)

	// legal edge, but the row is not in the expected status
	err = s.Transition(ctx, id, models.StatusAccountCreationRunning, models.StatusAccountCreated, TransitionOptions{})
	assert.ErrorIs(t, err, ErrIllegalTransition)

	err = s.Transition(ctx, 999, models.StatusAccountCreationRunning, models.StatusAccountCreated, TransitionOptions{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionTruncatesError(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	id, _, err := s.Enqueue(ctx, models.JobTypeProfile, "someone", models.JobSourceOriginA)
	require.NoError(t, err)
	job, err := s.Claim(ctx, profileOnly, "w")
	require.NoError(t, err)

	long := strings.Repeat("x", 5000)
	require.NoError(t, s.Transition(ctx, id, job.Status, models.StatusFailed, TransitionOptions{LastError: long}))

	stored, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Len(t, *stored.LastError, MaxErrorLength)
}

func TestRequeueNeedsForceForTerminalJobs(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	id, _, err := s.Enqueue(ctx, models.JobTypeProfile, "someone", models.JobSourceOriginA)
	require.NoError(t, err)
	job, err := s.Claim(ctx, profileOnly, "w")
	require.NoError(t, err)
	require.NoError(t, s.Transition(ctx, id, job.Status, models.StatusDead, TransitionOptions{LastError: "session_dead"}))

	_, err = s.Requeue(ctx, id, false)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	requeued, err := s.Requeue(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, requeued.Status)
	assert.Nil(t, requeued.LockedBy)

	_, err = s.Requeue(ctx, 12345, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndCountJobs(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		_, _, err := s.Enqueue(ctx, models.JobTypeProfile, key, models.JobSourceOriginA)
		require.NoError(t, err)
	}
	_, _, err := s.Enqueue(ctx, models.JobTypeProfile, "d", models.JobSourceFollowup)
	require.NoError(t, err)
	_, err = s.Claim(ctx, profileOnly, "w")
	require.NoError(t, err)

	all, err := s.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	pending, err := s.ListJobs(ctx, JobFilter{Status: models.StatusPending, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].EntityKey)

	followups, err := s.ListJobs(ctx, JobFilter{Source: models.JobSourceFollowup})
	require.NoError(t, err)
	require.Len(t, followups, 1)
	assert.Equal(t, "d", followups[0].EntityKey)

	counts, err := s.CountJobsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.StatusPending])
	assert.Equal(t, 1, counts[models.StatusAccountCreationRunning])
}

// Two stores on one file behave like two worker processes
func TestConcurrentClaimHasOneWinnerSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	a := openSQLiteAt(t, path)
	b := openSQLiteAt(t, path)
	assertOneWinner(t, a, b)
}

func TestConcurrentClaimHasOneWinnerPostgres(t *testing.T) {
	a := newPostgresStore(t)
	b, err := Open(Options{Driver: "postgres", DSN: os.Getenv(pgDSNEnv), MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	assertOneWinner(t, a, b)
}

func assertOneWinner(t *testing.T, a, b *Store) {
	t.Helper()
	ctx := context.Background()

	_, _, err := a.Enqueue(ctx, models.JobTypeProfile, "contested", models.JobSourceOriginA)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []*models.Job
		errs    []error
	)
	for i, s := range []*Store{a, b, a, b} {
		wg.Add(1)
		go func(worker int, s *Store) {
			defer wg.Done()
			job, err := s.Claim(ctx, profileOnly, "worker-"+string(rune('a'+worker)))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if job != nil {
				winners = append(winners, job)
			}
		}(i, s)
	}
	wg.Wait()

	assert.Empty(t, errs)
	require.Len(t, winners, 1)
	assert.Equal(t, 1, winners[0].Attempts)
}
