package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/config"
	"igharvest/pkg/dispatcher"
	"igharvest/pkg/logger"
	"igharvest/pkg/models"
	"igharvest/pkg/session"
	"igharvest/pkg/store"
)

// fakeUpstream serves the handful of endpoints a PROFILE job touches and
// rejects requests that arrive without the session cookie
type fakeUpstream struct {
	server   *httptest.Server
	requests int32
	mu       sync.Mutex
	dead     bool
	deadRoot bool
	paths    []string
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	u := &fakeUpstream{}
	u.server = httptest.NewServer(http.HandlerFunc(u.handle))
	t.Cleanup(u.server.Close)
	return u
}

func (u *fakeUpstream) kill() {
	u.mu.Lock()
	u.dead = true
	u.mu.Unlock()
}

// killRoot rejects only the root page, which the session revisits to rotate
// its csrftoken between feed pages
func (u *fakeUpstream) killRoot() {
	u.mu.Lock()
	u.deadRoot = true
	u.mu.Unlock()
}

func (u *fakeUpstream) seen() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.paths...)
}

func (u *fakeUpstream) handle(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&u.requests, 1)
	u.mu.Lock()
	u.paths = append(u.paths, r.URL.Path)
	dead := u.dead || (u.deadRoot && r.URL.Path == "/")
	u.mu.Unlock()

	if c, err := r.Cookie("sessionid"); dead || err != nil || c.Value == "" {
		http.Redirect(w, r, "/accounts/login/?next="+r.URL.Path, http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/":
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "rotated", Path: "/"})
		w.Write([]byte(`<html></html>`))
	case r.URL.Path == "/someone/" && r.URL.Query().Get("__a") == "1":
		w.Write([]byte(`{"graphql":{"user":{"id":"42"}}}`))
	case r.URL.Path == "/api/v1/users/web_profile_info/" && r.URL.Query().Get("username") == "someone":
		w.Write([]byte(`{"data":{"user":{"id":"42","username":"someone","full_name":"Some One",
			"biography":"bookings: hello@some.one","is_verified":true,
			"edge_followed_by":{"count":1200},"edge_follow":{"count":80},
			"edge_owner_to_timeline_media":{"count":2}}}}`))
	case strings.HasPrefix(r.URL.Path, "/api/v1/feed/user/42/"):
		w.Write([]byte(`{"status":"ok","more_available":false,"items":[
			{"code":"P1","media_type":1,"like_count":10,
			 "image_versions2":{"candidates":[{"url":"https://cdn.example/p1.jpg"}]}},
			{"code":"R1","media_type":2,"product_type":"clips",
			 "video_versions":[{"url":"https://cdn.example/r1.mp4"}]}
		]}`))
	default:
		http.NotFound(w, r)
	}
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Instagram.BaseURL = baseURL
	cfg.Instagram.RequestTimeout = 5 * time.Second
	cfg.Database.DSN = filepath.Join(t.TempDir(), "harvest.db")
	cfg.RateLimit.RequestsPerMinute = 60000
	cfg.RateLimit.BurstSize = 100
	cfg.RateLimit.Cooldown = time.Millisecond
	cfg.RateLimit.TransientBackoff = time.Millisecond
	cfg.Pacing = config.PacingConfig{
		PageDelayMin: time.Millisecond,
		PageDelayMax: time.Millisecond,
		JobDelayMin:  time.Millisecond,
		JobDelayMax:  time.Millisecond,
		IdleDelay:    time.Millisecond,
	}
	cfg.Worker.ID = "worker-e2e"
	cfg.Worker.RunOnce = true
	cfg.Notifications.Enabled = false
	cfg.Enrichment.Enabled = false
	cfg.Checkpoint.Directory = filepath.Join(t.TempDir(), "checkpoints")
	return cfg
}

func openTestStore(t *testing.T, cfg *config.Config) *store.Store {
	t.Helper()
	st, err := openStore(context.Background(), cfg, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

var testCreds = session.Credentials{SessionID: "12345678%3Aabcdefghijkl%3A1", CSRFToken: "token"}

func TestWorkerHarvestsProfileOverHTTP(t *testing.T) {
	up := newFakeUpstream(t)
	cfg := testConfig(t, up.server.URL)
	st := openTestStore(t, cfg)
	ctx := context.Background()

	id, created, err := st.Enqueue(ctx, models.JobTypeProfile, "someone", models.JobSourceManual)
	require.NoError(t, err)
	require.True(t, created)

	d, err := buildDispatcher(cfg, logger.NewTestLogger(), testCreds, st)
	require.NoError(t, err)
	assert.Equal(t, "worker-e2e", d.WorkerID())
	require.NoError(t, d.Run(ctx))

	job, err := st.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusScrapeDone, job.Status)

	acc, err := st.Entities().AccountByHandle(ctx, "someone")
	require.NoError(t, err)
	assert.Equal(t, "42", *acc.UpstreamID)
	assert.Equal(t, "hello@some.one", *acc.ContactEmail)
	assert.Equal(t, int64(1200), *acc.FollowersCount)
	assert.True(t, acc.IsVerified)
	assert.Equal(t, up.server.URL+"/someone/", acc.ProfileURI)

	n, err := st.Entities().CountContent(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Contains(t, up.seen(), "/api/v1/feed/user/42/")
}

func TestWorkerStopsOnRejectedSession(t *testing.T) {
	up := newFakeUpstream(t)
	up.kill()
	cfg := testConfig(t, up.server.URL)
	st := openTestStore(t, cfg)
	ctx := context.Background()

	id, _, err := st.Enqueue(ctx, models.JobTypeProfile, "someone", models.JobSourceManual)
	require.NoError(t, err)
	_, _, err = st.Enqueue(ctx, models.JobTypeProfile, "other", models.JobSourceManual)
	require.NoError(t, err)

	d, err := buildDispatcher(cfg, logger.NewTestLogger(), testCreds, st)
	require.NoError(t, err)

	err = d.Run(ctx)
	require.ErrorIs(t, err, dispatcher.ErrSessionDead)

	job, err := st.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDead, job.Status)

	// the worker stopped before touching the second job
	pending, err := st.ListJobs(ctx, store.JobFilter{Status: models.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "other", pending[0].EntityKey)
	assert.NotContains(t, up.seen(), "/other/")
	assert.Positive(t, atomic.LoadInt32(&up.requests))
}

func TestWorkerStopsWhenTokenRefreshFindsSessionDead(t *testing.T) {
	up := newFakeUpstream(t)
	up.killRoot()
	cfg := testConfig(t, up.server.URL)
	cfg.Session.CSRFRefreshPages = 1
	st := openTestStore(t, cfg)
	ctx := context.Background()

	id, _, err := st.Enqueue(ctx, models.JobTypeProfile, "someone", models.JobSourceManual)
	require.NoError(t, err)
	_, _, err = st.Enqueue(ctx, models.JobTypeProfile, "other", models.JobSourceManual)
	require.NoError(t, err)

	d, err := buildDispatcher(cfg, logger.NewTestLogger(), testCreds, st)
	require.NoError(t, err)
	require.ErrorIs(t, d.Run(ctx), dispatcher.ErrSessionDead)

	job, err := st.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDead, job.Status)
	assert.Equal(t, models.StatusAccountSeeded, job.ResumePhase)

	// the refresh failed before the first feed page went out
	assert.Contains(t, up.seen(), "/")
	assert.NotContains(t, up.seen(), "/api/v1/feed/user/42/")

	pending, err := st.ListJobs(ctx, store.JobFilter{Status: models.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "other", pending[0].EntityKey)
}

func TestBuildDispatcherRejectsBadSettings(t *testing.T) {
	cfg := testConfig(t, "https://www.instagram.com")
	st := openTestStore(t, cfg)

	cfg.Worker.JobTypes = []string{"STORY"}
	_, err := buildDispatcher(cfg, logger.NewNopLogger(), testCreds, st)
	assert.Error(t, err)

	cfg.Worker.JobTypes = []string{"PROFILE"}
	cfg.Pagination.Mode = "sideways"
	_, err = buildDispatcher(cfg, logger.NewNopLogger(), testCreds, st)
	assert.Error(t, err)

	cfg.Pagination.Mode = "incremental"
	_, err = buildDispatcher(cfg, logger.NewNopLogger(), session.Credentials{}, st)
	assert.ErrorIs(t, err, session.ErrNoCredentials)
}
