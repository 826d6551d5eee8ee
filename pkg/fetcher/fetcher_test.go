package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/checkpoint"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/instagram"
	"igharvest/pkg/models"
	"igharvest/pkg/persister"
	"igharvest/pkg/retry"
	"igharvest/pkg/session"
)

const (
	cooldown = 15 * time.Minute
	backoff  = 5 * time.Second
	pageWait = 3 * time.Second
)

// scripted answers each path from a queue; the last entry repeats
type scripted struct {
	mu      sync.Mutex
	queues  map[string][]session.Result
	calls   map[string]int
	ordered []string
}

func newScripted() *scripted {
	return &scripted{queues: make(map[string][]session.Result), calls: make(map[string]int)}
}

func (s *scripted) on(path string, results ...session.Result) {
	s.queues[path] = append(s.queues[path], results...)
}

func (s *scripted) next(path string) session.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[path]++
	s.ordered = append(s.ordered, path)
	q := s.queues[path]
	if len(q) == 0 {
		return session.Classify(http.StatusNotFound, "", nil, nil)
	}
	r := q[0]
	if len(q) > 1 {
		s.queues[path] = q[1:]
	}
	return r
}

func (s *scripted) Get(_ context.Context, path string) session.Result     { return s.next(path) }
func (s *scripted) GetPage(_ context.Context, path string) session.Result { return s.next(path) }

func ok(body string) session.Result {
	return session.Classify(http.StatusOK, "", []byte(body), nil)
}

func status(code int) session.Result {
	return session.Classify(code, "", nil, nil)
}

func feedBody(more bool, next string, codes ...string) string {
	items := make([]string, 0, len(codes))
	for _, c := range codes {
		items = append(items, fmt.Sprintf(
			`{"code":%q,"media_type":1,"like_count":3,"image_versions2":{"candidates":[{"url":"https://cdn/%s.jpg"}]}}`, c, c))
	}
	cursor := "null"
	if next != "" {
		cursor = fmt.Sprintf("%q", next)
	}
	return fmt.Sprintf(`{"items":[%s],"more_available":%t,"next_max_id":%s,"status":"ok"}`,
		strings.Join(items, ","), more, cursor)
}

// memorySink stores pages in memory
type memorySink struct {
	pages [][]models.ContentBundle
	known map[string]bool
}

func newSink(known ...string) *memorySink {
	s := &memorySink{known: make(map[string]bool)}
	for _, k := range known {
		s.known[k] = true
	}
	return s
}

func (m *memorySink) SavePage(_ context.Context, _ *models.Account, bundles []models.ContentBundle) (persister.PageResult, error) {
	m.pages = append(m.pages, bundles)
	res := persister.PageResult{Items: len(bundles)}
	for _, b := range bundles {
		m.known[b.Item.Shortcode] = true
		res.Media += len(b.Media)
	}
	return res, nil
}

func (m *memorySink) IsKnownContent(_ context.Context, shortcode string) (bool, error) {
	return m.known[shortcode], nil
}

func newTestFetcher(opts Options) (*Fetcher, *retry.RecordingSleeper) {
	sleeper := &retry.RecordingSleeper{}
	opts.Sleeper = sleeper
	opts.Pacing = retry.Pacing{
		PageDelay:        retry.Fixed(pageWait),
		Cooldown:         retry.Fixed(cooldown),
		TransientBackoff: retry.Fixed(backoff),
	}
	return New(instagram.NewAPI("", nil), opts), sleeper
}

func owner() *models.Account {
	return &models.Account{ID: 1, Handle: "someone", UpstreamID: models.StringPtr("42")}
}

func TestParseSeedMode(t *testing.T) {
	m, err := ParseSeedMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFull, m)

	m, err = ParseSeedMode(" Incremental ")
	require.NoError(t, err)
	assert.Equal(t, ModeIncremental, m)

	_, err = ParseSeedMode("partial")
	assert.Error(t, err)
}

func TestResolveFallsThroughStrategies(t *testing.T) {
	f, _ := newTestFetcher(Options{})
	s := newScripted()
	s.on(instagram.ProfilePagePath("someone"), status(http.StatusNotFound))
	s.on(instagram.GraphQLProfilePath("", "someone"), ok(`{"data":{"user":null}}`))
	s.on(instagram.TopSearchPath("someone"), ok(`{"users":[{"user":{"username":"someone","pk":"42"}}]}`))

	id, err := f.Resolve(context.Background(), s, "someone")
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.Len(t, s.ordered, 3)
}

func TestResolveStopsOnDeadSession(t *testing.T) {
	f, _ := newTestFetcher(Options{})
	s := newScripted()
	s.on(instagram.ProfilePagePath("someone"), status(http.StatusUnauthorized))

	_, err := f.Resolve(context.Background(), s, "someone")
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, []string{instagram.ProfilePagePath("someone")}, s.ordered)
}

func TestResolveRateLimitWaitsAreBounded(t *testing.T) {
	f, sleeper := newTestFetcher(Options{MaxSingleWaits: 2})
	s := newScripted()
	s.on(instagram.ProfilePagePath("someone"), status(http.StatusTooManyRequests))

	_, err := f.Resolve(context.Background(), s, "someone")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeRateLimit))
	assert.Equal(t, 2, sleeper.Count(cooldown))
	assert.Equal(t, 3, s.calls[instagram.ProfilePagePath("someone")])
	assert.Zero(t, s.calls[instagram.GraphQLProfilePath("", "someone")])
}

func TestResolveAllStrategiesFail(t *testing.T) {
	f, _ := newTestFetcher(Options{})
	s := newScripted()

	_, err := f.Resolve(context.Background(), s, "nobody")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeResolution, errs.TypeOf(err))
}

func TestProfileRetriesTransientFailures(t *testing.T) {
	body := `{"data":{"user":{"id":"42","full_name":"Some One"}}}`

	t.Run("recovers", func(t *testing.T) {
		f, sleeper := newTestFetcher(Options{TransientRetries: 2})
		s := newScripted()
		s.on(instagram.ProfileInfoPath("someone"), status(500), status(502), ok(body))

		user, err := f.Profile(context.Background(), s, "someone")
		require.NoError(t, err)
		assert.Equal(t, "Some One", user.FullName.Or(""))
		assert.Equal(t, 2, sleeper.Count(backoff))
	})

	t.Run("gives up", func(t *testing.T) {
		f, sleeper := newTestFetcher(Options{TransientRetries: 2})
		s := newScripted()
		s.on(instagram.ProfileInfoPath("someone"), status(503))

		_, err := f.Profile(context.Background(), s, "someone")
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.ErrorTypeTransient))
		assert.Equal(t, 3, s.calls[instagram.ProfileInfoPath("someone")])
		assert.Equal(t, 2, sleeper.Count(backoff))
	})
}

func TestPostOwner(t *testing.T) {
	f, _ := newTestFetcher(Options{})
	s := newScripted()
	s.on(instagram.PostPagePath("Cxyz"), ok(`<script>{"owner":{"id":"42","username":"someone"}}</script>`))

	handle, err := f.PostOwner(context.Background(), s, "Cxyz")
	require.NoError(t, err)
	assert.Equal(t, "someone", handle)
}

func TestSeedContentWalksUntilExhausted(t *testing.T) {
	store, err := checkpoint.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	f, sleeper := newTestFetcher(Options{PageSize: 2, Checkpoints: store})

	s := newScripted()
	s.on(instagram.FeedPath("42", 2, ""), ok(feedBody(true, "c1", "A", "B")))
	s.on(instagram.FeedPath("42", 2, "c1"), ok(feedBody(true, "c2", "C", "D")))
	s.on(instagram.FeedPath("42", 2, "c2"), ok(feedBody(false, "", "E")))

	sink := newSink()
	sum, err := f.SeedContent(context.Background(), s, ContentRequest{JobID: 7, Owner: owner()}, sink)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Pages)
	assert.Equal(t, 5, sum.Items)
	assert.Equal(t, 5, sum.Media)
	assert.Equal(t, StopExhausted, sum.Stop)
	assert.Len(t, sink.pages, 3)
	assert.Equal(t, 2, sleeper.Count(pageWait))

	cp, err := store.Load(7)
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestSeedContentTermination(t *testing.T) {
	tests := []struct {
		name     string
		maxPages int
		pages    map[string]string
		want     string
		wantPage int
	}{
		{
			name: "empty page",
			pages: map[string]string{
				"":   feedBody(true, "c1", "A"),
				"c1": feedBody(true, "c2"),
			},
			want:     StopEmptyPage,
			wantPage: 1,
		},
		{
			name: "missing cursor",
			pages: map[string]string{
				"": feedBody(true, "", "A"),
			},
			want:     StopNoCursor,
			wantPage: 1,
		},
		{
			name: "repeated cursor",
			pages: map[string]string{
				"":   feedBody(true, "c1", "A"),
				"c1": feedBody(true, "c1", "B"),
			},
			want:     StopRepeatedCursor,
			wantPage: 2,
		},
		{
			name:     "max pages",
			maxPages: 2,
			pages: map[string]string{
				"":   feedBody(true, "c1", "A"),
				"c1": feedBody(true, "c2", "B"),
				"c2": feedBody(true, "c3", "C"),
			},
			want:     StopMaxPages,
			wantPage: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newTestFetcher(Options{PageSize: 12, MaxPages: tt.maxPages})
			s := newScripted()
			for cursor, body := range tt.pages {
				s.on(instagram.FeedPath("42", 12, cursor), ok(body))
			}

			sum, err := f.SeedContent(context.Background(), s, ContentRequest{JobID: 1, Owner: owner()}, newSink())
			require.NoError(t, err)
			assert.Equal(t, tt.want, sum.Stop)
			assert.Equal(t, tt.wantPage, sum.Pages)
		})
	}
}

func TestSeedContentWaitsOutRateLimitInPlace(t *testing.T) {
	f, sleeper := newTestFetcher(Options{MaxSingleWaits: 1})
	s := newScripted()
	first := instagram.FeedPath("42", 12, "")
	s.on(first,
		status(http.StatusTooManyRequests),
		status(http.StatusTooManyRequests),
		status(http.StatusTooManyRequests),
		status(http.StatusTooManyRequests),
		ok(feedBody(false, "", "A")))

	sum, err := f.SeedContent(context.Background(), s, ContentRequest{JobID: 1, Owner: owner()}, newSink())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Pages)
	assert.Equal(t, 4, sleeper.Count(cooldown))
	assert.Equal(t, 5, s.calls[first])
}

func TestSeedContentRateLimitOnLaterPageKeepsCursor(t *testing.T) {
	store, err := checkpoint.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	f, sleeper := newTestFetcher(Options{PageSize: 2, Checkpoints: store})

	s := newScripted()
	first := instagram.FeedPath("42", 2, "")
	second := instagram.FeedPath("42", 2, "c1")
	third := instagram.FeedPath("42", 2, "c2")
	s.on(first, ok(feedBody(true, "c1", "A", "B")))
	s.on(second,
		status(http.StatusTooManyRequests),
		status(http.StatusTooManyRequests),
		status(http.StatusTooManyRequests),
		ok(feedBody(true, "c2", "C", "D")))
	s.on(third, ok(feedBody(false, "", "E")))

	sink := newSink()
	sum, err := f.SeedContent(context.Background(), s, ContentRequest{JobID: 9, Owner: owner()}, sink)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Pages)
	assert.Equal(t, 5, sum.Items)
	assert.Equal(t, 3, sleeper.Count(cooldown))
	assert.Equal(t, 1, s.calls[first])
	assert.Equal(t, 4, s.calls[second])
	assert.Equal(t, 1, s.calls[third])
	assert.Equal(t, []string{first, second, second, second, second, third}, s.ordered)
	assert.Len(t, sink.pages, 3)
}

func TestSeedContentIgnoresMarkersInCaptions(t *testing.T) {
	f, sleeper := newTestFetcher(Options{})
	s := newScripted()
	s.on(instagram.FeedPath("42", 12, ""), ok(`{"status":"ok","more_available":false,"items":[
		{"code":"A","media_type":1,"caption":{"text":"Drop goes live, wait a few minutes!"},
		 "image_versions2":{"candidates":[{"url":"https://cdn/a.jpg"}]}},
		{"code":"B","media_type":1,"caption":{"text":"how to fix login_required errors"},
		 "image_versions2":{"candidates":[{"url":"https://cdn/b.jpg"}]}}]}`))

	sum, err := f.SeedContent(context.Background(), s, ContentRequest{JobID: 1, Owner: owner()}, newSink())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Items)
	assert.Equal(t, StopExhausted, sum.Stop)
	assert.Zero(t, sleeper.Count(cooldown))
}

func TestSeedContentDeadSessionIsFatal(t *testing.T) {
	f, _ := newTestFetcher(Options{})
	s := newScripted()
	s.on(instagram.FeedPath("42", 12, ""), ok(feedBody(true, "c1", "A")))
	s.on(instagram.FeedPath("42", 12, "c1"), ok(`{"message":"login_required","status":"fail"}`))

	sum, err := f.SeedContent(context.Background(), s, ContentRequest{JobID: 1, Owner: owner()}, newSink())
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, 1, sum.Pages)
}

func TestSeedContentIncrementalStopsAtKnownItem(t *testing.T) {
	f, _ := newTestFetcher(Options{Mode: ModeIncremental})
	s := newScripted()
	s.on(instagram.FeedPath("42", 12, ""), ok(feedBody(true, "c1", "NEW1", "NEW2", "OLD", "NEW3")))

	sink := newSink("OLD")
	sum, err := f.SeedContent(context.Background(), s, ContentRequest{JobID: 1, Owner: owner()}, sink)
	require.NoError(t, err)
	assert.Equal(t, StopKnownContent, sum.Stop)
	assert.Equal(t, 2, sum.Items)
	require.Len(t, sink.pages, 1)
	assert.Equal(t, "NEW2", sink.pages[0][1].Item.Shortcode)
	assert.Zero(t, s.calls[instagram.FeedPath("42", 12, "c1")])
}

func TestSeedContentResumesFromCheckpoint(t *testing.T) {
	store, err := checkpoint.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(&checkpoint.Cursor{JobID: 9, Handle: "someone", UpstreamID: "42", MaxID: "c2", Page: 2}))

	f, _ := newTestFetcher(Options{Checkpoints: store})
	s := newScripted()
	s.on(instagram.FeedPath("42", 12, "c2"), ok(feedBody(false, "", "E")))

	sum, err := f.SeedContent(context.Background(), s, ContentRequest{JobID: 9, Owner: owner(), Resume: true}, newSink())
	require.NoError(t, err)
	assert.True(t, sum.Resumed)
	assert.Equal(t, []string{instagram.FeedPath("42", 12, "c2")}, s.ordered)
}

func TestSeedContentIgnoresCheckpointOfOtherAccount(t *testing.T) {
	store, err := checkpoint.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(&checkpoint.Cursor{JobID: 9, UpstreamID: "999", MaxID: "c2"}))

	f, _ := newTestFetcher(Options{Checkpoints: store})
	s := newScripted()
	s.on(instagram.FeedPath("42", 12, ""), ok(feedBody(false, "", "A")))

	sum, err := f.SeedContent(context.Background(), s, ContentRequest{JobID: 9, Owner: owner(), Resume: true}, newSink())
	require.NoError(t, err)
	assert.False(t, sum.Resumed)
	assert.Equal(t, 1, sum.Pages)
}

func TestSeedContentNeedsResolvedAccount(t *testing.T) {
	f, _ := newTestFetcher(Options{})
	_, err := f.SeedContent(context.Background(), newScripted(),
		ContentRequest{Owner: &models.Account{Handle: "someone"}}, newSink())
	assert.True(t, errs.Is(err, errs.ErrorTypeInvalidInput))
}
