// Package session owns the single authenticated upstream session: its cookie
// jar, the rotating browser fingerprint, anti-forgery token refresh, and the
// classification of every response.
//
// A Session is not safe for concurrent use; the dispatcher drives it from one
// goroutine and passes it explicitly to every fetch.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"igharvest/pkg/logger"
	"igharvest/pkg/ratelimit"
)

const maxBodyBytes = 16 << 20

// Credentials are the browser cookies that authenticate the session
type Credentials struct {
	SessionID string
	CSRFToken string
	DSUserID  string
}

// Valid reports whether the mandatory cookie is present
func (c Credentials) Valid() bool {
	return c.SessionID != ""
}

// Options configures a Session
type Options struct {
	BaseURL          string
	AppID            string
	Timeout          time.Duration
	CSRFRefreshEvery int
	Profiles         []HeaderProfile
	Limiter          ratelimit.Limiter
	Logger           logger.Logger
	Transport        http.RoundTripper
}

// Session is the process-wide authenticated upstream session
type Session struct {
	client       *http.Client
	base         *url.URL
	appID        string
	refreshEvery int
	profiles     []HeaderProfile
	limiter      ratelimit.Limiter
	logger       logger.Logger
	pages        int
}

// ErrNoCredentials is returned when the session cookie is missing
var ErrNoCredentials = errors.New("session: sessionid cookie is required")

// New builds a Session with its cookie jar seeded from creds
func New(creds Credentials, opts Options) (*Session, error) {
	if !creds.Valid() {
		return nil, ErrNoCredentials
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("session: invalid base URL %q", opts.BaseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("session: cookie jar: %w", err)
	}
	seed := []*http.Cookie{{Name: "sessionid", Value: creds.SessionID, Path: "/"}}
	if creds.CSRFToken != "" {
		seed = append(seed, &http.Cookie{Name: "csrftoken", Value: creds.CSRFToken, Path: "/"})
	}
	if creds.DSUserID != "" {
		seed = append(seed, &http.Cookie{Name: "ds_user_id", Value: creds.DSUserID, Path: "/"})
	}
	jar.SetCookies(base, seed)

	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.CSRFRefreshEvery <= 0 {
		opts.CSRFRefreshEvery = 5
	}
	if len(opts.Profiles) == 0 {
		opts.Profiles = DefaultProfiles
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}

	return &Session{
		client: &http.Client{
			Jar:       jar,
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		base:         base,
		appID:        opts.AppID,
		refreshEvery: opts.CSRFRefreshEvery,
		profiles:     opts.Profiles,
		limiter:      opts.Limiter,
		logger:       opts.Logger.WithField("component", "session"),
	}, nil
}

// BaseURL returns the upstream origin without a trailing slash
func (s *Session) BaseURL() string {
	return s.base.String()
}

// CSRFToken returns the current anti-forgery token from the jar
func (s *Session) CSRFToken() string {
	for _, c := range s.client.Jar.Cookies(s.base) {
		if c.Name == "csrftoken" {
			return c.Value
		}
	}
	return ""
}

// Get issues a single-shot request for path (which may carry a query)
func (s *Session) Get(ctx context.Context, path string) Result {
	return s.do(ctx, path)
}

// GetPage issues a paginated request. Every CSRFRefreshEvery pages the
// anti-forgery token is refreshed first; a dead session found while
// refreshing is returned as the page result.
func (s *Session) GetPage(ctx context.Context, path string) Result {
	s.pages++
	if s.pages%s.refreshEvery == 0 {
		if r := s.RefreshCSRF(ctx); r.Outcome == SessionDead {
			return r
		}
	}
	return s.do(ctx, path)
}

// RefreshCSRF revisits the neutral root page so the upstream rotates the
// csrftoken cookie into the jar
func (s *Session) RefreshCSRF(ctx context.Context) Result {
	before := s.CSRFToken()
	r := s.do(ctx, "/")
	after := s.CSRFToken()

	fields := map[string]interface{}{
		"outcome": r.Outcome.String(),
		"rotated": before != after,
	}
	if r.Outcome == Active {
		s.logger.DebugWithFields("CSRF token refreshed", fields)
	} else {
		s.logger.WarnWithFields("CSRF refresh did not succeed", fields)
	}
	return r
}

func (s *Session) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.base.String() + path
}

func (s *Session) do(ctx context.Context, path string) Result {
	target := s.resolve(path)

	if err := s.limiter.Wait(ctx); err != nil {
		return Classify(0, "", nil, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Classify(0, "", nil, err)
	}
	pickProfile(s.profiles).apply(req.Header, s.appID, s.CSRFToken(), s.base.String()+"/")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"url":      target,
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return Classify(0, "", nil, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Classify(0, "", nil, fmt.Errorf("read body: %w", err))
	}

	r := Classify(resp.StatusCode, resp.Header.Get("Location"), body, nil)
	s.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      target,
		"status":   resp.StatusCode,
		"outcome":  r.Outcome.String(),
		"duration": time.Since(start),
	})
	return r
}
