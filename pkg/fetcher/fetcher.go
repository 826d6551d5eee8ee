package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"igharvest/pkg/checkpoint"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/instagram"
	"igharvest/pkg/logger"
	"igharvest/pkg/retry"
)

// SeedMode selects how far the feed walk goes
type SeedMode string

const (
	// ModeFull walks the whole feed and re-validates every item
	ModeFull SeedMode = "full"
	// ModeIncremental stops at the first already persisted shortcode
	ModeIncremental SeedMode = "incremental"
)

// ParseSeedMode maps a configured mode name; empty selects ModeFull
func ParseSeedMode(s string) (SeedMode, error) {
	switch SeedMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeFull:
		return ModeFull, nil
	case ModeIncremental:
		return ModeIncremental, nil
	default:
		return "", fmt.Errorf("unknown seed mode %q", s)
	}
}

// Options configures a Fetcher
type Options struct {
	PageSize int
	// MaxPages caps one feed walk, 0 means unlimited
	MaxPages int
	Mode     SeedMode
	// MaxSingleWaits bounds rate-limit cooldowns on single-shot requests
	MaxSingleWaits int
	// TransientRetries is the number of retries after the first attempt
	TransientRetries int
	Pacing           retry.Pacing
	Sleeper          retry.Sleeper
	Checkpoints      checkpoint.Store
	Logger           logger.Logger
}

// Fetcher issues upstream calls with retry, cooldown and pacing
type Fetcher struct {
	api    *instagram.API
	opts   Options
	logger logger.Logger
	now    func() time.Time
}

// New creates a Fetcher, filling unset options with their defaults
func New(api *instagram.API, opts Options) *Fetcher {
	if opts.PageSize <= 0 {
		opts.PageSize = instagram.DefaultPageSize
	}
	if opts.Mode == "" {
		opts.Mode = ModeFull
	}
	if opts.MaxSingleWaits < 0 {
		opts.MaxSingleWaits = 0
	}
	if opts.TransientRetries < 0 {
		opts.TransientRetries = 0
	}
	if opts.Pacing.PageDelay == nil {
		opts.Pacing.PageDelay = retry.Fixed(0)
	}
	if opts.Pacing.Cooldown == nil {
		opts.Pacing.Cooldown = retry.Fixed(15 * time.Minute)
	}
	if opts.Pacing.TransientBackoff == nil {
		opts.Pacing.TransientBackoff = retry.Fixed(5 * time.Second)
	}
	if opts.Sleeper == nil {
		opts.Sleeper = retry.RealSleeper{}
	}
	if opts.Checkpoints == nil {
		opts.Checkpoints = checkpoint.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}

	return &Fetcher{
		api:    api,
		opts:   opts,
		logger: opts.Logger.WithField("component", "fetcher"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Mode returns the configured seed mode
func (f *Fetcher) Mode() SeedMode {
	return f.opts.Mode
}

const unlimitedWaits = -1

// call runs op, retrying transient failures with a fixed backoff and
// sleeping the cooldown on rate limits up to maxWaits times (unlimitedWaits
// never gives up). Every other error is returned as is.
func (f *Fetcher) call(ctx context.Context, endpoint string, maxWaits int, op retry.Operation) error {
	cfg := &retry.Config{
		MaxAttempts: 1 + f.opts.TransientRetries,
		Backoff:     &retry.ConstantBackoff{Delay: f.opts.Pacing.TransientBackoff()},
		RetryIf:     retry.TransientOnly,
		Sleeper:     f.opts.Sleeper,
		Logger:      f.logger.WithField("endpoint", endpoint),
	}

	for waits := 0; ; {
		err := retry.Do(ctx, op, cfg)
		if err == nil || !errs.Is(err, errs.ErrorTypeRateLimit) {
			return err
		}
		if maxWaits != unlimitedWaits && waits >= maxWaits {
			return err
		}
		waits++

		cooldown := f.opts.Pacing.Cooldown()
		logger.LogRateLimit(f.logger, endpoint, cooldown, waits)
		if err := f.opts.Sleeper.Sleep(ctx, cooldown); err != nil {
			return err
		}
	}
}

// Resolve finds the upstream id of handle, trying the JSON profile page,
// the GraphQL username query and the search endpoint in order. A dead
// session or an exhausted rate limit ends the chain at once; any other
// failure moves on to the next strategy.
func (f *Fetcher) Resolve(ctx context.Context, sess instagram.Requester, handle string) (string, error) {
	strategies := []struct {
		name string
		fn   func(context.Context, instagram.Requester, string) (string, error)
	}{
		{"profile_page", f.api.ResolveViaProfilePage},
		{"graphql", f.api.ResolveViaGraphQL},
		{"search", f.api.ResolveViaSearch},
	}

	var lastErr error
	for _, s := range strategies {
		var id string
		err := f.call(ctx, "resolve_"+s.name, f.opts.MaxSingleWaits, func(ctx context.Context) error {
			var err error
			id, err = s.fn(ctx, sess, handle)
			return err
		})
		if err == nil {
			f.logger.InfoWithFields("Handle resolved", map[string]interface{}{
				"handle":      handle,
				"upstream_id": id,
				"strategy":    s.name,
			})
			return id, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errs.IsFatal(err) || errs.Is(err, errs.ErrorTypeRateLimit) {
			return "", err
		}

		f.logger.WithError(err).WithFields(map[string]interface{}{
			"handle":   handle,
			"strategy": s.name,
		}).Warn("Resolution strategy failed")
		lastErr = err
	}

	return "", errs.Wrap(errs.ErrorTypeResolution, lastErr,
		fmt.Sprintf("all resolution strategies failed for %s", handle))
}

// Profile fetches the full profile of handle
func (f *Fetcher) Profile(ctx context.Context, sess instagram.Requester, handle string) (*instagram.ProfileUser, error) {
	var user *instagram.ProfileUser
	err := f.call(ctx, "profile", f.opts.MaxSingleWaits, func(ctx context.Context) error {
		var err error
		user, err = f.api.Profile(ctx, sess, handle)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// PostOwner finds the handle that owns a post
func (f *Fetcher) PostOwner(ctx context.Context, sess instagram.Requester, shortcode string) (string, error) {
	var owner string
	err := f.call(ctx, "post_owner", f.opts.MaxSingleWaits, func(ctx context.Context) error {
		var err error
		owner, err = f.api.PostOwner(ctx, sess, shortcode)
		return err
	})
	if err != nil {
		return "", err
	}
	return owner, nil
}
