package retry

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"igharvest/pkg/config"
)

// Policy returns the next delay to apply
type Policy func() time.Duration

// Fixed returns a policy that always yields d
func Fixed(d time.Duration) Policy {
	return func() time.Duration { return d }
}

// RandomRange returns a policy yielding a uniform delay in [min, max]
func RandomRange(min, max time.Duration) Policy {
	if max <= min {
		return Fixed(min)
	}
	span := int64(max - min)
	return func() time.Duration {
		return min + time.Duration(rand.Int64N(span+1))
	}
}

// Pacing groups the delay policies the harvester applies
type Pacing struct {
	// PageDelay runs after every persisted feed page
	PageDelay Policy
	// JobDelay runs between jobs and is wider than PageDelay
	JobDelay Policy
	// Cooldown runs after a rate-limited response
	Cooldown Policy
	// TransientBackoff runs before retrying a transient failure
	TransientBackoff Policy
	// Idle runs when no job is claimable
	Idle Policy
}

// NewPacing builds the policies from the pacing and rate limit sections
func NewPacing(cfg *config.Config) Pacing {
	return Pacing{
		PageDelay:        RandomRange(cfg.Pacing.PageDelayMin, cfg.Pacing.PageDelayMax),
		JobDelay:         RandomRange(cfg.Pacing.JobDelayMin, cfg.Pacing.JobDelayMax),
		Cooldown:         Fixed(cfg.RateLimit.Cooldown),
		TransientBackoff: Fixed(cfg.RateLimit.TransientBackoff),
		Idle:             Fixed(cfg.Pacing.IdleDelay),
	}
}

// Sleeper suspends the caller; tests substitute a recorder for real time
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper sleeps on the wall clock and wakes early on cancellation
type RealSleeper struct{}

// Sleep implements Sleeper
func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	return Wait(ctx, d)
}

// RecordingSleeper returns immediately and remembers every requested delay
type RecordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

// Sleep implements Sleeper
func (s *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Delays returns a copy of the recorded delays
func (s *RecordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.delays))
	copy(out, s.delays)
	return out
}

// Count returns how many times d was requested
func (s *RecordingSleeper) Count(d time.Duration) int {
	n := 0
	for _, got := range s.Delays() {
		if got == d {
			n++
		}
	}
	return n
}
