// Package retry holds the harvester's timing policies: bounded retries with
// pluggable backoff, randomized pacing between pages and jobs, and the
// Sleeper abstraction that lets tests run without real delays.
//
//	err := retry.Do(ctx, fetchPage, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     &retry.ConstantBackoff{Delay: 10 * time.Second},
//		RetryIf:     retry.TransientOnly,
//		Sleeper:     retry.RealSleeper{},
//	})
package retry
