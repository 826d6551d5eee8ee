// Package fetcher wraps the upstream API with the harvester's failure
// policy.
//
// Single-shot requests (handle resolution, profile info, post owner) retry
// transient failures a bounded number of times and wait out a rate limit at
// most MaxSingleWaits times before giving up with a rate_limit error. Feed
// pagination retries transient failures the same way but waits out rate
// limits in place for as long as it takes, keeping the cursor. A dead
// session is never retried.
//
// Basic usage:
//
//	f := fetcher.New(instagram.NewAPI("", log), fetcher.Options{
//		PageSize: 12,
//		Mode:     fetcher.ModeFull,
//		Pacing:   retry.NewPacing(cfg),
//	})
//	id, err := f.Resolve(ctx, sess, "someone")
package fetcher
