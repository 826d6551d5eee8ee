// Package ratelimit caps the outbound request rate to the upstream.
//
// TokenBucket wraps golang.org/x/time/rate; the session calls Wait before every
// request so the harvester never exceeds the configured requests per minute,
// independent of the pacing delays applied between pages and jobs.
package ratelimit
