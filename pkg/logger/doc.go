// Package logger wraps zerolog behind a small interface used across the
// harvester.
//
// Components receive a Logger explicitly; the global logger exists for the
// CLI entry points only.
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("job_id", job.ID).Info("Job claimed")
//
// Tests use NewTestLogger to capture entries or NewNopLogger to discard them.
package logger
