package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogJobTransition records a committed job status change
func LogJobTransition(l Logger, jobID int64, entityKey, from, to, reason string) {
	fields := map[string]interface{}{
		"job_id":     jobID,
		"entity_key": entityKey,
		"from":       from,
		"to":         to,
	}
	if reason != "" {
		fields["reason"] = reason
	}

	switch to {
	case "DEAD", "FAILED", "ACCOUNT_CREATION_FAILED", "ACCOUNT_SEEDED_FAILED", "CONTENT_SEEDED_FAILED":
		l.ErrorWithFields("Job transition", fields)
	case "RATE_LIMITED":
		l.WarnWithFields("Job transition", fields)
	default:
		l.InfoWithFields("Job transition", fields)
	}
}

// LogRateLimit logs rate limiting events
func LogRateLimit(l Logger, endpoint string, cooldown time.Duration, wait int) {
	l.WithFields(map[string]interface{}{
		"endpoint": endpoint,
		"cooldown": cooldown,
		"wait":     wait,
		"action":   "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogPage logs one persisted feed page
func LogPage(l Logger, handle string, page, items, newItems int, cursor string) {
	l.WithFields(map[string]interface{}{
		"handle":    handle,
		"page":      page,
		"items":     items,
		"new_items": newItems,
		"cursor":    cursor,
	}).Info("Feed page persisted")
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, config map[string]interface{}) {
	l = l.WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
