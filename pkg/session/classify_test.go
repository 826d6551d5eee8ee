package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	errs "igharvest/pkg/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		location string
		body     string
		err      error
		want     Outcome
	}{
		{"ok", 200, "", `{"status":"ok"}`, nil, Active},
		{"not found is still active", 404, "", `{}`, nil, Active},
		{"unauthorized", 401, "", "", nil, SessionDead},
		{"forbidden", 403, "", "", nil, SessionDead},
		{"login marker on 200", 200, "", `{"message":"login_required","status":"fail"}`, nil, SessionDead},
		{"checkpoint marker", 200, "", `{"message":"checkpoint_required"}`, nil, SessionDead},
		{"challenge marker", 400, "", `{"message":"challenge_required"}`, nil, SessionDead},
		{"requires_to_login", 200, "", `{"requires_to_login":true}`, nil, SessionDead},
		{"redirect to login", 302, "https://www.instagram.com/accounts/login/?next=/x/", "", nil, SessionDead},
		{"redirect to challenge", 302, "/challenge/?next=/", "", nil, SessionDead},
		{"harmless redirect", 301, "https://www.instagram.com/alice/", "", nil, Active},
		{"too many requests", 429, "", "", nil, RateLimited},
		{"soft rate limit", 200, "", `{"message":"Please Wait a few minutes before you try again.","status":"fail"}`, nil, RateLimited},
		{"server error", 500, "", "", nil, TransientError},
		{"bad gateway", 502, "", "", nil, TransientError},
		{"network", 0, "", "", errors.New("connection reset by peer"), TransientError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Classify(tt.status, tt.location, []byte(tt.body), tt.err)
			assert.Equal(t, tt.want, r.Outcome, "reason=%s", r.Reason)
		})
	}
}

func TestClassifyIgnoresMarkersInUserText(t *testing.T) {
	markers := []string{
		"login_required",
		"checkpoint_required",
		"challenge_required",
		`\"requires_to_login\":true`,
		"Drop goes live, wait a few minutes!",
	}

	for _, m := range markers {
		t.Run(m, func(t *testing.T) {
			caption := `{"status":"ok","more_available":false,"items":[
				{"code":"P1","media_type":1,"caption":{"text":"how to fix ` + m + ` errors"}}]}`
			r := Classify(200, "", []byte(caption), nil)
			assert.Equal(t, Active, r.Outcome, "caption: reason=%s", r.Reason)

			bio := `{"data":{"user":{"id":"42","biography":"` + m + `"}},"status":"ok"}`
			r = Classify(200, "", []byte(bio), nil)
			assert.Equal(t, Active, r.Outcome, "bio: reason=%s", r.Reason)
		})
	}
}

func TestClassifyEnvelopeFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Outcome
	}{
		{"require_login", `{"require_login":true,"status":"fail"}`, SessionDead},
		{"checkpoint_url", `{"message":"checkpoint","checkpoint_url":"/challenge/123/"}`, SessionDead},
		{"message case", `{"message":"LOGIN_REQUIRED","status":"fail"}`, SessionDead},
		{"mistyped fields", `{"require_login":"yes","message":42,"items":[]}`, Active},
		{"html login wall", `<html><script>{"login_required":1}</script></html>`, SessionDead},
		{"html soft limit", `<html>Please wait a few minutes</html>`, RateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Classify(200, "", []byte(tt.body), nil)
			assert.Equal(t, tt.want, r.Outcome, "reason=%s", r.Reason)
		})
	}
}

func TestClassifyDeadBeatsRateLimit(t *testing.T) {
	r := Classify(429, "", []byte(`{"message":"login_required"}`), nil)
	assert.Equal(t, SessionDead, r.Outcome)
}

func TestClassifyTimeoutReason(t *testing.T) {
	r := Classify(0, "", nil, fmt.Errorf("get: %w", context.DeadlineExceeded))
	assert.Equal(t, TransientError, r.Outcome)
	assert.Equal(t, "timeout", r.Reason)
}

func TestResultAsError(t *testing.T) {
	assert.NoError(t, Result{Outcome: Active}.AsError("profile"))

	dead := Result{Outcome: SessionDead, StatusCode: 401, Reason: "http 401"}.AsError("profile")
	assert.True(t, errs.IsFatal(dead))
	assert.Contains(t, dead.Error(), "profile: http 401")

	assert.True(t, errs.Is(Result{Outcome: RateLimited}.AsError("feed"), errs.ErrorTypeRateLimit))
	assert.True(t, errs.Is(Result{Outcome: TransientError}.AsError("feed"), errs.ErrorTypeTransient))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "rate_limited", RateLimited.String())
	assert.Equal(t, "session_dead", SessionDead.String())
	assert.Equal(t, "transient", TransientError.String())
}
