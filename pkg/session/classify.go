package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	errs "igharvest/pkg/errors"
)

// Outcome is the tagged classification of one upstream response
type Outcome int

const (
	Active Outcome = iota
	RateLimited
	SessionDead
	TransientError
)

func (o Outcome) String() string {
	switch o {
	case Active:
		return "active"
	case RateLimited:
		return "rate_limited"
	case SessionDead:
		return "session_dead"
	case TransientError:
		return "transient"
	default:
		return "unknown"
	}
}

var deadMarkers = [][]byte{
	[]byte("login_required"),
	[]byte("checkpoint_required"),
	[]byte("challenge_required"),
	[]byte(`"requires_to_login":true`),
}

var rateLimitMarker = []byte("wait a few minutes")

// envelope holds the top-level fields the upstream uses to report errors.
// Nested objects carry user text (captions, bios) and are never inspected.
type envelope struct {
	Status          string
	Message         string
	RequireLogin    bool
	RequiresToLogin bool
	CheckpointURL   string
}

// parseEnvelope decodes the error fields of a JSON object body. ok is false
// when body is not a JSON object. Mistyped fields are left at their zero value.
func parseEnvelope(body []byte) (envelope, bool) {
	var env envelope
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return env, false
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return env, false
	}
	_ = json.Unmarshal(top["status"], &env.Status)
	_ = json.Unmarshal(top["message"], &env.Message)
	_ = json.Unmarshal(top["require_login"], &env.RequireLogin)
	_ = json.Unmarshal(top["requires_to_login"], &env.RequiresToLogin)
	_ = json.Unmarshal(top["checkpoint_url"], &env.CheckpointURL)
	return env, true
}

// bodyMarkers returns the dead and rate-limit reasons found in body. JSON
// bodies are judged on their envelope only; anything else (HTML login walls)
// is scanned as a whole.
func bodyMarkers(body []byte) (dead, limited string) {
	if env, ok := parseEnvelope(body); ok {
		switch {
		case env.RequireLogin:
			return "require_login", ""
		case env.RequiresToLogin:
			return "requires_to_login", ""
		case env.CheckpointURL != "":
			return "checkpoint_url", ""
		}
		msg := []byte(strings.ToLower(env.Message))
		for _, m := range deadMarkers {
			if bytes.Contains(msg, m) {
				return string(m), ""
			}
		}
		if bytes.Contains(msg, rateLimitMarker) {
			return "", string(rateLimitMarker)
		}
		return "", ""
	}

	for _, m := range deadMarkers {
		if bytes.Contains(body, m) {
			return string(m), ""
		}
	}
	if bytes.Contains(bytes.ToLower(body), rateLimitMarker) {
		return "", string(rateLimitMarker)
	}
	return "", ""
}

// Result is a classified upstream response. Body is only meaningful when
// Outcome is Active.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Body       []byte
	Reason     string
	Err        error
}

// Classify maps a raw response (or transport error) to an Outcome. Dead
// markers win over every other signal because a dead session poisons all
// later requests.
func Classify(status int, location string, body []byte, err error) Result {
	if err != nil {
		return Result{Outcome: TransientError, Reason: transportReason(err), Err: err}
	}

	r := Result{StatusCode: status, Body: body}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		r.Outcome, r.Reason = SessionDead, fmt.Sprintf("http %d", status)
		return r
	}
	if status >= 300 && status < 400 {
		if strings.Contains(location, "/accounts/login") || strings.Contains(location, "/challenge") {
			r.Outcome, r.Reason = SessionDead, "redirect to "+location
			return r
		}
	}

	dead, limited := bodyMarkers(body)
	if dead != "" {
		r.Outcome, r.Reason = SessionDead, dead
		return r
	}

	if status == http.StatusTooManyRequests {
		r.Outcome, r.Reason = RateLimited, "http 429"
		return r
	}
	if limited != "" {
		r.Outcome, r.Reason = RateLimited, limited
		return r
	}

	if status >= 500 {
		r.Outcome, r.Reason = TransientError, fmt.Sprintf("http %d", status)
		return r
	}

	r.Outcome = Active
	return r
}

func transportReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "network: " + err.Error()
}

// AsError converts a non-active result into a typed error
func (r Result) AsError(op string) error {
	var t errs.ErrorType
	switch r.Outcome {
	case Active:
		return nil
	case RateLimited:
		t = errs.ErrorTypeRateLimit
	case SessionDead:
		t = errs.ErrorTypeSessionDead
	default:
		t = errs.ErrorTypeTransient
	}
	e := errs.Wrap(t, r.Err, fmt.Sprintf("%s: %s", op, r.Reason))
	e.Code = r.StatusCode
	return e
}
