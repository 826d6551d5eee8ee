package models

// JobStatus is a state in the job state machine
type JobStatus string

const (
	StatusPending                JobStatus = "PENDING"
	StatusAccountCreationRunning JobStatus = "ACCOUNT_CREATION_RUNNING"
	StatusAccountCreated         JobStatus = "ACCOUNT_CREATED"
	StatusAccountCreationFailed  JobStatus = "ACCOUNT_CREATION_FAILED"
	StatusAccountSeedRunning     JobStatus = "ACCOUNT_SEED_RUNNING"
	StatusAccountSeeded          JobStatus = "ACCOUNT_SEEDED"
	StatusAccountSeededFailed    JobStatus = "ACCOUNT_SEEDED_FAILED"
	StatusContentSeedRunning     JobStatus = "CONTENT_SEED_RUNNING"
	StatusContentSeeded          JobStatus = "CONTENT_SEEDED"
	StatusContentSeededFailed    JobStatus = "CONTENT_SEEDED_FAILED"
	StatusScrapeDone             JobStatus = "SCRAPE_DONE"
	StatusRateLimited            JobStatus = "RATE_LIMITED"
	StatusFailed                 JobStatus = "FAILED"
	StatusDead                   JobStatus = "DEAD"
)

// AllStatuses lists every state in pipeline order
var AllStatuses = []JobStatus{
	StatusPending,
	StatusAccountCreationRunning, StatusAccountCreated, StatusAccountCreationFailed,
	StatusAccountSeedRunning, StatusAccountSeeded, StatusAccountSeededFailed,
	StatusContentSeedRunning, StatusContentSeeded, StatusContentSeededFailed,
	StatusScrapeDone, StatusRateLimited, StatusFailed, StatusDead,
}

// Phase is one step of the per-job pipeline
type Phase struct {
	Name    string
	Running JobStatus
	Done    JobStatus
	Failed  JobStatus
}

var (
	PhaseAccountCreation = Phase{"account_creation", StatusAccountCreationRunning, StatusAccountCreated, StatusAccountCreationFailed}
	PhaseAccountSeed     = Phase{"account_seed", StatusAccountSeedRunning, StatusAccountSeeded, StatusAccountSeededFailed}
	PhaseContentSeed     = Phase{"content_seed", StatusContentSeedRunning, StatusContentSeeded, StatusContentSeededFailed}
)

// Phases is the pipeline in execution order
var Phases = []Phase{PhaseAccountCreation, PhaseAccountSeed, PhaseContentSeed}

// Valid reports whether s is a known status
func (s JobStatus) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is expected
func (s JobStatus) IsTerminal() bool {
	return s == StatusScrapeDone || s == StatusDead
}

// IsRunning reports whether a worker currently owns the job
func (s JobStatus) IsRunning() bool {
	switch s {
	case StatusAccountCreationRunning, StatusAccountSeedRunning, StatusContentSeedRunning:
		return true
	}
	return false
}

// IsPhaseFailure reports whether s is one of the *_FAILED phase outcomes
func (s JobStatus) IsPhaseFailure() bool {
	switch s {
	case StatusAccountCreationFailed, StatusAccountSeededFailed, StatusContentSeededFailed:
		return true
	}
	return false
}

// IsCompletedPhase reports whether s marks a committed phase boundary
func (s JobStatus) IsCompletedPhase() bool {
	switch s {
	case StatusAccountCreated, StatusAccountSeeded, StatusContentSeeded:
		return true
	}
	return false
}

// EntryStatus returns the running status a claimed job starts in, given the
// last committed phase.
func EntryStatus(resumePhase JobStatus) JobStatus {
	switch resumePhase {
	case StatusAccountCreated:
		return StatusAccountSeedRunning
	case StatusAccountSeeded, StatusContentSeeded:
		return StatusContentSeedRunning
	default:
		return StatusAccountCreationRunning
	}
}

// PhaseFor returns the phase whose running status is s
func PhaseFor(s JobStatus) (Phase, bool) {
	for _, p := range Phases {
		if p.Running == s {
			return p, true
		}
	}
	return Phase{}, false
}

var transitions = map[JobStatus][]JobStatus{
	StatusPending:                {StatusAccountCreationRunning, StatusAccountSeedRunning, StatusContentSeedRunning},
	StatusRateLimited:            {StatusAccountCreationRunning, StatusAccountSeedRunning, StatusContentSeedRunning},
	StatusAccountCreationRunning: {StatusAccountCreated, StatusAccountCreationFailed},
	StatusAccountCreated:         {StatusAccountSeedRunning, StatusFailed},
	StatusAccountSeedRunning:     {StatusAccountSeeded, StatusAccountSeededFailed},
	StatusAccountSeeded:          {StatusContentSeedRunning, StatusFailed},
	StatusContentSeedRunning:     {StatusContentSeeded, StatusContentSeededFailed},
	StatusContentSeeded:          {StatusScrapeDone, StatusFailed},
}

// CanTransition reports whether the state machine allows from -> to.
// Every running state may also branch out to RATE_LIMITED, DEAD or FAILED.
func CanTransition(from, to JobStatus) bool {
	if from.IsRunning() && (to == StatusRateLimited || to == StatusDead || to == StatusFailed) {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanRequeue reports whether an operator may put a job back to PENDING.
// Terminal and running jobs need force: a running job may belong to a live worker.
func CanRequeue(s JobStatus, force bool) bool {
	switch {
	case s == StatusPending:
		return false
	case s == StatusScrapeDone || s == StatusDead || s.IsRunning():
		return force
	default:
		return true
	}
}
